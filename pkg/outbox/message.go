package outbox

import (
	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// Message is the wire shape published to Redis channels by the dispatcher.
// Consumers dedupe on Envelope.EventID.
type Message struct {
	EventType     enums.OutboxEventType     `json:"eventType"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType"`
	AggregateID   uuid.UUID                 `json:"aggregateId"`
	Envelope      PayloadEnvelope           `json:"envelope"`
}
