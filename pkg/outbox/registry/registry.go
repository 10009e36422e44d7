package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/config"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/channel/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Channel        string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row. The
// Reason becomes the DLQ classification.
type NonRetryableError struct {
	Reason enums.OutboxDLQErrorReason
	Err    error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured channel names.
func NewEventRegistry(cfg config.OutboxConfig) (*EventRegistry, error) {
	if cfg.BookingChannel == "" {
		return nil, fmt.Errorf("booking channel is required")
	}
	if cfg.QueueChannel == "" {
		return nil, fmt.Errorf("queue channel is required")
	}
	if cfg.NotificationChannel == "" {
		return nil, fmt.Errorf("notification channel is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventAppointmentCreated,
			AggregateType:  enums.AggregateAppointment,
			Channel:        cfg.BookingChannel,
			PayloadFactory: func() interface{} { return &payloads.AppointmentCreatedEvent{} },
		},
		{
			EventType:      enums.EventAppointmentStatusChanged,
			AggregateType:  enums.AggregateAppointment,
			Channel:        cfg.BookingChannel,
			PayloadFactory: func() interface{} { return &payloads.AppointmentStatusChangedEvent{} },
		},
	} {
		reg.register(desc)
	}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventQueueEntryJoined,
			AggregateType:  enums.AggregateQueueEntry,
			Channel:        cfg.QueueChannel,
			PayloadFactory: func() interface{} { return &payloads.QueueEntryJoinedEvent{} },
		},
		{
			EventType:      enums.EventQueueEntryCalled,
			AggregateType:  enums.AggregateQueueEntry,
			Channel:        cfg.QueueChannel,
			PayloadFactory: func() interface{} { return &payloads.QueueEntryCalledEvent{} },
		},
		{
			EventType:      enums.EventQueueEntryLeft,
			AggregateType:  enums.AggregateQueueEntry,
			Channel:        cfg.QueueChannel,
			PayloadFactory: func() interface{} { return &payloads.QueueEntryLeftEvent{} },
		},
	} {
		reg.register(desc)
	}
	reg.register(EventDescriptor{
		EventType:      enums.EventCheckInRedeemed,
		AggregateType:  enums.AggregateCheckIn,
		Channel:        cfg.NotificationChannel,
		PayloadFactory: func() interface{} { return &payloads.CheckInRedeemedEvent{} },
	})
	reg.register(EventDescriptor{
		EventType:      enums.EventSubscriptionRenewed,
		AggregateType:  enums.AggregateSubscription,
		Channel:        cfg.NotificationChannel,
		PayloadFactory: func() interface{} { return &payloads.SubscriptionRenewedEvent{} },
	})

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(enums.DLQReasonUnsupported, fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(enums.DLQReasonUnsupported, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(enums.DLQReasonDecodeFailed, fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(enums.DLQReasonDecodeFailed, fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(enums.DLQReasonDecodeFailed, fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(enums.DLQReasonDecodeFailed, fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(reason enums.OutboxDLQErrorReason, err error) NonRetryableError {
	return NonRetryableError{Reason: reason, Err: err}
}
