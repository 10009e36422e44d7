package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateAppointment  OutboxAggregateType = "appointment"
	AggregateQueueEntry   OutboxAggregateType = "queue_entry"
	AggregateCheckIn      OutboxAggregateType = "check_in"
	AggregateSubscription OutboxAggregateType = "subscription"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateAppointment,
	AggregateQueueEntry,
	AggregateCheckIn,
	AggregateSubscription,
}

// String implements fmt.Stringer.
func (a OutboxAggregateType) String() string {
	return string(a)
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventAppointmentCreated       OutboxEventType = "appointment_created"
	EventAppointmentStatusChanged OutboxEventType = "appointment_status_changed"
	EventQueueEntryJoined         OutboxEventType = "queue_entry_joined"
	EventQueueEntryCalled         OutboxEventType = "queue_entry_called"
	EventQueueEntryLeft           OutboxEventType = "queue_entry_left"
	EventCheckInRedeemed          OutboxEventType = "check_in_redeemed"
	EventSubscriptionRenewed      OutboxEventType = "subscription_renewed"
)

var validEventTypes = []OutboxEventType{
	EventAppointmentCreated,
	EventAppointmentStatusChanged,
	EventQueueEntryJoined,
	EventQueueEntryCalled,
	EventQueueEntryLeft,
	EventCheckInRedeemed,
	EventSubscriptionRenewed,
}

// String implements fmt.Stringer.
func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// OutboxDLQErrorReason classifies why a row was dead-lettered.
type OutboxDLQErrorReason string

const (
	DLQReasonDecodeFailed  OutboxDLQErrorReason = "decode_failed"
	DLQReasonUnsupported   OutboxDLQErrorReason = "unsupported_event"
	DLQReasonPublishFailed OutboxDLQErrorReason = "publish_failed"
)

// String implements fmt.Stringer.
func (r OutboxDLQErrorReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known OutboxDLQErrorReason.
func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case DLQReasonDecodeFailed, DLQReasonUnsupported, DLQReasonPublishFailed:
		return true
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
