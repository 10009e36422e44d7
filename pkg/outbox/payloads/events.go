package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// AppointmentCreatedEvent signals a freshly booked appointment.
type AppointmentCreatedEvent struct {
	AppointmentID   uuid.UUID               `json:"appointment_id"`
	EstablishmentID uuid.UUID               `json:"establishment_id"`
	StaffID         uuid.UUID               `json:"staff_id"`
	CustomerID      uuid.UUID               `json:"customer_id"`
	ScheduledAt     time.Time               `json:"scheduled_at"`
	DurationMinutes int                     `json:"duration_minutes"`
	PaymentType     enums.PaymentType       `json:"payment_type"`
	Status          enums.AppointmentStatus `json:"status"`
}

// AppointmentStatusChangedEvent records one edge of the booking state
// machine.
type AppointmentStatusChangedEvent struct {
	AppointmentID   uuid.UUID               `json:"appointment_id"`
	EstablishmentID uuid.UUID               `json:"establishment_id"`
	CustomerID      uuid.UUID               `json:"customer_id"`
	From            enums.AppointmentStatus `json:"from"`
	To              enums.AppointmentStatus `json:"to"`
	Reason          *string                 `json:"reason,omitempty"`
}

// QueueEntryJoinedEvent signals a walk-in customer joining the line.
type QueueEntryJoinedEvent struct {
	EntryID         uuid.UUID `json:"entry_id"`
	EstablishmentID uuid.UUID `json:"establishment_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	Position        int       `json:"position"`
}

// QueueEntryCalledEvent signals a customer being called to a chair.
type QueueEntryCalledEvent struct {
	EntryID         uuid.UUID  `json:"entry_id"`
	EstablishmentID uuid.UUID  `json:"establishment_id"`
	CustomerID      uuid.UUID  `json:"customer_id"`
	StaffID         *uuid.UUID `json:"staff_id,omitempty"`
}

// QueueEntryLeftEvent signals a customer leaving the line before service.
type QueueEntryLeftEvent struct {
	EntryID         uuid.UUID `json:"entry_id"`
	EstablishmentID uuid.UUID `json:"establishment_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
}

// CheckInRedeemedEvent signals a validated arrival.
type CheckInRedeemedEvent struct {
	CheckInID               uuid.UUID  `json:"check_in_id"`
	EstablishmentID         uuid.UUID  `json:"establishment_id"`
	CustomerID              uuid.UUID  `json:"customer_id"`
	AppointmentID           *uuid.UUID `json:"appointment_id,omitempty"`
	QueueEntryID            *uuid.UUID `json:"queue_entry_id,omitempty"`
	SubscriptionUseConsumed bool       `json:"subscription_use_consumed"`
}

// SubscriptionRenewedEvent signals a period rollover on an active
// subscription.
type SubscriptionRenewedEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PlanID         uuid.UUID `json:"plan_id"`
	CustomerID     uuid.UUID `json:"customer_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
}
