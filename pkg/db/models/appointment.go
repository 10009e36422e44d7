package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// Appointment is the central scheduling row. Exactly one of ServiceID or
// BundleID is set (enforced by NewAppointmentOffering at construction and a
// CHECK constraint in the schema). Duration and price are snapshotted at
// booking time so later catalog edits never shift existing bookings.
// Appointments are never deleted; cancellation is a status.
type Appointment struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EstablishmentID uuid.UUID  `gorm:"column:establishment_id;type:uuid;not null;index:idx_appointments_establishment_scheduled"`
	StaffID         uuid.UUID  `gorm:"column:staff_id;type:uuid;not null;index:idx_appointments_staff_scheduled"`
	CustomerID      uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;index"`
	ServiceID       *uuid.UUID `gorm:"column:service_id;type:uuid"`
	BundleID        *uuid.UUID `gorm:"column:bundle_id;type:uuid"`
	SubscriptionID  *uuid.UUID `gorm:"column:subscription_id;type:uuid"`

	// UsageRecordID remembers which period record funded this booking so a
	// compensating release targets the right row.
	UsageRecordID *uuid.UUID `gorm:"column:usage_record_id;type:uuid"`

	ScheduledAt     time.Time `gorm:"column:scheduled_at;not null;index:idx_appointments_staff_scheduled;index:idx_appointments_establishment_scheduled"`
	DurationMinutes int       `gorm:"column:duration_minutes;not null"`

	Status      enums.AppointmentStatus `gorm:"column:status;type:appointment_status;not null;default:'pending';index"`
	PaymentType enums.PaymentType       `gorm:"column:payment_type;type:payment_type;not null"`

	Price        decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	Notes        *string         `gorm:"column:notes"`
	CancelReason *string         `gorm:"column:cancel_reason"`
	ReminderSent bool            `gorm:"column:reminder_sent;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// EndAt returns the exclusive end instant of the booked interval.
func (a Appointment) EndAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps applies the half-open interval overlap test against another
// appointment on the same timeline.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.ScheduledAt.Before(end) && start.Before(a.EndAt())
}
