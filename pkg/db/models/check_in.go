package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckIn records a redeemed arrival. The unique appointment reference makes
// redemption idempotent, and the (customer, establishment, local day) rule in
// the usage engine blocks a second subscription-funded check-in on the same
// calendar day.
type CheckIn struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AppointmentID   uuid.UUID `gorm:"column:appointment_id;type:uuid;not null;unique"`
	CustomerID      uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index:idx_check_ins_customer_establishment"`
	EstablishmentID uuid.UUID `gorm:"column:establishment_id;type:uuid;not null;index:idx_check_ins_customer_establishment"`

	CheckedInAt             time.Time `gorm:"column:checked_in_at;not null"`
	SubscriptionUseConsumed bool      `gorm:"column:subscription_use_consumed;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
