package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// Subscription binds a customer to a plan. Renewal shifts the period window
// forward on the same row; usage history lives in period-scoped
// UsageRecord rows.
type Subscription struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID      uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index"`
	PlanID          uuid.UUID `gorm:"column:plan_id;type:uuid;not null;index"`
	EstablishmentID uuid.UUID `gorm:"column:establishment_id;type:uuid;not null;index"`

	Status enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active';index"`

	CurrentPeriodStart time.Time  `gorm:"column:current_period_start;not null"`
	CurrentPeriodEnd   time.Time  `gorm:"column:current_period_end;not null"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ActiveAt reports whether the subscription can fund a booking at t.
func (s Subscription) ActiveAt(t time.Time) bool {
	return s.Status == enums.SubscriptionActive &&
		!t.Before(s.CurrentPeriodStart) && t.Before(s.CurrentPeriodEnd)
}
