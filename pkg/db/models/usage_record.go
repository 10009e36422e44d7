package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord counts consumptions of one plan item within one period.
// A new period always creates a fresh row keyed by period_start; prior
// periods are never mutated, preserving the audit trail. The count is only
// ever changed through atomic conditional updates (count < cap on reserve,
// count > 0 on release).
type UsageRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID `gorm:"column:subscription_id;type:uuid;not null;uniqueIndex:ux_usage_records_period"`
	PlanItemID     uuid.UUID `gorm:"column:plan_item_id;type:uuid;not null;uniqueIndex:ux_usage_records_period"`

	// PeriodStart is the establishment-local period boundary stored as a
	// UTC instant of the local midnight.
	PeriodStart time.Time `gorm:"column:period_start;not null;uniqueIndex:ux_usage_records_period"`

	Count       int        `gorm:"column:count;not null;default:0"`
	LastUseDate *time.Time `gorm:"column:last_use_date"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
