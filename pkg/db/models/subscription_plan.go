package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// SubscriptionPlan is an establishment-defined bundle of capped allowances.
type SubscriptionPlan struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EstablishmentID uuid.UUID       `gorm:"column:establishment_id;type:uuid;not null;index"`
	Name            string          `gorm:"column:name;not null"`
	Description     *string         `gorm:"column:description"`
	Price           decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	Active          bool            `gorm:"column:active;not null;default:true"`

	Items []PlanItem `gorm:"foreignKey:PlanID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// PlanItem grants QuantityPerPeriod uses of a service or bundle per period.
// Exactly one of ServiceID/BundleID is set and exactly one granularity is
// declared; both rules are validated before persisting.
type PlanItem struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PlanID    uuid.UUID  `gorm:"column:plan_id;type:uuid;not null;index"`
	ServiceID *uuid.UUID `gorm:"column:service_id;type:uuid"`
	BundleID  *uuid.UUID `gorm:"column:bundle_id;type:uuid"`

	QuantityPerPeriod int                     `gorm:"column:quantity_per_period;not null"`
	PeriodGranularity enums.PeriodGranularity `gorm:"column:period_granularity;type:period_granularity;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Offering returns the validated sum-type view of the item's reference.
func (i PlanItem) Offering() (Offering, error) {
	return NewOffering(i.ServiceID, i.BundleID)
}
