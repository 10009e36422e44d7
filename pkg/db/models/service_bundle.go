package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServiceBundle groups services sold as one offering. Its duration is the
// sum of the member services, snapshotted at booking time like a plain
// service duration.
type ServiceBundle struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EstablishmentID uuid.UUID       `gorm:"column:establishment_id;type:uuid;not null;index"`
	Name            string          `gorm:"column:name;not null"`
	DurationMinutes int             `gorm:"column:duration_minutes;not null"`
	Price           decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	Active          bool            `gorm:"column:active;not null;default:true"`

	Services []Service `gorm:"many2many:bundle_services;"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
