package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Establishment owns staff, services, plans and the schedule configuration.
// Rows are soft-deleted only; appointments and usage history reference them
// forever.
type Establishment struct {
	ID      uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index"`
	Name    string    `gorm:"column:name;not null"`

	// Timezone is an IANA zone name. Every period and day boundary for this
	// establishment is computed in this zone.
	Timezone string `gorm:"column:timezone;not null;default:'UTC'"`

	// BusinessHours holds the weekly opening map, weekday keys "mon".."sun",
	// each an ordered list of {"open":"HH:MM","close":"HH:MM"} intervals.
	BusinessHours json.RawMessage `gorm:"column:business_hours;type:jsonb;not null;default:'{}'"`

	Active           bool `gorm:"column:active;not null;default:true"`
	QueueModeEnabled bool `gorm:"column:queue_mode_enabled;not null;default:false"`

	// ReserveOnCheckIn overrides the platform default settlement policy for
	// subscription usage when non-nil.
	ReserveOnCheckIn *bool `gorm:"column:reserve_on_checkin"`

	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}
