package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StaffMember belongs to exactly one establishment. An inactive member stops
// accepting new bookings but keeps historical appointments.
type StaffMember struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EstablishmentID uuid.UUID `gorm:"column:establishment_id;type:uuid;not null;index"`
	UserID          uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	DisplayName     string    `gorm:"column:display_name;not null"`

	// WorkSchedule uses the same weekday interval format as
	// Establishment.BusinessHours. A weekday missing from the map means the
	// member follows the establishment hours for that day.
	WorkSchedule json.RawMessage `gorm:"column:work_schedule;type:jsonb;not null;default:'{}'"`

	Active bool `gorm:"column:active;not null;default:true"`

	Services []Service `gorm:"many2many:staff_services;"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
