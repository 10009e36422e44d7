package models

import (
	"time"

	"github.com/google/uuid"
)

// StaffBlock is a one-off absolute-time unavailability window, subtracted
// from the weekly schedule after intersection.
type StaffBlock struct {
	ID      uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	StaffID uuid.UUID `gorm:"column:staff_id;type:uuid;not null;index:idx_staff_blocks_staff_start"`
	StartAt time.Time `gorm:"column:start_at;not null;index:idx_staff_blocks_staff_start"`
	EndAt   time.Time `gorm:"column:end_at;not null"`
	Reason  *string   `gorm:"column:reason"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
