package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// QueueEntry is the walk-in sibling of Appointment. Position is derived from
// entered_at ordering at read time, never stored, so concurrent joins and
// leaves cannot drift a persisted counter.
type QueueEntry struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EstablishmentID  uuid.UUID  `gorm:"column:establishment_id;type:uuid;not null;index:idx_queue_entries_establishment_entered"`
	CustomerID       uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;index"`
	ServiceID        *uuid.UUID `gorm:"column:service_id;type:uuid"`
	PreferredStaffID *uuid.UUID `gorm:"column:preferred_staff_id;type:uuid"`

	Status enums.QueueStatus `gorm:"column:status;type:queue_status;not null;default:'waiting';index"`

	EnteredAt   time.Time  `gorm:"column:entered_at;not null;index:idx_queue_entries_establishment_entered"`
	CalledAt    *time.Time `gorm:"column:called_at"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
