package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// Notification is an in-app inbox row for one user. Rows are written by the
// event consumer and only ever flipped to read; delivery channels beyond the
// inbox are a collaborator concern.
type Notification struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index:idx_notifications_user_created"`
	EstablishmentID *uuid.UUID `gorm:"column:establishment_id;type:uuid"`

	Type    enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Title   string                 `gorm:"column:title;not null"`
	Message string                 `gorm:"column:message;not null"`

	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime;index:idx_notifications_user_created"`
}
