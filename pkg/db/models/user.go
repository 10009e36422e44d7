package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// User is a platform account: a customer, or an establishment-side actor
// when a membership row links it to an establishment.
type User struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string          `gorm:"column:name;not null"`
	Email        string          `gorm:"column:email;not null;unique"`
	Role         enums.ActorRole `gorm:"column:role;type:actor_role;not null;default:'customer'"`
	PasswordHash string          `gorm:"column:password_hash;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
