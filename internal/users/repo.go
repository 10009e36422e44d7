package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/pkg/db/models"
)

// Repository exposes user account persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user row.
func (r *Repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// EstablishmentForOwner returns the establishment owned by the user, or nil
// when the user owns none.
func (r *Repository) EstablishmentForOwner(ctx context.Context, userID uuid.UUID) (*models.Establishment, error) {
	var est models.Establishment
	err := r.db.WithContext(ctx).Where("owner_id = ?", userID).First(&est).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &est, nil
}

// EstablishmentForStaff returns the establishment the user works at, or nil
// when the user has no active staff row.
func (r *Repository) EstablishmentForStaff(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	var member models.StaffMember
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		First(&member).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	id := member.EstablishmentID
	return &id, nil
}
