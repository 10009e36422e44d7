package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/internal/repo"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
)

type gormRepository struct {
	repo.Base
}

// NewRepository returns the GORM-backed read surface for the engine.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Base: repo.NewBase(db)}
}

func (r *gormRepository) Establishment(ctx context.Context, id uuid.UUID) (*models.Establishment, error) {
	var establishment models.Establishment
	if err := r.DB(ctx).First(&establishment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "establishment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading establishment")
	}
	return &establishment, nil
}

func (r *gormRepository) Staff(ctx context.Context, id uuid.UUID) (*models.StaffMember, error) {
	var staff models.StaffMember
	if err := r.DB(ctx).First(&staff, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "staff member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading staff member")
	}
	return &staff, nil
}

func (r *gormRepository) Service(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var service models.Service
	if err := r.DB(ctx).First(&service, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading service")
	}
	return &service, nil
}

func (r *gormRepository) Blocks(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.StaffBlock, error) {
	var blocks []models.StaffBlock
	err := r.DB(ctx).
		Where("staff_id = ? AND start_at < ? AND end_at > ?", staffID, to, from).
		Order("start_at ASC").
		Find(&blocks).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading staff blocks")
	}
	return blocks, nil
}

func (r *gormRepository) Appointments(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Appointment, error) {
	var appointments []models.Appointment
	// The lower bound is padded by a day instead of computing scheduled_at +
	// duration in SQL; durations are far shorter than that and the precise
	// overlap test runs in Go.
	err := r.DB(ctx).
		Where("staff_id = ? AND status <> ?", staffID, enums.AppointmentCancelled).
		Where("scheduled_at < ? AND scheduled_at > ?", to, from.Add(-24*time.Hour)).
		Order("scheduled_at ASC").
		Find(&appointments).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading appointments")
	}
	return appointments, nil
}
