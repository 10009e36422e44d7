package establishments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/internal/repo"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
)

type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Establishment, error) {
	var establishment models.Establishment
	if err := r.DB(ctx).First(&establishment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "establishment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading establishment")
	}
	return &establishment, nil
}

func (r *Repository) Create(ctx context.Context, establishment *models.Establishment) error {
	if err := r.DB(ctx).Create(establishment).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating establishment")
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, establishment *models.Establishment) error {
	if err := r.DB(ctx).Save(establishment).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating establishment")
	}
	return nil
}

func (r *Repository) Staff(ctx context.Context, id uuid.UUID) (*models.StaffMember, error) {
	var staff models.StaffMember
	if err := r.DB(ctx).First(&staff, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "staff member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading staff member")
	}
	return &staff, nil
}

func (r *Repository) ListStaff(ctx context.Context, establishmentID uuid.UUID) ([]models.StaffMember, error) {
	var staff []models.StaffMember
	err := r.DB(ctx).
		Where("establishment_id = ?", establishmentID).
		Order("display_name ASC").
		Find(&staff).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing staff")
	}
	return staff, nil
}

func (r *Repository) CreateStaff(ctx context.Context, staff *models.StaffMember) error {
	if err := r.DB(ctx).Create(staff).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating staff member")
	}
	return nil
}

func (r *Repository) UpdateStaff(ctx context.Context, staff *models.StaffMember) error {
	if err := r.DB(ctx).Save(staff).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating staff member")
	}
	return nil
}

// ReplaceStaffServices rewrites the staff member's service assignments.
func (r *Repository) ReplaceStaffServices(ctx context.Context, staff *models.StaffMember, services []models.Service) error {
	if err := r.DB(ctx).Model(staff).Association("Services").Replace(services); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assigning services to staff")
	}
	return nil
}

// StaffServiceIDs returns the services the member currently performs.
func (r *Repository) StaffServiceIDs(ctx context.Context, staffID uuid.UUID) ([]uuid.UUID, error) {
	var staff models.StaffMember
	if err := r.DB(ctx).Preload("Services").First(&staff, "id = ?", staffID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "staff member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading staff services")
	}
	ids := make([]uuid.UUID, 0, len(staff.Services))
	for _, service := range staff.Services {
		ids = append(ids, service.ID)
	}
	return ids, nil
}

func (r *Repository) Service(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var service models.Service
	if err := r.DB(ctx).First(&service, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading service")
	}
	return &service, nil
}

func (r *Repository) ListServices(ctx context.Context, establishmentID uuid.UUID) ([]models.Service, error) {
	var services []models.Service
	err := r.DB(ctx).
		Where("establishment_id = ?", establishmentID).
		Order("name ASC").
		Find(&services).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing services")
	}
	return services, nil
}

func (r *Repository) ServicesByIDs(ctx context.Context, establishmentID uuid.UUID, ids []uuid.UUID) ([]models.Service, error) {
	var services []models.Service
	err := r.DB(ctx).
		Where("establishment_id = ? AND id IN ?", establishmentID, ids).
		Find(&services).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading services")
	}
	return services, nil
}

func (r *Repository) CreateService(ctx context.Context, service *models.Service) error {
	if err := r.DB(ctx).Create(service).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating service")
	}
	return nil
}

func (r *Repository) UpdateService(ctx context.Context, service *models.Service) error {
	if err := r.DB(ctx).Save(service).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating service")
	}
	return nil
}

func (r *Repository) CreateBlock(ctx context.Context, block *models.StaffBlock) error {
	if err := r.DB(ctx).Create(block).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating staff block")
	}
	return nil
}

func (r *Repository) Block(ctx context.Context, id uuid.UUID) (*models.StaffBlock, error) {
	var block models.StaffBlock
	if err := r.DB(ctx).First(&block, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "staff block not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading staff block")
	}
	return &block, nil
}

func (r *Repository) ListBlocks(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.StaffBlock, error) {
	var blocks []models.StaffBlock
	err := r.DB(ctx).
		Where("staff_id = ? AND start_at < ? AND end_at > ?", staffID, to, from).
		Order("start_at ASC").
		Find(&blocks).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing staff blocks")
	}
	return blocks, nil
}

func (r *Repository) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	res := r.DB(ctx).Delete(&models.StaffBlock{}, "id = ?", id)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "deleting staff block")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "staff block not found")
	}
	return nil
}

func (r *Repository) CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	if err := r.DB(ctx).Create(plan).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating plan")
	}
	return nil
}
