package appointments

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

// Repository owns appointment persistence plus the subscription lookups the
// booking flow needs. Mutations run on the caller's transaction.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	var appointment models.Appointment
	if err := r.DB(ctx).First(&appointment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "appointment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading appointment")
	}
	return &appointment, nil
}

// GetTx loads the appointment inside the transaction. Concurrent writers
// are fenced by the conditional status update, not a row lock.
func (r *Repository) GetTx(tx *gorm.DB, id uuid.UUID) (*models.Appointment, error) {
	var appointment models.Appointment
	err := tx.First(&appointment, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "appointment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading appointment")
	}
	return &appointment, nil
}

func (r *Repository) Create(tx *gorm.DB, appointment *models.Appointment) error {
	if err := tx.Create(appointment).Error; err != nil {
		return err
	}
	return nil
}

// HasOverlap reports whether any live appointment of the staff member
// intersects [start, end). The surrounding day is fetched and tested in Go
// so the query stays portable; the Postgres exclusion constraint backstops
// races this check cannot see.
func (r *Repository) HasOverlap(tx *gorm.DB, staffID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	var candidates []models.Appointment
	query := tx.
		Where("staff_id = ? AND status <> ?", staffID, enums.AppointmentCancelled).
		Where("scheduled_at < ? AND scheduled_at > ?", end, start.Add(-24*time.Hour))
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Find(&candidates).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking appointment overlap")
	}
	for _, candidate := range candidates {
		if candidate.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

// UpdateStatus applies the transition only when the row is still in the
// expected source status, so concurrent transitions race safely.
func (r *Repository) UpdateStatus(tx *gorm.DB, id uuid.UUID, from, to enums.AppointmentStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for column, value := range extra {
		updates[column] = value
	}
	res := tx.Model(&models.Appointment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "updating appointment status")
	}
	return res.RowsAffected > 0, nil
}

// SubscriptionFundedOnDay reports whether the customer already has a live
// subscription-funded appointment inside [dayStart, dayEnd).
func (r *Repository) SubscriptionFundedOnDay(tx *gorm.DB, subscriptionID uuid.UUID, dayStart, dayEnd time.Time) (bool, error) {
	var count int64
	err := tx.Model(&models.Appointment{}).
		Where("subscription_id = ? AND payment_type = ? AND status <> ?",
			subscriptionID, enums.PaymentSubscription, enums.AppointmentCancelled).
		Where("scheduled_at >= ? AND scheduled_at < ?", dayStart, dayEnd).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking daily subscription use")
	}
	return count > 0, nil
}

// ListFilter narrows appointment listings.
type ListFilter struct {
	EstablishmentID *uuid.UUID
	CustomerID      *uuid.UUID
	StaffID         *uuid.UUID
	Status          *enums.AppointmentStatus
	From            *time.Time
	To              *time.Time
	Limit           int
	Offset          int
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Appointment, int64, error) {
	query := r.DB(ctx).Model(&models.Appointment{})
	if filter.EstablishmentID != nil {
		query = query.Where("establishment_id = ?", *filter.EstablishmentID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.StaffID != nil {
		query = query.Where("staff_id = ?", *filter.StaffID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("scheduled_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("scheduled_at < ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting appointments")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var appointments []models.Appointment
	err := query.Order("scheduled_at ASC").Limit(limit).Offset(filter.Offset).Find(&appointments).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing appointments")
	}
	return appointments, total, nil
}

// Establishment loads the scheduling configuration row.
func (r *Repository) Establishment(ctx context.Context, id uuid.UUID) (*models.Establishment, error) {
	var establishment models.Establishment
	if err := r.DB(ctx).First(&establishment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "establishment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading establishment")
	}
	return &establishment, nil
}

// StaffServiceIDs lists the services the staff member performs. Cached
// availability is keyed per service, so invalidation needs the full set.
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

// Service loads an active bookable service of the establishment.
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

// Bundle loads a service bundle with its member services.
func (r *Repository) Bundle(ctx context.Context, id uuid.UUID) (*models.ServiceBundle, error) {
	var bundle models.ServiceBundle
	err := r.DB(ctx).Preload("Services").First(&bundle, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bundle not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading bundle")
	}
	return &bundle, nil
}

// Subscription loads the subscription together with its plan items.
func (r *Repository) Subscription(ctx context.Context, id uuid.UUID) (*models.Subscription, *models.SubscriptionPlan, error) {
	var subscription models.Subscription
	if err := r.DB(ctx).First(&subscription, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	var plan models.SubscriptionPlan
	if err := r.DB(ctx).Preload("Items").First(&plan, "id = ?", subscription.PlanID).Error; err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription plan")
	}
	return &subscription, &plan, nil
}

// ActiveSubscription finds the customer's active subscription at the
// establishment, when one exists.
func (r *Repository) ActiveSubscription(ctx context.Context, customerID, establishmentID uuid.UUID, at time.Time) (*models.Subscription, *models.SubscriptionPlan, error) {
	var subscription models.Subscription
	err := r.DB(ctx).
		Where("customer_id = ? AND establishment_id = ? AND status = ?", customerID, establishmentID, enums.SubscriptionActive).
		Where("current_period_start <= ? AND current_period_end > ?", at, at).
		Order("created_at DESC").
		First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	var plan models.SubscriptionPlan
	if err := r.DB(ctx).Preload("Items").First(&plan, "id = ?", subscription.PlanID).Error; err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription plan")
	}
	return &subscription, &plan, nil
}
