package subscriptions

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

type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) Plan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.DB(ctx).Preload("Items").First(&plan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading plan")
	}
	return &plan, nil
}

// ListPlans returns the establishment's active plans with their items.
func (r *Repository) ListPlans(ctx context.Context, establishmentID uuid.UUID) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.DB(ctx).Preload("Items").
		Where("establishment_id = ? AND active", establishmentID).
		Order("created_at ASC").
		Find(&plans).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing plans")
	}
	return plans, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := r.DB(ctx).First(&subscription, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	return &subscription, nil
}

func (r *Repository) Create(tx *gorm.DB, subscription *models.Subscription) error {
	if err := tx.Create(subscription).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating subscription")
	}
	return nil
}

// ActiveForCustomer finds the customer's live subscription at the
// establishment, if any.
func (r *Repository) ActiveForCustomer(tx *gorm.DB, customerID, establishmentID uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription
	err := tx.
		Where("customer_id = ? AND establishment_id = ? AND status = ?",
			customerID, establishmentID, enums.SubscriptionActive).
		First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	return &subscription, nil
}

// AdvancePeriod shifts the window forward only when the stored period end
// still matches, so a retried renewal cannot double-shift.
func (r *Repository) AdvancePeriod(tx *gorm.DB, id uuid.UUID, fromEnd, newStart, newEnd time.Time) (bool, error) {
	res := tx.Model(&models.Subscription{}).
		Where("id = ? AND status = ? AND current_period_end = ?", id, enums.SubscriptionActive, fromEnd).
		Updates(map[string]any{
			"current_period_start": newStart,
			"current_period_end":   newEnd,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "advancing subscription period")
	}
	return res.RowsAffected > 0, nil
}

// SetStatus transitions the subscription away from its expected status.
func (r *Repository) SetStatus(tx *gorm.DB, id uuid.UUID, from, to enums.SubscriptionStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for column, value := range extra {
		updates[column] = value
	}
	res := tx.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "updating subscription status")
	}
	return res.RowsAffected > 0, nil
}

// ListForCustomer returns the customer's subscriptions, newest first.
// ListDueForRenewal returns active subscriptions whose current period has
// lapsed, oldest expiry first.
func (r *Repository) ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subscriptions []models.Subscription
	err := r.DB(ctx).
		Where("status = ? AND current_period_end <= ?", enums.SubscriptionActive, now).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subscriptions).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing due subscriptions")
	}
	return subscriptions, nil
}

func (r *Repository) ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Subscription, error) {
	var subscriptions []models.Subscription
	err := r.DB(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing subscriptions")
	}
	return subscriptions, nil
}
