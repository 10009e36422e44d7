package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/internal/repo"
	"github.com/trimlyhq/trimly-backend/pkg/db"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
)

// Repository owns UsageRecord persistence. Mutations take the caller's
// transaction so a reservation commits or rolls back together with the
// appointment or check-in that funds it.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// FindOrCreate returns the period row for (subscription, item, periodStart),
// creating it with a zero count when absent. A concurrent creator losing the
// unique-index race falls back to reading the winner's row.
func (r *Repository) FindOrCreate(tx *gorm.DB, subscriptionID, planItemID uuid.UUID, periodStart time.Time) (*models.UsageRecord, error) {
	record := models.UsageRecord{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		PlanItemID:     planItemID,
		PeriodStart:    periodStart,
	}
	err := tx.Where(
		"subscription_id = ? AND plan_item_id = ? AND period_start = ?",
		subscriptionID, planItemID, periodStart,
	).FirstOrCreate(&record).Error
	if err != nil && db.IsUniqueViolation(err, "") {
		err = tx.Where(
			"subscription_id = ? AND plan_item_id = ? AND period_start = ?",
			subscriptionID, planItemID, periodStart,
		).First(&record).Error
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading usage record")
	}
	return &record, nil
}

// Increment applies the capped conditional increment and reports whether it
// took effect. The guard runs in a single UPDATE so concurrent reservations
// can never push the count past the cap.
func (r *Repository) Increment(tx *gorm.DB, recordID uuid.UUID, cap int, useDate time.Time, dayGuard *time.Time) (bool, error) {
	query := tx.Model(&models.UsageRecord{}).
		Where("id = ? AND count < ?", recordID, cap)
	if dayGuard != nil {
		query = query.Where("last_use_date IS NULL OR last_use_date < ?", *dayGuard)
	}
	res := query.Updates(map[string]any{
		"count":         gorm.Expr("count + 1"),
		"last_use_date": useDate,
	})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserving usage")
	}
	return res.RowsAffected > 0, nil
}

// Decrement releases one reserved use. The count > 0 guard keeps the counter
// from ever going negative.
func (r *Repository) Decrement(tx *gorm.DB, recordID uuid.UUID) (bool, error) {
	res := tx.Model(&models.UsageRecord{}).
		Where("id = ? AND count > 0", recordID).
		Update("count", gorm.Expr("count - 1"))
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "releasing usage")
	}
	return res.RowsAffected > 0, nil
}

// Get reloads a record by id inside the transaction.
func (r *Repository) Get(tx *gorm.DB, recordID uuid.UUID) (*models.UsageRecord, error) {
	var record models.UsageRecord
	if err := tx.First(&record, "id = ?", recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "usage record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading usage record")
	}
	return &record, nil
}

// Find returns the period row if it exists, without creating it.
func (r *Repository) Find(ctx context.Context, subscriptionID, planItemID uuid.UUID, periodStart time.Time) (*models.UsageRecord, error) {
	var record models.UsageRecord
	err := r.DB(ctx).Where(
		"subscription_id = ? AND plan_item_id = ? AND period_start = ?",
		subscriptionID, planItemID, periodStart,
	).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading usage record")
	}
	return &record, nil
}

// History lists the subscription's period rows, newest first.
func (r *Repository) History(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	query := r.DB(ctx).Where("subscription_id = ?", subscriptionID).Order("period_start DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing usage history")
	}
	return records, nil
}
