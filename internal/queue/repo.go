package queue

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

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := r.DB(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "queue entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading queue entry")
	}
	return &entry, nil
}

func (r *Repository) Create(tx *gorm.DB, entry *models.QueueEntry) error {
	if err := tx.Create(entry).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating queue entry")
	}
	return nil
}

// InLineEntry finds the customer's live entry at the establishment, if any.
func (r *Repository) InLineEntry(tx *gorm.DB, establishmentID, customerID uuid.UUID) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := tx.
		Where("establishment_id = ? AND customer_id = ?", establishmentID, customerID).
		Where("status IN ?", []enums.QueueStatus{enums.QueueWaiting, enums.QueueCalled}).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading queue entry")
	}
	return &entry, nil
}

// Position counts how many live entries are ahead of the given one. Ties on
// entered_at break by id so two simultaneous joins still order totally.
func (r *Repository) Position(ctx context.Context, entry *models.QueueEntry) (int, error) {
	return r.positionIn(r.DB(ctx), entry)
}

// PositionTx derives the position inside the caller's transaction.
func (r *Repository) PositionTx(tx *gorm.DB, entry *models.QueueEntry) (int, error) {
	return r.positionIn(tx, entry)
}

func (r *Repository) positionIn(db *gorm.DB, entry *models.QueueEntry) (int, error) {
	var ahead int64
	err := db.Model(&models.QueueEntry{}).
		Where("establishment_id = ?", entry.EstablishmentID).
		Where("status IN ?", []enums.QueueStatus{enums.QueueWaiting, enums.QueueCalled}).
		Where("entered_at < ? OR (entered_at = ? AND id < ?)", entry.EnteredAt, entry.EnteredAt, entry.ID).
		Count(&ahead).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing queue position")
	}
	return int(ahead) + 1, nil
}

// NextWaiting returns the longest-waiting entry still in waiting status.
func (r *Repository) NextWaiting(tx *gorm.DB, establishmentID uuid.UUID) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := tx.
		Where("establishment_id = ? AND status = ?", establishmentID, enums.QueueWaiting).
		Order("entered_at ASC").
		Order("id ASC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading next queue entry")
	}
	return &entry, nil
}

// UpdateStatus applies the transition only when the row still holds the
// expected source status.
func (r *Repository) UpdateStatus(tx *gorm.DB, id uuid.UUID, from, to enums.QueueStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for column, value := range extra {
		updates[column] = value
	}
	res := tx.Model(&models.QueueEntry{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "updating queue entry")
	}
	return res.RowsAffected > 0, nil
}

// ListInLine returns the establishment's live queue in service order.
func (r *Repository) ListInLine(ctx context.Context, establishmentID uuid.UUID) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := r.DB(ctx).
		Where("establishment_id = ?", establishmentID).
		Where("status IN ?", []enums.QueueStatus{enums.QueueWaiting, enums.QueueCalled}).
		Order("entered_at ASC").
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing queue")
	}
	return entries, nil
}

// Establishment loads the queue configuration row.
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

// touch is a helper for status timestamps.
func touch(t time.Time) *time.Time {
	return &t
}
