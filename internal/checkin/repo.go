package checkin

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

// AppointmentForDay finds the customer's earliest live appointment at the
// establishment inside [from, to). Cancelled and settled appointments never
// qualify.
func (r *Repository) AppointmentForDay(tx *gorm.DB, customerID, establishmentID uuid.UUID, from, to time.Time) (*models.Appointment, error) {
	var appointment models.Appointment
	err := tx.
		Where("customer_id = ? AND establishment_id = ?", customerID, establishmentID).
		Where("status IN ?", []enums.AppointmentStatus{enums.AppointmentPending, enums.AppointmentConfirmed}).
		Where("scheduled_at >= ? AND scheduled_at < ?", from, to).
		Order("scheduled_at ASC").
		First(&appointment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading appointment for check-in")
	}
	return &appointment, nil
}

// ByAppointment returns the appointment's check-in row, if one exists.
func (r *Repository) ByAppointment(tx *gorm.DB, appointmentID uuid.UUID) (*models.CheckIn, error) {
	var checkIn models.CheckIn
	err := tx.First(&checkIn, "appointment_id = ?", appointmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading check-in")
	}
	return &checkIn, nil
}

// ExistsOnDay reports whether the customer already checked in at the
// establishment inside [from, to), regardless of which appointment.
func (r *Repository) ExistsOnDay(tx *gorm.DB, customerID, establishmentID uuid.UUID, from, to time.Time) (bool, error) {
	var count int64
	err := tx.Model(&models.CheckIn{}).
		Where("customer_id = ? AND establishment_id = ?", customerID, establishmentID).
		Where("checked_in_at >= ? AND checked_in_at < ?", from, to).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking daily check-in limit")
	}
	return count > 0, nil
}

func (r *Repository) Create(tx *gorm.DB, checkIn *models.CheckIn) error {
	return tx.Create(checkIn).Error
}

// Subscription loads the funding subscription and its plan with items.
func (r *Repository) Subscription(tx *gorm.DB, id uuid.UUID) (*models.Subscription, *models.SubscriptionPlan, error) {
	var subscription models.Subscription
	if err := tx.First(&subscription, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	var plan models.SubscriptionPlan
	if err := tx.Preload("Items").First(&plan, "id = ?", subscription.PlanID).Error; err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription plan")
	}
	return &subscription, &plan, nil
}

// CompleteAppointment moves the appointment out of its live status, updating
// the usage reference when settlement happened at the door. The status guard
// makes the write lose cleanly to a concurrent transition.
func (r *Repository) CompleteAppointment(tx *gorm.DB, appointment *models.Appointment, usageRecordID *uuid.UUID) (bool, error) {
	updates := map[string]any{"status": enums.AppointmentCompleted}
	if usageRecordID != nil {
		updates["usage_record_id"] = *usageRecordID
	}
	res := tx.Model(&models.Appointment{}).
		Where("id = ? AND status = ?", appointment.ID, appointment.Status).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "completing appointment")
	}
	return res.RowsAffected > 0, nil
}
