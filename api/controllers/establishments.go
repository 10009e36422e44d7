package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trimlyhq/trimly-backend/api/responses"
	"github.com/trimlyhq/trimly-backend/api/validators"
	"github.com/trimlyhq/trimly-backend/internal/establishments"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
)

type createEstablishmentRequest struct {
	Name             string          `json:"name" validate:"required,max=160"`
	Timezone         string          `json:"timezone" validate:"omitempty,max=64"`
	BusinessHours    json.RawMessage `json:"business_hours"`
	QueueModeEnabled bool            `json:"queue_mode_enabled"`
}

// EstablishmentCreate opens a new business owned by the caller.
func EstablishmentCreate(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createEstablishmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		establishment, err := svc.Create(r.Context(), actor.UserID, establishments.CreateInput{
			Name:             req.Name,
			Timezone:         req.Timezone,
			BusinessHours:    req.BusinessHours,
			QueueModeEnabled: req.QueueModeEnabled,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, establishment)
	}
}

// EstablishmentGet returns the public profile of a business.
func EstablishmentGet(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "establishmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		establishment, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, establishment)
	}
}

type updateEstablishmentRequest struct {
	Name             *string         `json:"name" validate:"omitempty,max=160"`
	Timezone         *string         `json:"timezone" validate:"omitempty,max=64"`
	BusinessHours    json.RawMessage `json:"business_hours"`
	Active           *bool           `json:"active"`
	QueueModeEnabled *bool           `json:"queue_mode_enabled"`
	ReserveOnCheckIn *bool           `json:"reserve_on_checkin"`
}

// EstablishmentUpdate applies partial changes to a business profile.
func EstablishmentUpdate(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathUUID(r, "establishmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateEstablishmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		establishment, err := svc.Update(r.Context(), actor, id, establishments.UpdateInput{
			Name:             req.Name,
			Timezone:         req.Timezone,
			BusinessHours:    req.BusinessHours,
			Active:           req.Active,
			QueueModeEnabled: req.QueueModeEnabled,
			ReserveOnCheckIn: req.ReserveOnCheckIn,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, establishment)
	}
}

type addStaffRequest struct {
	UserID       uuid.UUID       `json:"user_id" validate:"required"`
	DisplayName  string          `json:"display_name" validate:"required,max=120"`
	WorkSchedule json.RawMessage `json:"work_schedule"`
	ServiceIDs   []uuid.UUID     `json:"service_ids"`
}

// StaffAdd registers a new chair at the establishment.
func StaffAdd(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathUUID(r, "establishmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req addStaffRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		staff, err := svc.AddStaff(r.Context(), actor, id, establishments.AddStaffInput{
			UserID:       req.UserID,
			DisplayName:  req.DisplayName,
			WorkSchedule: req.WorkSchedule,
			ServiceIDs:   req.ServiceIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, staff)
	}
}

// StaffList returns the establishment roster.
func StaffList(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "establishmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		staff, err := svc.ListStaff(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, staff)
	}
}

type updateStaffRequest struct {
	DisplayName  *string         `json:"display_name" validate:"omitempty,max=120"`
	WorkSchedule json.RawMessage `json:"work_schedule"`
	Active       *bool           `json:"active"`
	ServiceIDs   *[]uuid.UUID    `json:"service_ids"`
}

// StaffUpdate changes a roster entry.
func StaffUpdate(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		staffID, err := pathUUID(r, "staffId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateStaffRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		staff, err := svc.UpdateStaff(r.Context(), actor, staffID, establishments.UpdateStaffInput{
			DisplayName:  req.DisplayName,
			WorkSchedule: req.WorkSchedule,
			Active:       req.Active,
			ServiceIDs:   req.ServiceIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, staff)
	}
}

type addServiceRequest struct {
	Name            string          `json:"name" validate:"required,max=160"`
	DurationMinutes int             `json:"duration_minutes" validate:"required,min=1,max=1440"`
	Price           decimal.Decimal `json:"price"`
}

// ServiceAdd creates a bookable service.
func ServiceAdd(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathUUID(r, "establishmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req addServiceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		service, err := svc.AddService(r.Context(), actor, id, establishments.AddServiceInput{
			Name:            req.Name,
			DurationMinutes: req.DurationMinutes,
			Price:           req.Price,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, service)
	}
}

// ServiceList returns the establishment's service catalogue.
func ServiceList(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "establishmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		services, err := svc.ListServices(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, services)
	}
}

type setServiceActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// ServiceSetActive toggles whether a service accepts new bookings.
func ServiceSetActive(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serviceID, err := pathUUID(r, "serviceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req setServiceActiveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		service, err := svc.SetServiceActive(r.Context(), actor, serviceID, *req.Active)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, service)
	}
}

type addBlockRequest struct {
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required"`
	Reason  *string   `json:"reason" validate:"omitempty,max=240"`
}

// BlockAdd carves time out of a staff member's bookable window.
func BlockAdd(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		staffID, err := pathUUID(r, "staffId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req addBlockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		block, err := svc.AddBlock(r.Context(), actor, staffID, establishments.AddBlockInput{
			StartAt: req.StartAt,
			EndAt:   req.EndAt,
			Reason:  req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, block)
	}
}

// BlockList returns the blocks overlapping a date window, defaulting to the
// next seven days.
func BlockList(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, err := pathUUID(r, "staffId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryDate(r, "from", time.UTC)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryDate(r, "to", time.UTC)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		start := time.Now().UTC().Truncate(24 * time.Hour)
		if from != nil {
			start = *from
		}
		end := start.AddDate(0, 0, 7)
		if to != nil {
			end = to.AddDate(0, 0, 1)
		}
		blocks, err := svc.ListBlocks(r.Context(), staffID, start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, blocks)
	}
}

// BlockRemove lifts a previously added block.
func BlockRemove(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		blockID, err := pathUUID(r, "blockId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RemoveBlock(r.Context(), actor, blockID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "removed"})
	}
}

type planItemRequest struct {
	ServiceID         *uuid.UUID `json:"service_id"`
	BundleID          *uuid.UUID `json:"bundle_id"`
	QuantityPerPeriod int        `json:"quantity_per_period" validate:"required,min=1"`
	PeriodGranularity string     `json:"period_granularity" validate:"required,oneof=week month"`
}

type createPlanRequest struct {
	Name        string            `json:"name" validate:"required,max=160"`
	Description *string           `json:"description" validate:"omitempty,max=500"`
	Price       decimal.Decimal   `json:"price"`
	Items       []planItemRequest `json:"items" validate:"required,min=1,dive"`
}

// PlanCreate publishes a subscription plan for the establishment.
func PlanCreate(svc *establishments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathUUID(r, "establishmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createPlanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]establishments.PlanItemInput, 0, len(req.Items))
		for _, item := range req.Items {
			granularity, err := enums.ParsePeriodGranularity(item.PeriodGranularity)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period granularity"))
				return
			}
			items = append(items, establishments.PlanItemInput{
				ServiceID:         item.ServiceID,
				BundleID:          item.BundleID,
				QuantityPerPeriod: item.QuantityPerPeriod,
				PeriodGranularity: granularity,
			})
		}

		plan, err := svc.CreatePlan(r.Context(), actor, id, establishments.CreatePlanInput{
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Items:       items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, plan)
	}
}
