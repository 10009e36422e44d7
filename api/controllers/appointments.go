package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/api/responses"
	"github.com/trimlyhq/trimly-backend/api/validators"
	"github.com/trimlyhq/trimly-backend/internal/appointments"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/metrics"
	"github.com/trimlyhq/trimly-backend/pkg/pagination"
)

type createAppointmentRequest struct {
	EstablishmentID uuid.UUID  `json:"establishment_id" validate:"required"`
	StaffID         uuid.UUID  `json:"staff_id" validate:"required"`
	CustomerID      *uuid.UUID `json:"customer_id"`
	ServiceID       *uuid.UUID `json:"service_id"`
	BundleID        *uuid.UUID `json:"bundle_id"`
	ScheduledAt     time.Time  `json:"scheduled_at" validate:"required"`
	PaymentType     string     `json:"payment_type" validate:"required"`
	SubscriptionID  *uuid.UUID `json:"subscription_id"`
	Notes           *string    `json:"notes" validate:"omitempty,max=500"`
}

// AppointmentCreate books a slot. Customers book for themselves; staff-side
// actors may book on a customer's behalf by naming customer_id.
func AppointmentCreate(svc *appointments.Service, bookingMetrics *metrics.BookingMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createAppointmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentType, err := enums.ParsePaymentType(req.PaymentType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment type"))
			return
		}

		customerID := actor.UserID
		if req.CustomerID != nil {
			if !actor.Role.IsEstablishmentSide() && *req.CustomerID != actor.UserID {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeForbidden, "customers can only book for themselves"))
				return
			}
			customerID = *req.CustomerID
		}

		appointment, err := svc.Create(r.Context(), appointments.CreateInput{
			EstablishmentID: req.EstablishmentID,
			StaffID:         req.StaffID,
			CustomerID:      customerID,
			ServiceID:       req.ServiceID,
			BundleID:        req.BundleID,
			ScheduledAt:     req.ScheduledAt,
			PaymentType:     paymentType,
			SubscriptionID:  req.SubscriptionID,
			Notes:           req.Notes,
			Actor:           appointments.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil &&
				(typed.Code() == pkgerrors.CodeStateConflict || typed.Code() == pkgerrors.CodeCapacityExceeded) {
				bookingMetrics.IncConflict()
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingMetrics.IncCreated(string(paymentType))
		responses.WriteSuccessStatus(w, http.StatusCreated, appointment)
	}
}

// AppointmentGet returns a single booking visible to the caller.
func AppointmentGet(svc *appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathUUID(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		appointment, err := svc.Get(r.Context(), id, appointments.Actor{UserID: actor.UserID, Role: actor.Role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, appointment)
	}
}

// AppointmentList filters bookings by establishment, customer, staff, status
// and date range.
func AppointmentList(svc *appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		establishmentID, err := validators.ParseQueryUUID(r, "establishment_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, err := validators.ParseQueryUUID(r, "customer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		staffID, err := validators.ParseQueryUUID(r, "staff_id")
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
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := appointments.ListFilter{
			EstablishmentID: establishmentID,
			CustomerID:      customerID,
			StaffID:         staffID,
			From:            from,
			To:              to,
			Limit:           limit,
			Offset:          offset,
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := enums.ParseAppointmentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}

		items, total, err := svc.List(r.Context(), filter, appointments.Actor{UserID: actor.UserID, Role: actor.Role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  items,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}

type transitionAppointmentRequest struct {
	To     string  `json:"to" validate:"required"`
	Reason *string `json:"reason" validate:"omitempty,max=240"`
}

// AppointmentTransition moves a booking through its lifecycle.
func AppointmentTransition(svc *appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathUUID(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req transitionAppointmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseAppointmentStatus(req.To)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}
		appointment, err := svc.Transition(r.Context(), id, appointments.TransitionInput{
			To:     target,
			Reason: req.Reason,
			Actor:  appointments.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, appointment)
	}
}
