package controllers

import (
	"net/http"

	"github.com/trimlyhq/trimly-backend/api/responses"
	"github.com/trimlyhq/trimly-backend/api/validators"
	"github.com/trimlyhq/trimly-backend/internal/checkin"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/metrics"
)

// CheckInIssueToken mints a short-lived front-desk token for the
// establishment. Staff-side only; the service enforces the role.
func CheckInIssueToken(svc *checkin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		establishmentID, err := pathUUID(r, "establishmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		issued, err := svc.IssueToken(r.Context(), establishmentID, checkin.Actor{UserID: actor.UserID, Role: actor.Role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"token":      issued.Token,
			"expires_at": issued.ExpiresAt,
		})
	}
}

type redeemCheckInRequest struct {
	Token string `json:"token" validate:"required"`
}

// CheckInRedeem settles a customer arrival against the front-desk token.
// A qualifying appointment checks in; otherwise the customer falls through
// to the walk-in queue when the establishment runs one.
func CheckInRedeem(svc *checkin.Service, bookingMetrics *metrics.BookingMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req redeemCheckInRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Redeem(r.Context(), req.Token, actor.UserID)
		if err != nil {
			bookingMetrics.IncCheckIn(checkInOutcome(err))
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.CheckIn != nil {
			bookingMetrics.IncCheckIn("appointment")
		} else {
			bookingMetrics.IncCheckIn("queued")
		}
		responses.WriteSuccess(w, result)
	}
}

func checkInOutcome(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeTokenExpired:
		return "token_expired"
	case pkgerrors.CodeTokenInvalid:
		return "token_invalid"
	case pkgerrors.CodeAlreadyCheckedIn:
		return "duplicate"
	default:
		return "rejected"
	}
}
