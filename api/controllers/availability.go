package controllers

import (
	"net/http"
	"time"

	"github.com/trimlyhq/trimly-backend/api/responses"
	"github.com/trimlyhq/trimly-backend/api/validators"
	"github.com/trimlyhq/trimly-backend/internal/availability"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/metrics"
)

// AvailabilitySlots lists the open start times for a staff member and
// service on a given day. Single-day queries go through the slot cache.
func AvailabilitySlots(engine *availability.Engine, bookingMetrics *metrics.BookingMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		establishmentID, err := pathUUID(r, "establishmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		staffID, err := validators.ParseQueryUUID(r, "staff_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serviceID, err := validators.ParseQueryUUID(r, "service_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if staffID == nil || serviceID == nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "staff_id and service_id are required"))
			return
		}
		day, err := validators.ParseQueryDate(r, "date", time.UTC)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from := time.Now().UTC().Truncate(24 * time.Hour)
		if day != nil {
			from = *day
		}

		started := time.Now()
		slots, err := engine.SlotsCached(r.Context(), availability.Query{
			EstablishmentID: establishmentID,
			StaffID:         *staffID,
			ServiceID:       *serviceID,
			From:            from,
			To:              from.Add(24 * time.Hour),
		})
		bookingMetrics.ObserveSlotQuery(time.Since(started))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"date":  from.Format("2006-01-02"),
			"slots": slots,
		})
	}
}
