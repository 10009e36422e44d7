package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trimlyhq/trimly-backend/api/controllers"
	"github.com/trimlyhq/trimly-backend/api/middleware"
	"github.com/trimlyhq/trimly-backend/internal/appointments"
	authsvc "github.com/trimlyhq/trimly-backend/internal/auth"
	"github.com/trimlyhq/trimly-backend/internal/availability"
	"github.com/trimlyhq/trimly-backend/internal/checkin"
	"github.com/trimlyhq/trimly-backend/internal/establishments"
	"github.com/trimlyhq/trimly-backend/internal/notifications"
	"github.com/trimlyhq/trimly-backend/internal/queue"
	subscriptionsvc "github.com/trimlyhq/trimly-backend/internal/subscriptions"
	"github.com/trimlyhq/trimly-backend/pkg/config"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/metrics"
)

// Deps carries everything the router mounts.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Cache          controllers.Pinger
	Auth           *authsvc.Service
	Establishments *establishments.Service
	Availability   *availability.Engine
	Appointments   *appointments.Service
	Subscriptions  *subscriptionsvc.Service
	Queue          *queue.Service
	CheckIn        *checkin.Service
	Notifications  *notifications.Service
	BookingMetrics *metrics.BookingMetrics
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Cache))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(deps.Auth, logg))
		r.Post("/login", controllers.AuthLogin(deps.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/auth/me", controllers.AuthMe(deps.Auth, logg))

		r.Route("/establishments", func(r chi.Router) {
			r.Post("/", controllers.EstablishmentCreate(deps.Establishments, logg))

			r.Route("/{establishmentId}", func(r chi.Router) {
				r.Get("/", controllers.EstablishmentGet(deps.Establishments, logg))
				r.Get("/staff", controllers.StaffList(deps.Establishments, logg))
				r.Get("/services", controllers.ServiceList(deps.Establishments, logg))
				r.Get("/plans", controllers.PlanList(deps.Subscriptions, logg))
				r.Get("/availability", controllers.AvailabilitySlots(deps.Availability, deps.BookingMetrics, logg))

				r.Route("/queue", func(r chi.Router) {
					r.Post("/", controllers.QueueJoin(deps.Queue, logg))
					r.Get("/", controllers.QueueList(deps.Queue, logg))
					r.Get("/me", controllers.QueuePosition(deps.Queue, logg))
					r.With(middleware.RequireEstablishmentSide(logg)).
						Post("/call-next", controllers.QueueCallNext(deps.Queue, logg))
				})

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireEstablishmentSide(logg))
					r.Patch("/", controllers.EstablishmentUpdate(deps.Establishments, logg))
					r.Post("/staff", controllers.StaffAdd(deps.Establishments, logg))
					r.Post("/services", controllers.ServiceAdd(deps.Establishments, logg))
					r.Post("/plans", controllers.PlanCreate(deps.Establishments, logg))
					r.Post("/checkin-tokens", controllers.CheckInIssueToken(deps.CheckIn, logg))
				})
			})
		})

		r.Route("/staff/{staffId}", func(r chi.Router) {
			r.Get("/blocks", controllers.BlockList(deps.Establishments, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireEstablishmentSide(logg))
				r.Patch("/", controllers.StaffUpdate(deps.Establishments, logg))
				r.Post("/blocks", controllers.BlockAdd(deps.Establishments, logg))
			})
		})
		r.With(middleware.RequireEstablishmentSide(logg)).
			Delete("/blocks/{blockId}", controllers.BlockRemove(deps.Establishments, logg))
		r.With(middleware.RequireEstablishmentSide(logg)).
			Patch("/services/{serviceId}/active", controllers.ServiceSetActive(deps.Establishments, logg))

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", controllers.AppointmentCreate(deps.Appointments, deps.BookingMetrics, logg))
			r.Get("/", controllers.AppointmentList(deps.Appointments, logg))
			r.Get("/{appointmentId}", controllers.AppointmentGet(deps.Appointments, logg))
			r.Post("/{appointmentId}/transition", controllers.AppointmentTransition(deps.Appointments, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.SubscriptionCreate(deps.Subscriptions, logg))
			r.Get("/", controllers.SubscriptionListMine(deps.Subscriptions, logg))
			r.Get("/{subscriptionId}", controllers.SubscriptionGet(deps.Subscriptions, logg))
			r.Post("/{subscriptionId}/cancel", controllers.SubscriptionCancel(deps.Subscriptions, logg))
			r.Post("/{subscriptionId}/renew", controllers.SubscriptionRenew(deps.Subscriptions, logg))
		})

		r.Route("/queue-entries/{entryId}", func(r chi.Router) {
			r.Post("/leave", controllers.QueueLeave(deps.Queue, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireEstablishmentSide(logg))
				r.Post("/start", controllers.QueueStartServing(deps.Queue, logg))
				r.Post("/complete", controllers.QueueCompleteServing(deps.Queue, logg))
			})
		})

		r.Post("/checkins", controllers.CheckInRedeem(deps.CheckIn, deps.BookingMetrics, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationList(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.NotificationMarkRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.NotificationMarkAllRead(deps.Notifications, logg))
		})
	})

	return r
}
