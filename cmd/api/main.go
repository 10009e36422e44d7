package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trimlyhq/trimly-backend/api"
	"github.com/trimlyhq/trimly-backend/api/routes"
	"github.com/trimlyhq/trimly-backend/internal/appointments"
	authsvc "github.com/trimlyhq/trimly-backend/internal/auth"
	"github.com/trimlyhq/trimly-backend/internal/availability"
	"github.com/trimlyhq/trimly-backend/internal/checkin"
	"github.com/trimlyhq/trimly-backend/internal/establishments"
	"github.com/trimlyhq/trimly-backend/internal/notifications"
	"github.com/trimlyhq/trimly-backend/internal/payments"
	"github.com/trimlyhq/trimly-backend/internal/queue"
	subscriptionsvc "github.com/trimlyhq/trimly-backend/internal/subscriptions"
	"github.com/trimlyhq/trimly-backend/internal/usage"
	"github.com/trimlyhq/trimly-backend/internal/users"
	"github.com/trimlyhq/trimly-backend/pkg/config"
	"github.com/trimlyhq/trimly-backend/pkg/db"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/metrics"
	"github.com/trimlyhq/trimly-backend/pkg/migrate"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
	"github.com/trimlyhq/trimly-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	conn := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	slotCache := availability.NewCache(redisClient, logg, cfg.Booking.AvailabilityCacheTTL)
	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	authService, err := authsvc.NewService(users.NewRepository(conn), cfg.Password, cfg.JWT, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}
	estService, err := establishments.NewService(establishments.NewRepository(conn), slotCache, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create establishments service", err)
		os.Exit(1)
	}
	engine, err := availability.NewEngine(availability.NewRepository(conn), slotCache, cfg.Booking.SlotGranularity())
	if err != nil {
		logg.Error(context.Background(), "failed to create availability engine", err)
		os.Exit(1)
	}
	usageSvc, err := usage.NewService(usage.NewRepository(conn), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create usage service", err)
		os.Exit(1)
	}
	apptService, err := appointments.NewService(appointments.ServiceParams{
		DB:         dbClient,
		Repo:       appointments.NewRepository(conn),
		Engine:     engine,
		Usage:      usageSvc,
		Authorizer: payments.NewNoopAuthorizer(logg),
		Outbox:     outboxSvc,
		Cache:      slotCache,
		Booking:    cfg.Booking,
		CheckIn:    cfg.CheckIn,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create appointments service", err)
		os.Exit(1)
	}
	subService, err := subscriptionsvc.NewService(dbClient, subscriptionsvc.NewRepository(conn), outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}
	queueService, err := queue.NewService(dbClient, queue.NewRepository(conn), outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create queue service", err)
		os.Exit(1)
	}
	tokens, err := checkin.NewTokenIssuer(cfg.JWT, cfg.CheckIn)
	if err != nil {
		logg.Error(context.Background(), "failed to create check-in token issuer", err)
		os.Exit(1)
	}
	checkinService, err := checkin.NewService(checkin.ServiceParams{
		DB:     dbClient,
		Repo:   checkin.NewRepository(conn),
		Tokens: tokens,
		Usage:  usageSvc,
		Queue:  queueService,
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkin service", err)
		os.Exit(1)
	}
	notifService, err := notifications.NewService(notifications.NewRepository(conn), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Cache:          redisClient,
		Auth:           authService,
		Establishments: estService,
		Availability:   engine,
		Appointments:   apptService,
		Subscriptions:  subService,
		Queue:          queueService,
		CheckIn:        checkinService,
		Notifications:  notifService,
		BookingMetrics: bookingMetrics,
	})

	port := os.Getenv("PORT")
	if port != "" {
		cfg.App.Port = port
	}
	server := api.NewServer(cfg, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": server.Addr,
	})
	logg.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
