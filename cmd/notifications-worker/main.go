package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/trimlyhq/trimly-backend/internal/notifications"
	"github.com/trimlyhq/trimly-backend/pkg/config"
	"github.com/trimlyhq/trimly-backend/pkg/db"
	"github.com/trimlyhq/trimly-backend/pkg/instance"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/migrate"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/idempotency"
	"github.com/trimlyhq/trimly-backend/pkg/redis"
)

const processedMarkerTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "notifications-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "notifications-worker",
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
			logg.Error(context.Background(), "error closing redis client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, processedMarkerTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	consumer, err := notifications.NewConsumer(notifications.NewRepository(dbClient.DB()), manager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "notifications-worker",
		"instance":    instance.GetID(),
	})

	channels := []string{
		cfg.Outbox.BookingChannel,
		cfg.Outbox.QueueChannel,
		cfg.Outbox.NotificationChannel,
	}
	sub, err := redisClient.Subscribe(ctx, channels...)
	if err != nil {
		logg.Error(ctx, "failed to subscribe to event channels", err)
		os.Exit(1)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			logg.Error(ctx, "error closing subscription", err)
		}
	}()

	logg.Info(logg.WithField(ctx, "channels", channels), "starting notifications worker")

	if err := consumer.Run(ctx, sub); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "notifications worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "notifications worker shutting down gracefully")
}
