package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/pkg/config"
	dbpkg "github.com/trimlyhq/trimly-backend/pkg/db"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/payloads"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/registry"
)

type fakePublisher struct {
	published map[string][][]byte
	err       error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][][]byte)}
}

func (f *fakePublisher) Ping(context.Context) error { return nil }

func (f *fakePublisher) Publish(_ context.Context, channel string, payload any) error {
	if f.err != nil {
		return f.err
	}
	raw, ok := payload.([]byte)
	if !ok {
		return errors.New("expected a byte payload")
	}
	f.published[channel] = append(f.published[channel], raw)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.PollInterval = 10 * time.Millisecond
	cfg.Outbox.MaxAttempts = 3
	cfg.Outbox.BookingChannel = "events.bookings"
	cfg.Outbox.QueueChannel = "events.queue"
	cfg.Outbox.NotificationChannel = "events.notifications"
	return cfg
}

func newTestService(t *testing.T, pub *fakePublisher) (*Service, *gorm.DB) {
	t.Helper()
	dsn := "file:publisher_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := testConfig()
	eventRegistry, err := registry.NewEventRegistry(cfg.Outbox)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{Output: io.Discard}),
		DB:         dbpkg.NewWithConn(conn),
		Publisher:  pub,
		Repository: outbox.NewRepository(conn),
		DLQ:        outbox.NewDLQRepository(conn),
		Registry:   eventRegistry,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, conn
}

func seedEvent(t *testing.T, conn *gorm.DB, mutate func(*models.OutboxEvent)) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.QueueEntryCalledEvent{
		EntryID:         uuid.New(),
		EstablishmentID: uuid.New(),
		CustomerID:      uuid.New(),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventQueueEntryCalled,
		AggregateType: enums.AggregateQueueEntry,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	}
	if mutate != nil {
		mutate(&event)
	}
	if err := conn.Create(&event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return event
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	t.Parallel()

	pub := newFakePublisher()
	svc, conn := newTestService(t, pub)
	seedEvent(t, conn, nil)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !processed {
		t.Fatal("expected the batch to report work")
	}
	if len(pub.published["events.queue"]) != 1 {
		t.Fatalf("expected one message on the queue channel, got %d", len(pub.published["events.queue"]))
	}

	var message outbox.Message
	if err := json.Unmarshal(pub.published["events.queue"][0], &message); err != nil {
		t.Fatalf("decode wire message: %v", err)
	}
	if message.EventType != enums.EventQueueEntryCalled || message.Envelope.EventID == "" {
		t.Fatalf("unexpected wire message: %+v", message)
	}

	var remaining int64
	if err := conn.Model(&models.OutboxEvent{}).Where("published_at IS NULL").Count(&remaining).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected no unpublished rows, got %d", remaining)
	}
}

func TestProcessBatchRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	pub := newFakePublisher()
	pub.err = errors.New("redis unavailable")
	svc, conn := newTestService(t, pub)
	seeded := seedEvent(t, conn, nil)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	var event models.OutboxEvent
	if err := conn.First(&event, "id = ?", seeded.ID).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if event.PublishedAt != nil {
		t.Fatal("failed event must stay unpublished")
	}
	if event.AttemptCount != 1 || event.LastError == nil {
		t.Fatalf("expected one recorded attempt, got count=%d lastErr=%v", event.AttemptCount, event.LastError)
	}
}

func TestProcessBatchDeadLettersAtAttemptCeiling(t *testing.T) {
	t.Parallel()

	pub := newFakePublisher()
	pub.err = errors.New("redis unavailable")
	svc, conn := newTestService(t, pub)
	seeded := seedEvent(t, conn, func(event *models.OutboxEvent) {
		event.AttemptCount = 2
	})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	var dlq models.OutboxDLQ
	if err := conn.First(&dlq, "event_id = ?", seeded.ID).Error; err != nil {
		t.Fatalf("expected a dlq row: %v", err)
	}
	if dlq.ErrorReason != enums.DLQReasonPublishFailed {
		t.Fatalf("unexpected dlq reason %s", dlq.ErrorReason)
	}

	var event models.OutboxEvent
	if err := conn.First(&event, "id = ?", seeded.ID).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if event.PublishedAt == nil {
		t.Fatal("terminal event must not be refetched")
	}
}

func TestProcessBatchDeadLettersUndecodableRow(t *testing.T) {
	t.Parallel()

	pub := newFakePublisher()
	svc, conn := newTestService(t, pub)
	seeded := seedEvent(t, conn, func(event *models.OutboxEvent) {
		event.Payload = json.RawMessage(`{"data":null}`)
	})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	var dlq models.OutboxDLQ
	if err := conn.First(&dlq, "event_id = ?", seeded.ID).Error; err != nil {
		t.Fatalf("expected a dlq row: %v", err)
	}
	if dlq.ErrorReason != enums.DLQReasonDecodeFailed {
		t.Fatalf("unexpected dlq reason %s", dlq.ErrorReason)
	}
	if len(pub.published) != 0 {
		t.Fatal("nothing should have been published")
	}
}
