package notifications

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/idempotency"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/payloads"
	"github.com/trimlyhq/trimly-backend/pkg/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:notifications_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func seedNotification(t *testing.T, conn *gorm.DB, userID uuid.UUID) models.Notification {
	t.Helper()
	row := models.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    enums.NotificationBooking,
		Title:   "Appointment booked",
		Message: "Your appointment is booked.",
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	return row
}

func TestListFiltersUnread(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	logg := logger.New(logger.Options{Output: io.Discard})
	svc, err := NewService(NewRepository(conn), logg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	ctx := context.Background()
	userID := uuid.New()

	first := seedNotification(t, conn, userID)
	seedNotification(t, conn, userID)
	seedNotification(t, conn, uuid.New())

	if err := svc.MarkRead(ctx, userID, first.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	unread, err := svc.List(ctx, userID, true, pagination.Params{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if unread.Total != 1 || len(unread.Items) != 1 {
		t.Fatalf("expected one unread row, got total=%d items=%d", unread.Total, len(unread.Items))
	}

	all, err := svc.List(ctx, userID, false, pagination.Params{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all.Total != 2 {
		t.Fatalf("expected two rows for the user, got %d", all.Total)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	logg := logger.New(logger.Options{Output: io.Discard})
	svc, err := NewService(NewRepository(conn), logg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	ctx := context.Background()
	userID := uuid.New()
	row := seedNotification(t, conn, userID)

	if err := svc.MarkRead(ctx, userID, row.ID); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := svc.MarkRead(ctx, userID, row.ID); err != nil {
		t.Fatalf("second mark should be a no-op: %v", err)
	}
	err = svc.MarkRead(ctx, userID, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	err = svc.MarkRead(ctx, uuid.New(), row.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("foreign user must not see the row, got %v", err)
	}
}

// memoryStore is an in-process stand-in for the Redis idempotency surface.
type memoryStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: make(map[string]struct{})}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func wireMessage(t *testing.T, eventType enums.OutboxEventType, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(outbox.Message{
		EventType:   eventType,
		AggregateID: uuid.New(),
		Envelope: outbox.PayloadEnvelope{
			Version:    1,
			EventID:    uuid.NewString(),
			OccurredAt: time.Now().UTC(),
			Data:       data,
		},
	})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return raw
}

func newTestConsumer(t *testing.T, conn *gorm.DB) *Consumer {
	t.Helper()
	manager, err := idempotency.NewManager(newMemoryStore(), time.Hour)
	if err != nil {
		t.Fatalf("idempotency manager: %v", err)
	}
	consumer, err := NewConsumer(NewRepository(conn), manager, logger.New(logger.Options{Output: io.Discard}))
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	return consumer
}

func TestConsumerRecordsCalledEvent(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	consumer := newTestConsumer(t, conn)
	ctx := context.Background()
	customerID := uuid.New()

	raw := wireMessage(t, enums.EventQueueEntryCalled, payloads.QueueEntryCalledEvent{
		EntryID:         uuid.New(),
		EstablishmentID: uuid.New(),
		CustomerID:      customerID,
	})
	if err := consumer.Handle(ctx, raw); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var rows []models.Notification
	if err := conn.Where("user_id = ?", customerID).Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 1 || rows[0].Type != enums.NotificationQueue {
		t.Fatalf("expected one queue notification, got %+v", rows)
	}
}

func TestConsumerDedupesRedelivery(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	consumer := newTestConsumer(t, conn)
	ctx := context.Background()
	customerID := uuid.New()

	raw := wireMessage(t, enums.EventSubscriptionRenewed, payloads.SubscriptionRenewedEvent{
		SubscriptionID: uuid.New(),
		PlanID:         uuid.New(),
		CustomerID:     customerID,
		PeriodStart:    time.Now().UTC(),
		PeriodEnd:      time.Now().UTC().AddDate(0, 1, 0),
	})
	if err := consumer.Handle(ctx, raw); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := consumer.Handle(ctx, raw); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	var count int64
	if err := conn.Model(&models.Notification{}).Where("user_id = ?", customerID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row after redelivery, got %d", count)
	}
}

func TestConsumerSkipsUnhandledAndMalformed(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	consumer := newTestConsumer(t, conn)
	ctx := context.Background()

	joined := wireMessage(t, enums.EventQueueEntryJoined, payloads.QueueEntryJoinedEvent{
		EntryID:         uuid.New(),
		EstablishmentID: uuid.New(),
		CustomerID:      uuid.New(),
		Position:        1,
	})
	if err := consumer.Handle(ctx, joined); err != nil {
		t.Fatalf("joined event should be skipped cleanly: %v", err)
	}
	if err := consumer.Handle(ctx, []byte("not json")); err != nil {
		t.Fatalf("garbage should be dropped, not retried: %v", err)
	}

	var count int64
	if err := conn.Model(&models.Notification{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows, got %d", count)
	}
}
