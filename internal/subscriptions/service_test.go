package subscriptions

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/trimlyhq/trimly-backend/pkg/db"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
)

type fixture struct {
	svc  *Service
	conn *gorm.DB
	est  models.Establishment
	plan models.SubscriptionPlan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:subscriptions_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Establishment{},
		&models.Service{},
		&models.SubscriptionPlan{},
		&models.PlanItem{},
		&models.Subscription{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	est := models.Establishment{
		ID:            uuid.New(),
		OwnerID:       uuid.New(),
		Name:          "Clipper Club",
		Timezone:      "UTC",
		Active:        true,
		BusinessHours: json.RawMessage(`{}`),
	}
	if err := conn.Create(&est).Error; err != nil {
		t.Fatalf("seed establishment: %v", err)
	}

	serviceID := uuid.New()
	svcRow := models.Service{
		ID:              serviceID,
		EstablishmentID: est.ID,
		Name:            "Classic Cut",
		DurationMinutes: 30,
		Price:           decimal.NewFromInt(25),
		Active:          true,
	}
	if err := conn.Create(&svcRow).Error; err != nil {
		t.Fatalf("seed service: %v", err)
	}

	plan := models.SubscriptionPlan{
		ID:              uuid.New(),
		EstablishmentID: est.ID,
		Name:            "Four Cuts",
		Price:           decimal.NewFromInt(80),
		Active:          true,
	}
	if err := conn.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	item := models.PlanItem{
		ID:                uuid.New(),
		PlanID:            plan.ID,
		ServiceID:         &serviceID,
		QuantityPerPeriod: 4,
		PeriodGranularity: enums.PeriodMonthly,
	}
	if err := conn.Create(&item).Error; err != nil {
		t.Fatalf("seed plan item: %v", err)
	}

	logg := logger.New(logger.Options{Output: io.Discard})
	service, err := NewService(dbpkg.NewWithConn(conn), NewRepository(conn), outbox.NewService(outbox.NewRepository(conn), logg), logg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return &fixture{svc: service, conn: conn, est: est, plan: plan}
}

func TestSubscribeOpensMonthlyWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, uuid.New(), f.plan.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.Status != enums.SubscriptionActive {
		t.Fatalf("expected active, got %s", sub.Status)
	}
	want := sub.CurrentPeriodStart.AddDate(0, 1, 0)
	if !sub.CurrentPeriodEnd.Equal(want) {
		t.Fatalf("expected one-month window, got end %s", sub.CurrentPeriodEnd)
	}
}

func TestSubscribeRejectsSecondActiveSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customerID := uuid.New()

	if _, err := f.svc.Subscribe(ctx, customerID, f.plan.ID); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_, err := f.svc.Subscribe(ctx, customerID, f.plan.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSubscribeRejectsInactivePlan(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.conn.Model(&models.SubscriptionPlan{}).Where("id = ?", f.plan.ID).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate plan: %v", err)
	}

	_, err := f.svc.Subscribe(context.Background(), uuid.New(), f.plan.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRenewShiftsPeriodOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, uuid.New(), f.plan.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	oldEnd := sub.CurrentPeriodEnd

	renewed, err := f.svc.Renew(ctx, sub.ID)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !renewed.CurrentPeriodStart.Equal(oldEnd) {
		t.Fatalf("new period should start at the old end, got %s", renewed.CurrentPeriodStart)
	}
	if !renewed.CurrentPeriodEnd.Equal(oldEnd.AddDate(0, 1, 0)) {
		t.Fatalf("unexpected new period end %s", renewed.CurrentPeriodEnd)
	}

	var events []models.OutboxEvent
	if err := f.conn.Where("event_type = ?", enums.EventSubscriptionRenewed).Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one renewal event, got %d", len(events))
	}
}

func TestRenewDedupesRenewalEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, uuid.New(), f.plan.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := f.svc.Renew(ctx, sub.ID); err != nil {
		t.Fatalf("renew: %v", err)
	}

	// A second rollover produces a second, distinct event; each period start
	// is covered exactly once.
	if _, err := f.svc.Renew(ctx, sub.ID); err != nil {
		t.Fatalf("second renew: %v", err)
	}
	var count int64
	if err := f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSubscriptionRenewed).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two renewal events, got %d", count)
	}
}

func TestRenewRejectsCancelledSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customerID := uuid.New()

	sub, err := f.svc.Subscribe(ctx, customerID, f.plan.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, sub.ID, Actor{UserID: customerID, Role: enums.RoleCustomer}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err = f.svc.Renew(ctx, sub.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCancelStampsCancelledAt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customerID := uuid.New()

	sub, err := f.svc.Subscribe(ctx, customerID, f.plan.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancelled, err := f.svc.Cancel(ctx, sub.ID, Actor{UserID: customerID, Role: enums.RoleCustomer})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.SubscriptionCancelled || cancelled.CancelledAt == nil {
		t.Fatal("expected a cancelled subscription with cancelled_at set")
	}
}

func TestCancelGatesOnOwnership(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, uuid.New(), f.plan.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_, err = f.svc.Cancel(ctx, sub.ID, Actor{UserID: uuid.New(), Role: enums.RoleCustomer})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCancelIsIdempotentConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customerID := uuid.New()

	sub, err := f.svc.Subscribe(ctx, customerID, f.plan.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	actor := Actor{UserID: customerID, Role: enums.RoleCustomer}
	if _, err := f.svc.Cancel(ctx, sub.ID, actor); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = f.svc.Cancel(ctx, sub.ID, actor)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}
