package usage

import (
	"context"
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
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:usage_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.UsageRecord{}); err != nil {
		t.Fatalf("migrate usage records: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) *Service {
	t.Helper()
	svc, err := NewService(NewRepository(conn), logger.New(logger.Options{Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func weeklyFixture(cap int) (*models.Subscription, *models.PlanItem) {
	serviceID := uuid.New()
	sub := &models.Subscription{
		ID:                 uuid.New(),
		CustomerID:         uuid.New(),
		PlanID:             uuid.New(),
		EstablishmentID:    uuid.New(),
		Status:             enums.SubscriptionActive,
		CurrentPeriodStart: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:   time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	item := &models.PlanItem{
		ID:                uuid.New(),
		PlanID:            sub.PlanID,
		ServiceID:         &serviceID,
		QuantityPerPeriod: cap,
		PeriodGranularity: enums.PeriodWeekly,
	}
	return sub, item
}

func TestReserveNeverExceedsCap(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	sub, item := weeklyFixture(3)
	ctx := context.Background()

	// Six attempts across one Monday-aligned week.
	monday := time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)
	var succeeded, capped int
	for day := 0; day < 6; day++ {
		_, err := svc.Reserve(ctx, conn, ReserveInput{
			Subscription: sub,
			Item:         item,
			At:           monday.AddDate(0, 0, day),
			Location:     time.UTC,
		})
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeCapacityExceeded:
			capped++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 3 || capped != 3 {
		t.Fatalf("expected 3 reservations and 3 refusals, got %d/%d", succeeded, capped)
	}

	var record models.UsageRecord
	if err := conn.First(&record, "subscription_id = ?", sub.ID).Error; err != nil {
		t.Fatalf("load record: %v", err)
	}
	if record.Count != 3 {
		t.Fatalf("expected count 3, got %d", record.Count)
	}
}

func TestReserveParallelWinnersMatchCap(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// sqlite allows one writer; a single connection queues the racing
	// goroutines the way row locks queue them on Postgres.
	sqlDB.SetMaxOpenConns(1)

	svc := newTestService(t, conn)
	sub, item := weeklyFixture(3)

	// The period row exists up front so every goroutine races on the
	// guarded increment itself.
	record := models.UsageRecord{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		PlanItemID:     item.ID,
		PeriodStart:    time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
	}
	if err := conn.Create(&record).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		at := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		wg.Add(1)
		go func(at time.Time) {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), conn, ReserveInput{
				Subscription: sub,
				Item:         item,
				At:           at,
				Location:     time.UTC,
			})
			errs <- err
		}(at)
	}
	wg.Wait()
	close(errs)

	var succeeded, capped int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeCapacityExceeded:
			capped++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 3 || capped != 5 {
		t.Fatalf("expected exactly 3 winners and 5 capacity refusals, got %d/%d", succeeded, capped)
	}

	var reloaded models.UsageRecord
	if err := conn.First(&reloaded, "id = ?", record.ID).Error; err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if reloaded.Count != 3 {
		t.Fatalf("expected count pinned at the cap, got %d", reloaded.Count)
	}
}

func TestReserveDailyGuard(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	sub, item := weeklyFixture(5)
	ctx := context.Background()

	at := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	if _, err := svc.Reserve(ctx, conn, ReserveInput{Subscription: sub, Item: item, At: at, Location: time.UTC, DailyGuard: true}); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	_, err := svc.Reserve(ctx, conn, ReserveInput{Subscription: sub, Item: item, At: at.Add(4 * time.Hour), Location: time.UTC, DailyGuard: true})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDailyLimit {
		t.Fatalf("expected daily limit error, got %v", err)
	}

	// The next local day passes.
	if _, err := svc.Reserve(ctx, conn, ReserveInput{Subscription: sub, Item: item, At: at.AddDate(0, 0, 1), Location: time.UTC, DailyGuard: true}); err != nil {
		t.Fatalf("next-day reserve: %v", err)
	}
}

func TestReleaseReturnsUse(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	sub, item := weeklyFixture(1)
	ctx := context.Background()

	at := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	record, err := svc.Reserve(ctx, conn, ReserveInput{Subscription: sub, Item: item, At: at, Location: time.UTC})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Cap of one is exhausted.
	_, err = svc.Reserve(ctx, conn, ReserveInput{Subscription: sub, Item: item, At: at.AddDate(0, 0, 1), Location: time.UTC})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeCapacityExceeded {
		t.Fatalf("expected capacity error, got %v", err)
	}

	if err := svc.Release(ctx, conn, record.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := svc.Reserve(ctx, conn, ReserveInput{Subscription: sub, Item: item, At: at.AddDate(0, 0, 2), Location: time.UTC}); err != nil {
		t.Fatalf("re-reserve after release: %v", err)
	}
}

func TestReleaseWithoutReservation(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	sub, item := weeklyFixture(2)

	record := models.UsageRecord{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		PlanItemID:     item.ID,
		PeriodStart:    time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		Count:          0,
	}
	if err := conn.Create(&record).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}

	err := svc.Release(context.Background(), conn, record.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestRolloverStartsFreshRecord(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	sub, item := weeklyFixture(1)
	ctx := context.Background()

	week1 := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	if _, err := svc.Reserve(ctx, conn, ReserveInput{Subscription: sub, Item: item, At: week1, Location: time.UTC}); err != nil {
		t.Fatalf("week1 reserve: %v", err)
	}

	week2 := week1.AddDate(0, 0, 7)
	if _, err := svc.Reserve(ctx, conn, ReserveInput{Subscription: sub, Item: item, At: week2, Location: time.UTC}); err != nil {
		t.Fatalf("week2 reserve: %v", err)
	}

	var records []models.UsageRecord
	if err := conn.Order("period_start ASC").Find(&records, "subscription_id = ?", sub.ID).Error; err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected one record per period, got %d", len(records))
	}
	if records[0].Count != 1 || records[1].Count != 1 {
		t.Fatalf("unexpected counts: %d, %d", records[0].Count, records[1].Count)
	}
}

func TestNegativeCountReadsAsInternal(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	sub, item := weeklyFixture(3)

	record := models.UsageRecord{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		PlanItemID:     item.ID,
		PeriodStart:    time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		Count:          -1,
	}
	if err := conn.Create(&record).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}

	_, err := svc.Reserve(context.Background(), conn, ReserveInput{
		Subscription: sub,
		Item:         item,
		At:           time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC),
		Location:     time.UTC,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestBalanceForUnusedPeriod(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	sub, item := weeklyFixture(4)

	balance, err := svc.BalanceFor(context.Background(), sub, item, time.UTC, time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Used != 0 || balance.Remaining() != 4 {
		t.Fatalf("unexpected balance: %+v", balance)
	}
	if !balance.PeriodStart.Equal(time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period start %s", balance.PeriodStart)
	}
}
