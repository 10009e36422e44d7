package appointments

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/internal/availability"
	"github.com/trimlyhq/trimly-backend/internal/payments"
	"github.com/trimlyhq/trimly-backend/internal/usage"
	"github.com/trimlyhq/trimly-backend/pkg/config"
	dbpkg "github.com/trimlyhq/trimly-backend/pkg/db"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
)

type fixture struct {
	conn      *gorm.DB
	svc       *Service
	est       models.Establishment
	staff     models.StaffMember
	service   models.Service
	slotCache *recordingSlotCache
}

type slotInvalidation struct {
	staffID    uuid.UUID
	serviceIDs []uuid.UUID
	day        string
}

type recordingSlotCache struct {
	mu    sync.Mutex
	calls []slotInvalidation
}

func (c *recordingSlotCache) InvalidateDay(_ context.Context, staffID uuid.UUID, serviceIDs []uuid.UUID, day string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, slotInvalidation{staffID: staffID, serviceIDs: serviceIDs, day: day})
}

func (c *recordingSlotCache) snapshot() []slotInvalidation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]slotInvalidation(nil), c.calls...)
}

func (c *recordingSlotCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

type declineAuthorizer struct{}

func (declineAuthorizer) Authorize(context.Context, payments.Charge) (payments.Authorization, error) {
	return payments.Authorization{Approved: false, Reason: "card declined"}, nil
}

func (declineAuthorizer) Void(context.Context, string) error { return nil }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:appointments_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Establishment{},
		&models.StaffMember{},
		&models.Service{},
		&models.ServiceBundle{},
		&models.StaffBlock{},
		&models.Appointment{},
		&models.Subscription{},
		&models.SubscriptionPlan{},
		&models.PlanItem{},
		&models.UsageRecord{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newFixture(t *testing.T, authorizer payments.Authorizer) *fixture {
	t.Helper()
	conn := newTestDB(t)
	logg := logger.New(logger.Options{Output: io.Discard})

	est := models.Establishment{
		ID:       uuid.New(),
		OwnerID:  uuid.New(),
		Name:     "Fade Factory",
		Timezone: "UTC",
		Active:   true,
		BusinessHours: json.RawMessage(`{
			"mon": [{"open": "00:00", "close": "23:45"}],
			"tue": [{"open": "00:00", "close": "23:45"}],
			"wed": [{"open": "00:00", "close": "23:45"}],
			"thu": [{"open": "00:00", "close": "23:45"}],
			"fri": [{"open": "00:00", "close": "23:45"}],
			"sat": [{"open": "00:00", "close": "23:45"}],
			"sun": [{"open": "00:00", "close": "23:45"}]
		}`),
	}
	staff := models.StaffMember{
		ID:              uuid.New(),
		EstablishmentID: est.ID,
		UserID:          uuid.New(),
		DisplayName:     "Marco",
		WorkSchedule:    json.RawMessage(`{}`),
		Active:          true,
	}
	service := models.Service{
		ID:              uuid.New(),
		EstablishmentID: est.ID,
		Name:            "Haircut",
		DurationMinutes: 30,
		Price:           decimal.RequireFromString("25.00"),
		Active:          true,
	}
	for _, row := range []any{&est, &staff, &service} {
		if err := conn.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	engine, err := availability.NewEngine(availability.NewRepository(conn), nil, 15*time.Minute)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	usageSvc, err := usage.NewService(usage.NewRepository(conn), logg)
	if err != nil {
		t.Fatalf("usage service: %v", err)
	}
	if authorizer == nil {
		authorizer = payments.NewNoopAuthorizer(logg)
	}
	slotCache := &recordingSlotCache{}
	svc, err := NewService(ServiceParams{
		DB:         dbpkg.NewWithConn(conn),
		Repo:       NewRepository(conn),
		Engine:     engine,
		Usage:      usageSvc,
		Authorizer: authorizer,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Cache:      slotCache,
		Booking: config.BookingConfig{
			SlotGranularityMinutes:      15,
			CancellationGrace:           30 * time.Minute,
			ConfirmSubscriptionBookings: true,
		},
		Logger: logg,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return &fixture{conn: conn, svc: svc, est: est, staff: staff, service: service, slotCache: slotCache}
}

// nextMonday returns the first upcoming Monday midnight, at least a full day
// out so in-week offsets stay in the future.
func nextMonday() time.Time {
	day := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 2)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

func (f *fixture) seedSubscription(t *testing.T, customerID uuid.UUID, quantity int) models.Subscription {
	t.Helper()
	plan := models.SubscriptionPlan{
		ID:              uuid.New(),
		EstablishmentID: f.est.ID,
		Name:            "Weekly Cut Club",
		Price:           decimal.RequireFromString("80.00"),
		Active:          true,
	}
	serviceID := f.service.ID
	item := models.PlanItem{
		ID:                uuid.New(),
		PlanID:            plan.ID,
		ServiceID:         &serviceID,
		QuantityPerPeriod: quantity,
		PeriodGranularity: enums.PeriodWeekly,
	}
	sub := models.Subscription{
		ID:                 uuid.New(),
		CustomerID:         customerID,
		PlanID:             plan.ID,
		EstablishmentID:    f.est.ID,
		Status:             enums.SubscriptionActive,
		CurrentPeriodStart: time.Now().UTC().Add(-time.Hour),
		CurrentPeriodEnd:   time.Now().UTC().AddDate(1, 0, 0),
	}
	for _, row := range []any{&plan, &item, &sub} {
		if err := f.conn.Create(row).Error; err != nil {
			t.Fatalf("seed subscription: %v", err)
		}
	}
	return sub
}

func (f *fixture) createInput(customerID uuid.UUID, at time.Time) CreateInput {
	serviceID := f.service.ID
	return CreateInput{
		EstablishmentID: f.est.ID,
		StaffID:         f.staff.ID,
		CustomerID:      customerID,
		ServiceID:       &serviceID,
		ScheduledAt:     at,
		PaymentType:     enums.PaymentSingle,
		Actor:           Actor{UserID: customerID, Role: enums.RoleCustomer},
	}
}

func TestCreateSinglePayConfirms(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	customerID := uuid.New()
	at := nextMonday().Add(10 * time.Hour)

	appointment, err := f.svc.Create(context.Background(), f.createInput(customerID, at))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if appointment.Status != enums.AppointmentConfirmed {
		t.Fatalf("expected confirmed, got %s", appointment.Status)
	}
	if appointment.DurationMinutes != 30 || !appointment.Price.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("snapshot mismatch: %+v", appointment)
	}

	var events int64
	if err := f.conn.Model(&models.OutboxEvent{}).Count(&events).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 2 {
		t.Fatalf("expected created + status events, got %d", events)
	}
}

func TestCreateRejectsOffGridTime(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	at := nextMonday().Add(10*time.Hour + 7*time.Minute)

	_, err := f.svc.Create(context.Background(), f.createInput(uuid.New(), at))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateConflictOnOverlap(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	at := nextMonday().Add(10 * time.Hour)

	if _, err := f.svc.Create(context.Background(), f.createInput(uuid.New(), at)); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err := f.svc.Create(context.Background(), f.createInput(uuid.New(), at.Add(15*time.Minute)))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateSubscriptionFunded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	customerID := uuid.New()
	sub := f.seedSubscription(t, customerID, 2)

	input := f.createInput(customerID, nextMonday().Add(11*time.Hour))
	input.PaymentType = enums.PaymentSubscription

	appointment, err := f.svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if appointment.Status != enums.AppointmentConfirmed {
		t.Fatalf("expected confirmed, got %s", appointment.Status)
	}
	if appointment.SubscriptionID == nil || *appointment.SubscriptionID != sub.ID {
		t.Fatalf("subscription not linked: %+v", appointment)
	}
	if appointment.UsageRecordID == nil {
		t.Fatal("expected usage record reference")
	}

	var record models.UsageRecord
	if err := f.conn.First(&record, "id = ?", *appointment.UsageRecordID).Error; err != nil {
		t.Fatalf("load usage record: %v", err)
	}
	if record.Count != 1 {
		t.Fatalf("expected one reserved use, got %d", record.Count)
	}
}

func TestCreateSubscriptionCapExhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	customerID := uuid.New()
	f.seedSubscription(t, customerID, 1)
	monday := nextMonday()

	first := f.createInput(customerID, monday.Add(10*time.Hour))
	first.PaymentType = enums.PaymentSubscription
	if _, err := f.svc.Create(context.Background(), first); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	second := f.createInput(customerID, monday.AddDate(0, 0, 1).Add(10*time.Hour))
	second.PaymentType = enums.PaymentSubscription
	_, err := f.svc.Create(context.Background(), second)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeCapacityExceeded {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
}

func TestCreateSubscriptionOncePerDay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	customerID := uuid.New()
	f.seedSubscription(t, customerID, 2)
	monday := nextMonday()

	first := f.createInput(customerID, monday.Add(10*time.Hour))
	first.PaymentType = enums.PaymentSubscription
	if _, err := f.svc.Create(context.Background(), first); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	second := f.createInput(customerID, monday.Add(15*time.Hour))
	second.PaymentType = enums.PaymentSubscription
	_, err := f.svc.Create(context.Background(), second)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDailyLimit {
		t.Fatalf("expected daily limit, got %v", err)
	}
}

func TestDeclinedPaymentCancelsBooking(t *testing.T) {
	t.Parallel()

	f := newFixture(t, declineAuthorizer{})
	at := nextMonday().Add(9 * time.Hour)

	_, err := f.svc.Create(context.Background(), f.createInput(uuid.New(), at))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}

	var appointment models.Appointment
	if err := f.conn.First(&appointment, "staff_id = ?", f.staff.ID).Error; err != nil {
		t.Fatalf("load appointment: %v", err)
	}
	if appointment.Status != enums.AppointmentCancelled {
		t.Fatalf("expected compensating cancellation, got %s", appointment.Status)
	}
	if appointment.CancelReason == nil {
		t.Fatal("expected cancel reason to be recorded")
	}
}

func seedFundedAppointment(t *testing.T, f *fixture, customerID uuid.UUID, scheduledAt time.Time) *models.Appointment {
	t.Helper()
	sub := f.seedSubscription(t, customerID, 3)
	record := models.UsageRecord{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		PlanItemID:     uuid.New(),
		PeriodStart:    usage.PeriodStart(enums.PeriodWeekly, scheduledAt, time.UTC),
		Count:          1,
	}
	serviceID := f.service.ID
	subID := sub.ID
	recordID := record.ID
	appointment := models.Appointment{
		ID:              uuid.New(),
		EstablishmentID: f.est.ID,
		StaffID:         f.staff.ID,
		CustomerID:      customerID,
		ServiceID:       &serviceID,
		SubscriptionID:  &subID,
		UsageRecordID:   &recordID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: 30,
		Status:          enums.AppointmentConfirmed,
		PaymentType:     enums.PaymentSubscription,
		Price:           decimal.Zero,
	}
	if err := f.conn.Create(&record).Error; err != nil {
		t.Fatalf("seed usage record: %v", err)
	}
	if err := f.conn.Create(&appointment).Error; err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return &appointment
}

func TestCancelBeforeGraceReleasesUsage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	customerID := uuid.New()
	appointment := seedFundedAppointment(t, f, customerID, time.Now().UTC().Add(48*time.Hour))

	updated, err := f.svc.Transition(context.Background(), appointment.ID, TransitionInput{
		To:    enums.AppointmentCancelled,
		Actor: Actor{UserID: customerID, Role: enums.RoleCustomer},
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.UsageRecordID != nil {
		t.Fatal("usage reference should be cleared on release")
	}

	var record models.UsageRecord
	if err := f.conn.First(&record, "id = ?", *appointment.UsageRecordID).Error; err != nil {
		t.Fatalf("load usage record: %v", err)
	}
	if record.Count != 0 {
		t.Fatalf("expected released count 0, got %d", record.Count)
	}
}

func TestCancelInsideGraceForfeitsUsage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	customerID := uuid.New()
	appointment := seedFundedAppointment(t, f, customerID, time.Now().UTC().Add(10*time.Minute))

	updated, err := f.svc.Transition(context.Background(), appointment.ID, TransitionInput{
		To:    enums.AppointmentCancelled,
		Actor: Actor{UserID: customerID, Role: enums.RoleCustomer},
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.UsageRecordID == nil {
		t.Fatal("late cancellation keeps the usage reference")
	}

	var record models.UsageRecord
	if err := f.conn.First(&record, "id = ?", *appointment.UsageRecordID).Error; err != nil {
		t.Fatalf("load usage record: %v", err)
	}
	if record.Count != 1 {
		t.Fatalf("expected forfeited use to remain, got %d", record.Count)
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	customerID := uuid.New()
	appointment := seedFundedAppointment(t, f, customerID, time.Now().UTC().Add(48*time.Hour))

	if err := f.conn.Model(appointment).Update("status", enums.AppointmentCompleted).Error; err != nil {
		t.Fatalf("force completed: %v", err)
	}

	_, err := f.svc.Transition(context.Background(), appointment.ID, TransitionInput{
		To:    enums.AppointmentCancelled,
		Actor: Actor{UserID: customerID, Role: enums.RoleCustomer},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestTransitionRoleGating(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	customerID := uuid.New()
	appointment := seedFundedAppointment(t, f, customerID, time.Now().UTC().Add(48*time.Hour))

	// Customers cannot mark their own appointment completed.
	_, err := f.svc.Transition(context.Background(), appointment.ID, TransitionInput{
		To:    enums.AppointmentCompleted,
		Actor: Actor{UserID: customerID, Role: enums.RoleCustomer},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// Another customer cannot cancel someone else's appointment.
	_, err = f.svc.Transition(context.Background(), appointment.ID, TransitionInput{
		To:    enums.AppointmentCancelled,
		Actor: Actor{UserID: uuid.New(), Role: enums.RoleCustomer},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// Staff can complete.
	if _, err := f.svc.Transition(context.Background(), appointment.ID, TransitionInput{
		To:    enums.AppointmentCompleted,
		Actor: Actor{UserID: f.staff.UserID, Role: enums.RoleStaff},
	}); err != nil {
		t.Fatalf("staff completion: %v", err)
	}
}

func TestBookingWritesInvalidateSlotCache(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := f.conn.Model(&f.staff).Association("Services").Append(&f.service); err != nil {
		t.Fatalf("assign service: %v", err)
	}
	customerID := uuid.New()
	at := nextMonday().Add(10 * time.Hour)

	appointment, err := f.svc.Create(context.Background(), f.createInput(customerID, at))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	day := at.UTC().Format("2006-01-02")
	calls := f.slotCache.snapshot()
	if len(calls) == 0 {
		t.Fatal("expected create to invalidate cached slots")
	}
	if calls[0].staffID != f.staff.ID || calls[0].day != day {
		t.Fatalf("unexpected invalidation %+v, want staff %s day %s", calls[0], f.staff.ID, day)
	}
	if len(calls[0].serviceIDs) != 1 || calls[0].serviceIDs[0] != f.service.ID {
		t.Fatalf("expected the staff's service keys, got %v", calls[0].serviceIDs)
	}

	f.slotCache.reset()
	if _, err := f.svc.Transition(context.Background(), appointment.ID, TransitionInput{
		To:    enums.AppointmentCancelled,
		Actor: Actor{UserID: customerID, Role: enums.RoleCustomer},
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	calls = f.slotCache.snapshot()
	if len(calls) == 0 {
		t.Fatal("expected cancellation to invalidate cached slots")
	}
	if calls[0].day != day {
		t.Fatalf("expected the freed day %s to be dropped, got %s", day, calls[0].day)
	}
}

func TestCreateParallelSameSlotOneWinner(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	sqlDB, err := f.conn.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// sqlite allows one writer; a single connection queues the racing
	// transactions the way row locks queue them on Postgres.
	sqlDB.SetMaxOpenConns(1)

	at := nextMonday().Add(14 * time.Hour)
	const racers = 5
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), f.createInput(uuid.New(), at))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var booked, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			booked++
		case pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeConflict:
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if booked != 1 || conflicted != racers-1 {
		t.Fatalf("expected one winner and %d conflicts, got %d winners, %d conflicts", racers-1, booked, conflicted)
	}

	var live int64
	err = f.conn.Model(&models.Appointment{}).
		Where("staff_id = ? AND status <> ?", f.staff.ID, enums.AppointmentCancelled).
		Count(&live).Error
	if err != nil {
		t.Fatalf("count appointments: %v", err)
	}
	if live != 1 {
		t.Fatalf("expected a single live appointment, got %d", live)
	}
}
