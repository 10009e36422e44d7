package checkin

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/internal/queue"
	"github.com/trimlyhq/trimly-backend/internal/usage"
	"github.com/trimlyhq/trimly-backend/pkg/config"
	dbpkg "github.com/trimlyhq/trimly-backend/pkg/db"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
)

var testJWT = config.JWTConfig{Secret: "test-secret", Issuer: "trimly-test"}

type fixture struct {
	svc  *Service
	conn *gorm.DB
	est  models.Establishment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:checkin_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Establishment{}, &models.Service{}, &models.Appointment{},
		&models.CheckIn{}, &models.Subscription{}, &models.SubscriptionPlan{},
		&models.PlanItem{}, &models.UsageRecord{}, &models.QueueEntry{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	est := models.Establishment{
		ID:            uuid.New(),
		OwnerID:       uuid.New(),
		Name:          "Fade Factory",
		Timezone:      "UTC",
		Active:        true,
		BusinessHours: json.RawMessage(`{}`),
	}
	if err := conn.Create(&est).Error; err != nil {
		t.Fatalf("seed establishment: %v", err)
	}

	logg := logger.New(logger.Options{Output: io.Discard})
	tokens, err := NewTokenIssuer(testJWT, config.CheckInConfig{TokenTTLMinutes: 15})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	usageSvc, err := usage.NewService(usage.NewRepository(conn), logg)
	if err != nil {
		t.Fatalf("usage service: %v", err)
	}
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	queueSvc, err := queue.NewService(dbpkg.NewWithConn(conn), queue.NewRepository(conn), outboxSvc, logg)
	if err != nil {
		t.Fatalf("queue service: %v", err)
	}
	svc, err := NewService(ServiceParams{
		DB:     dbpkg.NewWithConn(conn),
		Repo:   NewRepository(conn),
		Tokens: tokens,
		Usage:  usageSvc,
		Queue:  queueSvc,
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		t.Fatalf("checkin service: %v", err)
	}
	return &fixture{svc: svc, conn: conn, est: est}
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	issued, err := f.svc.IssueToken(context.Background(), f.est.ID, Actor{UserID: uuid.New(), Role: enums.RoleStaff})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return issued.Token
}

func (f *fixture) seedAppointment(t *testing.T, customerID uuid.UUID, mutate func(*models.Appointment)) *models.Appointment {
	t.Helper()
	serviceID := uuid.New()
	appointment := &models.Appointment{
		ID:              uuid.New(),
		EstablishmentID: f.est.ID,
		StaffID:         uuid.New(),
		CustomerID:      customerID,
		ServiceID:       &serviceID,
		ScheduledAt:     time.Now().UTC(),
		DurationMinutes: 30,
		Status:          enums.AppointmentConfirmed,
		PaymentType:     enums.PaymentSingle,
		Price:           decimal.NewFromInt(25),
	}
	if mutate != nil {
		mutate(appointment)
	}
	if err := f.conn.Create(appointment).Error; err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return appointment
}

// seedSubscription wires a weekly plan item covering serviceID with the given
// cap.
func (f *fixture) seedSubscription(t *testing.T, customerID, serviceID uuid.UUID, cap int) *models.Subscription {
	t.Helper()
	plan := models.SubscriptionPlan{
		ID:              uuid.New(),
		EstablishmentID: f.est.ID,
		Name:            "Weekly Cuts",
		Price:           decimal.NewFromInt(80),
		Active:          true,
	}
	if err := f.conn.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	item := models.PlanItem{
		ID:                uuid.New(),
		PlanID:            plan.ID,
		ServiceID:         &serviceID,
		QuantityPerPeriod: cap,
		PeriodGranularity: enums.PeriodWeekly,
	}
	if err := f.conn.Create(&item).Error; err != nil {
		t.Fatalf("seed plan item: %v", err)
	}
	subscription := models.Subscription{
		ID:                 uuid.New(),
		CustomerID:         customerID,
		PlanID:             plan.ID,
		EstablishmentID:    f.est.ID,
		Status:             enums.SubscriptionActive,
		CurrentPeriodStart: time.Now().Add(-24 * time.Hour),
		CurrentPeriodEnd:   time.Now().Add(30 * 24 * time.Hour),
	}
	if err := f.conn.Create(&subscription).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return &subscription
}

func TestRedeemCompletesAppointment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customerID := uuid.New()
	appointment := f.seedAppointment(t, customerID, nil)

	result, err := f.svc.Redeem(ctx, f.token(t), customerID)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if result.CheckIn == nil || result.CheckIn.AppointmentID != appointment.ID {
		t.Fatal("expected a check-in for the seeded appointment")
	}
	if result.CheckIn.SubscriptionUseConsumed {
		t.Fatal("single-pay check-in should not consume a subscription use")
	}
	if result.Appointment.Status != enums.AppointmentCompleted {
		t.Fatalf("expected completed, got %s", result.Appointment.Status)
	}

	var stored models.Appointment
	if err := f.conn.First(&stored, "id = ?", appointment.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != enums.AppointmentCompleted {
		t.Fatalf("status not persisted, got %s", stored.Status)
	}
}

func TestRedeemIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customerID := uuid.New()
	f.seedAppointment(t, customerID, nil)

	token := f.token(t)
	if _, err := f.svc.Redeem(ctx, token, customerID); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	_, err := f.svc.Redeem(ctx, token, customerID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeAlreadyCheckedIn {
		t.Fatalf("expected already checked in, got %v", err)
	}

	var count int64
	if err := f.conn.Model(&models.CheckIn{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one check-in row, got %d", count)
	}
}

func TestRedeemExpiredToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	claims := TokenClaims{
		EstablishmentID: f.est.ID.String(),
		TokenType:       "checkin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testJWT.Issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-30 * time.Minute)),
		},
	}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWT.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = f.svc.Redeem(context.Background(), stale, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeTokenExpired {
		t.Fatalf("expected token expired, got %v", err)
	}
}

func TestRedeemRejectsForgedToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Redeem(ctx, "not-a-token", uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeTokenInvalid {
		t.Fatalf("expected token invalid, got %v", err)
	}

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		EstablishmentID: f.est.ID.String(),
		TokenType:       "checkin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testJWT.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = f.svc.Redeem(ctx, forged, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeTokenInvalid {
		t.Fatalf("expected token invalid, got %v", err)
	}
}

func TestRedeemSettlesUsageAtDoor(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customerID := uuid.New()
	serviceID := uuid.New()
	subscription := f.seedSubscription(t, customerID, serviceID, 3)
	f.seedAppointment(t, customerID, func(a *models.Appointment) {
		a.ServiceID = &serviceID
		a.PaymentType = enums.PaymentSubscription
		a.SubscriptionID = &subscription.ID
	})

	result, err := f.svc.Redeem(ctx, f.token(t), customerID)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !result.CheckIn.SubscriptionUseConsumed {
		t.Fatal("expected the check-in to consume a subscription use")
	}
	if result.Appointment.UsageRecordID == nil {
		t.Fatal("expected the settled usage record to be linked")
	}

	var record models.UsageRecord
	if err := f.conn.First(&record, "id = ?", *result.Appointment.UsageRecordID).Error; err != nil {
		t.Fatalf("reload usage: %v", err)
	}
	if record.Count != 1 {
		t.Fatalf("expected one consumed use, got %d", record.Count)
	}
}

func TestRedeemEnforcesDailyLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	customerID := uuid.New()
	serviceID := uuid.New()
	subscription := f.seedSubscription(t, customerID, serviceID, 5)

	seed := func() {
		f.seedAppointment(t, customerID, func(a *models.Appointment) {
			a.ServiceID = &serviceID
			a.PaymentType = enums.PaymentSubscription
			a.SubscriptionID = &subscription.ID
		})
	}

	seed()
	if _, err := f.svc.Redeem(ctx, f.token(t), customerID); err != nil {
		t.Fatalf("first redeem: %v", err)
	}

	// A second appointment on the same day must not fund a second visit,
	// even with plan uses remaining.
	seed()
	_, err := f.svc.Redeem(ctx, f.token(t), customerID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDailyLimit {
		t.Fatalf("expected daily limit, got %v", err)
	}
}

func TestRedeemFallsThroughToQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.conn.Model(&models.Establishment{}).Where("id = ?", f.est.ID).Update("queue_mode_enabled", true).Error; err != nil {
		t.Fatalf("enable queue mode: %v", err)
	}

	result, err := f.svc.Redeem(context.Background(), f.token(t), uuid.New())
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if result.QueueEntry == nil || result.QueueEntry.Position != 1 {
		t.Fatalf("expected a queue entry at position 1, got %+v", result.QueueEntry)
	}
	if result.CheckIn != nil {
		t.Fatal("queue fall-through must not create a check-in row")
	}
}

func TestRedeemWithoutAppointmentOrQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Redeem(context.Background(), f.token(t), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIssueTokenRequiresEstablishmentRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.IssueToken(context.Background(), f.est.ID, Actor{UserID: uuid.New(), Role: enums.RoleCustomer})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
