package establishments

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/internal/rbac"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
)

type fixture struct {
	svc   *Service
	conn  *gorm.DB
	est   models.Establishment
	owner rbac.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:establishments_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Establishment{},
		&models.StaffMember{},
		&models.Service{},
		&models.StaffBlock{},
		&models.SubscriptionPlan{},
		&models.PlanItem{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ownerID := uuid.New()
	est := models.Establishment{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		Name:          "Sharp Lines",
		Timezone:      "UTC",
		Active:        true,
		BusinessHours: json.RawMessage(`{"mon":[{"open":"09:00","close":"18:00"}]}`),
	}
	if err := conn.Create(&est).Error; err != nil {
		t.Fatalf("seed establishment: %v", err)
	}

	logg := logger.New(logger.Options{Output: io.Discard})
	svc, err := NewService(NewRepository(conn), nil, logg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	owner := rbac.Actor{UserID: ownerID, Role: enums.RoleOwner, EstablishmentID: &est.ID}
	return &fixture{svc: svc, conn: conn, est: est, owner: owner}
}

func TestUpdateValidatesBusinessHours(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, f.owner, f.est.ID, UpdateInput{
		BusinessHours: json.RawMessage(`{"mon":[{"open":"18:00","close":"09:00"}]}`),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	updated, err := f.svc.Update(ctx, f.owner, f.est.ID, UpdateInput{
		BusinessHours: json.RawMessage(`{"tue":[{"open":"10:00","close":"16:00"}]}`),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if string(updated.BusinessHours) != `{"tue":[{"open":"10:00","close":"16:00"}]}` {
		t.Fatalf("hours not stored: %s", updated.BusinessHours)
	}
}

func TestUpdateRejectsForeignScope(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	otherID := uuid.New()
	intruder := rbac.Actor{UserID: uuid.New(), Role: enums.RoleAdmin, EstablishmentID: &otherID}

	_, err := f.svc.Update(context.Background(), intruder, f.est.ID, UpdateInput{QueueModeEnabled: boolPtr(true)})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAddStaffValidatesSchedule(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddStaff(ctx, f.owner, f.est.ID, AddStaffInput{
		UserID:       uuid.New(),
		DisplayName:  "Marco",
		WorkSchedule: json.RawMessage(`{"mon":[{"open":"25:00","close":"26:00"}]}`),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	staff, err := f.svc.AddStaff(ctx, f.owner, f.est.ID, AddStaffInput{
		UserID:      uuid.New(),
		DisplayName: "Marco",
	})
	if err != nil {
		t.Fatalf("add staff: %v", err)
	}
	if !staff.Active {
		t.Fatal("new staff should be active")
	}
}

func TestAssignServicesRejectsForeignService(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	staff, err := f.svc.AddStaff(ctx, f.owner, f.est.ID, AddStaffInput{UserID: uuid.New(), DisplayName: "Rui"})
	if err != nil {
		t.Fatalf("add staff: %v", err)
	}

	foreign := models.Service{
		ID:              uuid.New(),
		EstablishmentID: uuid.New(),
		Name:            "Elsewhere Cut",
		DurationMinutes: 30,
		Price:           decimal.NewFromInt(20),
		Active:          true,
	}
	if err := f.conn.Create(&foreign).Error; err != nil {
		t.Fatalf("seed foreign service: %v", err)
	}

	ids := []uuid.UUID{foreign.ID}
	_, err = f.svc.UpdateStaff(ctx, f.owner, staff.ID, UpdateStaffInput{ServiceIDs: &ids})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAddBlockRequiresOrderedWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	staff, err := f.svc.AddStaff(ctx, f.owner, f.est.ID, AddStaffInput{UserID: uuid.New(), DisplayName: "Nina"})
	if err != nil {
		t.Fatalf("add staff: %v", err)
	}

	now := time.Now().UTC()
	_, err = f.svc.AddBlock(ctx, f.owner, staff.ID, AddBlockInput{StartAt: now, EndAt: now.Add(-time.Hour)})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	block, err := f.svc.AddBlock(ctx, f.owner, staff.ID, AddBlockInput{StartAt: now, EndAt: now.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("add block: %v", err)
	}
	if err := f.svc.RemoveBlock(ctx, f.owner, block.ID); err != nil {
		t.Fatalf("remove block: %v", err)
	}
	if err := f.svc.RemoveBlock(ctx, f.owner, block.ID); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found on second removal, got %v", err)
	}
}

func TestCreatePlanValidatesItems(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	serviceRow, err := f.svc.AddService(ctx, f.owner, f.est.ID, AddServiceInput{
		Name:            "Beard Trim",
		DurationMinutes: 20,
		Price:           decimal.NewFromInt(15),
	})
	if err != nil {
		t.Fatalf("add service: %v", err)
	}

	// Neither service nor bundle referenced.
	_, err = f.svc.CreatePlan(ctx, f.owner, f.est.ID, CreatePlanInput{
		Name:  "Broken",
		Price: decimal.NewFromInt(50),
		Items: []PlanItemInput{{QuantityPerPeriod: 4, PeriodGranularity: enums.PeriodMonthly}},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	plan, err := f.svc.CreatePlan(ctx, f.owner, f.est.ID, CreatePlanInput{
		Name:  "Monthly Four",
		Price: decimal.NewFromInt(50),
		Items: []PlanItemInput{{
			ServiceID:         &serviceRow.ID,
			QuantityPerPeriod: 4,
			PeriodGranularity: enums.PeriodMonthly,
		}},
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	var count int64
	if err := f.conn.Model(&models.PlanItem{}).Where("plan_id = ?", plan.ID).Count(&count).Error; err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one persisted item, got %d", count)
	}
}

func TestCreatePlanGatesOnRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	staffActor := rbac.Actor{UserID: uuid.New(), Role: enums.RoleStaff, EstablishmentID: &f.est.ID}

	_, err := f.svc.CreatePlan(context.Background(), staffActor, f.est.ID, CreatePlanInput{
		Name:  "Nope",
		Price: decimal.NewFromInt(10),
		Items: []PlanItemInput{{QuantityPerPeriod: 1, PeriodGranularity: enums.PeriodWeekly}},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func boolPtr(v bool) *bool { return &v }
