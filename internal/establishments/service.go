package establishments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trimlyhq/trimly-backend/internal/availability"
	"github.com/trimlyhq/trimly-backend/internal/calendar"
	"github.com/trimlyhq/trimly-backend/internal/rbac"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
)

// Service manages establishment configuration: hours, staff, offered
// services, absence blocks and subscription plans. Every mutation is gated
// through the rbac matrix on the actor's establishment scope.
type Service struct {
	repo  *Repository
	cache *availability.Cache
	logg  *logger.Logger
}

// NewService wires the establishment management service. cache may be nil
// when availability caching is disabled.
func NewService(repo *Repository, cache *availability.Cache, logg *logger.Logger) (*Service, error) {
	if repo == nil || logg == nil {
		return nil, fmt.Errorf("establishments service is missing a dependency")
	}
	return &Service{repo: repo, cache: cache, logg: logg}, nil
}

// CreateInput opens a new establishment owned by the creating user.
type CreateInput struct {
	Name             string
	Timezone         string
	BusinessHours    json.RawMessage
	QueueModeEnabled bool
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, input CreateInput) (*models.Establishment, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "establishment name is required")
	}
	timezone := input.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown time zone")
	}
	hours := input.BusinessHours
	if len(hours) == 0 {
		hours = json.RawMessage(`{}`)
	}
	if _, err := calendar.ParseWeekly(hours); err != nil {
		return nil, err
	}

	establishment := &models.Establishment{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		Name:             name,
		Timezone:         timezone,
		BusinessHours:    hours,
		Active:           true,
		QueueModeEnabled: input.QueueModeEnabled,
	}
	if err := s.repo.Create(ctx, establishment); err != nil {
		return nil, err
	}
	return establishment, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Establishment, error) {
	return s.repo.Get(ctx, id)
}

// UpdateInput carries the mutable establishment settings. Nil fields are
// left untouched.
type UpdateInput struct {
	Name             *string
	Timezone         *string
	BusinessHours    json.RawMessage
	Active           *bool
	QueueModeEnabled *bool
	ReserveOnCheckIn *bool
}

func (s *Service) Update(ctx context.Context, actor rbac.Actor, establishmentID uuid.UUID, input UpdateInput) (*models.Establishment, error) {
	if !rbac.AllowScoped(actor, rbac.ResourceEstablishment, rbac.ActionUpdate, establishmentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage this establishment")
	}
	establishment, err := s.repo.Get(ctx, establishmentID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "establishment name is required")
		}
		establishment.Name = name
	}
	if input.Timezone != nil {
		if _, err := time.LoadLocation(*input.Timezone); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown time zone")
		}
		establishment.Timezone = *input.Timezone
	}
	if len(input.BusinessHours) > 0 {
		if _, err := calendar.ParseWeekly(input.BusinessHours); err != nil {
			return nil, err
		}
		establishment.BusinessHours = input.BusinessHours
	}
	if input.Active != nil {
		establishment.Active = *input.Active
	}
	if input.QueueModeEnabled != nil {
		establishment.QueueModeEnabled = *input.QueueModeEnabled
	}
	if input.ReserveOnCheckIn != nil {
		establishment.ReserveOnCheckIn = input.ReserveOnCheckIn
	}

	if err := s.repo.Update(ctx, establishment); err != nil {
		return nil, err
	}
	return establishment, nil
}

// AddStaffInput creates a bookable staff member.
type AddStaffInput struct {
	UserID       uuid.UUID
	DisplayName  string
	WorkSchedule json.RawMessage
	ServiceIDs   []uuid.UUID
}

func (s *Service) AddStaff(ctx context.Context, actor rbac.Actor, establishmentID uuid.UUID, input AddStaffInput) (*models.StaffMember, error) {
	if !rbac.AllowScoped(actor, rbac.ResourceStaff, rbac.ActionCreate, establishmentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage staff here")
	}
	if strings.TrimSpace(input.DisplayName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}
	schedule := input.WorkSchedule
	if len(schedule) == 0 {
		schedule = json.RawMessage(`{}`)
	}
	if _, err := calendar.ParseWeekly(schedule); err != nil {
		return nil, err
	}

	staff := &models.StaffMember{
		ID:              uuid.New(),
		EstablishmentID: establishmentID,
		UserID:          input.UserID,
		DisplayName:     strings.TrimSpace(input.DisplayName),
		WorkSchedule:    schedule,
		Active:          true,
	}
	if err := s.repo.CreateStaff(ctx, staff); err != nil {
		return nil, err
	}
	if len(input.ServiceIDs) > 0 {
		if err := s.assignServices(ctx, staff, input.ServiceIDs); err != nil {
			return nil, err
		}
	}
	return staff, nil
}

func (s *Service) ListStaff(ctx context.Context, establishmentID uuid.UUID) ([]models.StaffMember, error) {
	return s.repo.ListStaff(ctx, establishmentID)
}

// UpdateStaffInput mutates a staff member. Nil fields are left untouched.
type UpdateStaffInput struct {
	DisplayName  *string
	WorkSchedule json.RawMessage
	Active       *bool
	ServiceIDs   *[]uuid.UUID
}

func (s *Service) UpdateStaff(ctx context.Context, actor rbac.Actor, staffID uuid.UUID, input UpdateStaffInput) (*models.StaffMember, error) {
	staff, err := s.repo.Staff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if !rbac.AllowScoped(actor, rbac.ResourceStaff, rbac.ActionUpdate, staff.EstablishmentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage staff here")
	}

	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
		}
		staff.DisplayName = name
	}
	if len(input.WorkSchedule) > 0 {
		if _, err := calendar.ParseWeekly(input.WorkSchedule); err != nil {
			return nil, err
		}
		staff.WorkSchedule = input.WorkSchedule
	}
	if input.Active != nil {
		staff.Active = *input.Active
	}

	if err := s.repo.UpdateStaff(ctx, staff); err != nil {
		return nil, err
	}
	if input.ServiceIDs != nil {
		if err := s.assignServices(ctx, staff, *input.ServiceIDs); err != nil {
			return nil, err
		}
	}
	return staff, nil
}

func (s *Service) assignServices(ctx context.Context, staff *models.StaffMember, serviceIDs []uuid.UUID) error {
	services, err := s.repo.ServicesByIDs(ctx, staff.EstablishmentID, serviceIDs)
	if err != nil {
		return err
	}
	if len(services) != len(serviceIDs) {
		return pkgerrors.New(pkgerrors.CodeValidation, "some services do not belong to this establishment")
	}
	return s.repo.ReplaceStaffServices(ctx, staff, services)
}

// AddServiceInput creates a bookable offering.
type AddServiceInput struct {
	Name            string
	DurationMinutes int
	Price           decimal.Decimal
}

func (s *Service) AddService(ctx context.Context, actor rbac.Actor, establishmentID uuid.UUID, input AddServiceInput) (*models.Service, error) {
	if !rbac.AllowScoped(actor, rbac.ResourceService, rbac.ActionCreate, establishmentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage services here")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service name is required")
	}
	if input.DurationMinutes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration must be positive")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}

	service := &models.Service{
		ID:              uuid.New(),
		EstablishmentID: establishmentID,
		Name:            strings.TrimSpace(input.Name),
		DurationMinutes: input.DurationMinutes,
		Price:           input.Price,
		Active:          true,
	}
	if err := s.repo.CreateService(ctx, service); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *Service) ListServices(ctx context.Context, establishmentID uuid.UUID) ([]models.Service, error) {
	return s.repo.ListServices(ctx, establishmentID)
}

// SetServiceActive toggles bookability without touching history.
func (s *Service) SetServiceActive(ctx context.Context, actor rbac.Actor, serviceID uuid.UUID, active bool) (*models.Service, error) {
	service, err := s.repo.Service(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !rbac.AllowScoped(actor, rbac.ResourceService, rbac.ActionUpdate, service.EstablishmentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage services here")
	}
	service.Active = active
	if err := s.repo.UpdateService(ctx, service); err != nil {
		return nil, err
	}
	return service, nil
}

// AddBlockInput declares a one-off unavailability window for a staff member.
type AddBlockInput struct {
	StartAt time.Time
	EndAt   time.Time
	Reason  *string
}

func (s *Service) AddBlock(ctx context.Context, actor rbac.Actor, staffID uuid.UUID, input AddBlockInput) (*models.StaffBlock, error) {
	staff, err := s.repo.Staff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if !rbac.AllowScoped(actor, rbac.ResourceStaff, rbac.ActionUpdate, staff.EstablishmentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage staff here")
	}
	if !input.EndAt.After(input.StartAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "block end must be after its start")
	}

	block := &models.StaffBlock{
		ID:      uuid.New(),
		StaffID: staff.ID,
		StartAt: input.StartAt,
		EndAt:   input.EndAt,
		Reason:  input.Reason,
	}
	if err := s.repo.CreateBlock(ctx, block); err != nil {
		return nil, err
	}
	s.invalidateSlots(ctx, staff, block.StartAt, block.EndAt)
	return block, nil
}

func (s *Service) RemoveBlock(ctx context.Context, actor rbac.Actor, blockID uuid.UUID) error {
	block, err := s.repo.Block(ctx, blockID)
	if err != nil {
		return err
	}
	staff, err := s.repo.Staff(ctx, block.StaffID)
	if err != nil {
		return err
	}
	if !rbac.AllowScoped(actor, rbac.ResourceStaff, rbac.ActionUpdate, staff.EstablishmentID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage staff here")
	}
	if err := s.repo.DeleteBlock(ctx, blockID); err != nil {
		return err
	}
	s.invalidateSlots(ctx, staff, block.StartAt, block.EndAt)
	return nil
}

func (s *Service) ListBlocks(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.StaffBlock, error) {
	return s.repo.ListBlocks(ctx, staffID, from, to)
}

// invalidateSlots drops cached availability for each establishment-local day
// the window touches. Cache failures degrade to stale-until-TTL.
func (s *Service) invalidateSlots(ctx context.Context, staff *models.StaffMember, from, to time.Time) {
	if s.cache == nil {
		return
	}
	establishment, err := s.repo.Get(ctx, staff.EstablishmentID)
	if err != nil {
		s.logg.Warn(ctx, "slot invalidation skipped: establishment lookup failed")
		return
	}
	loc, err := time.LoadLocation(establishment.Timezone)
	if err != nil {
		loc = time.UTC
	}
	serviceIDs, err := s.repo.StaffServiceIDs(ctx, staff.ID)
	if err != nil {
		s.logg.Warn(ctx, "slot invalidation skipped: service lookup failed")
		return
	}
	start := from.In(loc)
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	for day := start; day.Before(to.In(loc)); day = day.AddDate(0, 0, 1) {
		s.cache.InvalidateDay(ctx, staff.ID, serviceIDs, day.Format("2006-01-02"))
	}
}

// PlanItemInput grants uses of exactly one service or bundle per period.
type PlanItemInput struct {
	ServiceID         *uuid.UUID
	BundleID          *uuid.UUID
	QuantityPerPeriod int
	PeriodGranularity enums.PeriodGranularity
}

// CreatePlanInput declares a purchasable allowance bundle.
type CreatePlanInput struct {
	Name        string
	Description *string
	Price       decimal.Decimal
	Items       []PlanItemInput
}

func (s *Service) CreatePlan(ctx context.Context, actor rbac.Actor, establishmentID uuid.UUID, input CreatePlanInput) (*models.SubscriptionPlan, error) {
	if !rbac.AllowScoped(actor, rbac.ResourcePlan, rbac.ActionCreate, establishmentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage plans here")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan name is required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan needs at least one allowance")
	}

	plan := &models.SubscriptionPlan{
		ID:              uuid.New(),
		EstablishmentID: establishmentID,
		Name:            strings.TrimSpace(input.Name),
		Description:     input.Description,
		Price:           input.Price,
		Active:          true,
	}
	for _, item := range input.Items {
		if _, err := models.NewOffering(item.ServiceID, item.BundleID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan item")
		}
		if item.QuantityPerPeriod <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "allowance quantity must be positive")
		}
		if !item.PeriodGranularity.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "allowance period must be weekly or monthly")
		}
		plan.Items = append(plan.Items, models.PlanItem{
			ID:                uuid.New(),
			PlanID:            plan.ID,
			ServiceID:         item.ServiceID,
			BundleID:          item.BundleID,
			QuantityPerPeriod: item.QuantityPerPeriod,
			PeriodGranularity: item.PeriodGranularity,
		})
	}

	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
