package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
	"github.com/trimlyhq/trimly-backend/pkg/outbox/payloads"
)

// Actor is the authenticated principal driving a booking operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// CreateInput describes a booking request. Exactly one of ServiceID or
// BundleID must be set.
type CreateInput struct {
	EstablishmentID uuid.UUID
	StaffID         uuid.UUID
	CustomerID      uuid.UUID
	ServiceID       *uuid.UUID
	BundleID        *uuid.UUID
	ScheduledAt     time.Time
	PaymentType     enums.PaymentType

	// SubscriptionID selects the funding subscription explicitly; left nil
	// with a subscription payment type, the customer's active subscription
	// at the establishment is used.
	SubscriptionID *uuid.UUID

	Notes *string
	Actor Actor
}

// TransitionInput drives one edge of the status machine.
type TransitionInput struct {
	To     enums.AppointmentStatus
	Reason *string
	Actor  Actor
}

// legalEdges is the full transition relation. Everything else is a state
// conflict.
var legalEdges = map[enums.AppointmentStatus][]enums.AppointmentStatus{
	enums.AppointmentPending:   {enums.AppointmentConfirmed, enums.AppointmentCancelled},
	enums.AppointmentConfirmed: {enums.AppointmentCompleted, enums.AppointmentCancelled, enums.AppointmentNoShow},
}

// establishmentOnlyTargets require a staff-side actor.
var establishmentOnlyTargets = map[enums.AppointmentStatus]bool{
	enums.AppointmentConfirmed: true,
	enums.AppointmentCompleted: true,
	enums.AppointmentNoShow:    true,
}

// SlotCache drops cached availability day lists after booking writes. The
// *availability.Cache satisfies it; a nil value disables invalidation.
type SlotCache interface {
	InvalidateDay(ctx context.Context, staffID uuid.UUID, serviceIDs []uuid.UUID, day string)
}

type Service struct {
	dbc              *dbpkg.Client
	repo             *Repository
	engine           *availability.Engine
	usage            *usage.Service
	authorizer       payments.Authorizer
	outbox           *outbox.Service
	cache            SlotCache
	cfg              config.BookingConfig
	reserveAtCheckIn bool
	logg             *logger.Logger
}

type ServiceParams struct {
	DB         *dbpkg.Client
	Repo       *Repository
	Engine     *availability.Engine
	Usage      *usage.Service
	Authorizer payments.Authorizer
	Outbox     *outbox.Service
	Cache      SlotCache
	Booking    config.BookingConfig
	CheckIn    config.CheckInConfig
	Logger     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Repo == nil || params.Engine == nil ||
		params.Usage == nil || params.Authorizer == nil || params.Outbox == nil || params.Logger == nil {
		return nil, fmt.Errorf("appointments service is missing a dependency")
	}
	return &Service{
		dbc:              params.DB,
		repo:             params.Repo,
		engine:           params.Engine,
		usage:            params.Usage,
		authorizer:       params.Authorizer,
		outbox:           params.Outbox,
		cache:            params.Cache,
		cfg:              params.Booking,
		reserveAtCheckIn: params.CheckIn.ReserveOnCheckIn,
		logg:             params.Logger,
	}, nil
}

// Create books an appointment. Single-pay bookings come back pending until
// the charge is authorized; subscription bookings settle their usage unit in
// the same transaction and confirm immediately when configured to.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Appointment, error) {
	offering, err := models.NewOffering(input.ServiceID, input.BundleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid offering")
	}
	if !input.PaymentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment type")
	}
	if input.ScheduledAt.Before(time.Now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot book in the past")
	}

	establishment, err := s.repo.Establishment(ctx, input.EstablishmentID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(establishment.Timezone)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "establishment has an invalid time zone")
	}

	durationMinutes, price, err := s.snapshotOffering(ctx, establishment.ID, offering)
	if err != nil {
		return nil, err
	}
	duration := time.Duration(durationMinutes) * time.Minute

	if err := s.engine.ValidateBookable(ctx, input.EstablishmentID, input.StaffID, input.ScheduledAt, duration); err != nil {
		return nil, err
	}

	var subscription *models.Subscription
	var planItem *models.PlanItem
	if input.PaymentType == enums.PaymentSubscription {
		subscription, planItem, err = s.resolveFunding(ctx, input, offering)
		if err != nil {
			return nil, err
		}
	}

	appointment := &models.Appointment{
		ID:              uuid.New(),
		EstablishmentID: input.EstablishmentID,
		StaffID:         input.StaffID,
		CustomerID:      input.CustomerID,
		ServiceID:       input.ServiceID,
		BundleID:        input.BundleID,
		ScheduledAt:     input.ScheduledAt,
		DurationMinutes: durationMinutes,
		Status:          enums.AppointmentPending,
		PaymentType:     input.PaymentType,
		Price:           price,
		Notes:           input.Notes,
	}
	if subscription != nil {
		id := subscription.ID
		appointment.SubscriptionID = &id
		if s.cfg.ConfirmSubscriptionBookings {
			appointment.Status = enums.AppointmentConfirmed
		}
	}

	err = s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		overlap, err := s.repo.HasOverlap(tx, input.StaffID, input.ScheduledAt, appointment.EndAt(), uuid.Nil)
		if err != nil {
			return err
		}
		if overlap {
			return pkgerrors.New(pkgerrors.CodeConflict, "slot is no longer available")
		}

		if subscription != nil {
			dayStart := usage.DayStart(input.ScheduledAt, loc)
			taken, err := s.repo.SubscriptionFundedOnDay(tx, subscription.ID, dayStart, dayStart.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			if taken {
				return pkgerrors.New(pkgerrors.CodeDailyLimit, "plan already funds a booking that day")
			}
			if !s.reserveOnCheckIn(establishment) {
				record, err := s.usage.Reserve(ctx, tx, usage.ReserveInput{
					Subscription: subscription,
					Item:         planItem,
					At:           input.ScheduledAt,
					Location:     loc,
				})
				if err != nil {
					return err
				}
				recordID := record.ID
				appointment.UsageRecordID = &recordID
			}
		}

		if err := s.repo.Create(tx, appointment); err != nil {
			if dbpkg.IsExclusionViolation(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "slot is no longer available")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating appointment")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAppointmentCreated,
			AggregateType: enums.AggregateAppointment,
			AggregateID:   appointment.ID,
			Actor:         s.actorRef(input.Actor, input.EstablishmentID),
			Version:       1,
			Data: payloads.AppointmentCreatedEvent{
				AppointmentID:   appointment.ID,
				EstablishmentID: appointment.EstablishmentID,
				StaffID:         appointment.StaffID,
				CustomerID:      appointment.CustomerID,
				ScheduledAt:     appointment.ScheduledAt,
				DurationMinutes: appointment.DurationMinutes,
				PaymentType:     appointment.PaymentType,
				Status:          appointment.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSlots(ctx, appointment, loc)

	if input.PaymentType == enums.PaymentSingle {
		return s.settleSinglePay(ctx, appointment, input.Actor)
	}
	return appointment, nil
}

// invalidateSlots drops the staff member's cached day lists the booking
// window touches. Cache failures degrade to stale-until-TTL.
func (s *Service) invalidateSlots(ctx context.Context, appointment *models.Appointment, loc *time.Location) {
	if s.cache == nil {
		return
	}
	serviceIDs, err := s.repo.StaffServiceIDs(ctx, appointment.StaffID)
	if err != nil {
		s.logg.Warn(ctx, "slot invalidation skipped: service lookup failed")
		return
	}
	start := appointment.ScheduledAt.In(loc)
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	for day := start; day.Before(appointment.EndAt().In(loc)); day = day.AddDate(0, 0, 1) {
		s.cache.InvalidateDay(ctx, appointment.StaffID, serviceIDs, day.Format("2006-01-02"))
	}
}

// invalidateSlotsFor resolves the establishment zone before invalidating,
// for call sites that did not already load it.
func (s *Service) invalidateSlotsFor(ctx context.Context, appointment *models.Appointment) {
	if s.cache == nil {
		return
	}
	establishment, err := s.repo.Establishment(ctx, appointment.EstablishmentID)
	if err != nil {
		s.logg.Warn(ctx, "slot invalidation skipped: establishment lookup failed")
		return
	}
	loc, err := time.LoadLocation(establishment.Timezone)
	if err != nil {
		loc = time.UTC
	}
	s.invalidateSlots(ctx, appointment, loc)
}

// settleSinglePay authorizes the charge after the booking committed. A
// declined or failed charge cancels the pending appointment as a
// compensating write; the row is never deleted.
func (s *Service) settleSinglePay(ctx context.Context, appointment *models.Appointment, actor Actor) (*models.Appointment, error) {
	auth, err := s.authorizer.Authorize(ctx, payments.Charge{
		AppointmentID: appointment.ID,
		CustomerID:    appointment.CustomerID,
		Amount:        appointment.Price,
	})
	if err == nil && auth.Approved {
		return s.transition(ctx, appointment.ID, TransitionInput{
			To:    enums.AppointmentConfirmed,
			Actor: actor,
		}, true)
	}

	reason := "payment declined"
	if err != nil {
		reason = "payment failed"
		s.logg.Error(ctx, "charge authorization failed", err)
	}
	if _, cerr := s.transition(ctx, appointment.ID, TransitionInput{
		To:     enums.AppointmentCancelled,
		Reason: &reason,
		Actor:  actor,
	}, true); cerr != nil {
		s.logg.Error(ctx, "compensating cancellation failed", cerr)
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment was not approved")
}

// Transition moves the appointment along one legal edge. Cancelling a
// subscription-funded booking before the grace cutoff releases the reserved
// usage unit; inside the cutoff the unit is forfeited.
func (s *Service) Transition(ctx context.Context, appointmentID uuid.UUID, input TransitionInput) (*models.Appointment, error) {
	return s.transition(ctx, appointmentID, input, false)
}

// transition applies the edge; system bypasses role gating for settlement
// writes the platform itself performs.
func (s *Service) transition(ctx context.Context, appointmentID uuid.UUID, input TransitionInput, system bool) (*models.Appointment, error) {
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}

	var result *models.Appointment
	err := s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		appointment, err := s.repo.GetTx(tx, appointmentID)
		if err != nil {
			return err
		}
		if !system {
			if err := s.authorizeTransition(appointment, input); err != nil {
				return err
			}
		}
		if !edgeAllowed(appointment.Status, input.To) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move a %s appointment to %s", appointment.Status, input.To))
		}

		extra := map[string]any{}
		if input.Reason != nil {
			extra["cancel_reason"] = *input.Reason
		}

		releaseUsage := false
		if input.To == enums.AppointmentCancelled && appointment.UsageRecordID != nil {
			if time.Now().Add(s.cfg.CancellationGrace).Before(appointment.ScheduledAt) {
				releaseUsage = true
				extra["usage_record_id"] = nil
			}
		}

		applied, err := s.repo.UpdateStatus(tx, appointment.ID, appointment.Status, input.To, extra)
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "appointment changed concurrently")
		}

		if releaseUsage {
			if err := s.usage.Release(ctx, tx, *appointment.UsageRecordID); err != nil {
				return err
			}
		}

		from := appointment.Status
		appointment.Status = input.To
		if input.Reason != nil {
			appointment.CancelReason = input.Reason
		}
		if releaseUsage {
			appointment.UsageRecordID = nil
		}
		result = appointment

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAppointmentStatusChanged,
			AggregateType: enums.AggregateAppointment,
			AggregateID:   appointment.ID,
			Actor:         s.actorRef(input.Actor, appointment.EstablishmentID),
			Version:       1,
			Data: payloads.AppointmentStatusChangedEvent{
				AppointmentID:   appointment.ID,
				EstablishmentID: appointment.EstablishmentID,
				CustomerID:      appointment.CustomerID,
				From:            from,
				To:              input.To,
				Reason:          input.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if input.To == enums.AppointmentCancelled {
		// The freed slot must not stay hidden behind a cached day list.
		s.invalidateSlotsFor(ctx, result)
	}
	return result, nil
}

// Get returns one appointment, gated to its customer or establishment staff.
func (s *Service) Get(ctx context.Context, appointmentID uuid.UUID, actor Actor) (*models.Appointment, error) {
	appointment, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actor.Role == enums.RoleCustomer && appointment.CustomerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "appointment belongs to another customer")
	}
	return appointment, nil
}

// List pages appointments under the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter, actor Actor) ([]models.Appointment, int64, error) {
	if actor.Role == enums.RoleCustomer {
		id := actor.UserID
		filter.CustomerID = &id
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) snapshotOffering(ctx context.Context, establishmentID uuid.UUID, offering models.Offering) (int, decimal.Decimal, error) {
	if offering.IsService() {
		service, err := s.repo.Service(ctx, *offering.ServiceID())
		if err != nil {
			return 0, decimal.Zero, err
		}
		if service.EstablishmentID != establishmentID {
			return 0, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "service does not belong to establishment")
		}
		if !service.Active {
			return 0, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "service is not bookable")
		}
		return service.DurationMinutes, service.Price, nil
	}

	bundle, err := s.repo.Bundle(ctx, *offering.BundleID())
	if err != nil {
		return 0, decimal.Zero, err
	}
	if bundle.EstablishmentID != establishmentID {
		return 0, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "bundle does not belong to establishment")
	}
	if !bundle.Active {
		return 0, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "bundle is not bookable")
	}
	return bundle.DurationMinutes, bundle.Price, nil
}

// resolveFunding finds the subscription and the plan item covering the
// offering.
func (s *Service) resolveFunding(ctx context.Context, input CreateInput, offering models.Offering) (*models.Subscription, *models.PlanItem, error) {
	var subscription *models.Subscription
	var plan *models.SubscriptionPlan
	var err error
	if input.SubscriptionID != nil {
		subscription, plan, err = s.repo.Subscription(ctx, *input.SubscriptionID)
	} else {
		subscription, plan, err = s.repo.ActiveSubscription(ctx, input.CustomerID, input.EstablishmentID, input.ScheduledAt)
	}
	if err != nil {
		return nil, nil, err
	}
	if subscription == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "no active subscription covers this booking")
	}
	if subscription.CustomerID != input.CustomerID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another customer")
	}
	if subscription.EstablishmentID != input.EstablishmentID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription is for another establishment")
	}
	if !subscription.ActiveAt(input.ScheduledAt) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription is not active for the requested time")
	}

	for i := range plan.Items {
		item := plan.Items[i]
		if item.QuantityPerPeriod <= 0 {
			continue
		}
		itemOffering, oerr := item.Offering()
		if oerr != nil {
			continue
		}
		if itemOffering.Matches(offering.ServiceID(), offering.BundleID()) {
			return subscription, &item, nil
		}
	}
	return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "plan does not cover this offering")
}

func (s *Service) authorizeTransition(appointment *models.Appointment, input TransitionInput) error {
	if establishmentOnlyTargets[input.To] && !input.Actor.Role.IsEstablishmentSide() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only establishment staff can apply this status")
	}
	if input.Actor.Role == enums.RoleCustomer && appointment.CustomerID != input.Actor.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "appointment belongs to another customer")
	}
	return nil
}

// reserveOnCheckIn resolves the settlement policy: the establishment row
// overrides the platform default.
func (s *Service) reserveOnCheckIn(establishment *models.Establishment) bool {
	if establishment.ReserveOnCheckIn != nil {
		return *establishment.ReserveOnCheckIn
	}
	return s.reserveAtCheckIn
}

func (s *Service) actorRef(actor Actor, establishmentID uuid.UUID) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	id := establishmentID
	return &outbox.ActorRef{UserID: actor.UserID, EstablishmentID: &id, Role: actor.Role.String()}
}

func edgeAllowed(from, to enums.AppointmentStatus) bool {
	for _, candidate := range legalEdges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
