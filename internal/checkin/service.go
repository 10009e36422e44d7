package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/internal/queue"
	"github.com/trimlyhq/trimly-backend/internal/usage"
	dbpkg "github.com/trimlyhq/trimly-backend/pkg/db"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/payloads"
)

// Actor is the authenticated principal issuing or redeeming a token.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// IssuedToken is a freshly minted check-in credential.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// RedeemResult reports how an arrival settled. Exactly one of CheckIn or
// QueueEntry is set: a qualifying appointment yields a CheckIn, and with
// queue mode enabled an appointment-less arrival falls through to the
// walk-in line.
type RedeemResult struct {
	CheckIn     *models.CheckIn
	Appointment *models.Appointment
	QueueEntry  *queue.Entry
}

// Service validates check-in tokens and settles the usage behind an arrival.
type Service struct {
	dbc    *dbpkg.Client
	repo   *Repository
	tokens *TokenIssuer
	usage  *usage.Service
	queue  *queue.Service
	outbox *outbox.Service
	logg   *logger.Logger
}

type ServiceParams struct {
	DB     *dbpkg.Client
	Repo   *Repository
	Tokens *TokenIssuer
	Usage  *usage.Service
	Queue  *queue.Service
	Outbox *outbox.Service
	Logger *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Repo == nil || params.Tokens == nil ||
		params.Usage == nil || params.Queue == nil || params.Outbox == nil || params.Logger == nil {
		return nil, fmt.Errorf("checkin service is missing a dependency")
	}
	return &Service{
		dbc:    params.DB,
		repo:   params.Repo,
		tokens: params.Tokens,
		usage:  params.Usage,
		queue:  params.Queue,
		outbox: params.Outbox,
		logg:   params.Logger,
	}, nil
}

// IssueToken mints a check-in token for the establishment. Only
// establishment-side actors may issue one.
func (s *Service) IssueToken(ctx context.Context, establishmentID uuid.UUID, actor Actor) (*IssuedToken, error) {
	if !actor.Role.IsEstablishmentSide() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only establishment staff can issue check-in tokens")
	}
	establishment, err := s.repo.Establishment(ctx, establishmentID)
	if err != nil {
		return nil, err
	}
	if !establishment.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "establishment is not operating")
	}

	token, expiresAt, err := s.tokens.Issue(establishment.ID, actor.Role.String())
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

// Redeem validates the token for the presenting customer and settles the
// arrival. A qualifying appointment is completed and recorded as a CheckIn;
// without one, queue mode puts the customer in the walk-in line instead.
// Redemption is idempotent per appointment.
func (s *Service) Redeem(ctx context.Context, token string, customerID uuid.UUID) (*RedeemResult, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	establishment, err := s.repo.Establishment(ctx, claims.Establishment())
	if err != nil {
		return nil, err
	}
	if !establishment.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "establishment is not operating")
	}
	loc, err := time.LoadLocation(establishment.Timezone)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "establishment has an invalid time zone")
	}

	now := time.Now()
	dayStart := usage.DayStart(now, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	appointment, err := s.repo.AppointmentForDay(s.repo.DB(ctx), customerID, establishment.ID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	if appointment == nil {
		return s.fallThroughToQueue(ctx, establishment, customerID, dayStart, dayEnd)
	}

	var result RedeemResult
	err = s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.repo.ByAppointment(tx, appointment.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeAlreadyCheckedIn, "appointment is already checked in")
		}
		taken, err := s.repo.ExistsOnDay(tx, customerID, establishment.ID, dayStart, dayEnd)
		if err != nil {
			return err
		}
		if taken {
			return pkgerrors.New(pkgerrors.CodeDailyLimit, "customer already checked in here today")
		}

		// Settle the allowance at the door when booking deferred it.
		var reservedRecordID *uuid.UUID
		if appointment.PaymentType == enums.PaymentSubscription && appointment.UsageRecordID == nil {
			if appointment.SubscriptionID == nil {
				return pkgerrors.New(pkgerrors.CodeInternal, "subscription appointment without a subscription")
			}
			subscription, plan, err := s.repo.Subscription(tx, *appointment.SubscriptionID)
			if err != nil {
				return err
			}
			item, err := coveringItem(plan, appointment)
			if err != nil {
				return err
			}
			record, err := s.usage.Reserve(ctx, tx, usage.ReserveInput{
				Subscription: subscription,
				Item:         item,
				At:           now,
				Location:     loc,
				DailyGuard:   true,
			})
			if err != nil {
				return err
			}
			id := record.ID
			reservedRecordID = &id
		}

		checkIn := &models.CheckIn{
			ID:                      uuid.New(),
			AppointmentID:           appointment.ID,
			CustomerID:              customerID,
			EstablishmentID:         establishment.ID,
			CheckedInAt:             now,
			SubscriptionUseConsumed: appointment.PaymentType == enums.PaymentSubscription,
		}
		if err := s.repo.Create(tx, checkIn); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeAlreadyCheckedIn, "appointment is already checked in")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording check-in")
		}

		applied, err := s.repo.CompleteAppointment(tx, appointment, reservedRecordID)
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "appointment changed concurrently")
		}
		from := appointment.Status
		appointment.Status = enums.AppointmentCompleted
		if reservedRecordID != nil {
			appointment.UsageRecordID = reservedRecordID
		}
		result = RedeemResult{CheckIn: checkIn, Appointment: appointment}

		appointmentID := appointment.ID
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckInRedeemed,
			AggregateType: enums.AggregateCheckIn,
			AggregateID:   checkIn.ID,
			Actor:         &outbox.ActorRef{UserID: customerID, EstablishmentID: &establishment.ID, Role: enums.RoleCustomer.String()},
			Version:       1,
			Data: payloads.CheckInRedeemedEvent{
				CheckInID:               checkIn.ID,
				EstablishmentID:         establishment.ID,
				CustomerID:              customerID,
				AppointmentID:           &appointmentID,
				SubscriptionUseConsumed: checkIn.SubscriptionUseConsumed,
			},
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAppointmentStatusChanged,
			AggregateType: enums.AggregateAppointment,
			AggregateID:   appointment.ID,
			Version:       1,
			Data: payloads.AppointmentStatusChangedEvent{
				AppointmentID:   appointment.ID,
				EstablishmentID: appointment.EstablishmentID,
				CustomerID:      appointment.CustomerID,
				From:            from,
				To:              enums.AppointmentCompleted,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// fallThroughToQueue handles a valid token presented without a booking.
func (s *Service) fallThroughToQueue(ctx context.Context, establishment *models.Establishment, customerID uuid.UUID, dayStart, dayEnd time.Time) (*RedeemResult, error) {
	if !establishment.QueueModeEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no appointment to check in today")
	}
	taken, err := s.repo.ExistsOnDay(s.repo.DB(ctx), customerID, establishment.ID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, pkgerrors.New(pkgerrors.CodeDailyLimit, "customer already checked in here today")
	}
	entry, err := s.queue.Join(ctx, queue.JoinInput{
		EstablishmentID: establishment.ID,
		CustomerID:      customerID,
	})
	if err != nil {
		return nil, err
	}
	return &RedeemResult{QueueEntry: entry}, nil
}

// coveringItem picks the plan item whose offering matches the appointment's.
func coveringItem(plan *models.SubscriptionPlan, appointment *models.Appointment) (*models.PlanItem, error) {
	offering, err := models.NewOffering(appointment.ServiceID, appointment.BundleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appointment offering is invalid")
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
			return &item, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan does not cover this offering")
}
