package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/trimlyhq/trimly-backend/pkg/db"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/payloads"
)

// Actor is the authenticated principal driving a subscription operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// Service manages subscription lifecycle: purchase, period renewal and
// cancellation. Billing itself is a collaborator concern; this service only
// tracks the entitlement window that usage metering reads.
type Service struct {
	dbc    *dbpkg.Client
	repo   *Repository
	outbox *outbox.Service
	logg   *logger.Logger
}

func NewService(dbc *dbpkg.Client, repo *Repository, outboxSvc *outbox.Service, logg *logger.Logger) (*Service, error) {
	if dbc == nil || repo == nil || outboxSvc == nil || logg == nil {
		return nil, fmt.Errorf("subscriptions service is missing a dependency")
	}
	return &Service{dbc: dbc, repo: repo, outbox: outboxSvc, logg: logg}, nil
}

// Plans lists the establishment's purchasable plans.
func (s *Service) Plans(ctx context.Context, establishmentID uuid.UUID) ([]models.SubscriptionPlan, error) {
	return s.repo.ListPlans(ctx, establishmentID)
}

// Subscribe starts a monthly entitlement window on the chosen plan. A
// customer holds at most one active subscription per establishment.
func (s *Service) Subscribe(ctx context.Context, customerID, planID uuid.UUID) (*models.Subscription, error) {
	plan, err := s.repo.Plan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is not purchasable")
	}
	if len(plan.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan grants no allowances")
	}
	for _, item := range plan.Items {
		if !item.PeriodGranularity.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan item declares an unknown period")
		}
	}

	now := time.Now()
	subscription := &models.Subscription{
		ID:                 uuid.New(),
		CustomerID:         customerID,
		PlanID:             plan.ID,
		EstablishmentID:    plan.EstablishmentID,
		Status:             enums.SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}

	err = s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.repo.ActiveForCustomer(tx, customerID, plan.EstablishmentID)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "customer already holds an active subscription here")
		}
		return s.repo.Create(tx, subscription)
	})
	if err != nil {
		return nil, err
	}
	return subscription, nil
}

// Renew rolls the entitlement window forward by one month. The shift is
// guarded on the current period end, so a retried renewal settles exactly
// once; the renewal event dedupes on the new period start.
func (s *Service) Renew(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error) {
	subscription, err := s.repo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if subscription.Status != enums.SubscriptionActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only active subscriptions renew")
	}

	newStart := subscription.CurrentPeriodEnd
	newEnd := newStart.AddDate(0, 1, 0)

	err = s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.AdvancePeriod(tx, subscription.ID, subscription.CurrentPeriodEnd, newStart, newEnd)
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription period changed concurrently")
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionRenewed,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   subscription.ID,
			Version:       1,
			DedupeKey:     fmt.Sprintf("subscription_renewed:%s:%d", subscription.ID, newStart.Unix()),
			Data: payloads.SubscriptionRenewedEvent{
				SubscriptionID: subscription.ID,
				PlanID:         subscription.PlanID,
				CustomerID:     subscription.CustomerID,
				PeriodStart:    newStart,
				PeriodEnd:      newEnd,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	subscription.CurrentPeriodStart = newStart
	subscription.CurrentPeriodEnd = newEnd
	return subscription, nil
}

// Cancel ends the subscription. Customers cancel their own; establishment
// actors cancel any of theirs. Already-reserved usage stays consumed.
func (s *Service) Cancel(ctx context.Context, subscriptionID uuid.UUID, actor Actor) (*models.Subscription, error) {
	subscription, err := s.repo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if actor.Role == enums.RoleCustomer && subscription.CustomerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another customer")
	}

	now := time.Now()
	err = s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.SetStatus(tx, subscription.ID, enums.SubscriptionActive, enums.SubscriptionCancelled,
			map[string]any{"cancelled_at": now})
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not active")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	subscription.Status = enums.SubscriptionCancelled
	subscription.CancelledAt = &now
	return subscription, nil
}

// Get returns one subscription, gated to its customer or establishment staff.
func (s *Service) Get(ctx context.Context, subscriptionID uuid.UUID, actor Actor) (*models.Subscription, error) {
	subscription, err := s.repo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if actor.Role == enums.RoleCustomer && subscription.CustomerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another customer")
	}
	return subscription, nil
}

// ListForCustomer returns the customer's own subscriptions.
func (s *Service) ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Subscription, error) {
	return s.repo.ListForCustomer(ctx, customerID)
}
