package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
)

const (
	defaultRenewalLimit = 250
)

// SubscriptionRenewalJobParams configures the period rollover sweep.
type SubscriptionRenewalJobParams struct {
	Logger  *logger.Logger
	Lister  dueSubscriptionLister
	Renewer subscriptionRenewer
	Limit   int
	Now     func() time.Time
}

type dueSubscriptionLister interface {
	ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
}

type subscriptionRenewer interface {
	Renew(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error)
}

// NewSubscriptionRenewalJob builds the sweep that rolls lapsed subscription
// periods forward so usage allowances reset on time even when no customer
// action triggers the rollover.
func NewSubscriptionRenewalJob(params SubscriptionRenewalJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lister == nil {
		return nil, fmt.Errorf("subscription lister required")
	}
	if params.Renewer == nil {
		return nil, fmt.Errorf("subscription renewer required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultRenewalLimit
	}
	return &subscriptionRenewalJob{
		logg:    params.Logger,
		lister:  params.Lister,
		renewer: params.Renewer,
		limit:   limit,
		now:     now,
	}, nil
}

type subscriptionRenewalJob struct {
	logg    *logger.Logger
	lister  dueSubscriptionLister
	renewer subscriptionRenewer
	limit   int
	now     func() time.Time
}

func (j *subscriptionRenewalJob) Name() string { return "subscription-renewal" }

func (j *subscriptionRenewalJob) Run(ctx context.Context) error {
	due, err := j.lister.ListDueForRenewal(ctx, j.now().UTC(), j.limit)
	if err != nil {
		return fmt.Errorf("list due subscriptions: %w", err)
	}

	var errs error
	renewed := 0
	for _, subscription := range due {
		logCtx := j.logg.WithField(ctx, "subscription_id", subscription.ID.String())
		if _, err := j.renewer.Renew(logCtx, subscription.ID); err != nil {
			// Concurrent renewals or cancellations lose the race; the next
			// sweep picks up anything still due.
			j.logg.Warn(j.logg.WithField(logCtx, "error", err.Error()), "subscription renewal skipped")
			errs = multierr.Append(errs, fmt.Errorf("renew %s: %w", subscription.ID, err))
			continue
		}
		renewed++
	}

	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(due),
		"renewed":    renewed,
	})
	j.logg.Info(reportCtx, "subscription renewal sweep complete")
	return errs
}
