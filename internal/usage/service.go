package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
)

// ReserveInput describes one allowance consumption.
type ReserveInput struct {
	Subscription *models.Subscription
	Item         *models.PlanItem

	// At is the instant the use applies to: the appointment's scheduled
	// time when reserving at booking, now when consuming at check-in.
	At       time.Time
	Location *time.Location

	// DailyGuard additionally rejects a second use on the same local day.
	// Check-in consumption sets it; advance bookings enforce the day rule
	// against existing appointments instead, since they arrive out of
	// chronological order.
	DailyGuard bool
}

// Balance reports the current period state of one plan item.
type Balance struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Used        int
	Cap         int
}

// Remaining returns how many uses are left in the period.
func (b Balance) Remaining() int {
	if b.Used >= b.Cap {
		return 0
	}
	return b.Cap - b.Used
}

// Service is the metering engine. Reservations and releases run inside the
// caller's transaction; reads go through the context-bound connection.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// Reserve consumes one use of the plan item for the period containing
// input.At. It returns the funded record so the caller can remember which
// row a compensating release must target.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, input ReserveInput) (*models.UsageRecord, error) {
	if input.Subscription == nil || input.Item == nil || input.Location == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "incomplete usage reservation input")
	}
	if !input.Subscription.ActiveAt(input.At) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription is not active for the requested time")
	}
	if input.Item.QuantityPerPeriod <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan item grants no uses")
	}

	periodStart := PeriodStart(input.Item.PeriodGranularity, input.At, input.Location)
	record, err := s.repo.FindOrCreate(tx, input.Subscription.ID, input.Item.ID, periodStart)
	if err != nil {
		return nil, err
	}
	if record.Count < 0 {
		return nil, s.corrupt(ctx, record)
	}

	var dayGuard *time.Time
	if input.DailyGuard {
		day := DayStart(input.At, input.Location)
		dayGuard = &day
	}

	applied, err := s.repo.Increment(tx, record.ID, input.Item.QuantityPerPeriod, input.At, dayGuard)
	if err != nil {
		return nil, err
	}
	if applied {
		record.Count++
		at := input.At
		record.LastUseDate = &at
		return record, nil
	}

	// The guarded update did not land; reload to tell the refusal reasons
	// apart.
	record, err = s.repo.Get(tx, record.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case record.Count < 0:
		return nil, s.corrupt(ctx, record)
	case record.Count >= input.Item.QuantityPerPeriod:
		return nil, pkgerrors.New(pkgerrors.CodeCapacityExceeded, "plan allowance for this period is used up").
			WithDetails(map[string]any{
				"used":         record.Count,
				"cap":          input.Item.QuantityPerPeriod,
				"period_start": periodStart.Format(time.RFC3339),
			})
	default:
		return nil, pkgerrors.New(pkgerrors.CodeDailyLimit, "plan allowance already used today")
	}
}

// Release returns one use to the period record, compensating a reservation
// whose appointment was cancelled in time. The appointment's record reference
// is the single-shot release token: the caller clears it in the same
// transaction, so a repeated cancellation never reaches this call. A
// zero-count decrement can therefore only mean corrupted accounting, not a
// double release.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) error {
	applied, err := s.repo.Decrement(tx, recordID)
	if err != nil {
		return err
	}
	if !applied {
		record, getErr := s.repo.Get(tx, recordID)
		if getErr == nil {
			return s.corrupt(ctx, record)
		}
		return pkgerrors.New(pkgerrors.CodeInternal, "usage release without matching reservation")
	}
	return nil
}

// BalanceFor reports the plan item's state for the period containing at. A
// period with no row yet reads as zero used.
func (s *Service) BalanceFor(ctx context.Context, subscription *models.Subscription, item *models.PlanItem, loc *time.Location, at time.Time) (Balance, error) {
	periodStart := PeriodStart(item.PeriodGranularity, at, loc)
	balance := Balance{
		PeriodStart: periodStart,
		PeriodEnd:   PeriodEnd(item.PeriodGranularity, periodStart),
		Cap:         item.QuantityPerPeriod,
	}
	record, err := s.repo.Find(ctx, subscription.ID, item.ID, periodStart)
	if err != nil {
		return Balance{}, err
	}
	if record != nil {
		balance.Used = record.Count
	}
	return balance, nil
}

// History exposes the subscription's past period rows for reporting.
func (s *Service) History(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	return s.repo.History(ctx, subscriptionID, limit)
}

// UsedToday reports whether the record already funded a use on the local day
// containing at.
func UsedToday(record *models.UsageRecord, loc *time.Location, at time.Time) bool {
	if record == nil || record.LastUseDate == nil {
		return false
	}
	return DayStart(*record.LastUseDate, loc).Equal(DayStart(at, loc))
}

func (s *Service) corrupt(ctx context.Context, record *models.UsageRecord) error {
	s.logg.Error(ctx, "usage record count is negative", fmt.Errorf("record %s count %d", record.ID, record.Count))
	return pkgerrors.New(pkgerrors.CodeInternal, "usage accounting is inconsistent")
}
