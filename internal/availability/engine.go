package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/internal/calendar"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
)

// Query selects the (establishment, staff, service) triple and date range to
// compute bookable slots for. When several staff can perform the service the
// caller queries per staff member; staff selection is not this engine's
// concern.
type Query struct {
	EstablishmentID uuid.UUID
	StaffID         uuid.UUID
	ServiceID       uuid.UUID
	From            time.Time
	To              time.Time
}

// Repository is the data surface the engine reads from.
type Repository interface {
	Establishment(ctx context.Context, id uuid.UUID) (*models.Establishment, error)
	Staff(ctx context.Context, id uuid.UUID) (*models.StaffMember, error)
	Service(ctx context.Context, id uuid.UUID) (*models.Service, error)
	Blocks(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.StaffBlock, error)
	Appointments(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Appointment, error)
}

// Engine computes bookable slot starts. Its output is advisory: the booking
// service re-checks the overlap invariant at commit time, because many
// clients read availability speculatively.
type Engine struct {
	repo        Repository
	cache       *Cache
	granularity time.Duration
}

// NewEngine builds the engine. cache may be nil.
func NewEngine(repo Repository, cache *Cache, granularity time.Duration) (*Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("availability repository required")
	}
	if granularity <= 0 {
		return nil, fmt.Errorf("slot granularity must be positive")
	}
	return &Engine{repo: repo, cache: cache, granularity: granularity}, nil
}

// Slots returns every bookable start instant in [q.From, q.To), ordered
// ascending. The result is finite and restartable; callers page it.
func (e *Engine) Slots(ctx context.Context, q Query) ([]time.Time, error) {
	if !q.To.After(q.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date range must not be empty")
	}

	establishment, staff, loc, err := e.loadSchedulingContext(ctx, q.EstablishmentID, q.StaffID)
	if err != nil {
		return nil, err
	}
	service, err := e.repo.Service(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}
	if !service.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service is not bookable")
	}
	if service.EstablishmentID != establishment.ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service does not belong to establishment")
	}
	duration := time.Duration(service.DurationMinutes) * time.Minute

	windows, err := e.effectiveWindows(ctx, establishment, staff, loc, q.From, q.To)
	if err != nil {
		return nil, err
	}

	appointments, err := e.repo.Appointments(ctx, staff.ID, q.From.Add(-duration), q.To.Add(duration))
	if err != nil {
		return nil, err
	}

	var slots []time.Time
	for _, window := range windows {
		for start := window.Start; !start.Add(duration).After(window.End); start = start.Add(e.granularity) {
			if start.Before(q.From) || !start.Before(q.To) {
				continue
			}
			if overlapsAny(appointments, start, start.Add(duration)) {
				continue
			}
			slots = append(slots, start)
		}
	}
	return slots, nil
}

// SlotsCached serves Slots through the day-level cache when one is wired.
// Only whole-day queries are cacheable; anything else falls through.
func (e *Engine) SlotsCached(ctx context.Context, q Query) ([]time.Time, error) {
	if e.cache == nil {
		return e.Slots(ctx, q)
	}
	if q.To.Sub(q.From) != 24*time.Hour {
		return e.Slots(ctx, q)
	}
	day := q.From.Format("2006-01-02")
	if cached, ok := e.cache.Get(ctx, q.StaffID, q.ServiceID, day); ok {
		return cached, nil
	}
	slots, err := e.Slots(ctx, q)
	if err != nil {
		return nil, err
	}
	e.cache.Put(ctx, q.StaffID, q.ServiceID, day, slots)
	return slots, nil
}

// ValidateBookable checks that [start, start+duration) fits entirely inside
// an effective window. It deliberately ignores existing appointments; the
// authoritative overlap check happens inside the booking transaction.
func (e *Engine) ValidateBookable(ctx context.Context, establishmentID, staffID uuid.UUID, start time.Time, duration time.Duration) error {
	establishment, staff, loc, err := e.loadSchedulingContext(ctx, establishmentID, staffID)
	if err != nil {
		return err
	}

	dayStart := truncateToDay(start, loc)
	windows, err := e.effectiveWindows(ctx, establishment, staff, loc, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	end := start.Add(duration)
	for _, window := range windows {
		if start.Before(window.Start) || end.After(window.End) {
			continue
		}
		if start.Sub(window.Start)%e.granularity != 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "requested time is off the slot grid")
		}
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "requested time is outside the bookable window").
		WithDetails(map[string]any{"scheduled_at": start.Format(time.RFC3339)})
}

func (e *Engine) loadSchedulingContext(ctx context.Context, establishmentID, staffID uuid.UUID) (*models.Establishment, *models.StaffMember, *time.Location, error) {
	establishment, err := e.repo.Establishment(ctx, establishmentID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !establishment.Active {
		return nil, nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "establishment is not operating")
	}
	staff, err := e.repo.Staff(ctx, staffID)
	if err != nil {
		return nil, nil, nil, err
	}
	if staff.EstablishmentID != establishment.ID {
		return nil, nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "staff member does not belong to establishment")
	}
	if !staff.Active {
		return nil, nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "staff member is not accepting bookings")
	}
	loc, err := time.LoadLocation(establishment.Timezone)
	if err != nil {
		return nil, nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "establishment has an invalid time zone")
	}
	return establishment, staff, loc, nil
}

func (e *Engine) effectiveWindows(ctx context.Context, establishment *models.Establishment, staff *models.StaffMember, loc *time.Location, from, to time.Time) ([]calendar.Window, error) {
	establishmentHours, err := calendar.ParseWeekly(establishment.BusinessHours)
	if err != nil {
		return nil, err
	}
	staffHours, err := calendar.ParseWeekly(staff.WorkSchedule)
	if err != nil {
		return nil, err
	}
	effective := calendar.Effective(establishmentHours, staffHours)

	staffBlocks, err := e.repo.Blocks(ctx, staff.ID, from, to)
	if err != nil {
		return nil, err
	}
	blocks := make([]calendar.Block, 0, len(staffBlocks))
	for _, b := range staffBlocks {
		blocks = append(blocks, calendar.Block{Start: b.StartAt, End: b.EndAt})
	}

	var windows []calendar.Window
	for day := truncateToDay(from, loc); day.Before(to); day = day.AddDate(0, 0, 1) {
		windows = append(windows, effective.DayWindows(day.Year(), day.Month(), day.Day(), loc)...)
	}
	return calendar.SubtractBlocks(windows, blocks), nil
}

func overlapsAny(appointments []models.Appointment, start, end time.Time) bool {
	for _, appointment := range appointments {
		if appointment.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func truncateToDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
