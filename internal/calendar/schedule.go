package calendar

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
)

// TimeOfDay is minutes since local midnight.
type TimeOfDay int

// MinutesPerDay bounds a TimeOfDay; intervals never cross midnight.
const MinutesPerDay = 24 * 60

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// ParseTimeOfDay reads an "HH:MM" clock string.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", value, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", value)
	}
	return TimeOfDay(h*60 + m), nil
}

// Interval is a half-open [Start, End) window within a single day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Contains reports whether t falls inside the half-open interval.
func (i Interval) Contains(t TimeOfDay) bool {
	return t >= i.Start && t < i.End
}

// Intersect returns the overlap of two intervals and whether it is non-empty.
func (i Interval) Intersect(other Interval) (Interval, bool) {
	start := i.Start
	if other.Start > start {
		start = other.Start
	}
	end := i.End
	if other.End < end {
		end = other.End
	}
	if start >= end {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

func (i Interval) validate() error {
	if i.Start >= i.End {
		return fmt.Errorf("interval start %s must precede end %s", i.Start, i.End)
	}
	if i.Start < 0 || i.End > MinutesPerDay {
		return fmt.Errorf("interval %s-%s exceeds the day", i.Start, i.End)
	}
	return nil
}

// WeeklySchedule maps weekdays to ordered, non-overlapping open intervals.
// A weekday missing from the map means "no constraint declared for that day";
// whether that reads as closed or as fallback is the caller's policy.
type WeeklySchedule map[time.Weekday][]Interval

var weekdayKeys = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

type hoursSpan struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// ParseWeekly reads the JSONB weekday map stored on establishments and staff
// members. Each weekday value is either a single {"open","close"} object or
// an ordered array of them.
func ParseWeekly(raw json.RawMessage) (WeeklySchedule, error) {
	if len(raw) == 0 {
		return WeeklySchedule{}, nil
	}
	var byDay map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byDay); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid schedule document")
	}

	schedule := WeeklySchedule{}
	for key, value := range byDay {
		weekday, ok := weekdayKeys[key]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown weekday key %q", key))
		}
		spans, err := decodeSpans(value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid hours for %s", key))
		}
		if len(spans) == 0 {
			continue
		}
		intervals := make([]Interval, 0, len(spans))
		for _, span := range spans {
			start, err := ParseTimeOfDay(span.Open)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid open time for %s", key))
			}
			end, err := ParseTimeOfDay(span.Close)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid close time for %s", key))
			}
			intervals = append(intervals, Interval{Start: start, End: end})
		}
		schedule[weekday] = intervals
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return schedule, nil
}

func decodeSpans(raw json.RawMessage) ([]hoursSpan, error) {
	var spans []hoursSpan
	if err := json.Unmarshal(raw, &spans); err == nil {
		return spans, nil
	}
	var single hoursSpan
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	if single.Open == "" && single.Close == "" {
		return nil, nil
	}
	return []hoursSpan{single}, nil
}

// Validate checks ordering, same-day bounds and non-overlap per weekday.
func (s WeeklySchedule) Validate() error {
	for weekday, intervals := range s {
		for idx, interval := range intervals {
			if err := interval.validate(); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("schedule for %s", weekday))
			}
			if idx > 0 && intervals[idx-1].End > interval.Start {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("schedule for %s has overlapping or unordered intervals", weekday))
			}
		}
	}
	return nil
}

// IsOpenAt converts the instant to the schedule's local weekday and checks
// interval containment.
func (s WeeklySchedule) IsOpenAt(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	minutes := TimeOfDay(local.Hour()*60 + local.Minute())
	for _, interval := range s[local.Weekday()] {
		if interval.Contains(minutes) {
			return true
		}
	}
	return false
}

// Intersect combines two schedules day by day. Days present in only one
// schedule are dropped; use Effective for the staff-fallback policy.
func Intersect(a, b WeeklySchedule) WeeklySchedule {
	out := WeeklySchedule{}
	for weekday, left := range a {
		right, ok := b[weekday]
		if !ok {
			continue
		}
		merged := intersectIntervals(left, right)
		if len(merged) > 0 {
			out[weekday] = merged
		}
	}
	return out
}

// Effective combines establishment hours with a staff schedule. A weekday the
// staff schedule does not declare falls back to the establishment hours
// unchanged; this is the documented business rule, not an error.
func Effective(establishment, staff WeeklySchedule) WeeklySchedule {
	out := WeeklySchedule{}
	for weekday, estIntervals := range establishment {
		staffIntervals, declared := staff[weekday]
		if !declared || len(staffIntervals) == 0 {
			out[weekday] = append([]Interval(nil), estIntervals...)
			continue
		}
		merged := intersectIntervals(estIntervals, staffIntervals)
		if len(merged) > 0 {
			out[weekday] = merged
		}
	}
	return out
}

func intersectIntervals(a, b []Interval) []Interval {
	var out []Interval
	for _, left := range a {
		for _, right := range b {
			if overlap, ok := left.Intersect(right); ok {
				out = append(out, overlap)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
