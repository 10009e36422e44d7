package usage

import (
	"time"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// PeriodStart returns the local-midnight boundary of the period containing
// at, computed in the establishment's zone. Weekly periods are Monday
// aligned; monthly periods are calendar months.
func PeriodStart(granularity enums.PeriodGranularity, at time.Time, loc *time.Location) time.Time {
	local := at.In(loc)
	switch granularity {
	case enums.PeriodWeekly:
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		daysSinceMonday := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -daysSinceMonday)
	case enums.PeriodMonthly:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	}
	// Unknown granularities are rejected at plan validation; collapsing to
	// a day here keeps the zero path deterministic.
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// PeriodEnd returns the exclusive end boundary for the period starting at
// start.
func PeriodEnd(granularity enums.PeriodGranularity, start time.Time) time.Time {
	if granularity == enums.PeriodMonthly {
		return start.AddDate(0, 1, 0)
	}
	return start.AddDate(0, 0, 7)
}

// DayStart returns local midnight of the day containing at.
func DayStart(at time.Time, loc *time.Location) time.Time {
	local := at.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
