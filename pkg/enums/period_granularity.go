package enums

import "fmt"

// PeriodGranularity selects the window a plan item cap is measured against.
// A plan item declares exactly one granularity; weekly windows are
// Monday-aligned and monthly windows are calendar months, both computed in
// the establishment's time zone.
type PeriodGranularity string

const (
	PeriodWeekly  PeriodGranularity = "weekly"
	PeriodMonthly PeriodGranularity = "monthly"
)

// String implements fmt.Stringer.
func (g PeriodGranularity) String() string {
	return string(g)
}

// IsValid reports whether the value is a known PeriodGranularity.
func (g PeriodGranularity) IsValid() bool {
	return g == PeriodWeekly || g == PeriodMonthly
}

// ParsePeriodGranularity converts raw input into a PeriodGranularity.
func ParsePeriodGranularity(value string) (PeriodGranularity, error) {
	switch PeriodGranularity(value) {
	case PeriodWeekly:
		return PeriodWeekly, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	}
	return "", fmt.Errorf("invalid period granularity %q", value)
}
