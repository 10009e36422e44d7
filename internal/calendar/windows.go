package calendar

import (
	"time"
)

// Window is an absolute half-open [Start, End) availability span.
type Window struct {
	Start time.Time
	End   time.Time
}

// Block is a one-off absolute unavailability span subtracted from windows.
type Block struct {
	Start time.Time
	End   time.Time
}

// DayWindows materializes the schedule's intervals for a calendar day in the
// given location as absolute windows.
func (s WeeklySchedule) DayWindows(year int, month time.Month, day int, loc *time.Location) []Window {
	midnight := time.Date(year, month, day, 0, 0, 0, 0, loc)
	intervals := s[midnight.Weekday()]
	if len(intervals) == 0 {
		return nil
	}
	windows := make([]Window, 0, len(intervals))
	for _, interval := range intervals {
		windows = append(windows, Window{
			Start: midnight.Add(time.Duration(interval.Start) * time.Minute),
			End:   midnight.Add(time.Duration(interval.End) * time.Minute),
		})
	}
	return windows
}

// SubtractBlocks removes blocked spans from the windows, splitting windows
// where a block lands in the middle.
func SubtractBlocks(windows []Window, blocks []Block) []Window {
	out := windows
	for _, block := range blocks {
		if !block.End.After(block.Start) {
			continue
		}
		var next []Window
		for _, window := range out {
			next = append(next, subtractOne(window, block)...)
		}
		out = next
	}
	return out
}

func subtractOne(window Window, block Block) []Window {
	// No overlap
	if !block.Start.Before(window.End) || !window.Start.Before(block.End) {
		return []Window{window}
	}
	var out []Window
	if block.Start.After(window.Start) {
		out = append(out, Window{Start: window.Start, End: block.Start})
	}
	if block.End.Before(window.End) {
		out = append(out, Window{Start: block.End, End: window.End})
	}
	return out
}
