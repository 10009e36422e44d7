package calendar

import (
	"encoding/json"
	"testing"
	"time"

	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
)

func TestParseWeekly(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"mon": [{"open": "09:00", "close": "12:00"}, {"open": "13:00", "close": "18:00"}],
		"sat": {"open": "10:00", "close": "14:00"}
	}`)

	schedule, err := ParseWeekly(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := len(schedule[time.Monday]); got != 2 {
		t.Fatalf("expected 2 monday intervals, got %d", got)
	}
	if schedule[time.Monday][0].Start != 9*60 || schedule[time.Monday][1].End != 18*60 {
		t.Fatalf("unexpected monday intervals: %+v", schedule[time.Monday])
	}
	if got := len(schedule[time.Saturday]); got != 1 {
		t.Fatalf("expected legacy single-object day to parse, got %d intervals", got)
	}
	if _, ok := schedule[time.Sunday]; ok {
		t.Fatal("sunday should be absent")
	}
}

func TestParseWeeklyRejectsInvertedInterval(t *testing.T) {
	t.Parallel()

	_, err := ParseWeekly(json.RawMessage(`{"mon": [{"open": "18:00", "close": "09:00"}]}`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseWeeklyRejectsOverlap(t *testing.T) {
	t.Parallel()

	_, err := ParseWeekly(json.RawMessage(`{"mon": [
		{"open": "09:00", "close": "13:00"},
		{"open": "12:00", "close": "18:00"}
	]}`))
	if err == nil {
		t.Fatal("expected validation error for overlapping intervals")
	}
}

func TestIsOpenAt(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	schedule := WeeklySchedule{
		time.Monday: {{Start: 9 * 60, End: 18 * 60}},
	}

	monday := time.Date(2025, time.March, 10, 9, 0, 0, 0, loc)
	if !schedule.IsOpenAt(monday, loc) {
		t.Fatal("expected open at opening instant")
	}
	if schedule.IsOpenAt(monday.Add(9*time.Hour), loc) {
		t.Fatal("closing instant is exclusive")
	}
	if schedule.IsOpenAt(monday.AddDate(0, 0, 1), loc) {
		t.Fatal("tuesday is closed")
	}
}

func TestEffectiveFallsBackWhenStaffDayAbsent(t *testing.T) {
	t.Parallel()

	establishment := WeeklySchedule{
		time.Monday:  {{Start: 9 * 60, End: 18 * 60}},
		time.Tuesday: {{Start: 9 * 60, End: 18 * 60}},
	}
	staff := WeeklySchedule{
		time.Tuesday: {{Start: 12 * 60, End: 20 * 60}},
	}

	effective := Effective(establishment, staff)

	// Monday: no staff constraint declared, establishment hours pass through.
	if got := effective[time.Monday]; len(got) != 1 || got[0].Start != 9*60 || got[0].End != 18*60 {
		t.Fatalf("unexpected monday fallback: %+v", got)
	}
	// Tuesday: intersection clips to 12:00-18:00.
	if got := effective[time.Tuesday]; len(got) != 1 || got[0].Start != 12*60 || got[0].End != 18*60 {
		t.Fatalf("unexpected tuesday intersection: %+v", got)
	}
}

func TestIntersectDropsDaysMissingFromEither(t *testing.T) {
	t.Parallel()

	a := WeeklySchedule{time.Monday: {{Start: 9 * 60, End: 12 * 60}}}
	b := WeeklySchedule{time.Tuesday: {{Start: 9 * 60, End: 12 * 60}}}

	if got := Intersect(a, b); len(got) != 0 {
		t.Fatalf("expected empty intersection, got %+v", got)
	}
}

func TestSubtractBlocksSplitsWindow(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	windows := []Window{{Start: day.Add(9 * time.Hour), End: day.Add(18 * time.Hour)}}
	blocks := []Block{{Start: day.Add(12 * time.Hour), End: day.Add(13 * time.Hour)}}

	got := SubtractBlocks(windows, blocks)
	if len(got) != 2 {
		t.Fatalf("expected window split into 2, got %d", len(got))
	}
	if !got[0].End.Equal(day.Add(12 * time.Hour)) || !got[1].Start.Equal(day.Add(13 * time.Hour)) {
		t.Fatalf("unexpected split: %+v", got)
	}
}

func TestSubtractBlocksSwallowsWindow(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	windows := []Window{{Start: day.Add(9 * time.Hour), End: day.Add(12 * time.Hour)}}
	blocks := []Block{{Start: day.Add(8 * time.Hour), End: day.Add(13 * time.Hour)}}

	if got := SubtractBlocks(windows, blocks); len(got) != 0 {
		t.Fatalf("expected fully blocked day, got %+v", got)
	}
}
