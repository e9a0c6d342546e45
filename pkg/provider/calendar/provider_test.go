package calendar

import (
	"context"
	"testing"
	"time"
)

var denver = func() *time.Location {
	loc, err := time.LoadLocation("America/Denver")
	if err != nil {
		panic(err)
	}
	return loc
}()

func testHours() BusinessHours {
	return BusinessHours{Location: denver, StartHour: 12, EndHour: 16}
}

// day returns local midnight for an ISO date, failing the test on bad input.
func day(t *testing.T, iso string) time.Time {
	t.Helper()
	d, err := ParseISODate(iso, denver)
	if err != nil {
		t.Fatalf("ParseISODate(%q): %v", iso, err)
	}
	return d
}

// TestSlotsForDay_EmptyCalendar: a free weekday yields the full 12:00-16:00
// grid of eight 30-minute slots.
func TestSlotsForDay_EmptyCalendar(t *testing.T) {
	t.Parallel()

	// 2025-10-16 is a Thursday.
	slots := SlotsForDay(day(t, "2025-10-16"), testHours(), nil)
	if len(slots) != 8 {
		t.Fatalf("got %d slots, want 8", len(slots))
	}
	if slots[0].Start != "12:00" || slots[0].End != "12:30" {
		t.Errorf("first slot = %+v", slots[0])
	}
	if slots[7].Start != "15:30" || slots[7].End != "16:00" {
		t.Errorf("last slot = %+v", slots[7])
	}
	if slots[4].Display != "2:00 PM" {
		t.Errorf("14:00 display = %q, want 2:00 PM", slots[4].Display)
	}
}

// TestSlotsForDay_BusyOverlap: an event removes exactly the slots it touches.
func TestSlotsForDay_BusyOverlap(t *testing.T) {
	t.Parallel()

	d := day(t, "2025-10-16")
	busy := []Interval{
		// 13:15-14:15 knocks out the 13:00, 13:30 and 14:00 slots.
		{Start: d.Add(13*time.Hour + 15*time.Minute), End: d.Add(14*time.Hour + 15*time.Minute)},
	}
	slots := SlotsForDay(d, testHours(), busy)
	if len(slots) != 5 {
		t.Fatalf("got %d slots, want 5", len(slots))
	}
	for _, s := range slots {
		switch s.Start {
		case "13:00", "13:30", "14:00":
			t.Errorf("slot %s should be blocked", s.Start)
		}
	}
}

// TestSlotsForDay_BackToBackBoundary: an event ending exactly at a slot start
// does not block that slot.
func TestSlotsForDay_BackToBackBoundary(t *testing.T) {
	t.Parallel()

	d := day(t, "2025-10-16")
	busy := []Interval{
		{Start: d.Add(12 * time.Hour), End: d.Add(12*time.Hour + 30*time.Minute)},
	}
	slots := SlotsForDay(d, testHours(), busy)
	if len(slots) != 7 {
		t.Fatalf("got %d slots, want 7", len(slots))
	}
	if slots[0].Start != "12:30" {
		t.Errorf("first free slot = %s, want 12:30", slots[0].Start)
	}
}

// TestSlotsForDay_Weekend: Saturdays and Sundays have no slots.
func TestSlotsForDay_Weekend(t *testing.T) {
	t.Parallel()

	// 2025-10-18 is a Saturday.
	if slots := SlotsForDay(day(t, "2025-10-18"), testHours(), nil); slots != nil {
		t.Errorf("saturday slots = %v, want nil", slots)
	}
}

// TestSlotsForDay_FullDayEvent: a date-only event blocks everything.
func TestSlotsForDay_FullDayEvent(t *testing.T) {
	t.Parallel()

	d := day(t, "2025-10-16")
	busy := []Interval{{Start: d, End: d.AddDate(0, 0, 1)}}
	if slots := SlotsForDay(d, testHours(), busy); len(slots) != 0 {
		t.Errorf("got %d slots, want 0", len(slots))
	}
}

// TestFindNext_SkipsToFirstOpenDay: fully booked days are walked past and
// weekends do not consume the business-day budget.
func TestFindNext_SkipsToFirstOpenDay(t *testing.T) {
	t.Parallel()

	// 2025-10-17 is a Friday; Mon 2025-10-20 is the next business day.
	availability := map[string][]Slot{
		"2025-10-17": {},
		"2025-10-20": {{Start: "12:00", End: "12:30", Display: "12:00 PM"}},
	}
	var queried []string
	find := func(_ context.Context, date string) (*DaySlots, error) {
		queried = append(queried, date)
		return &DaySlots{Date: date, Slots: availability[date]}, nil
	}

	ds, err := FindNext(context.Background(), "2025-10-17", 14, denver, find)
	if err != nil {
		t.Fatalf("FindNext: %v", err)
	}
	if ds.Date != "2025-10-20" {
		t.Errorf("date = %s, want 2025-10-20", ds.Date)
	}
	if len(queried) != 2 {
		t.Errorf("queried days = %v, want friday then monday", queried)
	}
}

// TestFindNext_NothingFree: an exhausted walk returns the last day with no
// slots rather than an error.
func TestFindNext_NothingFree(t *testing.T) {
	t.Parallel()

	calls := 0
	find := func(_ context.Context, date string) (*DaySlots, error) {
		calls++
		return &DaySlots{Date: date}, nil
	}

	ds, err := FindNext(context.Background(), "2025-10-13", 14, denver, find)
	if err != nil {
		t.Fatalf("FindNext: %v", err)
	}
	if len(ds.Slots) != 0 {
		t.Errorf("slots = %v, want none", ds.Slots)
	}
	if calls != 14 {
		t.Errorf("driver calls = %d, want 14 (one per business day)", calls)
	}
}

// TestFindNext_InvalidDate: malformed dates fail fast.
func TestFindNext_InvalidDate(t *testing.T) {
	t.Parallel()

	_, err := FindNext(context.Background(), "10/16/2025", 14, denver,
		func(context.Context, string) (*DaySlots, error) {
			t.Fatal("find should not be called")
			return nil, nil
		})
	if err == nil {
		t.Fatal("expected error for non-ISO date")
	}
}

// TestFormatDay covers the spoken date format.
func TestFormatDay(t *testing.T) {
	t.Parallel()

	got := FormatDay(day(t, "2025-10-16"))
	if got != "Thursday, October 16, 2025" {
		t.Errorf("FormatDay = %q", got)
	}
}
