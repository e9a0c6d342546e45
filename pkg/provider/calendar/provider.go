// Package calendar defines the Provider interface for appointment calendar
// backends, plus the slot arithmetic shared by all implementations.
//
// A calendar provider answers two questions for the booking flow: which
// 30-minute slots inside a business-hours window are free on a given day, and
// what is the next business day with openings. It also creates the confirmed
// event. Implementations must be safe for concurrent use; the gateway shares
// one provider per business across calls.
package calendar

import (
	"context"
	"fmt"
	"time"
)

// DefaultSlotDuration is the appointment slot length used when a
// BusinessHours leaves SlotDuration zero.
const DefaultSlotDuration = 30 * time.Minute

// BusinessHours is the bookable window, anchored to a single business
// timezone. Slots are only offered Monday through Friday.
type BusinessHours struct {
	// Location is the business timezone. Must not be nil.
	Location *time.Location

	// StartHour and EndHour bound the window in 24h local time
	// (e.g., 12 and 16 for a 12:00-16:00 window).
	StartHour int
	EndHour   int

	// SlotDuration is the slot length. Zero means DefaultSlotDuration.
	SlotDuration time.Duration
}

func (h BusinessHours) slotDuration() time.Duration {
	if h.SlotDuration <= 0 {
		return DefaultSlotDuration
	}
	return h.SlotDuration
}

// Slot is one bookable interval on a specific day.
type Slot struct {
	// Start and End are 24h local times ("14:00", "14:30").
	Start string
	End   string

	// Display is the spoken-friendly form of Start ("2:00 PM").
	Display string
}

// DaySlots is the availability answer for one day.
type DaySlots struct {
	// Date is the queried day in ISO form (YYYY-MM-DD).
	Date string

	// FormattedDate is the spoken-friendly day ("Thursday, October 16, 2025").
	FormattedDate string

	// Slots lists the free slots in chronological order. Empty means the
	// day is fully booked or outside business days.
	Slots []Slot
}

// AppointmentRequest describes the event to create once the booking flow has
// confirmed all details.
type AppointmentRequest struct {
	Title       string
	Description string

	// Date is the ISO day (YYYY-MM-DD); Time is 24h local ("14:00").
	Date string
	Time string

	// Duration is the event length. Zero means DefaultSlotDuration.
	Duration time.Duration

	CustomerName  string
	CustomerEmail string
}

// Appointment is the created calendar event.
type Appointment struct {
	EventID   string
	EventLink string
	Start     time.Time
	End       time.Time
}

// Provider is the abstraction over an external calendar service.
type Provider interface {
	// FindAvailableSlots returns the free slots for the given ISO date.
	// A weekend or fully booked day yields an empty Slots list, not an
	// error.
	FindAvailableSlots(ctx context.Context, date string) (*DaySlots, error)

	// FindNextAvailableSlot walks forward from the given ISO date over up
	// to maxDays business days and returns the first day with openings.
	// Returns an empty DaySlots (nil Slots) when nothing is free in range.
	FindNextAvailableSlot(ctx context.Context, date string, maxDays int) (*DaySlots, error)

	// CreateAppointment creates the event and returns its identifiers.
	CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error)
}

// Interval is a busy period fetched from the backing calendar.
type Interval struct {
	Start time.Time
	End   time.Time
}

// ParseISODate parses a YYYY-MM-DD string as midnight in loc.
func ParseISODate(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid date %q: %w", date, err)
	}
	return t, nil
}

// IsBusinessDay reports whether t falls on Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// FormatDay renders a day for speech ("Thursday, October 16, 2025").
func FormatDay(t time.Time) string {
	return t.Format("Monday, January 2, 2006")
}

// FormatClock renders a local time for speech ("2:00 PM").
func FormatClock(t time.Time) string {
	return t.Format("3:04 PM")
}

// SlotsForDay enumerates the free slots on day (midnight in the business
// timezone) given the busy intervals fetched from the backing calendar. A
// slot is free iff it overlaps no busy interval. Weekend days yield nil.
func SlotsForDay(day time.Time, hours BusinessHours, busy []Interval) []Slot {
	if !IsBusinessDay(day) {
		return nil
	}

	dur := hours.slotDuration()
	windowStart := time.Date(day.Year(), day.Month(), day.Day(), hours.StartHour, 0, 0, 0, hours.Location)
	windowEnd := time.Date(day.Year(), day.Month(), day.Day(), hours.EndHour, 0, 0, 0, hours.Location)

	var slots []Slot
	for start := windowStart; !start.Add(dur).After(windowEnd); start = start.Add(dur) {
		end := start.Add(dur)
		if overlapsAny(start, end, busy) {
			continue
		}
		slots = append(slots, Slot{
			Start:   start.Format("15:04"),
			End:     end.Format("15:04"),
			Display: FormatClock(start),
		})
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

// FindNext implements the forward walk shared by all providers: starting at
// date, try up to maxDays business days (weekends do not count against the
// budget) and return the first day find reports openings for. When nothing
// is free in range, the last examined day is returned with nil Slots.
func FindNext(ctx context.Context, date string, maxDays int, loc *time.Location,
	find func(ctx context.Context, date string) (*DaySlots, error)) (*DaySlots, error) {

	day, err := ParseISODate(date, loc)
	if err != nil {
		return nil, err
	}

	var last *DaySlots
	for tried := 0; tried < maxDays; {
		if !IsBusinessDay(day) {
			day = day.AddDate(0, 0, 1)
			continue
		}

		ds, err := find(ctx, day.Format("2006-01-02"))
		if err != nil {
			return nil, err
		}
		if len(ds.Slots) > 0 {
			return ds, nil
		}

		last = ds
		tried++
		day = day.AddDate(0, 0, 1)
	}

	if last == nil {
		last = &DaySlots{Date: date}
	}
	return last, nil
}
