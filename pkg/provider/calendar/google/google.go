// Package google implements the calendar.Provider interface on the Google
// Calendar API using service-account credentials.
package google

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/voxgate-io/voxgate/pkg/provider/calendar"
)

// Compile-time assertion that Provider satisfies calendar.Provider.
var _ calendar.Provider = (*Provider)(nil)

// Provider implements calendar.Provider for Google Calendar.
type Provider struct {
	svc        *gcal.Service
	calendarID string
	hours      calendar.BusinessHours
}

// config holds optional construction settings.
type config struct {
	clientOptions []option.ClientOption
}

// Option is a functional option for Provider.
type Option func(*config)

// WithClientOptions appends raw Google API client options. Used by tests to
// point the service at a local server without authentication.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *config) {
		c.clientOptions = append(c.clientOptions, opts...)
	}
}

// New constructs a Google Calendar provider from service-account JSON
// credentials. calendarID is the target calendar ("primary" or a shared
// calendar address). hours defines the bookable window and its timezone.
func New(ctx context.Context, credentialsJSON []byte, calendarID string, hours calendar.BusinessHours, opts ...Option) (*Provider, error) {
	if calendarID == "" {
		return nil, fmt.Errorf("google calendar: calendarID must not be empty")
	}
	if hours.Location == nil {
		return nil, fmt.Errorf("google calendar: hours.Location must not be nil")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	clientOpts := cfg.clientOptions
	if len(credentialsJSON) > 0 {
		jwt, err := google.JWTConfigFromJSON(credentialsJSON, gcal.CalendarEventsScope, gcal.CalendarReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("google calendar: parse credentials: %w", err)
		}
		clientOpts = append(clientOpts, option.WithHTTPClient(jwt.Client(ctx)))
	}

	svc, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google calendar: new service: %w", err)
	}

	return &Provider{svc: svc, calendarID: calendarID, hours: hours}, nil
}

// FindAvailableSlots implements calendar.Provider. Events for the whole day
// are fetched in a single list call; slot arithmetic happens locally.
func (p *Provider) FindAvailableSlots(ctx context.Context, date string) (*calendar.DaySlots, error) {
	day, err := calendar.ParseISODate(date, p.hours.Location)
	if err != nil {
		return nil, err
	}

	busy, err := p.busyIntervals(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("google calendar: list events for %s: %w", date, err)
	}

	return &calendar.DaySlots{
		Date:          date,
		FormattedDate: calendar.FormatDay(day),
		Slots:         calendar.SlotsForDay(day, p.hours, busy),
	}, nil
}

// FindNextAvailableSlot implements calendar.Provider.
func (p *Provider) FindNextAvailableSlot(ctx context.Context, date string, maxDays int) (*calendar.DaySlots, error) {
	return calendar.FindNext(ctx, date, maxDays, p.hours.Location, p.FindAvailableSlots)
}

// CreateAppointment implements calendar.Provider.
func (p *Provider) CreateAppointment(ctx context.Context, req calendar.AppointmentRequest) (*calendar.Appointment, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Time, p.hours.Location)
	if err != nil {
		return nil, fmt.Errorf("google calendar: invalid date/time %q %q: %w", req.Date, req.Time, err)
	}
	dur := req.Duration
	if dur <= 0 {
		dur = calendar.DefaultSlotDuration
	}
	end := start.Add(dur)

	event := &gcal.Event{
		Summary:     req.Title,
		Description: req.Description,
		Start: &gcal.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: p.hours.Location.String(),
		},
		End: &gcal.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: p.hours.Location.String(),
		},
	}
	if req.CustomerEmail != "" {
		event.Attendees = []*gcal.EventAttendee{
			{Email: req.CustomerEmail, DisplayName: req.CustomerName},
		}
	}

	created, err := p.svc.Events.Insert(p.calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google calendar: insert event: %w", err)
	}

	return &calendar.Appointment{
		EventID:   created.Id,
		EventLink: created.HtmlLink,
		Start:     start,
		End:       end,
	}, nil
}

// busyIntervals fetches all events overlapping the given local day.
func (p *Provider) busyIntervals(ctx context.Context, day time.Time) ([]calendar.Interval, error) {
	dayEnd := day.AddDate(0, 0, 1)

	events, err := p.svc.Events.List(p.calendarID).
		TimeMin(day.Format(time.RFC3339)).
		TimeMax(dayEnd.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	var busy []calendar.Interval
	for _, ev := range events.Items {
		if ev.Status == "cancelled" {
			continue
		}
		iv, ok := eventInterval(ev, day, dayEnd, p.hours.Location)
		if ok {
			busy = append(busy, iv)
		}
	}
	return busy, nil
}

// eventInterval extracts the busy interval from one event. All-day events
// (date-only) block the whole day.
func eventInterval(ev *gcal.Event, day, dayEnd time.Time, loc *time.Location) (calendar.Interval, bool) {
	if ev.Start == nil || ev.End == nil {
		return calendar.Interval{}, false
	}
	if ev.Start.DateTime == "" {
		return calendar.Interval{Start: day, End: dayEnd}, true
	}

	start, err1 := time.Parse(time.RFC3339, ev.Start.DateTime)
	end, err2 := time.Parse(time.RFC3339, ev.End.DateTime)
	if err1 != nil || err2 != nil {
		return calendar.Interval{}, false
	}
	return calendar.Interval{Start: start.In(loc), End: end.In(loc)}, true
}
