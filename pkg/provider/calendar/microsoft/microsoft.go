// Package microsoft implements the calendar.Provider interface on the
// Microsoft Graph API using client-credentials (application) auth.
package microsoft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/voxgate-io/voxgate/pkg/provider/calendar"
)

// Compile-time assertion that Provider satisfies calendar.Provider.
var _ calendar.Provider = (*Provider)(nil)

const (
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	defaultLoginBaseURL = "https://login.microsoftonline.com"

	// tokenSlack refreshes tokens slightly before their actual expiry.
	tokenSlack = 2 * time.Minute
)

// Credentials are the Azure AD application credentials plus the mailbox user
// whose calendar is booked.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// UserID is the object ID or UPN of the calendar owner
	// (e.g., "bookings@example.com").
	UserID string
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithGraphBaseURL overrides the Graph API base URL. Used in tests.
func WithGraphBaseURL(u string) Option {
	return func(p *Provider) { p.graphBaseURL = strings.TrimRight(u, "/") }
}

// WithLoginBaseURL overrides the token endpoint base URL. Used in tests.
func WithLoginBaseURL(u string) Option {
	return func(p *Provider) { p.loginBaseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements calendar.Provider for Microsoft Graph.
type Provider struct {
	creds Credentials
	hours calendar.BusinessHours

	graphBaseURL string
	loginBaseURL string
	httpClient   *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New constructs a Microsoft Graph calendar provider.
func New(creds Credentials, hours calendar.BusinessHours, opts ...Option) (*Provider, error) {
	if creds.TenantID == "" || creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("microsoft calendar: tenantID, clientID and clientSecret are required")
	}
	if creds.UserID == "" {
		return nil, fmt.Errorf("microsoft calendar: userID must not be empty")
	}
	if hours.Location == nil {
		return nil, fmt.Errorf("microsoft calendar: hours.Location must not be nil")
	}

	p := &Provider{
		creds:        creds,
		hours:        hours,
		graphBaseURL: defaultGraphBaseURL,
		loginBaseURL: defaultLoginBaseURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// FindAvailableSlots implements calendar.Provider.
func (p *Provider) FindAvailableSlots(ctx context.Context, date string) (*calendar.DaySlots, error) {
	day, err := calendar.ParseISODate(date, p.hours.Location)
	if err != nil {
		return nil, err
	}

	busy, err := p.busyIntervals(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("microsoft calendar: calendar view for %s: %w", date, err)
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
		return nil, fmt.Errorf("microsoft calendar: invalid date/time %q %q: %w", req.Date, req.Time, err)
	}
	dur := req.Duration
	if dur <= 0 {
		dur = calendar.DefaultSlotDuration
	}
	end := start.Add(dur)

	tz := p.hours.Location.String()
	body := graphEvent{
		Subject: req.Title,
		Body:    &graphItemBody{ContentType: "text", Content: req.Description},
		Start:   graphDateTime{DateTime: start.Format("2006-01-02T15:04:05"), TimeZone: tz},
		End:     graphDateTime{DateTime: end.Format("2006-01-02T15:04:05"), TimeZone: tz},
	}
	if req.CustomerEmail != "" {
		body.Attendees = []graphAttendee{{
			Type:         "required",
			EmailAddress: graphEmailAddress{Address: req.CustomerEmail, Name: req.CustomerName},
		}}
	}

	var created graphEvent
	path := fmt.Sprintf("/users/%s/events", url.PathEscape(p.creds.UserID))
	if err := p.doJSON(ctx, http.MethodPost, path, nil, body, &created); err != nil {
		return nil, fmt.Errorf("microsoft calendar: create event: %w", err)
	}

	return &calendar.Appointment{
		EventID:   created.ID,
		EventLink: created.WebLink,
		Start:     start,
		End:       end,
	}, nil
}

// ── Graph wire types ──────────────────────────────────────────────────────────

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphEmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type graphAttendee struct {
	Type         string            `json:"type"`
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEvent struct {
	ID          string          `json:"id,omitempty"`
	Subject     string          `json:"subject"`
	Body        *graphItemBody  `json:"body,omitempty"`
	Start       graphDateTime   `json:"start"`
	End         graphDateTime   `json:"end"`
	Attendees   []graphAttendee `json:"attendees,omitempty"`
	WebLink     string          `json:"webLink,omitempty"`
	IsCancelled bool            `json:"isCancelled,omitempty"`
}

type calendarViewResponse struct {
	Value []graphEvent `json:"value"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// ── HTTP plumbing ─────────────────────────────────────────────────────────────

// busyIntervals fetches all events overlapping the given local day via
// calendarView, which expands recurring events server-side.
func (p *Provider) busyIntervals(ctx context.Context, day time.Time) ([]calendar.Interval, error) {
	dayEnd := day.AddDate(0, 0, 1)

	query := url.Values{
		"startDateTime": {day.UTC().Format(time.RFC3339)},
		"endDateTime":   {dayEnd.UTC().Format(time.RFC3339)},
		"$top":          {"100"},
	}
	path := fmt.Sprintf("/users/%s/calendarView", url.PathEscape(p.creds.UserID))

	var view calendarViewResponse
	if err := p.doJSON(ctx, http.MethodGet, path, query, nil, &view); err != nil {
		return nil, err
	}

	var busy []calendar.Interval
	for _, ev := range view.Value {
		if ev.IsCancelled {
			continue
		}
		start, err1 := parseGraphTime(ev.Start, p.hours.Location)
		end, err2 := parseGraphTime(ev.End, p.hours.Location)
		if err1 != nil || err2 != nil {
			continue
		}
		busy = append(busy, calendar.Interval{Start: start, End: end})
	}
	return busy, nil
}

// parseGraphTime parses a Graph dateTime, honouring its declared zone when it
// is loadable and falling back to the business zone otherwise.
func parseGraphTime(dt graphDateTime, fallback *time.Location) (time.Time, error) {
	loc := fallback
	if dt.TimeZone != "" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	// Graph emits fractional seconds on calendarView results.
	for _, layout := range []string{"2006-01-02T15:04:05.9999999", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, dt.DateTime, loc); err == nil {
			return t.In(fallback), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable graph time %q", dt.DateTime)
}

// doJSON performs one authenticated Graph request with a JSON body and
// decodes the JSON response into out (when out is non-nil).
func (p *Provider) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	u := p.graphBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graph status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// accessToken returns a cached client-credentials token, refreshing it when
// close to expiry.
func (p *Provider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry.Add(-tokenSlack)) {
		return p.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.creds.ClientID},
		"client_secret": {p.creds.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.loginBaseURL, url.PathEscape(p.creds.TenantID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("microsoft calendar: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("microsoft calendar: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("microsoft calendar: token status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("microsoft calendar: decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("microsoft calendar: empty access token")
	}

	p.token = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return p.token, nil
}
