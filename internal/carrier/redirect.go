package carrier

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultCarrierAPIBaseURL = "https://api.twilio.com"

// Redirector moves a live call to another number through the carrier's REST
// API. Used by the emergency transfer path; redirecting ends the media stream.
type Redirector struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// RedirectorOption configures a [Redirector].
type RedirectorOption func(*Redirector)

// WithRedirectBaseURL overrides the carrier API endpoint. Mainly for tests.
func WithRedirectBaseURL(u string) RedirectorOption {
	return func(r *Redirector) {
		r.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithRedirectHTTPClient overrides the HTTP client.
func WithRedirectHTTPClient(c *http.Client) RedirectorOption {
	return func(r *Redirector) {
		r.httpClient = c
	}
}

// NewRedirector creates the call-redirect hook.
func NewRedirector(accountSID, authToken string, logger *slog.Logger, opts ...RedirectorOption) (*Redirector, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("carrier: redirect requires accountSID and authToken")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Redirector{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    defaultCarrierAPIBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type dialTwiML struct {
	XMLName xml.Name `xml:"Response"`
	Say     string   `xml:"Say,omitempty"`
	Dial    string   `xml:"Dial"`
}

// RedirectCall updates the live call identified by callSID to dial target.
func (r *Redirector) RedirectCall(ctx context.Context, callSID, target string) error {
	if callSID == "" || target == "" {
		return fmt.Errorf("carrier: redirect requires callSID and target")
	}

	twiml, err := xml.Marshal(dialTwiML{
		Say:  "Connecting you now. Please hold.",
		Dial: target,
	})
	if err != nil {
		return fmt.Errorf("carrier: marshal redirect instructions: %w", err)
	}

	form := url.Values{}
	form.Set("Twiml", xml.Header+string(twiml))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", r.baseURL, r.accountSID, callSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("carrier: build redirect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(r.accountSID, r.authToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("carrier: redirect call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("carrier: redirect call: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	r.logger.Info("call redirected", "call_sid", callSID, "target", target)
	return nil
}
