// Package twilio implements the sms.Provider interface on the Twilio
// Messages API.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxgate-io/voxgate/pkg/provider/sms"
)

// Compile-time assertion that Client satisfies sms.Provider.
var _ sms.Provider = (*Client)(nil)

const defaultBaseURL = "https://api.twilio.com"

// Option is a functional option for Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithMessagingServiceSID sends through a messaging service instead of a
// fixed from-number.
func WithMessagingServiceSID(sid string) Option {
	return func(c *Client) { c.messagingSID = sid }
}

// WithFromNumber sets the sender number in E.164 form.
func WithFromNumber(from string) Option {
	return func(c *Client) { c.fromNumber = from }
}

// Client sends SMS through the Twilio REST API.
type Client struct {
	accountSID   string
	authToken    string
	messagingSID string
	fromNumber   string
	baseURL      string
	httpClient   *http.Client
	logger       *slog.Logger
}

// New creates a new Twilio SMS client. Either WithMessagingServiceSID or
// WithFromNumber must be supplied.
func New(accountSID, authToken string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("twilio: accountSID and authToken are required")
	}

	c := &Client{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With("component", "sms.twilio"),
	}
	for _, o := range opts {
		o(c)
	}

	if c.messagingSID == "" && c.fromNumber == "" {
		return nil, fmt.Errorf("twilio: a messaging service SID or a from number is required")
	}
	return c, nil
}

// Name implements sms.Provider.
func (c *Client) Name() string { return "twilio" }

type messageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// SendMessage implements sms.Provider.
func (c *Client) SendMessage(ctx context.Context, to string, body string) (string, error) {
	if to == "" {
		return "", fmt.Errorf("twilio: recipient must not be empty")
	}
	if body == "" {
		return "", fmt.Errorf("twilio: body must not be empty")
	}

	form := url.Values{
		"To":   {to},
		"Body": {body},
	}
	if c.messagingSID != "" {
		form.Set("MessagingServiceSid", c.messagingSID)
	} else {
		form.Set("From", c.fromNumber)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("twilio: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("twilio: decode response: %w", err)
	}

	c.logger.Info("sms queued", "to", to, "sid", out.SID, "status", out.Status)
	return out.SID, nil
}
