// Package rest implements the email.Provider interface against a Resend-style
// JSON HTTP API (POST /emails with a bearer token).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxgate-io/voxgate/pkg/provider/email"
)

// Compile-time assertion that Sender satisfies email.Provider.
var _ email.Provider = (*Sender)(nil)

const defaultBaseURL = "https://api.resend.com"

// Option is a functional option for Sender.
type Option func(*Sender)

// WithBaseURL overrides the API base URL. Used in tests and for self-hosted
// compatible APIs.
func WithBaseURL(u string) Option {
	return func(s *Sender) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.httpClient = c }
}

// Sender sends email through a JSON HTTP API.
type Sender struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSender creates a new REST email Sender.
func NewSender(apiKey, from string, logger *slog.Logger, opts ...Option) (*Sender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("rest email: apiKey must not be empty")
	}
	if from == "" {
		return nil, fmt.Errorf("rest email: from must not be empty")
	}

	s := &Sender{
		apiKey:     apiKey,
		from:       from,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With("component", "email.rest"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Name implements email.Provider.
func (s *Sender) Name() string { return "rest" }

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text,omitempty"`
	HTML    string   `json:"html,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send implements email.Provider.
func (s *Sender) Send(ctx context.Context, msg email.Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("rest email: no recipients")
	}

	body, err := json.Marshal(sendRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.TextBody,
		HTML:    msg.HTMLBody,
	})
	if err != nil {
		return fmt.Errorf("rest email: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rest email: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rest email: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("rest email: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.ID != "" {
		s.logger.Info("email sent", "to", msg.To, "subject", msg.Subject, "id", out.ID)
	} else {
		s.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)
	}
	return nil
}
