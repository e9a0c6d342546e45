// Package email defines the Provider interface for transactional email
// backends used to deliver post-call conversation summaries.
//
// Implementations must be safe for concurrent use. Multiple providers are
// typically stacked into a fallback chain so a summary still goes out when
// the primary backend is down.
package email

import "context"

// Message is one outbound email. HTMLBody is optional; when present the
// message is sent as multipart/alternative with TextBody as the fallback
// part.
type Message struct {
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

// Provider is the abstraction over any email delivery backend.
type Provider interface {
	// Send delivers the message to all recipients. Returns an error when
	// delivery could not be handed off to the backend; best-effort
	// per-recipient failures after handoff are the backend's concern.
	Send(ctx context.Context, msg Message) error

	// Name identifies the backend for logging ("smtp", "rest").
	Name() string
}
