// Package sms defines the Provider interface for outbound text message
// backends used to deliver post-call summaries to callers and admin numbers.
//
// Implementations must be safe for concurrent use.
package sms

import "context"

// Provider is the abstraction over any SMS delivery backend.
type Provider interface {
	// SendMessage delivers one text message to an E.164 phone number.
	// Returns the backend's message identifier on success.
	SendMessage(ctx context.Context, to string, body string) (string, error)

	// Name identifies the backend for logging ("twilio").
	Name() string
}
