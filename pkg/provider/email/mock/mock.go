// Package mock provides a test double for the email.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate-io/voxgate/pkg/provider/email"
)

// Compile-time interface assertion.
var _ email.Provider = (*Provider)(nil)

// Provider is a mock implementation of email.Provider.
type Provider struct {
	mu sync.Mutex

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// SendErr, if non-nil, is returned as the error from Send.
	SendErr error

	// SendCalls records every message passed to Send in order.
	SendCalls []email.Message
}

// Send records the message and returns SendErr.
func (p *Provider) Send(_ context.Context, msg email.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SendCalls = append(p.SendCalls, msg)
	return p.SendErr
}

// Name returns NameValue or "mock".
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NameValue == "" {
		return "mock"
	}
	return p.NameValue
}

// Sent returns a copy of all recorded messages.
func (p *Provider) Sent() []email.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]email.Message, len(p.SendCalls))
	copy(out, p.SendCalls)
	return out
}
