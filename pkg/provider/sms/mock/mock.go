// Package mock provides a test double for the sms.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate-io/voxgate/pkg/provider/sms"
)

// Compile-time interface assertion.
var _ sms.Provider = (*Provider)(nil)

// SendCall records one SendMessage invocation.
type SendCall struct {
	To   string
	Body string
}

// Provider is a mock implementation of sms.Provider.
type Provider struct {
	mu sync.Mutex

	// SendSID is the message ID returned on success. Defaults to "SM-mock".
	SendSID string

	// SendErr, if non-nil, is returned as the error from SendMessage.
	SendErr error

	// SendCalls records every invocation of SendMessage in order.
	SendCalls []SendCall
}

// SendMessage records the call and returns SendSID, SendErr.
func (p *Provider) SendMessage(_ context.Context, to string, body string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SendCalls = append(p.SendCalls, SendCall{To: to, Body: body})
	if p.SendErr != nil {
		return "", p.SendErr
	}
	if p.SendSID == "" {
		return "SM-mock", nil
	}
	return p.SendSID, nil
}

// Name identifies the mock backend.
func (p *Provider) Name() string { return "mock" }

// Sent returns a copy of all recorded sends.
func (p *Provider) Sent() []SendCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SendCall, len(p.SendCalls))
	copy(out, p.SendCalls)
	return out
}
