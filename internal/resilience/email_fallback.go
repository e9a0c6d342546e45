package resilience

import (
	"context"
	"strings"

	"github.com/voxgate-io/voxgate/pkg/provider/email"
)

// EmailFallback implements [email.Provider] with automatic failover across
// multiple delivery backends, typically SMTP first with a REST API as backup.
// Each backend has its own circuit breaker; when the primary fails or its
// breaker is open, the next healthy fallback is tried.
type EmailFallback struct {
	chain *Chain[email.Provider]
	names []string
}

// Compile-time interface assertion.
var _ email.Provider = (*EmailFallback)(nil)

// NewEmailFallback creates an [EmailFallback] with primary as the preferred
// backend.
func NewEmailFallback(primary email.Provider, primaryName string, cfg ChainConfig) *EmailFallback {
	return &EmailFallback{
		chain: NewChain(primary, primaryName, cfg),
		names: []string{primaryName},
	}
}

// AddFallback registers an additional email backend as a fallback.
func (f *EmailFallback) AddFallback(name string, provider email.Provider) {
	f.chain.Extend(name, provider)
	f.names = append(f.names, name)
}

// Send hands the message to the first healthy backend. If the primary fails,
// subsequent fallbacks are tried with the same message.
func (f *EmailFallback) Send(ctx context.Context, msg email.Message) error {
	return f.chain.Do(func(p email.Provider) error {
		return p.Send(ctx, msg)
	})
}

// Name lists the chained backends for logging.
func (f *EmailFallback) Name() string {
	return strings.Join(f.names, ">")
}
