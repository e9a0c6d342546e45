package resilience

import (
	"context"

	"github.com/voxgate-io/voxgate/pkg/provider/llm"
)

// SummaryLLMFallback implements [llm.Provider] with automatic failover across
// multiple text LLM backends. Each backend has its own circuit breaker; when
// the primary fails or its breaker is open, the next healthy fallback is
// tried. Post-call summaries are one-shot requests, so the whole call is
// covered by failover.
type SummaryLLMFallback struct {
	chain *Chain[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*SummaryLLMFallback)(nil)

// NewSummaryLLMFallback creates a [SummaryLLMFallback] with primary as the
// preferred backend.
func NewSummaryLLMFallback(primary llm.Provider, primaryName string, cfg ChainConfig) *SummaryLLMFallback {
	return &SummaryLLMFallback{
		chain: NewChain(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *SummaryLLMFallback) AddFallback(name string, provider llm.Provider) {
	f.chain.Extend(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *SummaryLLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return DoWithResult(f.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities returns the capabilities of the primary. This does not
// participate in failover because capabilities are static metadata.
func (f *SummaryLLMFallback) Capabilities() llm.ModelCapabilities {
	if p, ok := f.chain.Primary(); ok {
		return p.Capabilities()
	}
	return llm.ModelCapabilities{}
}
