package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/voxgate-io/voxgate/pkg/provider/llm"
	llmmock "github.com/voxgate-io/voxgate/pkg/provider/llm/mock"
)

func TestSummaryLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "summary from primary"},
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "summary from secondary"},
	}

	fb := NewSummaryLLMFallback(primary, "primary", ChainConfig{})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "summary from primary" {
		t.Fatalf("content = %q, want 'summary from primary'", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.CompleteCalls))
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.CompleteCalls))
	}
}

func TestSummaryLLMFallback_Complete_Failover(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteErr: errors.New("primary down"),
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "summary from secondary"},
	}

	fb := NewSummaryLLMFallback(primary, "primary", ChainConfig{})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "summary from secondary" {
		t.Fatalf("content = %q, want 'summary from secondary'", resp.Content)
	}
}

func TestSummaryLLMFallback_Complete_AllFail(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{CompleteErr: errors.New("secondary down")}

	fb := NewSummaryLLMFallback(primary, "primary", ChainConfig{})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSummaryLLMFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "summary from secondary"},
	}

	fb := NewSummaryLLMFallback(primary, "primary", ChainConfig{Breaker: BreakerConfig{TripAfter: 1}})
	fb.AddFallback("secondary", secondary)

	// First call trips the primary's breaker.
	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(primary.CompleteCalls); got != 1 {
		t.Fatalf("primary called %d times, want 1 (breaker should skip it)", got)
	}
	if got := len(secondary.CompleteCalls); got != 2 {
		t.Fatalf("secondary called %d times, want 2", got)
	}
}

func TestSummaryLLMFallback_Capabilities(t *testing.T) {
	primary := &llmmock.Provider{
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 128000},
	}

	fb := NewSummaryLLMFallback(primary, "primary", ChainConfig{})
	if got := fb.Capabilities().ContextWindow; got != 128000 {
		t.Fatalf("ContextWindow = %d, want 128000", got)
	}
}
