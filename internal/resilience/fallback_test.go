package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestChain_PrimaryHandlesTheCall(t *testing.T) {
	t.Parallel()

	c := NewChain("smtp", "smtp", ChainConfig{})
	c.Extend("sendgrid", "sendgrid")

	var handled string
	if err := c.Do(func(backend string) error {
		handled = backend
		return nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if handled != "smtp" {
		t.Fatalf("handled by %q, want smtp", handled)
	}
}

func TestChain_FailsOverToNextBackend(t *testing.T) {
	t.Parallel()

	c := NewChain("smtp", "smtp", ChainConfig{})
	c.Extend("sendgrid", "sendgrid")

	var handled string
	if err := c.Do(func(backend string) error {
		if backend == "smtp" {
			return errBackend
		}
		handled = backend
		return nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if handled != "sendgrid" {
		t.Fatalf("handled by %q, want sendgrid", handled)
	}
}

func TestChain_AllBackendsDown(t *testing.T) {
	t.Parallel()

	c := NewChain("smtp", "smtp", ChainConfig{})
	c.Extend("sendgrid", "sendgrid")

	err := c.Do(func(string) error { return errBackend })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestChain_PermanentErrorStopsFailover(t *testing.T) {
	t.Parallel()

	c := NewChain("smtp", "smtp", ChainConfig{})
	c.Extend("sendgrid", "sendgrid")

	bad := Permanent(errors.New("message too large"))
	var tried []string
	err := c.Do(func(backend string) error {
		tried = append(tried, backend)
		return bad
	})
	if !IsPermanent(err) {
		t.Fatalf("err = %v, want the permanent error back", err)
	}
	if len(tried) != 1 || tried[0] != "smtp" {
		t.Fatalf("tried = %v, want only the primary", tried)
	}
}

func TestChain_OpenBreakerIsSkipped(t *testing.T) {
	t.Parallel()

	c := NewChain("smtp", "smtp", ChainConfig{
		Breaker: BreakerConfig{TripAfter: 2, CoolOff: time.Hour},
	})
	c.Extend("sendgrid", "sendgrid")

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		_ = c.Do(func(backend string) error {
			if backend == "smtp" {
				return errBackend
			}
			return nil
		})
	}

	var handled string
	if err := c.Do(func(backend string) error {
		handled = backend
		return nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if handled != "sendgrid" {
		t.Fatalf("handled by %q, want sendgrid while smtp circuit is open", handled)
	}
}

func TestChain_Primary(t *testing.T) {
	t.Parallel()

	c := NewChain(42, "answer", ChainConfig{})
	v, ok := c.Primary()
	if !ok || v != 42 {
		t.Fatalf("Primary() = %v, %v; want 42, true", v, ok)
	}

	var empty Chain[int]
	if _, ok := empty.Primary(); ok {
		t.Fatal("empty chain reported a primary")
	}
}

func TestDoWithResult_ReturnsTheFirstHealthyValue(t *testing.T) {
	t.Parallel()

	c := NewChain("openai", "openai", ChainConfig{})
	c.Extend("anthropic", "anthropic")

	got, err := DoWithResult(c, func(backend string) (string, error) {
		if backend == "openai" {
			return "", errBackend
		}
		return "summary from " + backend, nil
	})
	if err != nil {
		t.Fatalf("DoWithResult: %v", err)
	}
	if got != "summary from anthropic" {
		t.Fatalf("got %q", got)
	}
}

func TestDoWithResult_AllFail(t *testing.T) {
	t.Parallel()

	c := NewChain("openai", "openai", ChainConfig{})

	_, err := DoWithResult(c, func(string) (string, error) {
		return "", errBackend
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
