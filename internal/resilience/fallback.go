package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [Chain] either failed or
// had an open breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

// ChainConfig configures the per-backend breaker a [Chain] creates for each
// entry. The breaker Name is always overridden with the backend's name.
type ChainConfig struct {
	Breaker BreakerConfig
}

// link is one backend in a chain, with its dedicated breaker.
type link[T any] struct {
	name    string
	backend T
	breaker *CircuitBreaker
}

// Chain is an ordered failover list over one backend type: the primary
// first, then fallbacks in the order they were added. A call walks the
// chain until a backend succeeds, skipping entries whose breaker is open.
//
// Failover stops early on a [Permanent] error, since a request no backend
// can deliver should not burn through the whole chain.
//
// Chain is safe for concurrent reads after setup; Extend is not safe to
// call concurrently with Do.
type Chain[T any] struct {
	links []link[T]
	cfg   ChainConfig
}

// NewChain starts a chain with primary as its first backend.
func NewChain[T any](primary T, name string, cfg ChainConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Extend(name, primary)
	return c
}

// Extend appends a fallback backend to the end of the chain.
func (c *Chain[T]) Extend(name string, backend T) {
	bc := c.cfg.Breaker
	bc.Name = name
	c.links = append(c.links, link[T]{
		name:    name,
		backend: backend,
		breaker: NewCircuitBreaker(bc),
	})
}

// Primary returns the first backend in the chain. ok is false for an empty
// chain.
func (c *Chain[T]) Primary() (backend T, ok bool) {
	if len(c.links) == 0 {
		var zero T
		return zero, false
	}
	return c.links[0].backend, true
}

// Do walks the chain running fn against each backend until one succeeds.
func (c *Chain[T]) Do(fn func(T) error) error {
	_, err := DoWithResult(c, func(backend T) (struct{}, error) {
		return struct{}{}, fn(backend)
	})
	return err
}

// DoWithResult is [Chain.Do] for calls that produce a value. It is a
// package-level function because Go methods cannot add type parameters.
func DoWithResult[T any, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.links {
		ln := &c.links[i]
		var result R
		err := ln.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(ln.backend)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		switch {
		case IsPermanent(err):
			// No other backend can deliver this request either.
			slog.Warn("delivery failed permanently", "backend", ln.name, "error", err)
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("backend skipped, circuit open", "backend", ln.name)
		default:
			slog.Warn("backend failed, trying next", "backend", ln.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
