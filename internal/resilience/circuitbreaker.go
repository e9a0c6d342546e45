// Package resilience keeps post-call delivery working when a provider
// misbehaves. Summary generation, email, and SMS each run through a
// [Chain]: an ordered list of interchangeable backends where every entry
// carries its own [CircuitBreaker]. A backend that keeps failing is taken
// out of rotation until its cool-off elapses, and the next configured
// backend picks up the traffic.
//
// Not every error marks a backend as unhealthy. An error wrapped with
// [Permanent] describes the request, not the backend (a malformed message
// fails everywhere), and a caller-side context.Canceled says nothing about
// backend health. Neither counts toward tripping a breaker.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Do] while the breaker is
// open and the cool-off has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// Delivery-path defaults. Notification backends are one-shot per call, so
// the breaker trips early and cools off for about as long as the gap
// between two typical calls.
const (
	defaultTripAfter  = 3
	defaultCoolOff    = time.Minute
	defaultProbeQuota = 2
)

// permanentError marks an error as a property of the request rather than
// the backend it was sent to.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that breakers ignore it and chains stop failing
// over on it. Use it for errors a different backend cannot fix: a rejected
// recipient address, an oversized message body, a misconfigured sender.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with
// [Permanent].
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// countsAsFault reports whether err should be held against the backend.
func countsAsFault(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-off
	// elapses.
	StateOpen

	// StateHalfOpen lets a small probe quota through to find out whether
	// the backend has recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes one [CircuitBreaker].
type BreakerConfig struct {
	// Name labels the breaker in logs, typically the backend name from
	// the delivery config ("smtp", "sendgrid", "openai").
	Name string

	// TripAfter is how many consecutive faults open the breaker.
	// Default: 3.
	TripAfter int

	// CoolOff is how long the breaker stays open before probing again.
	// Default: 1m.
	CoolOff time.Duration

	// ProbeQuota is how many half-open probe calls must succeed before
	// the breaker closes. Default: 2.
	ProbeQuota int
}

// CircuitBreaker is a three-state breaker guarding one delivery backend.
type CircuitBreaker struct {
	name       string
	tripAfter  int
	coolOff    time.Duration
	probeQuota int
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	faults     int
	openedAt   time.Time
	probes     int
	probeFails int
}

// NewCircuitBreaker builds a breaker from cfg, filling zero fields with
// the delivery-path defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = defaultTripAfter
	}
	if cfg.CoolOff <= 0 {
		cfg.CoolOff = defaultCoolOff
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = defaultProbeQuota
	}
	return &CircuitBreaker{
		name:       cfg.Name,
		tripAfter:  cfg.TripAfter,
		coolOff:    cfg.CoolOff,
		probeQuota: cfg.ProbeQuota,
		logger:     slog.Default().With("breaker", cfg.Name),
	}
}

// Do runs fn unless the breaker is open. Errors that do not count as
// backend faults (see [Permanent] and caller cancellation) are passed
// through without touching the failure accounting.
func (cb *CircuitBreaker) Do(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if countsAsFault(callErr) {
		cb.onFault(probe)
	} else if callErr == nil {
		cb.onSuccess(probe)
	}
	// A non-fault error (permanent, cancelled) leaves the breaker as-is.
	return callErr
}

// admit decides whether a call may proceed and whether it is a half-open
// probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.coolOff {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeFails = 0
		cb.logger.Info("circuit half-open, probing backend")

	case StateHalfOpen:
		if cb.probes >= cb.probeQuota {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

// onFault is called with cb.mu held.
func (cb *CircuitBreaker) onFault(probe bool) {
	cb.openedAt = time.Now()

	if probe {
		cb.probeFails++
		cb.state = StateOpen
		cb.faults = cb.tripAfter
		cb.logger.Warn("probe failed, circuit re-opened")
		return
	}

	cb.faults++
	if cb.faults >= cb.tripAfter {
		cb.state = StateOpen
		cb.logger.Warn("circuit opened", "consecutive_faults", cb.faults)
	}
}

// onSuccess is called with cb.mu held.
func (cb *CircuitBreaker) onSuccess(probe bool) {
	if probe {
		if cb.probes-cb.probeFails >= cb.probeQuota {
			cb.state = StateClosed
			cb.faults = 0
			cb.probes = 0
			cb.probeFails = 0
			cb.logger.Info("circuit closed, backend recovered")
		}
		return
	}
	cb.faults = 0
}

// State returns the breaker's current state. An open breaker whose
// cool-off has elapsed reports [StateHalfOpen]; the stored transition
// happens on the next [CircuitBreaker.Do].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.coolOff {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.faults = 0
	cb.probes = 0
	cb.probeFails = 0
	cb.logger.Info("circuit manually reset")
}
