package convo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultSessionTTL is the hard inactivity timeout for a call.
const DefaultSessionTTL = 30 * time.Minute

// reapInterval is how often the store scans for expired sessions.
const reapInterval = time.Minute

// Store maps live call IDs to their sessions. Sessions idle past the TTL are
// expired by a background reaper so an abandoned call still gets its
// post-call handling.
type Store struct {
	logger   *slog.Logger
	ttl      time.Duration
	onExpire func(*Session)

	mu       sync.Mutex
	sessions map[string]*Session

	stopOnce sync.Once
	done     chan struct{}
}

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithSessionTTL overrides the inactivity timeout.
func WithSessionTTL(ttl time.Duration) StoreOption {
	return func(st *Store) {
		if ttl > 0 {
			st.ttl = ttl
		}
	}
}

// WithExpireHandler registers a callback invoked, outside the store lock,
// for each session the reaper removes.
func WithExpireHandler(fn func(*Session)) StoreOption {
	return func(st *Store) {
		st.onExpire = fn
	}
}

// NewStore creates an empty session store.
func NewStore(logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	st := &Store{
		logger:   logger,
		ttl:      DefaultSessionTTL,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Create registers a new session for callID. A duplicate call ID is an
// error; the carrier never reuses one within a live call.
func (st *Store) Create(callID, businessID, from, to string) (*Session, error) {
	if callID == "" {
		return nil, fmt.Errorf("convo: call ID must not be empty")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[callID]; ok {
		return nil, fmt.Errorf("convo: session for call %s already exists", callID)
	}
	sess := NewSession(callID, businessID, from, to)
	st.sessions[callID] = sess
	return sess, nil
}

// Get returns the session for callID, if any.
func (st *Store) Get(callID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[callID]
	return sess, ok
}

// Remove detaches the session for callID and returns it. The expire handler
// is not invoked; Remove is the orderly-close path.
func (st *Store) Remove(callID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[callID]
	if ok {
		delete(st.sessions, callID)
	}
	return sess, ok
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Start runs the reaper until ctx is cancelled or Stop is called.
func (st *Store) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-st.done:
				return
			case <-ticker.C:
				st.reap(time.Now())
			}
		}
	}()
}

// Stop terminates the reaper. Safe to call more than once.
func (st *Store) Stop() {
	st.stopOnce.Do(func() {
		close(st.done)
	})
}

// reap removes sessions idle past the TTL and hands them to the expire
// handler.
func (st *Store) reap(now time.Time) {
	var expired []*Session

	st.mu.Lock()
	for id, sess := range st.sessions {
		if now.Sub(sess.LastActivity()) >= st.ttl {
			delete(st.sessions, id)
			expired = append(expired, sess)
		}
	}
	st.mu.Unlock()

	for _, sess := range expired {
		st.logger.Warn("session expired after inactivity",
			"call_id", sess.CallID, "business_id", sess.BusinessID, "ttl", st.ttl)
		if st.onExpire != nil {
			st.onExpire(sess)
		}
	}
}
