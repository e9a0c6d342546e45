package convo

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func storeLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStore_CreateGetRemove(t *testing.T) {
	t.Parallel()
	st := NewStore(storeLogger())

	sess, err := st.Create("CA1", "rocky-plumbing", "+1555", "+1556")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.CallID != "CA1" || sess.BusinessID != "rocky-plumbing" {
		t.Errorf("session = %+v", sess)
	}

	if _, err := st.Create("CA1", "other", "", ""); err == nil {
		t.Error("duplicate call ID accepted")
	}
	if _, err := st.Create("", "b", "", ""); err == nil {
		t.Error("empty call ID accepted")
	}

	got, ok := st.Get("CA1")
	if !ok || got != sess {
		t.Errorf("Get = %v %v", got, ok)
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d", st.Len())
	}

	removed, ok := st.Remove("CA1")
	if !ok || removed != sess {
		t.Errorf("Remove = %v %v", removed, ok)
	}
	if _, ok := st.Get("CA1"); ok {
		t.Error("session still resolvable after Remove")
	}
	if _, ok := st.Remove("CA1"); ok {
		t.Error("second Remove reported a session")
	}
}

func TestStore_ReapExpiresIdleSessions(t *testing.T) {
	t.Parallel()

	var expired []*Session
	st := NewStore(storeLogger(),
		WithSessionTTL(10*time.Minute),
		WithExpireHandler(func(s *Session) { expired = append(expired, s) }))

	idle, err := st.Create("CA_idle", "b", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fresh, err := st.Create("CA_fresh", "b", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The idle session saw its last activity 11 minutes ago; the fresh one
	// is touched now.
	idle.mu.Lock()
	idle.lastActivity = time.Now().Add(-11 * time.Minute)
	idle.mu.Unlock()
	fresh.Touch()
	st.reap(time.Now())

	if len(expired) != 1 || expired[0].CallID != "CA_idle" {
		t.Fatalf("expired = %v", expired)
	}
	if _, ok := st.Get("CA_idle"); ok {
		t.Error("idle session still in store")
	}
	if _, ok := st.Get("CA_fresh"); !ok {
		t.Error("fresh session was reaped")
	}
}

func TestStore_StopIdempotent(t *testing.T) {
	t.Parallel()
	st := NewStore(storeLogger())
	st.Start(t.Context())
	st.Stop()
	st.Stop()
}
