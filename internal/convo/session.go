// Package convo holds the per-call conversational state: the phase machine,
// collected caller identity, the transcript history, and the appointment
// booking sub-flow. One Session exists per live call; the post-call notifier
// works from a Snapshot taken after close.
package convo

import (
	"sync"
	"time"

	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/pkg/provider/calendar"
)

// Phase is the coarse conversation state.
type Phase string

const (
	PhaseGreeting           Phase = "greeting"
	PhaseCollectingIdentity Phase = "collecting_identity"
	PhaseConversational     Phase = "conversational"
	PhaseGoodbye            Phase = "goodbye"
)

// Role tags one history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Entry is one transcript line. History is append-only.
type Entry struct {
	Role Role
	Text string
	At   time.Time
}

// UserInfo is the identity collected during the call. Collected flips true
// once name and email are both present.
type UserInfo struct {
	Name    string
	Email   string
	Phone   string
	Reason  string
	Urgency string

	Collected bool
}

// Step is the position inside the booking sub-flow.
type Step string

const (
	StepSelectCalendar Step = "select_calendar"
	StepCollectTitle   Step = "collect_title"
	StepCollectDate    Step = "collect_date"
	StepCollectTime    Step = "collect_time"
	StepReview         Step = "review"
	StepCollectName    Step = "collect_name"
	StepCollectEmail   Step = "collect_email"
)

// Booking is the appointment sub-flow state. Time may only be set once Date
// and AvailableSlots are; Review requires title, date, time, calendar kind
// and the caller's name and email.
type Booking struct {
	Active       bool
	Step         Step
	CalendarType config.CalendarKind

	Title       string
	Date        string // ISO YYYY-MM-DD
	Time        string // 24h HH:MM
	TimeDisplay string

	AvailableSlots []calendar.Slot
}

// BookedAppointment records the most recently created calendar event.
type BookedAppointment struct {
	EventID      string
	EventLink    string
	Title        string
	Date         string
	Time         string
	TimeDisplay  string
	CalendarType config.CalendarKind
}

// Session is the mutable conversational state of one call. All accessors are
// safe for concurrent use; the realtime event pump, the DTMF path and the
// session reaper may touch it from different goroutines.
type Session struct {
	CallID     string
	BusinessID string
	From       string
	To         string
	CreatedAt  time.Time

	mu               sync.Mutex
	phase            Phase
	userInfo         UserInfo
	history          []Entry
	booking          Booking
	lastAppointment  *BookedAppointment
	awaitingFollowUp bool
	lastActivity     time.Time
}

// NewSession creates a session in the greeting phase.
func NewSession(callID, businessID, from, to string) *Session {
	now := time.Now()
	return &Session{
		CallID:       callID,
		BusinessID:   businessID,
		From:         from,
		To:           to,
		CreatedAt:    now,
		phase:        PhaseGreeting,
		lastActivity: now,
	}
}

// Phase returns the current conversation phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase moves the conversation to p.
func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// Append adds one transcript entry and marks the session active.
func (s *Session) Append(role Role, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Entry{Role: role, Text: text, At: time.Now()})
	s.lastActivity = time.Now()
}

// History returns a copy of the transcript so far.
func (s *Session) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.history...)
}

// UserInfo returns the identity collected so far.
func (s *Session) UserInfo() UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userInfo
}

// UserInfoPatch carries optional identity updates; nil fields are left
// untouched.
type UserInfoPatch struct {
	Name    *string
	Email   *string
	Phone   *string
	Reason  *string
	Urgency *string
}

// UpdateUserInfo applies the patch, recomputes the collected flag, and moves
// the phase past identity collection once name and email are known. It
// returns the resulting UserInfo and whether the patch changed anything.
func (s *Session) UpdateUserInfo(p UserInfoPatch) (UserInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	apply := func(dst *string, src *string) {
		if src != nil && *src != "" && *src != *dst {
			*dst = *src
			changed = true
		}
	}
	apply(&s.userInfo.Name, p.Name)
	apply(&s.userInfo.Email, p.Email)
	apply(&s.userInfo.Phone, p.Phone)
	apply(&s.userInfo.Reason, p.Reason)
	apply(&s.userInfo.Urgency, p.Urgency)

	s.userInfo.Collected = s.userInfo.Name != "" && s.userInfo.Email != ""
	if s.userInfo.Collected && (s.phase == PhaseGreeting || s.phase == PhaseCollectingIdentity) {
		s.phase = PhaseConversational
	}
	if changed {
		s.lastActivity = time.Now()
	}
	return s.userInfo, changed
}

// Booking returns a copy of the booking sub-flow state.
func (s *Session) Booking() Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBooking(s.booking)
}

// SetBooking replaces the booking sub-flow state.
func (s *Session) SetBooking(b Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.booking = cloneBooking(b)
	s.lastActivity = time.Now()
}

// SetLastAppointment records the created event for the post-call summary.
func (s *Session) SetLastAppointment(a BookedAppointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.lastAppointment = &cp
}

// AwaitingFollowUp reports whether the last assistant turn invited a
// follow-up, biasing the next utterance's intent classification.
func (s *Session) AwaitingFollowUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingFollowUp
}

// SetAwaitingFollowUp flips the follow-up bias flag.
func (s *Session) SetAwaitingFollowUp(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaitingFollowUp = v
}

// LastActivity returns the time of the most recent session mutation.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch marks the session active without recording anything.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// Snapshot is an immutable copy of the session taken at call close for the
// post-call notifier.
type Snapshot struct {
	CallID     string
	BusinessID string
	From       string
	To         string
	CreatedAt  time.Time

	Phase           Phase
	UserInfo        UserInfo
	History         []Entry
	LastAppointment *BookedAppointment
}

// Snapshot copies the session state. The notifier never holds a live
// reference.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		CallID:     s.CallID,
		BusinessID: s.BusinessID,
		From:       s.From,
		To:         s.To,
		CreatedAt:  s.CreatedAt,
		Phase:      s.phase,
		UserInfo:   s.userInfo,
		History:    append([]Entry(nil), s.history...),
	}
	if s.lastAppointment != nil {
		cp := *s.lastAppointment
		snap.LastAppointment = &cp
	}
	return snap
}

func cloneBooking(b Booking) Booking {
	b.AvailableSlots = append([]calendar.Slot(nil), b.AvailableSlots...)
	return b
}
