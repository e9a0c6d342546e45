// Package mock provides test doubles for the realtime.Provider and
// realtime.SessionHandle interfaces.
//
// Use Session to script server events into code under test and to verify the
// outgoing calls it makes, without a live model connection:
//
//	sess := mock.NewSession()
//	prov := &mock.Provider{Session: sess}
//	// ... start the code under test with prov ...
//	sess.Emit(realtime.Event{Type: realtime.EventSpeechStarted})
package mock

import (
	"context"
	"sync"

	"github.com/voxgate-io/voxgate/pkg/provider/realtime"
)

// Compile-time interface assertions.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.SessionHandle = (*Session)(nil)

// Provider is a mock implementation of realtime.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a fresh
	// NewSession().
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records the SessionConfig of every Connect invocation.
	ConnectCalls []realtime.SessionConfig
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(_ context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// FunctionOutputCall records one CreateFunctionOutput invocation.
type FunctionOutputCall struct {
	CallID string
	Output string
}

// Session is a mock implementation of realtime.SessionHandle. Scripted events
// are pushed with Emit; outgoing calls are recorded and can be inspected
// through the accessor methods.
type Session struct {
	mu sync.Mutex

	events chan realtime.Event
	closed bool

	// Injectable errors per method. Zero values mean success.
	AppendAudioErr    error
	CommitAudioErr    error
	CreateItemErr     error
	CreateResponseErr error
	CancelErr         error
	ErrValue          error

	appendedAudio   [][]byte
	commitCount     int
	userItems       []string
	functionOutputs []FunctionOutputCall
	responseCreates int
	cancelledIDs    []string
}

// NewSession returns a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan realtime.Event, 64)}
}

// Emit pushes one scripted event onto the Events channel.
func (s *Session) Emit(evt realtime.Event) {
	s.events <- evt
}

// AppendAudio records the chunk and returns AppendAudioErr.
func (s *Session) AppendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.appendedAudio = append(s.appendedAudio, cp)
	return s.AppendAudioErr
}

// CommitAudio records the call and returns CommitAudioErr.
func (s *Session) CommitAudio() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitCount++
	return s.CommitAudioErr
}

// CreateUserItem records the text and returns CreateItemErr.
func (s *Session) CreateUserItem(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userItems = append(s.userItems, text)
	return s.CreateItemErr
}

// CreateFunctionOutput records the call and returns CreateItemErr.
func (s *Session) CreateFunctionOutput(callID, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functionOutputs = append(s.functionOutputs, FunctionOutputCall{CallID: callID, Output: output})
	return s.CreateItemErr
}

// CreateResponse records the call and returns CreateResponseErr.
func (s *Session) CreateResponse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseCreates++
	return s.CreateResponseErr
}

// CancelResponse records the response ID and returns CancelErr.
func (s *Session) CancelResponse(responseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelledIDs = append(s.cancelledIDs, responseID)
	return s.CancelErr
}

// Events returns the scripted event channel.
func (s *Session) Events() <-chan realtime.Event { return s.events }

// Err returns ErrValue.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrValue
}

// Close closes the event channel. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AppendedAudio returns a copy of all audio chunks received.
func (s *Session) AppendedAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.appendedAudio))
	copy(out, s.appendedAudio)
	return out
}

// CommitCount returns the number of CommitAudio calls.
func (s *Session) CommitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitCount
}

// UserItems returns a copy of all texts passed to CreateUserItem.
func (s *Session) UserItems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.userItems))
	copy(out, s.userItems)
	return out
}

// FunctionOutputs returns a copy of all recorded CreateFunctionOutput calls.
func (s *Session) FunctionOutputs() []FunctionOutputCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FunctionOutputCall, len(s.functionOutputs))
	copy(out, s.functionOutputs)
	return out
}

// ResponseCreates returns the number of CreateResponse calls.
func (s *Session) ResponseCreates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseCreates
}

// CancelledIDs returns a copy of all response IDs passed to CancelResponse.
func (s *Session) CancelledIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cancelledIDs))
	copy(out, s.cancelledIDs)
	return out
}
