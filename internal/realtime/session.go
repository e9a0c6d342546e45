// Package realtime runs the per-call event pump between the upstream
// speech-to-speech session and the rest of the call: audio toward the media
// bridge, transcripts into the conversation, tool calls into the dispatcher.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rt "github.com/voxgate-io/voxgate/pkg/provider/realtime"
)

// SessionStartToken is the synthetic first user item. The business prompt
// instructs the model how to greet when it sees this token.
const SessionStartToken = "[SESSION_START]"

// DefaultToolTimeout bounds a single tool execution.
const DefaultToolTimeout = 30 * time.Second

// toolTimeoutResult is spoken by the model when a tool exceeds its budget.
const toolTimeoutResult = `{"success":false,"message":"I'm sorry, that's taking longer than expected. Would you like me to have someone from the team call you back?"}`

// AudioSink receives model audio for the carrier leg.
type AudioSink interface {
	// EnqueueOut accepts one PCM16 model-rate chunk.
	EnqueueOut(pcm []byte)

	// Interrupt discards all buffered outbound audio. Called on barge-in.
	Interrupt()
}

// Dispatcher executes one tool call and returns the JSON result for the model.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, arguments string) (string, error)
}

// Hooks observe conversation events. All hooks are optional and are invoked
// from the event pump goroutine, one at a time.
type Hooks struct {
	// OnUserTranscript receives each finalized caller transcription. A
	// non-empty return value is injected as a synthetic conversation item,
	// used by the identity fallback extractor to keep the model's view of
	// collected user info in sync.
	OnUserTranscript func(text string) string

	// OnAssistantTranscript receives each completed assistant utterance.
	OnAssistantTranscript func(text string)

	// OnAssistantDelta receives incremental assistant transcript text.
	OnAssistantDelta func(text string)

	// OnSpeechStopped fires when the caller stops talking.
	OnSpeechStopped func()

	// OnError receives upstream errors. The session stays open.
	OnError func(err error)
}

// Session pumps one call's upstream events. Mutable turn state is confined
// to the pump goroutine; the exported methods only write to the upstream
// handle, which is safe for concurrent use.
type Session struct {
	handle     rt.SessionHandle
	sink       AudioSink
	dispatcher Dispatcher
	hooks      Hooks
	logger     *slog.Logger

	toolTimeout time.Duration

	// Turn state, owned by the pump goroutine.
	activeResponseID  string
	suppressAudio     bool
	lastAudioResponse string

	mu     sync.Mutex
	closed bool

	done chan struct{}
}

// Option configures a [Session].
type Option func(*Session)

// WithToolTimeout overrides the per-tool execution budget.
func WithToolTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.toolTimeout = d
		}
	}
}

// Start connects the upstream session, triggers the opening turn, and spawns
// the event pump. The pump exits when the upstream event stream closes or
// ctx is cancelled.
func Start(ctx context.Context, provider rt.Provider, cfg rt.SessionConfig, sink AudioSink, dispatcher Dispatcher, hooks Hooks, logger *slog.Logger, opts ...Option) (*Session, error) {
	if provider == nil {
		return nil, fmt.Errorf("realtime: provider must not be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("realtime: audio sink must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	handle, err := provider.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("realtime: connect upstream: %w", err)
	}

	s := &Session{
		handle:      handle,
		sink:        sink,
		dispatcher:  dispatcher,
		hooks:       hooks,
		logger:      logger,
		toolTimeout: DefaultToolTimeout,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Opening turn: the prompt dictates the greeting for this token.
	if err := handle.CreateUserItem(SessionStartToken); err != nil {
		handle.Close()
		return nil, fmt.Errorf("realtime: create opening item: %w", err)
	}
	if err := handle.CreateResponse(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("realtime: request opening response: %w", err)
	}

	go s.pump(ctx)
	return s, nil
}

// SendAudio forwards one PCM16 model-rate chunk from the caller upstream.
func (s *Session) SendAudio(pcm []byte) error {
	return s.handle.AppendAudio(pcm)
}

// Done is closed when the event pump has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close tears down the upstream session. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.handle.Close()
}

func (s *Session) pump(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.handle.Events():
			if !ok {
				if err := s.handle.Err(); err != nil {
					s.logger.Warn("upstream session ended with error", "err", err)
				}
				return
			}
			s.handleEvent(ctx, evt)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, evt rt.Event) {
	switch evt.Type {
	case rt.EventSpeechStarted:
		s.handleBargeIn()

	case rt.EventSpeechStopped:
		if s.hooks.OnSpeechStopped != nil {
			s.hooks.OnSpeechStopped()
		}

	case rt.EventUserTranscript:
		s.logger.Debug("user transcript", "text", evt.Text)
		if s.hooks.OnUserTranscript != nil {
			if ack := s.hooks.OnUserTranscript(evt.Text); ack != "" {
				if err := s.handle.CreateUserItem(ack); err != nil {
					s.logger.Warn("failed to inject transcript acknowledgement", "err", err)
				}
			}
		}

	case rt.EventAudioDelta:
		// First delta of a new response ends any barge-in suppression.
		if evt.ResponseID != "" && evt.ResponseID != s.lastAudioResponse {
			s.lastAudioResponse = evt.ResponseID
			s.suppressAudio = false
		}
		if s.suppressAudio {
			return
		}
		s.sink.EnqueueOut(evt.Audio)

	case rt.EventTranscriptDelta:
		if s.hooks.OnAssistantDelta != nil {
			s.hooks.OnAssistantDelta(evt.Text)
		}

	case rt.EventTranscriptDone:
		s.logger.Debug("assistant transcript", "text", evt.Text)
		if s.hooks.OnAssistantTranscript != nil {
			s.hooks.OnAssistantTranscript(evt.Text)
		}

	case rt.EventFunctionCall:
		s.handleFunctionCall(ctx, evt)

	case rt.EventResponseCreated:
		s.activeResponseID = evt.ResponseID

	case rt.EventResponseDone:
		s.activeResponseID = ""
		s.suppressAudio = false

	case rt.EventError:
		err := evt.Err
		if err == nil {
			err = errors.New(evt.Text)
		}
		s.logger.Warn("upstream error event", "err", err)
		if s.hooks.OnError != nil {
			s.hooks.OnError(err)
		}
	}
}

// handleBargeIn implements the strict interruption sequence: cancel the
// in-flight response upstream, clear the bridge's buffered audio, then
// suppress deltas until a fresh response starts.
func (s *Session) handleBargeIn() {
	if s.activeResponseID != "" {
		if err := s.handle.CancelResponse(s.activeResponseID); err != nil {
			// Cancelling a finished response is a no-op upstream; only log.
			s.logger.Debug("cancel response failed", "response_id", s.activeResponseID, "err", err)
		}
		// The cancelled response may not have produced audio yet. Marking it
		// as seen keeps its late deltas from lifting suppression.
		s.lastAudioResponse = s.activeResponseID
	}
	s.sink.Interrupt()
	s.suppressAudio = true
	s.activeResponseID = ""
}

// handleFunctionCall dispatches one tool call inline with a bounded budget,
// sends the output back, and explicitly requests the follow-up response so
// the model speaks the result.
func (s *Session) handleFunctionCall(ctx context.Context, evt rt.Event) {
	log := s.logger.With("tool", evt.Name, "call_id", evt.CallID)
	log.Info("dispatching tool call")

	output := toolTimeoutResult
	if s.dispatcher == nil {
		output = `{"success":false,"message":"This capability is not available right now."}`
	} else {
		toolCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
		result, err := s.dispatcher.Dispatch(toolCtx, evt.Name, evt.Arguments)
		cancel()
		switch {
		case err == nil:
			output = result
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("tool call timed out")
		default:
			log.Warn("tool call failed", "err", err)
			output = `{"success":false,"message":"I wasn't able to complete that just now. Could you try once more, or I can have someone call you back."}`
		}
	}

	if err := s.handle.CreateFunctionOutput(evt.CallID, output); err != nil {
		log.Warn("failed to send tool output", "err", err)
		return
	}
	if err := s.handle.CreateResponse(); err != nil {
		log.Warn("failed to request follow-up response", "err", err)
	}
}
