// Package realtime defines the Provider interface for realtime
// speech-to-speech model backends.
//
// A realtime provider wraps a voice model service that accepts streamed PCM16
// audio input and returns synthesised audio output over a single stateful
// session, together with transcripts, voice-activity notifications, and tool
// calls. The central abstraction is SessionHandle: a long-lived bidirectional
// session whose server-side activity is surfaced as a single ordered Event
// stream.
//
// All implementations must be safe for concurrent use.
package realtime

import "context"

// ToolDefinition describes one function tool offered to the model. Parameters
// is a JSON-schema object ({"type":"object","properties":{...}}).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// SessionConfig is the initial configuration for a new realtime session.
type SessionConfig struct {
	// Voice selects the synthesised output voice (provider-specific ID).
	Voice string

	// Instructions is the system-level prompt governing the assistant's
	// persona and behaviour for the whole session.
	Instructions string

	// Tools is the set of function tools the model may invoke. Tool calls
	// arrive as EventFunctionCall events; the caller answers them with
	// SessionHandle.CreateFunctionOutput.
	Tools []ToolDefinition

	// Temperature is the model sampling temperature. Zero means the
	// provider default.
	Temperature float64

	// VADThreshold tunes server-side voice activity detection sensitivity
	// in [0,1]. Zero means the provider default.
	VADThreshold float64

	// PrefixPaddingMs is the audio retained before detected speech onset.
	// Zero means the provider default.
	PrefixPaddingMs int

	// SilenceDurationMs is the trailing silence that ends a user turn.
	// Zero means the provider default.
	SilenceDurationMs int

	// TranscriptionModel enables transcription of caller audio when
	// non-empty (e.g., "whisper-1"). Transcripts arrive as
	// EventUserTranscript events.
	TranscriptionModel string
}

// EventType discriminates Event values.
type EventType string

const (
	// EventSpeechStarted: server VAD detected the caller starting to speak.
	EventSpeechStarted EventType = "speech_started"
	// EventSpeechStopped: server VAD detected the caller's turn ending.
	EventSpeechStopped EventType = "speech_stopped"
	// EventUserTranscript: a finalized transcription of caller audio (Text).
	EventUserTranscript EventType = "user_transcript"
	// EventAudioDelta: a chunk of synthesised PCM16 output audio (Audio).
	EventAudioDelta EventType = "audio_delta"
	// EventTranscriptDelta: an incremental piece of the assistant's spoken
	// text (Text).
	EventTranscriptDelta EventType = "transcript_delta"
	// EventTranscriptDone: the complete text of one assistant utterance (Text).
	EventTranscriptDone EventType = "transcript_done"
	// EventFunctionCall: the model requests a tool invocation
	// (Name, Arguments, CallID).
	EventFunctionCall EventType = "function_call"
	// EventResponseCreated: the model began generating a response (ResponseID).
	EventResponseCreated EventType = "response_created"
	// EventResponseDone: the model finished or aborted a response (ResponseID).
	EventResponseDone EventType = "response_done"
	// EventError: the provider reported an in-session error (Err). The
	// session remains open unless the transport also fails.
	EventError EventType = "error"
)

// Event is one notification from the provider. Only the fields relevant to
// its Type are populated.
type Event struct {
	Type EventType

	// Audio holds decoded PCM16 bytes for EventAudioDelta.
	Audio []byte

	// Text holds transcript content for the transcript event types.
	Text string

	// ResponseID identifies the model response an event belongs to.
	ResponseID string

	// CallID, Name and Arguments describe an EventFunctionCall. Arguments
	// is the raw JSON argument string.
	CallID    string
	Name      string
	Arguments string

	// Err carries the provider error for EventError.
	Err error
}

// SessionHandle represents an open realtime session.
//
// The session is the hot path of a live call, so every method must return
// quickly; output is channel-based to keep the caller's audio loop from
// blocking. All methods are safe for concurrent use. Callers must call Close
// when the session is no longer needed.
type SessionHandle interface {
	// AppendAudio streams a chunk of PCM16 caller audio to the model's
	// input buffer. The chunk must match the negotiated input format.
	AppendAudio(chunk []byte) error

	// CommitAudio finalises the pending input buffer as one user turn.
	// Only needed when server-side turn detection is disabled.
	CommitAudio() error

	// CreateUserItem appends a synthetic user text message to the
	// conversation without sending audio.
	CreateUserItem(text string) error

	// CreateFunctionOutput answers a previously surfaced function call.
	// output is the raw JSON result string.
	CreateFunctionOutput(callID, output string) error

	// CreateResponse asks the model to generate a response now. Required
	// after CreateUserItem or CreateFunctionOutput; audio turns trigger
	// responses automatically under server VAD.
	CreateResponse() error

	// CancelResponse aborts an in-progress model response. An empty
	// responseID cancels whatever response is currently active. Cancelling
	// a response that already finished is a provider-side no-op.
	CancelResponse(responseID string) error

	// Events returns the ordered stream of session events. The channel is
	// closed when the session ends; consumers must drain it promptly to
	// keep the provider's receive loop from stalling. After it closes,
	// check Err for the terminating error.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil after a
	// clean shutdown.
	Err() error

	// Close terminates the session and closes the Events channel.
	// Idempotent.
	Close() error
}

// Provider is the abstraction over any realtime speech backend.
//
// Implementations must be safe for concurrent use; the gateway opens one
// session per active call.
type Provider interface {
	// Connect establishes a new session with the given configuration. The
	// returned handle is ready to accept audio immediately. The caller owns
	// the handle and must call Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
