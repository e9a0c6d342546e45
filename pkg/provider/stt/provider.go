// Package stt defines the Transcriber interface for one-shot speech-to-text.
//
// The live voice path never touches this package; the realtime model consumes
// audio directly. Transcription here serves the text API, where a client
// uploads a complete utterance and waits for the transcript.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// AudioConfig describes the uploaded audio.
type AudioConfig struct {
	// SampleRate is the sample rate in Hz (e.g., 8000, 16000).
	SampleRate int

	// Encoding names the byte layout: "linear16" for little-endian PCM16,
	// "mulaw" for 8-bit μ-law.
	Encoding string

	// Language is the BCP-47 language tag (e.g., "en-US"). Empty lets the
	// provider auto-detect, if supported.
	Language string
}

// Result is a finished transcription.
type Result struct {
	// Text is the full transcript.
	Text string

	// Confidence is the provider's overall confidence in [0,1]. Providers
	// that do not report confidence return 0.
	Confidence float64
}

// Transcriber is the abstraction over any one-shot speech-to-text backend.
type Transcriber interface {
	// Transcribe converts one complete audio clip to text. Returns an error
	// if the request fails or ctx is cancelled first.
	Transcribe(ctx context.Context, audio []byte, cfg AudioConfig) (*Result, error)
}
