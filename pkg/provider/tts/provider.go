// Package tts defines the Synthesizer interface for one-shot text-to-speech.
//
// Like the stt package this serves the text API only; the live voice path
// receives audio straight from the realtime model.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile selects the synthetic voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier. Required.
	ID string

	// Speed adjusts speaking rate around 1.0. Zero means provider default.
	Speed float64
}

// Synthesizer is the abstraction over any one-shot text-to-speech backend.
type Synthesizer interface {
	// Synthesize renders text as raw little-endian PCM16 audio. The sample
	// rate is fixed per provider configuration. Returns an error if the
	// request fails or ctx is cancelled first.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}
