// Package audio provides the codec and resampling primitives for the two
// audio legs of a call: the carrier leg (G.711 μ-law, 8 kHz, 160-byte frames
// every 20 ms) and the model leg (16-bit linear PCM at 24 kHz).
package audio

import "time"

const (
	// CarrierRate is the sample rate of the telephony leg in Hz.
	CarrierRate = 8000

	// ModelRate is the sample rate of the realtime model leg in Hz.
	ModelRate = 24000

	// FrameDuration is the cadence of carrier media frames.
	FrameDuration = 20 * time.Millisecond

	// FrameBytes is the size of one carrier μ-law frame: 20 ms at 8 kHz,
	// one byte per sample.
	FrameBytes = 160

	// UlawSilence is the μ-law byte representing a zero (silent) sample.
	UlawSilence = 0xFF
)

// Direction indicates which way audio is travelling through the bridge.
type Direction int

const (
	// Inbound audio travels carrier → model.
	Inbound Direction = iota

	// Outbound audio travels model → carrier.
	Outbound
)

// Frame is a chunk of audio with its encoding metadata. Data holds μ-law
// bytes when SampleRate is CarrierRate and little-endian int16 PCM otherwise.
type Frame struct {
	Data       []byte
	SampleRate int
	Direction  Direction
}
