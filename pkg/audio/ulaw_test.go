package audio

import (
	"bytes"
	"testing"
)

func TestDecodeUlaw_Length(t *testing.T) {
	t.Parallel()

	in := make([]byte, FrameBytes)
	for i := range in {
		in[i] = UlawSilence
	}
	out := DecodeUlaw(in)
	if len(out) != FrameBytes*2 {
		t.Fatalf("decoded %d bytes, want %d", len(out), FrameBytes*2)
	}
}

func TestDecodeUlaw_Empty(t *testing.T) {
	t.Parallel()

	if out := DecodeUlaw(nil); out != nil {
		t.Fatalf("DecodeUlaw(nil) = %v, want nil", out)
	}
}

func TestEncodeUlaw_OddInputDropsTrailingByte(t *testing.T) {
	t.Parallel()

	out := EncodeUlaw(make([]byte, 5))
	if len(out) != 2 {
		t.Fatalf("encoded %d bytes, want 2", len(out))
	}
}

// Silence must survive a full μ-law → PCM → μ-law round trip: the telephone
// idle pattern 0xFF decodes to zero samples, and zero samples encode back to
// 0xFF.
func TestUlaw_SilenceRoundTrip(t *testing.T) {
	t.Parallel()

	silent := SilentFrame()
	pcm := DecodeUlaw(silent)
	for i := 0; i < len(pcm); i += 2 {
		if pcm[i] != 0 || pcm[i+1] != 0 {
			t.Fatalf("sample %d decoded to non-zero: %x %x", i/2, pcm[i], pcm[i+1])
		}
	}

	back := EncodeUlaw(pcm)
	if !bytes.Equal(back, silent) {
		t.Fatalf("re-encoded silence differs from μ-law idle pattern")
	}
}

// Repeated encode/decode must converge: after the first round trip the byte
// sequence is a fixed point of the codec.
func TestUlaw_RoundTripConverges(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 320)
	for i := 0; i < len(pcm); i += 2 {
		v := int16((i * 97) % 20000)
		pcm[i] = byte(v)
		pcm[i+1] = byte(v >> 8)
	}

	first := EncodeUlaw(pcm)
	second := EncodeUlaw(DecodeUlaw(first))
	if !bytes.Equal(first, second) {
		t.Fatalf("second round trip produced different μ-law bytes")
	}
}
