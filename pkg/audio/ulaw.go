package audio

import "github.com/zaf/g711"

// DecodeUlaw converts μ-law bytes to little-endian int16 PCM at the same
// sample rate. Each input byte yields two output bytes.
func DecodeUlaw(ulaw []byte) []byte {
	if len(ulaw) == 0 {
		return nil
	}
	return g711.DecodeUlaw(ulaw)
}

// EncodeUlaw converts little-endian int16 PCM to μ-law bytes. Input with an
// odd byte count has its trailing byte dropped.
func EncodeUlaw(pcm []byte) []byte {
	if len(pcm) < 2 {
		return nil
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return g711.EncodeUlaw(pcm)
}

// SilentFrame returns one carrier frame (160 bytes) of μ-law silence.
func SilentFrame() []byte {
	frame := make([]byte, FrameBytes)
	for i := range frame {
		frame[i] = UlawSilence
	}
	return frame
}
