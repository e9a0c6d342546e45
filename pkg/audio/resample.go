package audio

import "math"

// The carrier and model legs run at a fixed 1:3 rate ratio (8 kHz ↔ 24 kHz),
// so resampling is done with a polyphase windowed-sinc filter designed once
// at package init. The filter cuts off below the 4 kHz Nyquist limit of the
// telephone leg; the Blackman window keeps stopband ripple inaudible on
// speech material.

const (
	rateRatio = ModelRate / CarrierRate // 3

	// filterTaps is the total FIR length. Must be a multiple of rateRatio so
	// the polyphase split is even.
	filterTaps = 48

	tapsPerPhase = filterTaps / rateRatio

	// cutoffHz keeps a transition band before the 4 kHz telephone Nyquist.
	cutoffHz = 3600.0
)

// phases holds the polyphase decomposition used for upsampling; kernel holds
// the full filter used for decimation. Both are normalised for unity DC gain.
var (
	phases [rateRatio][tapsPerPhase]float64
	kernel [filterTaps]float64
)

func init() {
	fc := cutoffHz / ModelRate
	center := float64(filterTaps-1) / 2

	var sum float64
	for n := 0; n < filterTaps; n++ {
		x := float64(n) - center
		var v float64
		if x == 0 {
			v = 2 * fc
		} else {
			v = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}
		// Blackman window.
		w := 0.42 -
			0.5*math.Cos(2*math.Pi*float64(n)/float64(filterTaps-1)) +
			0.08*math.Cos(4*math.Pi*float64(n)/float64(filterTaps-1))
		kernel[n] = v * w
		sum += kernel[n]
	}
	for n := range kernel {
		kernel[n] /= sum
	}

	// Polyphase split: phase p takes taps p, p+3, p+6, … and is normalised
	// independently so every output phase has unity gain.
	for p := 0; p < rateRatio; p++ {
		var psum float64
		for k := 0; k < tapsPerPhase; k++ {
			phases[p][k] = kernel[p+k*rateRatio]
			psum += phases[p][k]
		}
		for k := range phases[p] {
			phases[p][k] /= psum
		}
	}
}

// Upsampler converts 8 kHz int16 PCM to 24 kHz. It carries filter history
// across calls, so create one per stream and feed it chunks in order.
// Not safe for concurrent use.
type Upsampler struct {
	hist [tapsPerPhase - 1]int16
}

// NewUpsampler returns an Upsampler primed with silence.
func NewUpsampler() *Upsampler { return &Upsampler{} }

// Process converts one chunk of 8 kHz PCM to 24 kHz PCM. Every input sample
// yields exactly three output samples, so a 20 ms chunk in is a 20 ms chunk
// out.
func (u *Upsampler) Process(pcm []byte) []byte {
	in := bytesToInt16(pcm)
	if len(in) == 0 {
		return nil
	}

	out := make([]byte, len(in)*rateRatio*2)
	for i := range in {
		for p := 0; p < rateRatio; p++ {
			var acc float64
			for k := 0; k < tapsPerPhase; k++ {
				var x int16
				if idx := i - k; idx >= 0 {
					x = in[idx]
				} else {
					x = u.hist[len(u.hist)+idx]
				}
				acc += phases[p][k] * float64(x)
			}
			putInt16(out, (i*rateRatio+p)*2, clamp16(acc))
		}
	}

	u.shiftHistory(in)
	return out
}

func (u *Upsampler) shiftHistory(in []int16) {
	n := len(u.hist)
	if len(in) >= n {
		copy(u.hist[:], in[len(in)-n:])
		return
	}
	copy(u.hist[:], u.hist[len(in):])
	copy(u.hist[n-len(in):], in)
}

// Downsampler converts 24 kHz int16 PCM to 8 kHz. Like Upsampler it is
// stateful: filter history and sub-ratio remainders carry across calls.
// Not safe for concurrent use.
type Downsampler struct {
	hist    [filterTaps - 1]int16
	pending []int16
}

// NewDownsampler returns a Downsampler primed with silence.
func NewDownsampler() *Downsampler { return &Downsampler{} }

// Process converts one chunk of 24 kHz PCM to 8 kHz PCM. Input samples that
// do not fill a whole decimation group are held until the next call, so total
// output duration tracks total input duration to within one sample.
func (d *Downsampler) Process(pcm []byte) []byte {
	in := append(d.pending, bytesToInt16(pcm)...)
	groups := len(in) / rateRatio
	if groups == 0 {
		d.pending = in
		return nil
	}
	consumed := in[:groups*rateRatio]
	d.pending = append([]int16(nil), in[groups*rateRatio:]...)

	out := make([]byte, groups*2)
	for j := 0; j < groups; j++ {
		pos := j*rateRatio + (rateRatio - 1)
		var acc float64
		for k := 0; k < filterTaps; k++ {
			var x int16
			if idx := pos - k; idx >= 0 {
				x = consumed[idx]
			} else {
				x = d.hist[len(d.hist)+idx]
			}
			acc += kernel[k] * float64(x)
		}
		putInt16(out, j*2, clamp16(acc))
	}

	n := len(d.hist)
	if len(consumed) >= n {
		copy(d.hist[:], consumed[len(consumed)-n:])
	} else {
		copy(d.hist[:], d.hist[len(consumed):])
		copy(d.hist[n-len(consumed):], consumed)
	}
	return out
}

// ResampleLinear16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. It is the degraded-mode path for rate pairs outside
// the fixed carrier/model ratio; quality is acceptable for prompt playback
// but below the polyphase path used on live calls.
func ResampleLinear16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := clamp16(float64(s0)*(1-frac) + float64(s1)*frac)
		putInt16(out, i*2, interpolated)
	}
	return out
}

func bytesToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

func putInt16(buf []byte, off int, v int16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}

func clamp16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
