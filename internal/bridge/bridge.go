// Package bridge transcodes and paces audio between the carrier leg (μ-law
// 8 kHz, 160-byte frames at 20 ms) and the realtime model leg (PCM16 24 kHz).
//
// One bridge instance serves one call. Inbound transcoding runs on the media
// loop goroutine; outbound chunks arrive from the realtime event pump; a
// single pacer goroutine drains the frame queue toward the carrier.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxgate-io/voxgate/pkg/audio"
)

// DefaultQueueFrames is the pacing queue capacity: 100 frames ≈ 2 s of audio.
const DefaultQueueFrames = 100

// FrameSender delivers one μ-law frame to the carrier.
type FrameSender interface {
	SendFrame(ulaw []byte) error
}

// Bridge owns the per-call transcode state: resampler histories, the μ-law
// remainder, and the outbound pacing queue.
type Bridge struct {
	sender FrameSender
	logger *slog.Logger

	up   *audio.Upsampler
	down *audio.Downsampler

	mu        sync.Mutex
	queue     [][]byte
	remainder []byte
	capacity  int
	dropped   uint64

	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithQueueCapacity overrides the pacing queue size in frames.
func WithQueueCapacity(frames int) Option {
	return func(b *Bridge) {
		if frames > 0 {
			b.capacity = frames
		}
	}
}

// New creates a bridge that emits outbound frames through sender.
func New(sender FrameSender, logger *slog.Logger, opts ...Option) (*Bridge, error) {
	if sender == nil {
		return nil, fmt.Errorf("bridge: sender must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		sender:   sender,
		logger:   logger,
		up:       audio.NewUpsampler(),
		down:     audio.NewDownsampler(),
		capacity: DefaultQueueFrames,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// TranscodeIn converts one carrier μ-law frame to PCM16 at the model rate.
// A 160-byte frame yields 960 bytes (20 ms at 24 kHz).
func (b *Bridge) TranscodeIn(ulaw []byte) []byte {
	if len(ulaw) == 0 {
		return nil
	}
	pcm8 := audio.DecodeUlaw(ulaw)
	return b.up.Process(pcm8)
}

// EnqueueOut converts one model PCM16 chunk to μ-law frames and queues them
// for paced emission. Bytes that do not fill a whole frame are held as the
// remainder and prefixed to the next chunk. When the queue is full the oldest
// frames are dropped.
func (b *Bridge) EnqueueOut(pcm24 []byte) {
	if len(pcm24) == 0 {
		return
	}
	pcm8 := b.down.Process(pcm24)
	ulaw := audio.EncodeUlaw(pcm8)
	if len(ulaw) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	buf := append(b.remainder, ulaw...)
	var frames [][]byte
	for len(buf) >= audio.FrameBytes {
		frame := make([]byte, audio.FrameBytes)
		copy(frame, buf[:audio.FrameBytes])
		frames = append(frames, frame)
		buf = buf[audio.FrameBytes:]
	}
	b.remainder = append([]byte(nil), buf...)

	for _, frame := range frames {
		if len(b.queue) >= b.capacity {
			b.queue = b.queue[1:]
			b.dropped++
			if b.dropped%50 == 1 {
				b.logger.Warn("pacing queue full, dropping oldest frame", "dropped_total", b.dropped)
			}
		}
		b.queue = append(b.queue, frame)
	}
}

// Interrupt discards every queued frame and the μ-law remainder. Called on
// barge-in before any further outbound audio may be emitted.
func (b *Bridge) Interrupt() {
	b.mu.Lock()
	cleared := len(b.queue)
	b.queue = nil
	b.remainder = nil
	b.mu.Unlock()

	if cleared > 0 {
		b.logger.Debug("pacing queue cleared on interrupt", "frames", cleared)
	}
}

// Start runs the pacer until ctx is cancelled or Stop is called. It emits at
// most one frame per 20 ms tick, in FIFO order.
func (b *Bridge) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(audio.FrameDuration)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-ticker.C:
				frame, ok := b.pop()
				if !ok {
					continue
				}
				if err := b.sender.SendFrame(frame); err != nil {
					b.logger.Warn("failed to send carrier frame", "err", err)
					return
				}
			}
		}
	}()
}

// Stop terminates the pacer. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}

func (b *Bridge) pop() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil, false
	}
	frame := b.queue[0]
	b.queue = b.queue[1:]
	return frame, true
}

// QueueLen returns the number of frames waiting for emission.
func (b *Bridge) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Dropped returns the number of frames discarded to queue overflow.
func (b *Bridge) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
