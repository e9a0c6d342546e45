package bridge_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/voxgate-io/voxgate/internal/bridge"
	"github.com/voxgate-io/voxgate/pkg/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type mockSender struct {
	mu     sync.Mutex
	frames [][]byte
	sent   chan struct{}
}

func newMockSender() *mockSender {
	return &mockSender{sent: make(chan struct{}, 256)}
}

func (m *mockSender) SendFrame(ulaw []byte) error {
	m.mu.Lock()
	cp := make([]byte, len(ulaw))
	copy(cp, ulaw)
	m.frames = append(m.frames, cp)
	m.mu.Unlock()
	m.sent <- struct{}{}
	return nil
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// pcm24 returns a silent model-rate chunk of the given sample count.
func pcm24(samples int) []byte {
	return make([]byte, samples*2)
}

func newBridge(t *testing.T, sender bridge.FrameSender, opts ...bridge.Option) *bridge.Bridge {
	t.Helper()
	b, err := bridge.New(sender, testLogger(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

// TestTranscodeIn_DurationSymmetry: a 20 ms carrier frame yields 20 ms of
// model-rate PCM.
func TestTranscodeIn_DurationSymmetry(t *testing.T) {
	t.Parallel()
	b := newBridge(t, newMockSender())

	out := b.TranscodeIn(audio.SilentFrame())
	if len(out) != 960 {
		t.Errorf("TranscodeIn(160 ulaw bytes) = %d bytes, want 960 (20 ms at 24 kHz)", len(out))
	}
	if b.TranscodeIn(nil) != nil {
		t.Error("empty frame should transcode to nil")
	}
}

// TestEnqueueOut_FramingAndRemainder slices μ-law output into 160-byte frames
// and carries leftover bytes into the next chunk.
func TestEnqueueOut_FramingAndRemainder(t *testing.T) {
	t.Parallel()
	b := newBridge(t, newMockSender())

	// 1440 model samples → 480 μ-law bytes → exactly 3 frames.
	b.EnqueueOut(pcm24(1440))
	if got := b.QueueLen(); got != 3 {
		t.Fatalf("QueueLen after whole frames = %d, want 3", got)
	}

	// 1200 model samples → 400 μ-law bytes → 2 frames + 80-byte remainder.
	b.EnqueueOut(pcm24(1200))
	if got := b.QueueLen(); got != 5 {
		t.Fatalf("QueueLen = %d, want 5", got)
	}

	// Another 400 μ-law bytes: remainder 80 + 400 = 3 frames, no leftover.
	b.EnqueueOut(pcm24(1200))
	if got := b.QueueLen(); got != 8 {
		t.Errorf("QueueLen = %d, want 8 (remainder must carry over)", got)
	}
}

// TestInterrupt_ClearsQueueAndRemainder drops all buffered audio including
// the partial frame.
func TestInterrupt_ClearsQueueAndRemainder(t *testing.T) {
	t.Parallel()
	b := newBridge(t, newMockSender())

	b.EnqueueOut(pcm24(1200)) // 2 frames + 80-byte remainder
	if b.QueueLen() != 2 {
		t.Fatalf("QueueLen = %d, want 2", b.QueueLen())
	}

	b.Interrupt()
	if b.QueueLen() != 0 {
		t.Errorf("QueueLen after Interrupt = %d, want 0", b.QueueLen())
	}

	// If the remainder survived the interrupt this would produce 3 frames.
	b.EnqueueOut(pcm24(1200))
	if got := b.QueueLen(); got != 2 {
		t.Errorf("QueueLen after re-enqueue = %d, want 2 (remainder must be reset)", got)
	}
}

// TestPacer_DrainsQueueInOrder emits queued frames one per tick.
func TestPacer_DrainsQueueInOrder(t *testing.T) {
	t.Parallel()
	sender := newMockSender()
	b := newBridge(t, sender)

	b.EnqueueOut(pcm24(1440)) // 3 frames

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	deadline := time.After(2 * time.Second)
	for i := 0; i < 3; i++ {
		select {
		case <-sender.sent:
		case <-deadline:
			t.Fatalf("pacer emitted %d frames, want 3", sender.count())
		}
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i, frame := range sender.frames {
		if len(frame) != audio.FrameBytes {
			t.Errorf("frame %d is %d bytes, want %d", i, len(frame), audio.FrameBytes)
		}
	}
	if b.QueueLen() != 0 {
		t.Errorf("QueueLen after drain = %d, want 0", b.QueueLen())
	}
}

// TestQueueOverflow_DropsOldest bounds the queue and counts drops.
func TestQueueOverflow_DropsOldest(t *testing.T) {
	t.Parallel()
	b := newBridge(t, newMockSender(), bridge.WithQueueCapacity(2))

	b.EnqueueOut(pcm24(1440)) // 3 frames into a 2-frame queue
	if got := b.QueueLen(); got != 2 {
		t.Errorf("QueueLen = %d, want 2", got)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

// TestStop_Idempotent allows repeated Stop calls.
func TestStop_Idempotent(t *testing.T) {
	t.Parallel()
	b := newBridge(t, newMockSender())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	b.Stop()
	b.Stop()
}

// TestNew_Validation rejects a nil sender.
func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := bridge.New(nil, testLogger()); err == nil {
		t.Error("expected error for nil sender")
	}
}
