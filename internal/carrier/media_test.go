package carrier_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxgate-io/voxgate/internal/carrier"
)

// recordingRuntime captures everything the media loop hands to the call runtime.
type recordingRuntime struct {
	mu      sync.Mutex
	frames  [][]byte
	digits  []string
	closed  []string
	started chan struct{}
}

func newRecordingRuntime() *recordingRuntime {
	return &recordingRuntime{started: make(chan struct{})}
}

func (r *recordingRuntime) HandleFrame(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	r.frames = append(r.frames, cp)
}

func (r *recordingRuntime) HandleDTMF(digit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digits = append(r.digits, digit)
}

func (r *recordingRuntime) Close(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, reason)
}

func (r *recordingRuntime) snapshot() (frames int, digits []string, closed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames), append([]string(nil), r.digits...), append([]string(nil), r.closed...)
}

type mediaTestEnv struct {
	conn    *websocket.Conn
	runtime *recordingRuntime
	info    chan carrier.StartInfo
	stream  chan *carrier.Stream
}

func startMediaConn(t *testing.T) *mediaTestEnv {
	t.Helper()

	env := &mediaTestEnv{
		runtime: newRecordingRuntime(),
		info:    make(chan carrier.StartInfo, 1),
		stream:  make(chan *carrier.Stream, 1),
	}

	factory := func(_ context.Context, info carrier.StartInfo, out *carrier.Stream) (carrier.Runtime, error) {
		env.info <- info
		env.stream <- out
		close(env.runtime.started)
		return env.runtime, nil
	}

	h, err := carrier.NewMediaHandler(factory, testLogger())
	if err != nil {
		t.Fatalf("NewMediaHandler: %v", err)
	}
	srv := newWSServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, srv, nil)
	if err != nil {
		t.Fatalf("dial media endpoint: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	env.conn = conn
	return env
}

func sendEvent(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

func startEvent() map[string]any {
	return map[string]any{
		"event": "start",
		"start": map[string]any{
			"accountSid": "AC1",
			"callSid":    "CA123",
			"streamSid":  "MZ456",
			"customParameters": map[string]string{
				"businessId": "rocky-plumbing",
				"from":       "+15552223333",
				"to":         "+15550001111",
			},
		},
	}
}

// TestMedia_StartCreatesRuntime passes stream parameters to the factory.
func TestMedia_StartCreatesRuntime(t *testing.T) {
	t.Parallel()
	env := startMediaConn(t)

	sendEvent(t, env.conn, startEvent())

	select {
	case info := <-env.info:
		if info.StreamSID != "MZ456" || info.CallSID != "CA123" {
			t.Errorf("StartInfo = %+v", info)
		}
		if info.BusinessID != "rocky-plumbing" || info.From != "+15552223333" || info.To != "+15550001111" {
			t.Errorf("custom parameters = %+v", info)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("factory was not invoked")
	}

	stream := <-env.stream
	if stream.StreamSID() != "MZ456" {
		t.Errorf("StreamSID = %q, want MZ456", stream.StreamSID())
	}
}

// TestMedia_FramesAndDTMF decodes media payloads and forwards digits.
func TestMedia_FramesAndDTMF(t *testing.T) {
	t.Parallel()
	env := startMediaConn(t)

	sendEvent(t, env.conn, startEvent())
	<-env.runtime.started

	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = 0xFF
	}
	sendEvent(t, env.conn, map[string]any{
		"event": "media",
		"media": map[string]string{"payload": base64.StdEncoding.EncodeToString(frame)},
	})
	sendEvent(t, env.conn, map[string]any{
		"event": "dtmf",
		"dtmf":  map[string]string{"digit": "#"},
	})
	sendEvent(t, env.conn, map[string]any{"event": "stop"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		frames, digits, closed := env.runtime.snapshot()
		if frames == 1 && len(digits) == 1 && len(closed) == 1 {
			if digits[0] != "#" {
				t.Errorf("digit = %q, want #", digits[0])
			}
			if closed[0] != "carrier stop" {
				t.Errorf("close reason = %q", closed[0])
			}
			env.runtime.mu.Lock()
			got := env.runtime.frames[0]
			env.runtime.mu.Unlock()
			if len(got) != 160 || got[0] != 0xFF {
				t.Errorf("frame = %d bytes, first 0x%02X", len(got), got[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("events not delivered: frames=%d digits=%v closed=%v", frames, digits, closed)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestMedia_MalformedEventSkipped keeps the stream alive after bad JSON.
func TestMedia_MalformedEventSkipped(t *testing.T) {
	t.Parallel()
	env := startMediaConn(t)

	sendEvent(t, env.conn, startEvent())
	<-env.runtime.started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A valid digit after the malformed event proves the loop survived.
	sendEvent(t, env.conn, map[string]any{
		"event": "dtmf",
		"dtmf":  map[string]string{"digit": "5"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, digits, _ := env.runtime.snapshot()
		if len(digits) == 1 && digits[0] == "5" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("dtmf after malformed event was not delivered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestMedia_SendFrame emits a tagged, base64 media event to the carrier.
func TestMedia_SendFrame(t *testing.T) {
	t.Parallel()
	env := startMediaConn(t)

	sendEvent(t, env.conn, startEvent())
	stream := <-env.stream

	frame := make([]byte, 160)
	frame[0] = 0x7F
	if err := stream.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := env.conn.Read(ctx)
	if err != nil {
		t.Fatalf("read outbound event: %v", err)
	}

	var msg struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal outbound event: %v\n%s", err, data)
	}
	if msg.Event != "media" || msg.StreamSID != "MZ456" {
		t.Errorf("outbound event = %+v", msg)
	}
	decoded, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(decoded) != 160 || decoded[0] != 0x7F {
		t.Errorf("payload = %d bytes, first 0x%02X", len(decoded), decoded[0])
	}
}

// TestMedia_DisconnectClosesRuntime closes the runtime when the peer drops.
func TestMedia_DisconnectClosesRuntime(t *testing.T) {
	t.Parallel()
	env := startMediaConn(t)

	sendEvent(t, env.conn, startEvent())
	<-env.runtime.started

	env.conn.Close(websocket.StatusNormalClosure, "caller hung up")

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, _, closed := env.runtime.snapshot()
		if len(closed) == 1 {
			if !strings.Contains(closed[0], "closed") {
				t.Errorf("close reason = %q", closed[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("runtime was not closed on disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
