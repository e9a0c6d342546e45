package carrier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// StartInfo carries the per-call parameters relayed by the carrier on the
// media stream's start event.
type StartInfo struct {
	StreamSID  string
	CallSID    string
	AccountSID string

	// Custom parameters set by the signaling directive.
	BusinessID string
	From       string
	To         string
}

// Runtime consumes one call's media events. The media loop calls it from a
// single goroutine; HandleFrame and HandleDTMF never run concurrently.
type Runtime interface {
	// HandleFrame receives one decoded μ-law frame from the caller.
	HandleFrame(frame []byte)

	// HandleDTMF receives one keypad digit.
	HandleDTMF(digit string)

	// Close tears the call down. Called exactly once, on carrier stop or
	// stream error.
	Close(reason string)
}

// RuntimeFactory builds the per-call runtime when a stream starts. The
// returned Runtime pushes outbound audio through out.
type RuntimeFactory func(ctx context.Context, info StartInfo, out *Stream) (Runtime, error)

// Stream is the outbound half of a carrier media WebSocket. Safe for
// concurrent use.
type Stream struct {
	conn *websocket.Conn
	ctx  context.Context

	mu        sync.Mutex
	streamSID string
	closed    bool
}

// carrierMessage is the JSON frame shared by all media stream events.
type carrierMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	DTMF      *dtmfPayload  `json:"dtmf,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type startPayload struct {
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	StreamSID        string            `json:"streamSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type dtmfPayload struct {
	Digit string `json:"digit"`
}

type markPayload struct {
	Name string `json:"name"`
}

// SendFrame emits one μ-law frame to the carrier as a media event tagged
// with the stream identifier.
func (s *Stream) SendFrame(ulaw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("carrier: stream is closed")
	}

	msg := carrierMessage{
		Event:     "media",
		StreamSID: s.streamSID,
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(ulaw)},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("carrier: marshal media event: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// SendMark emits a mark event, used to learn when the carrier finished
// playing previously sent audio.
func (s *Stream) SendMark(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("carrier: stream is closed")
	}

	data, err := json.Marshal(carrierMessage{
		Event:     "mark",
		StreamSID: s.streamSID,
		Mark:      &markPayload{Name: name},
	})
	if err != nil {
		return fmt.Errorf("carrier: marshal mark event: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// StreamSID returns the carrier stream identifier, empty before start.
func (s *Stream) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

func (s *Stream) setStreamSID(sid string) {
	s.mu.Lock()
	s.streamSID = sid
	s.mu.Unlock()
}

func (s *Stream) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// MediaHandler accepts carrier media WebSocket connections and runs the
// per-connection event loop.
type MediaHandler struct {
	factory RuntimeFactory
	logger  *slog.Logger
}

// NewMediaHandler creates the GET /media WebSocket handler.
func NewMediaHandler(factory RuntimeFactory, logger *slog.Logger) (*MediaHandler, error) {
	if factory == nil {
		return nil, fmt.Errorf("carrier: runtime factory must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaHandler{factory: factory, logger: logger}, nil
}

// ServeHTTP upgrades the request and processes media events until the
// carrier stops the stream or the connection drops.
func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The carrier connects server-to-server without an Origin header
		// that matches ours.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("media websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "call ended")

	// Frames can be larger than the default read limit once the carrier
	// batches outbound media acknowledgements.
	conn.SetReadLimit(1 << 20)

	h.run(r.Context(), conn)
}

// run is the per-connection event loop. It owns the runtime lifecycle:
// created on start, closed exactly once on stop or error.
func (h *MediaHandler) run(ctx context.Context, conn *websocket.Conn) {
	stream := &Stream{conn: conn, ctx: ctx}
	log := h.logger

	var rt Runtime
	defer func() {
		stream.markClosed()
		if rt != nil {
			rt.Close("stream closed")
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				log.Info("carrier stream disconnected")
			} else {
				log.Warn("carrier stream read error", "err", err)
			}
			return
		}

		var msg carrierMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("malformed carrier event, skipping", "err", err)
			continue
		}

		switch msg.Event {
		case "connected":
			// Informational preamble before start.

		case "start":
			if msg.Start == nil {
				log.Warn("start event without payload")
				continue
			}
			info := StartInfo{
				StreamSID:  msg.Start.StreamSID,
				CallSID:    msg.Start.CallSID,
				AccountSID: msg.Start.AccountSID,
				BusinessID: msg.Start.CustomParameters["businessId"],
				From:       msg.Start.CustomParameters["from"],
				To:         msg.Start.CustomParameters["to"],
			}
			stream.setStreamSID(info.StreamSID)
			log = h.logger.With("call_sid", info.CallSID, "business_id", info.BusinessID)

			if rt != nil {
				log.Warn("duplicate start event, ignoring")
				continue
			}
			created, err := h.factory(ctx, info, stream)
			if err != nil {
				log.Error("failed to start call runtime", "err", err)
				return
			}
			rt = created
			log.Info("call started", "stream_sid", info.StreamSID, "from", info.From)

		case "media":
			if rt == nil || msg.Media == nil {
				continue
			}
			frame, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				log.Warn("undecodable media payload, skipping frame", "err", err)
				continue
			}
			rt.HandleFrame(frame)

		case "dtmf":
			if rt == nil || msg.DTMF == nil {
				continue
			}
			log.Info("dtmf received", "digit", msg.DTMF.Digit)
			rt.HandleDTMF(msg.DTMF.Digit)

		case "mark":
			// Playback acknowledgement; nothing to do yet.

		case "stop":
			log.Info("carrier stopped stream")
			stream.markClosed()
			if rt != nil {
				rt.Close("carrier stop")
				rt = nil
			}
			return

		default:
			log.Debug("unknown carrier event", "event", msg.Event)
		}
	}
}
