package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/internal/convo"
	"github.com/voxgate-io/voxgate/internal/tenant"
	"github.com/voxgate-io/voxgate/pkg/provider/stt"
	"github.com/voxgate-io/voxgate/pkg/provider/tts"
)

// maxAudioUpload bounds the /api/transcribe request body. A minute of PCM16
// at 16 kHz is under 2 MB; ten is generous.
const maxAudioUpload = 10 << 20

// TurnResolver returns the turn processor for one business, or false when
// the business does not exist or has no text path configured.
type TurnResolver func(businessID string) (*convo.TurnProcessor, bool)

// TextAPI serves the text-mode endpoints. Clients that cannot carry a phone
// call upload audio (or text) per turn and receive the reply as text plus
// synthesized speech. Sessions live in the same store the voice path uses.
type TextAPI struct {
	transcriber stt.Transcriber
	synthesizer tts.Synthesizer
	voice       tts.VoiceProfile
	registry    *tenant.Registry
	store       *convo.Store
	turns       TurnResolver
	logger      *slog.Logger
}

// NewTextAPI creates the text-mode API. All dependencies are required.
func NewTextAPI(transcriber stt.Transcriber, synthesizer tts.Synthesizer, voice tts.VoiceProfile,
	registry *tenant.Registry, store *convo.Store, turns TurnResolver, logger *slog.Logger) (*TextAPI, error) {
	if transcriber == nil || synthesizer == nil {
		return nil, errors.New("httpapi: text API needs a transcriber and a synthesizer")
	}
	if registry == nil || store == nil || turns == nil {
		return nil, errors.New("httpapi: text API needs registry, store, and turn resolver")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TextAPI{
		transcriber: transcriber,
		synthesizer: synthesizer,
		voice:       voice,
		registry:    registry,
		store:       store,
		turns:       turns,
		logger:      logger,
	}, nil
}

// Register adds the /api routes to r.
func (t *TextAPI) Register(r chi.Router) {
	r.Post("/api/transcribe", t.handleTranscribe)
	r.Post("/api/process", t.handleProcess)
	r.Post("/api/synthesize", t.handleSynthesize)
}

type transcribeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// handleTranscribe accepts a raw audio clip and returns the transcript.
// Audio format is described in query parameters: encoding, sample_rate,
// language.
func (t *TextAPI) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	audio, err := io.ReadAll(io.LimitReader(r.Body, maxAudioUpload+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read audio body")
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "audio body is empty")
		return
	}
	if len(audio) > maxAudioUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "audio body exceeds limit")
		return
	}

	cfg := stt.AudioConfig{
		Encoding: r.URL.Query().Get("encoding"),
		Language: r.URL.Query().Get("language"),
	}
	if v := r.URL.Query().Get("sample_rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			writeError(w, http.StatusBadRequest, "sample_rate must be a positive integer")
			return
		}
		cfg.SampleRate = rate
	}

	res, err := t.transcriber.Transcribe(r.Context(), audio, cfg)
	if err != nil {
		t.logger.Error("transcription failed", "error", err)
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{Text: res.Text, Confidence: res.Confidence})
}

type processRequest struct {
	SessionID  string `json:"session_id"`
	BusinessID string `json:"business_id"`
	From       string `json:"from"`
	Text       string `json:"text"`
}

type processResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	EndCall   bool   `json:"end_call,omitempty"`
}

// handleProcess runs one conversation turn. An empty session_id starts a new
// session; the returned session_id carries the conversation across turns.
func (t *TextAPI) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	sess, biz, err := t.resolveSession(&req)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	turns, ok := t.turns(biz.ID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("business %q has no text path", biz.ID))
		return
	}

	reply, effects, err := turns.ProcessTurn(r.Context(), sess, tenant.Instructions(biz), req.Text)
	if err != nil {
		t.logger.Error("turn processing failed",
			"session_id", sess.CallID, "business_id", biz.ID, "error", err)
		writeError(w, http.StatusBadGateway, "turn processing failed")
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		SessionID: sess.CallID,
		Reply:     reply,
		EndCall:   effects.EndCall,
	})
}

// resolveSession finds the existing session or starts a new one for the
// named business.
func (t *TextAPI) resolveSession(req *processRequest) (*convo.Session, *config.BusinessConfig, error) {
	if req.SessionID != "" {
		sess, ok := t.store.Get(req.SessionID)
		if !ok {
			return nil, nil, fmt.Errorf("session %q not found or expired", req.SessionID)
		}
		biz, ok := t.registry.Get(sess.BusinessID)
		if !ok {
			return nil, nil, fmt.Errorf("business %q no longer exists", sess.BusinessID)
		}
		return sess, biz, nil
	}

	biz, ok := t.registry.Get(req.BusinessID)
	if !ok {
		return nil, nil, fmt.Errorf("business %q not found", req.BusinessID)
	}
	sess, err := t.store.Create("text-"+uuid.NewString(), biz.ID, req.From, "")
	if err != nil {
		return nil, nil, err
	}
	return sess, biz, nil
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// handleSynthesize renders text as raw PCM16 audio.
func (t *TextAPI) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := t.synthesizer.Synthesize(r.Context(), req.Text, t.voice)
	if err != nil {
		t.logger.Error("synthesis failed", "error", err)
		writeError(w, http.StatusBadGateway, "synthesis failed")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
