// Package carrier implements the telephony-facing surfaces: the call-setup
// webhook, the media stream WebSocket, and the call-redirect hook.
package carrier

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/voxgate-io/voxgate/internal/tenant"
)

const (
	defaultRateRPS   = 5
	defaultRateBurst = 10
)

// TwiML response types for the signaling answer. The carrier reads the XML
// body of a 200 response as call instructions; error statuses trigger carrier
// retries, so every outcome is delivered as a spoken 200.
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     string        `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
	Hangup  *struct{}     `xml:"Hangup,omitempty"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// SignalingHandler answers the carrier's call-setup POST with a streaming
// directive pointing at the media WebSocket endpoint.
type SignalingHandler struct {
	registry   *tenant.Registry
	publicHost string
	authToken  string
	logger     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SignalingOption configures a [SignalingHandler].
type SignalingOption func(*SignalingHandler)

// WithSignatureSecret enables webhook signature validation with the carrier
// auth token. Requests with a missing or wrong signature are rejected.
func WithSignatureSecret(token string) SignalingOption {
	return func(h *SignalingHandler) {
		h.authToken = token
	}
}

// WithRateLimit overrides the per-IP request rate limit.
func WithRateLimit(rps float64, burst int) SignalingOption {
	return func(h *SignalingHandler) {
		if rps > 0 {
			h.rps = rate.Limit(rps)
		}
		if burst > 0 {
			h.burst = burst
		}
	}
}

// NewSignalingHandler creates the call-setup handler. publicHost is the
// externally reachable hostname baked into the wss:// stream URL.
func NewSignalingHandler(registry *tenant.Registry, publicHost string, logger *slog.Logger, opts ...SignalingOption) (*SignalingHandler, error) {
	if registry == nil {
		return nil, fmt.Errorf("carrier: registry must not be nil")
	}
	if publicHost == "" {
		return nil, fmt.Errorf("carrier: publicHost must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &SignalingHandler{
		registry:   registry,
		publicHost: publicHost,
		logger:     logger,
		limiters:   make(map[string]*ipLimiter),
		rps:        defaultRateRPS,
		burst:      defaultRateBurst,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP implements the POST /voice webhook.
func (h *SignalingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.allow(clientIP(r)) {
		h.logger.Warn("signaling request rate limited", "remote", r.RemoteAddr)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if h.authToken != "" && !h.validSignature(r) {
		h.logger.Warn("signaling request failed signature validation", "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	from := r.PostForm.Get("From")
	to := r.PostForm.Get("To")
	callSID := r.PostForm.Get("CallSid")

	log := h.logger.With("call_sid", callSID, "from", from, "to", to)

	if !h.registry.Initialized() {
		log.Warn("rejecting call: tenant registry not ready")
		h.writeTwiML(w, twimlResponse{
			Say:    "We are temporarily unable to take your call. Please try again in a few minutes.",
			Hangup: &struct{}{},
		})
		return
	}

	biz, ok := h.registry.BusinessFromNumber(to)
	if !ok {
		log.Warn("rejecting call: no business bound to number")
		h.writeTwiML(w, twimlResponse{
			Say:    "This number is not currently in service. Goodbye.",
			Hangup: &struct{}{},
		})
		return
	}

	log.Info("accepting call", "business_id", biz.ID)

	h.writeTwiML(w, twimlResponse{
		Connect: &twimlConnect{
			Stream: twimlStream{
				URL: fmt.Sprintf("wss://%s/media", h.publicHost),
				Parameters: []twimlParameter{
					{Name: "businessId", Value: biz.ID},
					{Name: "from", Value: from},
					{Name: "to", Value: to},
				},
			},
		},
	})
}

func (h *SignalingHandler) writeTwiML(w http.ResponseWriter, resp twimlResponse) {
	body, err := xml.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to marshal signaling response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	w.Write(body)
}

// validSignature checks the carrier HMAC-SHA1 signature: base64 of the HMAC
// over the full request URL concatenated with the sorted POST parameters.
func (h *SignalingHandler) validSignature(r *http.Request) bool {
	got := r.Header.Get("X-Twilio-Signature")
	if got == "" {
		return false
	}
	want := ComputeSignature(h.authToken, requestURL(r), r.PostForm)
	return hmac.Equal([]byte(got), []byte(want))
}

// ComputeSignature builds the carrier webhook signature for a URL and form.
func ComputeSignature(authToken, rawURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(rawURL))
	for _, k := range keys {
		mac.Write([]byte(k))
		for _, v := range form[k] {
			mac.Write([]byte(v))
		}
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
			scheme = fwd
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// allow applies the per-IP token bucket, pruning idle entries as it goes.
func (h *SignalingHandler) allow(ip string) bool {
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	for k, v := range h.limiters {
		if now.Sub(v.lastSeen) > 10*time.Minute {
			delete(h.limiters, k)
		}
	}

	l, ok := h.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(h.rps, h.burst)}
		h.limiters[ip] = l
	}
	l.lastSeen = now
	return l.limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
