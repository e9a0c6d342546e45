// Package httpapi assembles the gateway's HTTP surface: the carrier webhook
// and media stream, the text-mode API, and the operational endpoints.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxgate-io/voxgate/internal/health"
	"github.com/voxgate-io/voxgate/internal/observe"
)

// Deps carries the handlers the router mounts. Signaling and Media come from
// the carrier package; Text is nil when the text API is not configured.
type Deps struct {
	// Signaling answers the carrier's inbound-call webhook (POST /voice).
	Signaling http.Handler

	// Media upgrades the carrier's audio stream (GET /media).
	Media http.Handler

	// Health serves /healthz and /readyz.
	Health *health.Handler

	// Text serves the text-mode API. Nil disables the /api routes.
	Text *TextAPI

	// Metrics drives the request-duration middleware. Nil uses the
	// package default instruments.
	Metrics *observe.Metrics
}

// NewRouter builds the chi router for the gateway.
//
// The media stream route skips the observe middleware: a metrics span per
// multi-minute WebSocket would record connection lifetime, not request
// latency, and the bridge has its own instruments.
func NewRouter(deps Deps) chi.Router {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	if deps.Media != nil {
		r.Method(http.MethodGet, "/media", deps.Media)
	}

	r.Group(func(r chi.Router) {
		r.Use(observe.Middleware(deps.Metrics))

		if deps.Signaling != nil {
			r.Method(http.MethodPost, "/voice", deps.Signaling)
		}
		if deps.Text != nil {
			deps.Text.Register(r)
		}
		if deps.Health != nil {
			deps.Health.Register(r)
		}
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	return r
}
