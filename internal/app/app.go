// Package app wires the gateway subsystems into a running service: tenant
// resolution, per-call runtimes, booking schedulers, the post-call notifier,
// and metrics.
//
// The App struct owns the shared, long-lived pieces. Per-call state lives in
// [Call], built by the runtime factory when the carrier starts a media
// stream. For testing, every dependency arrives through [Deps] and can be a
// mock.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/internal/convo"
	"github.com/voxgate-io/voxgate/internal/notify"
	"github.com/voxgate-io/voxgate/internal/observe"
	"github.com/voxgate-io/voxgate/internal/tenant"
	"github.com/voxgate-io/voxgate/internal/tools"
	"github.com/voxgate-io/voxgate/pkg/provider/calendar"
	"github.com/voxgate-io/voxgate/pkg/provider/llm"
	rt "github.com/voxgate-io/voxgate/pkg/provider/realtime"
	"github.com/voxgate-io/voxgate/pkg/retrieval"
)

// Deps holds everything the App needs. Realtime, Tenants, Store, and Config
// are required; the rest degrade gracefully when nil.
type Deps struct {
	// Config is the loaded gateway configuration.
	Config *config.Config

	// Tenants resolves inbound numbers to business configs.
	Tenants *tenant.Registry

	// Store tracks live conversation sessions.
	Store *convo.Store

	// Realtime opens one speech-to-speech session per call.
	Realtime rt.Provider

	// TextLLM drives the text-mode turn processor. Usually the same
	// fallback chain the notifier summarizes with. Nil disables the
	// text path.
	TextLLM llm.Provider

	// Notifier sends post-call summaries. Nil disables notifications.
	Notifier *notify.Notifier

	// Searcher answers knowledge-base lookups. Nil disables the search
	// tool even for businesses with rag enabled.
	Searcher retrieval.Searcher

	// Transfer redirects live calls for the emergency feature. Nil means
	// emergency digits log and decline.
	Transfer tools.Transfer

	// Providers constructs calendar backends from config. Nil disables
	// appointment booking.
	Providers *config.Registry

	// Metrics records call, tool, and notification instruments. Nil uses
	// the package defaults.
	Metrics *observe.Metrics

	Logger *slog.Logger
}

// App owns the shared state behind every call: schedulers and turn
// processors per business, the emergency handler, and the realtime
// configuration new calls connect with.
type App struct {
	logger    *slog.Logger
	tenants   *tenant.Registry
	store     *convo.Store
	notifier  *notify.Notifier
	model     rt.Provider
	textLLM   llm.Provider
	searcher  retrieval.Searcher
	emergency *tools.Emergency
	providers *config.Registry
	metrics   *observe.Metrics

	mu         sync.Mutex
	rtCfg      config.RealtimeConfig
	schedulers map[string]*convo.Scheduler
	turns      map[string]*convo.TurnProcessor

	stopOnce sync.Once
}

// New wires the application. Calendar backends for every booking-enabled
// business are constructed up front so a misconfigured tenant fails at
// startup, not mid-call.
func New(ctx context.Context, deps Deps) (*App, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("app: config must not be nil")
	}
	if deps.Tenants == nil || deps.Store == nil {
		return nil, fmt.Errorf("app: tenant registry and session store are required")
	}
	if deps.Realtime == nil {
		return nil, fmt.Errorf("app: realtime provider is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	a := &App{
		logger:     deps.Logger,
		tenants:    deps.Tenants,
		store:      deps.Store,
		notifier:   deps.Notifier,
		model:      deps.Realtime,
		textLLM:    deps.TextLLM,
		searcher:   deps.Searcher,
		emergency:  tools.NewEmergency(deps.Transfer, deps.Logger),
		providers:  deps.Providers,
		metrics:    deps.Metrics,
		rtCfg:      deps.Config.Realtime,
		schedulers: make(map[string]*convo.Scheduler),
		turns:      make(map[string]*convo.TurnProcessor),
	}

	if err := a.buildSchedulers(ctx, deps.Config); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload swaps in a changed configuration: the tenant table is replaced and
// booking schedulers are rebuilt. Calls in flight keep the state they
// resolved at setup.
func (a *App) Reload(ctx context.Context, cfg *config.Config) error {
	a.tenants.Reload(cfg)

	a.mu.Lock()
	a.rtCfg = cfg.Realtime
	a.schedulers = make(map[string]*convo.Scheduler)
	a.turns = make(map[string]*convo.TurnProcessor)
	a.mu.Unlock()

	if err := a.buildSchedulers(ctx, cfg); err != nil {
		return err
	}
	a.logger.Info("configuration reloaded", "businesses", a.tenants.Count())
	return nil
}

// Turns returns the text-path turn processor for one business. It satisfies
// the HTTP layer's resolver signature.
func (a *App) Turns(businessID string) (*convo.TurnProcessor, bool) {
	if a.textLLM == nil {
		return nil, false
	}
	if _, ok := a.tenants.Get(businessID); !ok {
		return nil, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if tp, ok := a.turns[businessID]; ok {
		return tp, true
	}
	tp, err := convo.NewTurnProcessor(a.textLLM, a.schedulers[businessID], a.logger)
	if err != nil {
		a.logger.Error("failed to build turn processor", "business_id", businessID, "err", err)
		return nil, false
	}
	a.turns[businessID] = tp
	return tp, true
}

// ExpireHandler returns the callback the session store invokes for sessions
// reaped on inactivity, so an abandoned call still gets its summary.
func (a *App) ExpireHandler() func(*convo.Session) {
	return func(sess *convo.Session) {
		snap := sess.Snapshot()
		a.logger.Warn("session expired without close",
			"call_id", snap.CallID, "business_id", snap.BusinessID)
		a.metrics.RecordCallEnded(context.Background(), snap.BusinessID, "expired",
			time.Since(snap.CreatedAt).Seconds())
		if a.notifier == nil {
			return
		}
		if biz, ok := a.tenants.Get(snap.BusinessID); ok {
			a.notifier.CallEnded(snap, biz)
		}
	}
}

// Close drains the notifier and stops the session reaper. Safe to call more
// than once.
func (a *App) Close() error {
	var err error
	a.stopOnce.Do(func() {
		a.store.Stop()
		if a.notifier != nil {
			err = a.notifier.Close()
		}
	})
	return err
}

// buildSchedulers constructs one scheduler per booking-enabled business.
func (a *App) buildSchedulers(ctx context.Context, cfg *config.Config) error {
	for i := range cfg.Businesses {
		biz := &cfg.Businesses[i]
		if !biz.Features.AppointmentBooking || biz.Calendar == nil {
			continue
		}
		if a.providers == nil {
			return fmt.Errorf("app: business %q has booking enabled but no provider registry is configured", biz.ID)
		}
		sched, err := a.buildScheduler(ctx, biz)
		if err != nil {
			return fmt.Errorf("app: business %q: %w", biz.ID, err)
		}
		a.mu.Lock()
		a.schedulers[biz.ID] = sched
		a.mu.Unlock()
	}
	return nil
}

// buildScheduler creates the calendar backends a business offers. The
// configured provider is always built; when the other backend's credentials
// are also present it is offered as a second choice in the booking flow.
func (a *App) buildScheduler(ctx context.Context, biz *config.BusinessConfig) (*convo.Scheduler, error) {
	cal := *biz.Calendar
	backends := make(map[config.CalendarKind]calendar.Provider)

	primary, err := a.providers.CreateCalendar(ctx, cal)
	if err != nil {
		return nil, fmt.Errorf("create %s calendar: %w", cal.Provider, err)
	}
	backends[cal.Provider] = primary

	if other, ok := secondaryKind(cal); ok {
		alt := cal
		alt.Provider = other
		p, err := a.providers.CreateCalendar(ctx, alt)
		if err != nil {
			return nil, fmt.Errorf("create %s calendar: %w", other, err)
		}
		backends[other] = p
	}

	tz := cal.Timezone
	if tz == "" {
		tz = "America/Denver"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return convo.NewScheduler(backends, loc, a.logger)
}

// secondaryKind reports the non-primary backend when its credentials block
// is present.
func secondaryKind(cal config.CalendarConfig) (config.CalendarKind, bool) {
	switch cal.Provider {
	case config.CalendarGoogle:
		if cal.Microsoft != nil {
			return config.CalendarMicrosoft, true
		}
	case config.CalendarMicrosoft:
		if cal.Google != nil {
			return config.CalendarGoogle, true
		}
	}
	return "", false
}

// schedulerFor returns the booking scheduler for one business, if any.
func (a *App) schedulerFor(businessID string) *convo.Scheduler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.schedulers[businessID]
}

// realtimeConfig returns a copy of the current realtime settings.
func (a *App) realtimeConfig() config.RealtimeConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rtCfg
}
