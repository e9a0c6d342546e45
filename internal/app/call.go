package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxgate-io/voxgate/internal/bridge"
	"github.com/voxgate-io/voxgate/internal/carrier"
	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/internal/convo"
	"github.com/voxgate-io/voxgate/internal/observe"
	"github.com/voxgate-io/voxgate/internal/realtime"
	"github.com/voxgate-io/voxgate/internal/tenant"
	"github.com/voxgate-io/voxgate/internal/tools"
	rt "github.com/voxgate-io/voxgate/pkg/provider/realtime"
)

// emergencyTimeout bounds the carrier redirect API call during a live
// transfer.
const emergencyTimeout = 10 * time.Second

// Call is the runtime of one live phone call: it moves caller audio into the
// model session, model audio into the bridge, and tears everything down once
// when the stream ends.
type Call struct {
	app    *App
	logger *slog.Logger

	callSID string
	biz     *config.BusinessConfig
	sess    *convo.Session
	bridge  *bridge.Bridge
	model   *realtime.Session

	cancel    context.CancelFunc
	startedAt time.Time

	mu      sync.Mutex
	outcome string

	closeOnce sync.Once
}

// RuntimeFactory returns the constructor the carrier media handler calls
// when a stream starts.
func (a *App) RuntimeFactory() carrier.RuntimeFactory {
	return func(ctx context.Context, info carrier.StartInfo, out *carrier.Stream) (carrier.Runtime, error) {
		return a.newCall(ctx, info, out)
	}
}

// newCall resolves the tenant, opens the model session, and starts the audio
// bridge for one inbound call.
func (a *App) newCall(ctx context.Context, info carrier.StartInfo, out *carrier.Stream) (*Call, error) {
	biz, err := a.resolveBusiness(info)
	if err != nil {
		return nil, err
	}
	logger := a.logger.With("call_id", info.CallSID, "business_id", biz.ID)

	sess, err := a.store.Create(info.CallSID, biz.ID, info.From, info.To)
	if err != nil {
		return nil, err
	}

	br, err := bridge.New(out, logger)
	if err != nil {
		a.store.Remove(info.CallSID)
		return nil, err
	}

	callCtx, cancel := context.WithCancel(ctx)

	c := &Call{
		app:       a,
		logger:    logger,
		callSID:   info.CallSID,
		biz:       biz,
		sess:      sess,
		bridge:    br,
		cancel:    cancel,
		startedAt: time.Now(),
		outcome:   "completed",
	}

	model, err := realtime.Start(callCtx, a.model, c.sessionConfig(), br,
		c.dispatcher(), c.hooks(), logger)
	if err != nil {
		cancel()
		a.store.Remove(info.CallSID)
		a.metrics.RecordProviderError(callCtx, "realtime", "connect")
		return nil, fmt.Errorf("app: open model session: %w", err)
	}
	c.model = model

	br.Start(callCtx)
	a.metrics.RecordCallStarted(callCtx)

	// The model leg can end first (upstream close, auth expiry). The carrier
	// still calls Close on stop; closeOnce makes the paths converge.
	go func() {
		<-model.Done()
		c.Close("model session ended")
	}()

	return c, nil
}

// resolveBusiness prefers the business ID the signaling handler stamped on
// the stream, falling back to the dialed number.
func (a *App) resolveBusiness(info carrier.StartInfo) (*config.BusinessConfig, error) {
	if info.BusinessID != "" {
		if biz, ok := a.tenants.Get(info.BusinessID); ok {
			return biz, nil
		}
		return nil, fmt.Errorf("app: unknown business %q on stream start", info.BusinessID)
	}
	if biz, ok := a.tenants.BusinessFromNumber(info.To); ok {
		return biz, nil
	}
	return nil, fmt.Errorf("app: no business for dialed number %q", info.To)
}

// sessionConfig assembles the model session settings for this call's tenant.
func (c *Call) sessionConfig() rt.SessionConfig {
	rtCfg := c.app.realtimeConfig()
	return rt.SessionConfig{
		Voice:              rtCfg.Voice,
		Instructions:       tenant.Instructions(c.biz),
		Tools:              tools.Definitions(c.biz),
		Temperature:        rtCfg.Temperature,
		VADThreshold:       rtCfg.VADThreshold,
		PrefixPaddingMs:    rtCfg.PrefixPaddingMs,
		SilenceDurationMs:  rtCfg.SilenceDurationMs,
		TranscriptionModel: rtCfg.TranscriptionModel,
	}
}

// dispatcher builds the per-call tool dispatcher, wrapped with metrics.
func (c *Call) dispatcher() realtime.Dispatcher {
	searcher := c.app.searcher
	if !c.biz.Features.RAG {
		searcher = nil
	}
	handler, err := tools.NewHandler(c.sess, c.biz, c.app.schedulerFor(c.biz.ID), searcher, c.logger)
	if err != nil {
		// Unreachable: session and business are non-nil here.
		c.logger.Error("failed to build tool handler", "err", err)
		return nil
	}
	return &meteredDispatcher{inner: handler, metrics: c.app.metrics}
}

// hooks connects model events to the conversation record.
func (c *Call) hooks() realtime.Hooks {
	return realtime.Hooks{
		OnUserTranscript: func(text string) string {
			c.sess.Append(convo.RoleUser, text)
			return tools.ExtractIdentity(c.sess, text)
		},
		OnAssistantTranscript: func(text string) {
			c.sess.Append(convo.RoleAssistant, text)
		},
		OnError: func(error) {
			c.app.metrics.RecordProviderError(context.Background(), "realtime", "session")
		},
	}
}

// HandleFrame transcodes one caller frame and feeds it to the model.
func (c *Call) HandleFrame(frame []byte) {
	pcm := c.bridge.TranscodeIn(frame)
	if len(pcm) == 0 {
		return
	}
	if err := c.model.SendAudio(pcm); err != nil {
		c.logger.Debug("dropping caller audio, model session unavailable", "err", err)
	}
}

// HandleDTMF checks every keypad digit against the tenant's emergency
// config and initiates the live transfer on a match. The carrier ends the
// media stream itself once the redirect lands.
func (c *Call) HandleDTMF(digit string) {
	ctx, cancel := context.WithTimeout(context.Background(), emergencyTimeout)
	defer cancel()

	transferred, err := c.app.emergency.Trigger(ctx, c.callSID, c.biz, digit)
	if err != nil {
		c.logger.Error("emergency transfer failed", "digit", digit, "err", err)
		return
	}
	if transferred {
		c.app.metrics.RecordEmergencyTransfer(ctx, c.biz.ID)
		c.setOutcome("transferred")
	}
}

// Close tears the call down: model session, bridge, session store, metrics,
// and the post-call notification. Idempotent.
func (c *Call) Close(reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		if err := c.model.Close(); err != nil {
			c.logger.Debug("model session close", "err", err)
		}
		c.bridge.Stop()

		ctx := context.Background()
		c.app.metrics.RecordFramesDropped(ctx, c.biz.ID, int64(c.bridge.Dropped()))

		duration := time.Since(c.startedAt)
		c.app.metrics.RecordCallEnded(ctx, c.biz.ID, c.getOutcome(), duration.Seconds())

		if sess, ok := c.app.store.Remove(c.callSID); ok {
			snap := sess.Snapshot()
			if c.app.notifier != nil {
				c.app.notifier.CallEnded(snap, c.biz)
			}
		}

		c.logger.Info("call ended",
			"reason", reason,
			"outcome", c.getOutcome(),
			"duration", duration.Round(time.Second),
		)
	})
}

func (c *Call) setOutcome(o string) {
	c.mu.Lock()
	c.outcome = o
	c.mu.Unlock()
}

func (c *Call) getOutcome() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// meteredDispatcher times every tool call.
type meteredDispatcher struct {
	inner   *tools.Handler
	metrics *observe.Metrics
}

// Compile-time interface assertions.
var (
	_ carrier.Runtime     = (*Call)(nil)
	_ realtime.Dispatcher = (*meteredDispatcher)(nil)
)

func (d *meteredDispatcher) Dispatch(ctx context.Context, name, arguments string) (string, error) {
	start := time.Now()
	out, err := d.inner.Dispatch(ctx, name, arguments)
	status := "ok"
	if err != nil {
		status = "error"
	}
	d.metrics.RecordToolCall(ctx, name, status, time.Since(start).Seconds())
	return out, err
}
