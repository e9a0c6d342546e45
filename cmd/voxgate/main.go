// Command voxgate is the multi-tenant voice agent gateway: it answers
// carrier phone calls, bridges them to a realtime speech model, and runs the
// per-business conversation tooling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/voxgate-io/voxgate/internal/app"
	"github.com/voxgate-io/voxgate/internal/carrier"
	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/internal/convo"
	"github.com/voxgate-io/voxgate/internal/health"
	"github.com/voxgate-io/voxgate/internal/httpapi"
	"github.com/voxgate-io/voxgate/internal/notify"
	"github.com/voxgate-io/voxgate/internal/observe"
	"github.com/voxgate-io/voxgate/internal/resilience"
	"github.com/voxgate-io/voxgate/internal/tenant"
	"github.com/voxgate-io/voxgate/internal/tools"
	"github.com/voxgate-io/voxgate/pkg/provider/calendar"
	googlecal "github.com/voxgate-io/voxgate/pkg/provider/calendar/google"
	microsoftcal "github.com/voxgate-io/voxgate/pkg/provider/calendar/microsoft"
	"github.com/voxgate-io/voxgate/pkg/provider/email"
	restmail "github.com/voxgate-io/voxgate/pkg/provider/email/rest"
	smtpmail "github.com/voxgate-io/voxgate/pkg/provider/email/smtp"
	"github.com/voxgate-io/voxgate/pkg/provider/embeddings"
	oaembed "github.com/voxgate-io/voxgate/pkg/provider/embeddings/openai"
	"github.com/voxgate-io/voxgate/pkg/provider/llm"
	"github.com/voxgate-io/voxgate/pkg/provider/llm/anyllm"
	oallm "github.com/voxgate-io/voxgate/pkg/provider/llm/openai"
	rtopenai "github.com/voxgate-io/voxgate/pkg/provider/realtime/openai"
	"github.com/voxgate-io/voxgate/pkg/provider/sms"
	"github.com/voxgate-io/voxgate/pkg/provider/sms/twilio"
	"github.com/voxgate-io/voxgate/pkg/provider/stt/deepgram"
	"github.com/voxgate-io/voxgate/pkg/provider/tts"
	"github.com/voxgate-io/voxgate/pkg/provider/tts/elevenlabs"
	"github.com/voxgate-io/voxgate/pkg/retrieval"
	retrievalpg "github.com/voxgate-io/voxgate/pkg/retrieval/postgres"
)

// version is stamped by the build. "dev" when built from source directly.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxgate: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxgate: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxgate starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"businesses", len(cfg.Businesses),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxgate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Tenants ───────────────────────────────────────────────────────────────
	tenants := tenant.NewRegistry(cfg)

	// ── Post-call notification stack ──────────────────────────────────────────
	summaryLLM, err := buildSummaryLLM(cfg, reg)
	if err != nil {
		slog.Error("failed to build summary LLM", "err", err)
		return 1
	}
	emailProvider, err := buildEmail(cfg, logger)
	if err != nil {
		slog.Error("failed to build email transport", "err", err)
		return 1
	}
	smsProvider, err := buildSMS(cfg, logger)
	if err != nil {
		slog.Error("failed to build sms transport", "err", err)
		return 1
	}
	notifier := notify.New(summaryLLM, emailProvider, smsProvider, logger)

	// ── Knowledge retrieval ───────────────────────────────────────────────────
	var (
		searcher retrieval.Searcher
		pool     *pgxpool.Pool
	)
	if cfg.Retrieval.PostgresDSN != "" {
		pool, err = pgxpool.New(ctx, cfg.Retrieval.PostgresDSN)
		if err != nil {
			slog.Error("failed to open retrieval pool", "err", err)
			return 1
		}
		defer pool.Close()

		embedder, err := reg.CreateEmbeddings(cfg.Retrieval.Embeddings)
		if err != nil {
			slog.Error("failed to create embeddings provider", "err", err)
			return 1
		}
		searcher, err = retrievalpg.New(pool, embedder)
		if err != nil {
			slog.Error("failed to create retrieval store", "err", err)
			return 1
		}
		slog.Info("retrieval store connected", "embeddings", cfg.Retrieval.Embeddings.Name)
	}

	// ── Carrier redirect (emergency transfer) ─────────────────────────────────
	var transfer tools.Transfer
	if cfg.Carrier.AccountSID != "" && cfg.Carrier.AuthToken != "" {
		var redirectOpts []carrier.RedirectorOption
		if cfg.Carrier.BaseURL != "" {
			redirectOpts = append(redirectOpts, carrier.WithRedirectBaseURL(cfg.Carrier.BaseURL))
		}
		redirector, err := carrier.NewRedirector(cfg.Carrier.AccountSID, cfg.Carrier.AuthToken, logger, redirectOpts...)
		if err != nil {
			slog.Error("failed to create carrier redirector", "err", err)
			return 1
		}
		transfer = redirector
	}

	// ── Realtime model ────────────────────────────────────────────────────────
	var rtOpts []rtopenai.Option
	if cfg.Realtime.Model != "" {
		rtOpts = append(rtOpts, rtopenai.WithModel(cfg.Realtime.Model))
	}
	if cfg.Realtime.BaseURL != "" {
		rtOpts = append(rtOpts, rtopenai.WithBaseURL(cfg.Realtime.BaseURL))
	}
	model := rtopenai.New(cfg.Realtime.APIKey, rtOpts...)

	// ── Sessions + application ────────────────────────────────────────────────
	var application *app.App
	store := convo.NewStore(logger, convo.WithExpireHandler(func(sess *convo.Session) {
		if application != nil {
			application.ExpireHandler()(sess)
		}
	}))

	application, err = app.New(ctx, app.Deps{
		Config:    cfg,
		Tenants:   tenants,
		Store:     store,
		Realtime:  model,
		TextLLM:   summaryLLM,
		Notifier:  notifier,
		Searcher:  searcher,
		Transfer:  transfer,
		Providers: reg,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	store.Start(ctx)

	// ── HTTP surfaces ─────────────────────────────────────────────────────────
	var signalingOpts []carrier.SignalingOption
	if cfg.Carrier.AuthToken != "" {
		signalingOpts = append(signalingOpts, carrier.WithSignatureSecret(cfg.Carrier.AuthToken))
	}
	signalingOpts = append(signalingOpts,
		carrier.WithRateLimit(cfg.Carrier.RateLimitRPS, cfg.Carrier.RateLimitBurst))
	signaling, err := carrier.NewSignalingHandler(tenants, cfg.Server.PublicHost, logger, signalingOpts...)
	if err != nil {
		slog.Error("failed to create signaling handler", "err", err)
		return 1
	}
	media, err := carrier.NewMediaHandler(application.RuntimeFactory(), logger)
	if err != nil {
		slog.Error("failed to create media handler", "err", err)
		return 1
	}

	textAPI, err := buildTextAPI(cfg, tenants, store, application, logger)
	if err != nil {
		slog.Error("failed to create text API", "err", err)
		return 1
	}

	checkers := []health.Checker{
		{Name: "tenants", Check: func(context.Context) error {
			if !tenants.Initialized() {
				return errors.New("no businesses registered")
			}
			return nil
		}},
	}
	if pool != nil {
		checkers = append(checkers, health.Checker{Name: "retrieval", Check: pool.Ping})
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Signaling: signaling,
		Media:     media,
		Health:    health.New(checkers...),
		Text:      textAPI,
		Metrics:   metrics,
	})

	// ── Config reload ─────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
		if err := application.Reload(context.Background(), next); err != nil {
			slog.Error("config reload failed, keeping previous state", "err", err)
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// SIGHUP forces an immediate reload check between polls.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			slog.Info("SIGHUP received, checking configuration")
			watcher.Check()
		}
	}()
	defer signal.Stop(hup)

	printStartupSummary(cfg)

	// ── Serve ─────────────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready", "addr", srv.Addr, "tls", cfg.Server.TLS != nil)
		var err error
		if cfg.Server.TLS != nil {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	if closeErr := application.Close(); closeErr != nil {
		slog.Warn("application close error", "err", closeErr)
	}
	otelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if otelErr := otelShutdown(otelCtx); otelErr != nil {
		slog.Warn("telemetry shutdown error", "err", otelErr)
	}

	if err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// voxgate into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The native OpenAI client supports strict JSON mode for summaries; the
	// remaining backends go through any-llm's unified client.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────
	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Calendars ─────────────────────────────────────────────────────────────
	reg.RegisterCalendar(config.CalendarGoogle, func(ctx context.Context, cal config.CalendarConfig) (calendar.Provider, error) {
		if cal.Google == nil {
			return nil, errors.New("google calendar config missing")
		}
		creds, err := os.ReadFile(cal.Google.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		hours, err := businessHours(cal)
		if err != nil {
			return nil, err
		}
		return googlecal.New(ctx, creds, cal.Google.CalendarID, hours)
	})

	reg.RegisterCalendar(config.CalendarMicrosoft, func(_ context.Context, cal config.CalendarConfig) (calendar.Provider, error) {
		if cal.Microsoft == nil {
			return nil, errors.New("microsoft calendar config missing")
		}
		hours, err := businessHours(cal)
		if err != nil {
			return nil, err
		}
		return microsoftcal.New(microsoftcal.Credentials{
			TenantID:     cal.Microsoft.TenantID,
			ClientID:     cal.Microsoft.ClientID,
			ClientSecret: cal.Microsoft.ClientSecret,
			UserID:       cal.Microsoft.UserID,
		}, hours)
	})
}

// businessHours maps the YAML calendar block onto the provider-level booking
// window.
func businessHours(cal config.CalendarConfig) (calendar.BusinessHours, error) {
	tz := cal.Timezone
	if tz == "" {
		tz = "America/Denver"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return calendar.BusinessHours{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	hours := calendar.BusinessHours{
		Location:  loc,
		StartHour: cal.StartHour,
		EndHour:   cal.EndHour,
	}
	if hours.StartHour == 0 && hours.EndHour == 0 {
		hours.StartHour, hours.EndHour = 12, 16
	}
	if cal.SlotMinutes > 0 {
		hours.SlotDuration = time.Duration(cal.SlotMinutes) * time.Minute
	}
	return hours, nil
}

// buildSummaryLLM assembles the summary completion chain: the configured
// primary wrapped with a per-provider circuit breaker, falling back in order.
func buildSummaryLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	if cfg.Summary.Primary.Name == "" {
		return nil, nil
	}
	primary, err := reg.CreateLLM(cfg.Summary.Primary)
	if err != nil {
		return nil, fmt.Errorf("create summary provider %q: %w", cfg.Summary.Primary.Name, err)
	}
	if len(cfg.Summary.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewSummaryLLMFallback(primary, cfg.Summary.Primary.Name, resilience.ChainConfig{})
	for _, entry := range cfg.Summary.Fallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create summary fallback %q: %w", entry.Name, err)
		}
		chain.AddFallback(entry.Name, p)
	}
	return chain, nil
}

// buildEmail assembles the email transport: smtp first, the HTTP API as
// fallback when both are configured.
func buildEmail(cfg *config.Config, logger *slog.Logger) (email.Provider, error) {
	var smtpSender, restSender email.Provider

	if c := cfg.Email.SMTP; c != nil {
		tlsMode := "starttls"
		if c.TLS {
			tlsMode = "tls"
		}
		s, err := smtpmail.NewSender(smtpmail.Config{
			Host:     c.Host,
			Port:     strconv.Itoa(c.Port),
			From:     c.From,
			Username: c.Username,
			Password: c.Password,
			TLS:      tlsMode,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("smtp sender: %w", err)
		}
		smtpSender = s
	}
	if c := cfg.Email.REST; c != nil {
		var opts []restmail.Option
		if c.BaseURL != "" {
			opts = append(opts, restmail.WithBaseURL(c.BaseURL))
		}
		s, err := restmail.NewSender(c.APIKey, c.From, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("rest sender: %w", err)
		}
		restSender = s
	}

	switch {
	case smtpSender != nil && restSender != nil:
		chain := resilience.NewEmailFallback(smtpSender, "smtp", resilience.ChainConfig{})
		chain.AddFallback("rest", restSender)
		return chain, nil
	case smtpSender != nil:
		return smtpSender, nil
	case restSender != nil:
		return restSender, nil
	default:
		return nil, nil
	}
}

// buildSMS creates the Twilio SMS client when credentials are configured.
func buildSMS(cfg *config.Config, logger *slog.Logger) (sms.Provider, error) {
	c := cfg.SMS
	if c.AccountSID == "" || c.AuthToken == "" {
		return nil, nil
	}
	var opts []twilio.Option
	if c.MessagingServiceSID != "" {
		opts = append(opts, twilio.WithMessagingServiceSID(c.MessagingServiceSID))
	} else if c.FromNumber != "" {
		opts = append(opts, twilio.WithFromNumber(c.FromNumber))
	}
	if c.BaseURL != "" {
		opts = append(opts, twilio.WithBaseURL(c.BaseURL))
	}
	return twilio.New(c.AccountSID, c.AuthToken, logger, opts...)
}

// buildTextAPI creates the text-mode endpoints when the config enables them.
func buildTextAPI(cfg *config.Config, tenants *tenant.Registry, store *convo.Store, application *app.App, logger *slog.Logger) (*httpapi.TextAPI, error) {
	tc := cfg.TextAPI
	if tc == nil {
		return nil, nil
	}

	var sttOpts []deepgram.Option
	if tc.STT.Model != "" {
		sttOpts = append(sttOpts, deepgram.WithModel(tc.STT.Model))
	}
	if tc.STT.BaseURL != "" {
		sttOpts = append(sttOpts, deepgram.WithBaseURL(tc.STT.BaseURL))
	}
	transcriber, err := deepgram.New(tc.STT.APIKey, sttOpts...)
	if err != nil {
		return nil, fmt.Errorf("deepgram: %w", err)
	}

	var ttsOpts []elevenlabs.Option
	if tc.TTS.Model != "" {
		ttsOpts = append(ttsOpts, elevenlabs.WithModel(tc.TTS.Model))
	}
	if tc.TTS.BaseURL != "" {
		ttsOpts = append(ttsOpts, elevenlabs.WithBaseURL(tc.TTS.BaseURL))
	}
	synthesizer, err := elevenlabs.New(tc.TTS.APIKey, ttsOpts...)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}

	return httpapi.NewTextAPI(transcriber, synthesizer, tts.VoiceProfile{ID: tc.Voice},
		tenants, store, application.Turns, logger)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxgate — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Realtime", orDefault(cfg.Realtime.Model, "provider default"))
	printEntry("Summary LLM", orDefault(cfg.Summary.Primary.Name, "(disabled)"))
	printEntry("Retrieval", boolLabel(cfg.Retrieval.PostgresDSN != ""))
	printEntry("Email", emailLabel(cfg.Email))
	printEntry("SMS", boolLabel(cfg.SMS.AccountSID != ""))
	printEntry("Text API", boolLabel(cfg.TextAPI != nil))
	printEntry("Businesses", strconv.Itoa(len(cfg.Businesses)))
	printEntry("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func boolLabel(enabled bool) string {
	if enabled {
		return "configured"
	}
	return "(disabled)"
}

func emailLabel(c config.EmailConfig) string {
	switch {
	case c.SMTP != nil && c.REST != nil:
		return "smtp → rest"
	case c.SMTP != nil:
		return "smtp"
	case c.REST != nil:
		return "rest"
	default:
		return "(disabled)"
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
