package app_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/voxgate-io/voxgate/internal/app"
	"github.com/voxgate-io/voxgate/internal/config"
	"github.com/voxgate-io/voxgate/internal/convo"
	"github.com/voxgate-io/voxgate/internal/notify"
	"github.com/voxgate-io/voxgate/internal/tenant"
	emailmock "github.com/voxgate-io/voxgate/pkg/provider/email/mock"
	"github.com/voxgate-io/voxgate/pkg/provider/llm"
	llmmock "github.com/voxgate-io/voxgate/pkg/provider/llm/mock"
	rtmock "github.com/voxgate-io/voxgate/pkg/provider/realtime/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{
		Realtime: config.RealtimeConfig{Voice: "alloy", TranscriptionModel: "whisper-1"},
		Businesses: []config.BusinessConfig{
			{
				ID:              "rocky-plumbing",
				DisplayName:     "Rocky Plumbing",
				IncomingNumbers: []string{"+15551230002"},
				Features:        config.FeatureFlags{Emergency: true},
				Emergency: &config.EmergencyConfig{
					Digit:          "0",
					TransferNumber: "+15559990000",
				},
				Email: &config.BusinessEmailConfig{
					Recipients: []string{"owner@rocky.example"},
				},
			},
		},
	}
}

func TestNewRequiresCoreDependencies(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	store := convo.NewStore(testLogger())
	tenants := tenant.NewRegistry(cfg)

	if _, err := app.New(context.Background(), app.Deps{
		Tenants: tenants, Store: store, Realtime: &rtmock.Provider{},
	}); err == nil {
		t.Error("New accepted nil config")
	}
	if _, err := app.New(context.Background(), app.Deps{
		Config: cfg, Tenants: tenants, Store: store,
	}); err == nil {
		t.Error("New accepted nil realtime provider")
	}
	if _, err := app.New(context.Background(), app.Deps{
		Config: cfg, Tenants: tenants, Store: store,
		Realtime: &rtmock.Provider{}, Logger: testLogger(),
	}); err != nil {
		t.Errorf("New with full core deps: %v", err)
	}
}

func TestTurnsResolvesPerBusiness(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	a, err := app.New(context.Background(), app.Deps{
		Config:   cfg,
		Tenants:  tenant.NewRegistry(cfg),
		Store:    convo.NewStore(testLogger()),
		Realtime: &rtmock.Provider{},
		TextLLM:  &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hi"}},
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tp, ok := a.Turns("rocky-plumbing")
	if !ok || tp == nil {
		t.Fatal("no turn processor for known business")
	}
	again, ok := a.Turns("rocky-plumbing")
	if !ok || again != tp {
		t.Error("turn processor not cached per business")
	}
	if _, ok := a.Turns("nope"); ok {
		t.Error("turn processor returned for unknown business")
	}
}

func TestTurnsDisabledWithoutTextLLM(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	a, err := app.New(context.Background(), app.Deps{
		Config:   cfg,
		Tenants:  tenant.NewRegistry(cfg),
		Store:    convo.NewStore(testLogger()),
		Realtime: &rtmock.Provider{},
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := a.Turns("rocky-plumbing"); ok {
		t.Error("text path available without an LLM")
	}
}

func TestReloadSwapsTenantTable(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	tenants := tenant.NewRegistry(cfg)
	a, err := app.New(context.Background(), app.Deps{
		Config:   cfg,
		Tenants:  tenants,
		Store:    convo.NewStore(testLogger()),
		Realtime: &rtmock.Provider{},
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	next := &config.Config{
		Businesses: []config.BusinessConfig{
			{ID: "sunrise-dental", DisplayName: "Sunrise Dental", IncomingNumbers: []string{"+15551230003"}},
		},
	}
	if err := a.Reload(context.Background(), next); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, ok := tenants.Get("rocky-plumbing"); ok {
		t.Error("removed business still resolvable after reload")
	}
	if _, ok := tenants.Get("sunrise-dental"); !ok {
		t.Error("added business not resolvable after reload")
	}
}

func TestExpireHandlerNotifies(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	emailProv := &emailmock.Provider{}
	notifier := notify.New(nil, emailProv, nil, testLogger())

	store := convo.NewStore(testLogger())
	a, err := app.New(context.Background(), app.Deps{
		Config:   cfg,
		Tenants:  tenant.NewRegistry(cfg),
		Store:    store,
		Realtime: &rtmock.Provider{},
		Notifier: notifier,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sess, err := store.Create("CA-expired", "rocky-plumbing", "+15550001111", "+15551230002")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess.Append(convo.RoleUser, "My sink is leaking")
	sess.UpdateUserInfo(convo.UserInfoPatch{Name: strPtr("Ada")})

	a.ExpireHandler()(sess)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(emailProv.Sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(emailProv.Sent()); got != 1 {
		t.Fatalf("got %d summary emails for expired session, want 1", got)
	}
}

func strPtr(s string) *string { return &s }
