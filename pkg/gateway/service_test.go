package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"relaybot/pkg/bus"
	"relaybot/pkg/channel"
	"relaybot/pkg/config"
	"relaybot/pkg/module"
	"relaybot/pkg/playstate"
)

type idleAdapter struct{ name string }

func (a idleAdapter) Name() string { return a.name }

func (a idleAdapter) Run(ctx context.Context, _ channel.Handler) error {
	<-ctx.Done()
	return nil
}

func newTestService(t *testing.T, store *playstate.Store, events *bus.MessageBus) *Service {
	t.Helper()

	rt := newTestRuntime(t)
	if events != nil {
		rt.Events = events
	}

	registry, err := module.NewRegistry(&recordingModule{name: "coin"})
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}

	cfg := &config.Config{}
	cfg.ApplyDefaults()

	svc, err := NewService(cfg, []channel.Adapter{idleAdapter{name: "console"}}, Deps{
		Runtime:   rt,
		Modules:   registry,
		PlayState: store,
		Events:    events,
	}, nil)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	return svc
}

func TestNewServiceValidatesDeps(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	adapters := []channel.Adapter{idleAdapter{name: "console"}}

	if _, err := NewService(nil, adapters, Deps{}, nil); err == nil {
		t.Fatal("expected error without config")
	}
	if _, err := NewService(cfg, nil, Deps{}, nil); err == nil {
		t.Fatal("expected error without adapters")
	}
	if _, err := NewService(cfg, adapters, Deps{Runtime: newTestRuntime(t)}, nil); err == nil {
		t.Fatal("expected error without play-state store")
	}
}

func TestIsReady(t *testing.T) {
	svc := newTestService(t, playstate.New(), nil)
	if svc.isReady() {
		t.Fatal("expected not ready before any channel runs")
	}

	svc.setChannelState("console", channelState{Running: true})
	if !svc.isReady() {
		t.Fatal("expected ready with a running channel")
	}

	svc.setChannelState("console", channelState{Running: false, Error: "boom"})
	if svc.isReady() {
		t.Fatal("expected not ready after the channel stopped")
	}
}

func TestStatusEndpoints(t *testing.T) {
	store := playstate.New()
	store.State("guess", "console|local", "console|operator", true).Enable()

	svc := newTestService(t, store, nil)
	svc.observer.observe(bus.Event{Type: bus.EventChainSent, At: time.Now().UTC()})
	svc.observer.observe(bus.Event{Type: bus.EventChainSent, At: time.Now().UTC()})

	server := httptest.NewServer(svc.routes())
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	resp, err = http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, err = http.Get(server.URL + "/statusz")
	if err != nil {
		t.Fatalf("GET /statusz error: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Status      string           `json:"status"`
		PlayStates  int              `json:"play_states"`
		PlayTargets int              `json:"play_state_targets"`
		Modules     []string         `json:"modules"`
		Events      map[string]int64 `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode /statusz: %v", err)
	}
	if payload.Status != "not_ready" || payload.PlayStates != 1 || payload.PlayTargets != 1 {
		t.Fatalf("unexpected status payload %+v", payload)
	}
	if len(payload.Modules) != 1 || payload.Modules[0] != "coin" {
		t.Fatalf("modules = %v, want [coin]", payload.Modules)
	}
	if payload.Events["chain_sent"] != 2 {
		t.Fatalf("chain_sent count = %d, want 2", payload.Events["chain_sent"])
	}
}

func TestSweepPublishesRemovedStates(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := playstate.New(playstate.WithClock(clock), playstate.WithExpiry(time.Hour))
	store.State("guess", "console|local", "console|operator", true).Enable()

	events := bus.NewMessageBus()
	t.Cleanup(events.Close)
	ch, unsubscribe := events.SubscribeEvents(context.Background(), 4)
	t.Cleanup(unsubscribe)

	svc := newTestService(t, store, events)

	svc.sweep(context.Background())
	if store.Len() != 1 {
		t.Fatalf("Len after fresh sweep = %d, want 1", store.Len())
	}

	now = now.Add(3601 * time.Second)
	svc.sweep(context.Background())
	if store.Len() != 0 {
		t.Fatalf("Len after stale sweep = %d, want 0", store.Len())
	}

	select {
	case event := <-ch:
		if event.Type != bus.EventPlayStateSwept || event.Count != 1 || event.Payload["callbacks"] != "0" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sweep event")
	}
}

func TestRunWithoutStatusServerStopsOnCancel(t *testing.T) {
	rt := newTestRuntime(t)
	registry, err := module.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}

	cfg := &config.Config{}
	cfg.ApplyDefaults()

	svc, err := NewService(cfg, []channel.Adapter{idleAdapter{name: "console"}}, Deps{
		Runtime:   rt,
		Modules:   registry,
		PlayState: playstate.New(),
	}, nil, WithoutStatusServer())
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	if !svc.headless {
		t.Fatal("expected headless service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}
}
