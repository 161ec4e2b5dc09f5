// Package gateway runs platform adapters, routes inbound chains to modules and
// serves process status.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"relaybot/pkg/bus"
	"relaybot/pkg/channel"
	"relaybot/pkg/config"
	"relaybot/pkg/history"
	"relaybot/pkg/module"
	"relaybot/pkg/playstate"
	"relaybot/pkg/session"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790
)

// Deps are the shared collaborators the gateway drives.
type Deps struct {
	Runtime   *session.Runtime
	Modules   *module.Registry
	PlayState *playstate.Store
	Events    *bus.MessageBus

	// History and Uploader are optional.
	History     *history.Recorder
	Uploader    *history.Uploader
	UploadQueue <-chan string
}

type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	deps       Deps
	dispatcher *dispatcher
	observer   *observer
	channels   []channel.Adapter
	sweepEvery time.Duration
	headless   bool

	mu            sync.RWMutex
	startedAt     time.Time
	lastSweepAt   time.Time
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

// Option tunes a Service.
type Option func(*Service)

// WithoutStatusServer skips the HTTP status endpoints, for local runs.
func WithoutStatusServer() Option {
	return func(s *Service) {
		s.headless = true
	}
}

func NewService(cfg *config.Config, adapters []channel.Adapter, deps Deps, log *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if deps.Runtime == nil {
		return nil, errors.New("session runtime is required")
	}
	if deps.PlayState == nil {
		return nil, errors.New("play-state store is required")
	}
	if log == nil {
		log = slog.Default()
	}

	d, err := newDispatcher(deps.Modules, cfg.Bot.CommandPrefix, log)
	if err != nil {
		return nil, fmt.Errorf("initialize dispatcher: %w", err)
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	sweepEvery := time.Duration(cfg.PlayState.SweepIntervalSeconds) * time.Second
	if sweepEvery <= 0 {
		sweepEvery = time.Duration(config.DefaultSweepIntervalSeconds) * time.Second
	}

	svc := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		deps:          deps,
		dispatcher:    d,
		observer:      newObserver(log),
		channels:      adapters,
		sweepEvery:    sweepEvery,
		channelStates: channelStates,
	}
	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Handler returns the inbound handler adapters should run with.
func (s *Service) Handler() channel.Handler {
	return s.dispatcher.Handle
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if s.deps.Events != nil {
		events, unsubscribe := s.deps.Events.SubscribeEvents(ctx, 0)
		defer unsubscribe()
		go s.observer.Run(ctx, events)
	}

	serverErrors := make(chan error, 1)
	if !s.headless {
		go s.runStatusServer(ctx, serverErrors)
	}
	go s.runSweeper(ctx)
	s.startHistory(ctx)

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.dispatcher.Handle)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// startHistory rotates archive files and uploads them in the background.
func (s *Service) startHistory(ctx context.Context) {
	if s.deps.History == nil {
		return
	}

	go s.deps.History.Run(ctx)

	if s.deps.Uploader == nil {
		return
	}

	go func() {
		uploaded, err := s.deps.Uploader.UploadExisting(ctx, s.deps.History.Dir(), nil)
		if err != nil {
			s.log.Error("Upload leftover history failed", "error", err)
		} else if uploaded > 0 {
			s.log.Info("Uploaded leftover history", "files", uploaded)
		}

		if s.deps.UploadQueue != nil {
			s.deps.Uploader.Start(ctx, s.deps.UploadQueue)
		}
	}()
}

// runSweeper expires stale play-state and callback entries on a fixed interval.
func (s *Service) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one expiry pass and publishes what it removed.
func (s *Service) sweep(ctx context.Context) {
	removed := s.deps.PlayState.Sweep()

	callbacks := 0
	if s.deps.Runtime.Callbacks != nil {
		callbacks = s.deps.Runtime.Callbacks.Sweep(s.deps.PlayState.Expiry())
	}

	s.mu.Lock()
	s.lastSweepAt = time.Now().UTC()
	s.mu.Unlock()

	if removed == 0 && callbacks == 0 {
		return
	}

	s.log.Info("Swept expired state", "play_states", removed, "callbacks", callbacks)
	s.deps.Runtime.Publish(ctx, bus.Event{
		Type:    bus.EventPlayStateSwept,
		Count:   removed,
		Payload: map[string]string{"callbacks": strconv.Itoa(callbacks)},
	})
}

func (s *Service) runStatusServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}

	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
