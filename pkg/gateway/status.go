package gateway

import (
	"encoding/json"
	"maps"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Channels      map[string]channelState `json:"channels"`
}

type detailedStatus struct {
	statusResponse
	PlayStates   int              `json:"play_states"`
	PlayTargets  int              `json:"play_state_targets"`
	Callbacks    int              `json:"callbacks"`
	Modules      []string         `json:"modules"`
	Events       map[string]int64 `json:"events"`
	LastEventAt  string           `json:"last_event_at,omitempty"`
	LastSweepAt  string           `json:"last_sweep_at,omitempty"`
	SweepSeconds int64            `json:"sweep_interval_seconds"`
}

// routes wires the status endpoints.
func (s *Service) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/statusz", s.handleStatus)

	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respond(w, statusCode, s.currentStatus(status))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	if !s.isReady() {
		status = "not_ready"
	}

	detail := detailedStatus{
		statusResponse: s.currentStatus(status),
		PlayStates:     s.deps.PlayState.Len(),
		PlayTargets:    len(s.deps.PlayState.Targets()),
		Events:         make(map[string]int64),
		SweepSeconds:   int64(s.sweepEvery / time.Second),
	}
	if s.deps.Runtime.Callbacks != nil {
		detail.Callbacks = s.deps.Runtime.Callbacks.Len()
	}
	if s.deps.Modules != nil {
		detail.Modules = s.deps.Modules.Names()
	}
	for eventType, count := range s.observer.Counts() {
		detail.Events[string(eventType)] = count
	}
	if at := s.observer.LastEventAt(); !at.IsZero() {
		detail.LastEventAt = at.Format(time.RFC3339)
	}

	s.mu.RLock()
	if !s.lastSweepAt.IsZero() {
		detail.LastSweepAt = s.lastSweepAt.Format(time.RFC3339)
	}
	s.mu.RUnlock()

	s.respond(w, http.StatusOK, detail)
}

func (s *Service) respond(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Channels:      maps.Clone(s.channelStates),
	}
}
