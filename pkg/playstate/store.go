// Package playstate keeps short-lived per-target and per-sender game state.
package playstate

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"relaybot/pkg/logger"
)

// DefaultExpiry is how long an entry survives without a timestamp refresh.
const DefaultExpiry = time.Hour

const (
	FieldStatus    = "_status"
	FieldTimestamp = "_timestamp"
)

// Key addresses one entry. An empty Sender is the whole-target scope.
type Key struct {
	Target string
	Sender string
	Game   string
}

type entry struct {
	status    bool
	timestamp time.Time
	fields    map[string]any
}

// Store is a concurrency-safe flattened map of play-state entries.
type Store struct {
	mu      sync.RWMutex
	entries map[Key]*entry

	expiry time.Duration
	now    func() time.Time
	log    *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithExpiry sets the idle window after which Sweep removes an entry.
func WithExpiry(expiry time.Duration) Option {
	return func(s *Store) {
		if expiry > 0 {
			s.expiry = expiry
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		s.log = logger.OrDefault(log, "playstate.store")
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[Key]*entry),
		expiry:  DefaultExpiry,
		now:     time.Now,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Expiry returns the configured idle window.
func (s *Store) Expiry() time.Duration {
	return s.expiry
}

// State returns a handle for game in target. With wholeTarget the state is
// shared by every sender of the target.
func (s *Store) State(game string, target string, sender string, wholeTarget bool) *State {
	key := Key{Target: target, Sender: sender, Game: game}
	if wholeTarget {
		key.Sender = ""
	}

	return &State{store: s, key: key}
}

// Sweep removes every entry idle for at least the expiry window and returns
// how many were removed. Scopes left without entries disappear with them.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.timestamp) >= s.expiry {
			delete(s.entries, key)
			removed++
		}
	}

	return removed
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Targets lists targets that still own at least one entry.
func (s *Store) Targets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range s.entries {
		seen[key.Target] = struct{}{}
	}

	return slices.Sorted(maps.Keys(seen))
}

// Senders lists senders of target that still own a private entry.
func (s *Store) Senders(target string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range s.entries {
		if key.Target == target && key.Sender != "" {
			seen[key.Sender] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(seen))
}

// getOrCreate must be called with the write lock held.
func (s *Store) getOrCreate(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{timestamp: s.now(), fields: make(map[string]any)}
		s.entries[key] = e
	}

	return e
}

// State is a handle on one play-state entry.
type State struct {
	store *Store
	key   Key
}

// Key returns the entry key.
func (st *State) Key() Key {
	return st.key
}

// Enable marks the game active and refreshes its timestamp.
func (st *State) Enable() {
	s := st.store
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreate(st.key)
	e.status = true
	e.timestamp = now

	s.log.Info("Enabled game", "game", st.key.Game, "target", st.key.Target, "sender", st.key.Sender)
}

// Disable marks an existing entry inactive. Missing entries are left absent.
func (st *State) Disable() {
	s := st.store

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[st.key]; ok {
		e.status = false
	}

	s.log.Info("Disabled game", "game", st.key.Game, "target", st.key.Target, "sender", st.key.Sender)
}

// Update merges fields into the entry, creating it when absent. Status and
// timestamp change only through FieldStatus and FieldTimestamp.
func (st *State) Update(fields map[string]any) {
	s := st.store

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreate(st.key)
	for name, value := range fields {
		switch name {
		case FieldStatus:
			if status, ok := value.(bool); ok {
				e.status = status
			}
		case FieldTimestamp:
			if ts, ok := toTime(value); ok {
				e.timestamp = ts
			}
		default:
			e.fields[name] = value
		}
	}

	s.log.Debug("Updated game state", "game", st.key.Game, "target", st.key.Target, "sender", st.key.Sender, "fields", len(fields))
}

// Check returns the current status. It never creates an entry and does not
// evaluate expiry; stale entries read as active until the next Sweep.
func (st *State) Check() bool {
	s := st.store

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[st.key]
	return ok && e.status
}

// Get reads one field, or def when the entry or field is absent.
func (st *State) Get(name string, def any) any {
	s := st.store

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[st.key]
	if !ok {
		return def
	}

	switch name {
	case FieldStatus:
		return e.status
	case FieldTimestamp:
		return float64(e.timestamp.UnixNano()) / float64(time.Second)
	}

	value, ok := e.fields[name]
	if !ok {
		return def
	}
	return value
}

func toTime(value any) (time.Time, bool) {
	switch typed := value.(type) {
	case time.Time:
		return typed, true
	case float64:
		return time.Unix(0, int64(typed*float64(time.Second))), true
	case int64:
		return time.Unix(typed, 0), true
	case int:
		return time.Unix(int64(typed), 0), true
	default:
		return time.Time{}, false
	}
}
