// Package targets is the JSON file backed target information store.
package targets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"relaybot/pkg/session"
)

// Entry is the stored record for one target address.
type Entry struct {
	Muted                 bool     `json:"muted,omitempty"`
	Locale                string   `json:"locale,omitempty"`
	TimezoneOffsetMinutes int      `json:"timezone_offset_minutes,omitempty"`
	Modules               []string `json:"modules,omitempty"`
}

// Info converts the entry to the session view.
func (e Entry) Info() session.TargetInfo {
	return session.TargetInfo{
		Muted:          e.Muted,
		Locale:         e.Locale,
		TimezoneOffset: time.Duration(e.TimezoneOffsetMinutes) * time.Minute,
	}
}

type document struct {
	Targets map[string]Entry `json:"targets"`
}

// Store keeps every target entry in memory and persists to one JSON file.
type Store struct {
	path string

	mu      sync.RWMutex
	entries map[string]Entry
}

var _ session.TargetStore = (*Store)(nil)

// Load reads path. A missing file yields an empty store that Save will create.
func Load(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]Entry)}
	if strings.TrimSpace(path) == "" {
		return s, nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}
	for id, entry := range doc.Targets {
		s.entries[normalizeID(id)] = entry
	}

	return s, nil
}

// Lookup returns the info for id. Unknown targets get the zero value.
func (s *Store) Lookup(_ context.Context, id string) (session.TargetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.entries[normalizeID(id)].Info(), nil
}

// EnabledFor lists target ids on platform that enabled module, sorted.
// Muted targets are included; the resolver filters them.
func (s *Store) EnabledFor(_ context.Context, module string, platform string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, entry := range s.entries {
		token, _, ok := strings.Cut(id, session.AddressSeparator)
		if !ok || !strings.EqualFold(token, platform) {
			continue
		}
		if slices.Contains(entry.Modules, module) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	return ids, nil
}

// Get returns the raw entry for id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[normalizeID(id)]
	return entry, ok
}

// Set replaces the entry for id in memory.
func (s *Store) Set(id string, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[normalizeID(id)] = entry
}

// Save writes every entry back to the store path.
func (s *Store) Save() error {
	if strings.TrimSpace(s.path) == "" {
		return errors.New("targets store has no path")
	}

	s.mu.RLock()
	content, err := json.MarshalIndent(document{Targets: s.entries}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create targets dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(content, '\n'), 0o644); err != nil {
		return fmt.Errorf("write targets file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace targets file: %w", err)
	}

	return nil
}

// normalizeID lowercases the platform token and keeps the raw id as is.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	token, rest, ok := strings.Cut(id, session.AddressSeparator)
	if !ok {
		return id
	}

	return strings.ToLower(token) + session.AddressSeparator + rest
}
