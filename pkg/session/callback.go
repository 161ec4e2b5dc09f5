package session

import (
	"context"
	"sync"
	"time"
)

// CallbackEvent is a platform event correlated to a sent message.
type CallbackEvent struct {
	Platform  string
	MessageID string
	SenderID  string
	Reaction  string
	Added     bool
}

// Callback handles events on a delivered message.
type Callback func(ctx context.Context, event CallbackEvent)

type callbackEntry struct {
	fn         Callback
	registered time.Time
}

// CallbackTable maps delivered message ids to callbacks.
type CallbackTable struct {
	mu      sync.RWMutex
	entries map[string]callbackEntry
	now     func() time.Time
}

// NewCallbackTable creates an empty table.
func NewCallbackTable() *CallbackTable {
	return &CallbackTable{
		entries: make(map[string]callbackEntry),
		now:     time.Now,
	}
}

// Register binds fn to a platform message id, replacing any previous binding.
func (t *CallbackTable) Register(platform string, messageID string, fn Callback) {
	if fn == nil || messageID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[Address(platform, messageID)] = callbackEntry{fn: fn, registered: t.now()}
}

// Dispatch runs the callback bound to the event's message and reports
// whether one was found.
func (t *CallbackTable) Dispatch(ctx context.Context, event CallbackEvent) bool {
	t.mu.RLock()
	entry, ok := t.entries[Address(event.Platform, event.MessageID)]
	t.mu.RUnlock()

	if !ok {
		return false
	}

	entry.fn(ctx, event)
	return true
}

// Remove drops a binding.
func (t *CallbackTable) Remove(platform string, messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, Address(platform, messageID))
}

// Sweep drops bindings older than maxAge and returns how many were removed.
func (t *CallbackTable) Sweep(maxAge time.Duration) int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, entry := range t.entries {
		if now.Sub(entry.registered) >= maxAge {
			delete(t.entries, key)
			removed++
		}
	}

	return removed
}

// Len returns the number of bindings.
func (t *CallbackTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}
