package gateway

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"relaybot/pkg/bus"
)

// observer tallies bus events for the status endpoint.
type observer struct {
	log *slog.Logger

	mu        sync.RWMutex
	counts    map[bus.EventType]int64
	lastEvent time.Time
}

func newObserver(log *slog.Logger) *observer {
	return &observer{
		log:    log.With("component", "gateway.observer"),
		counts: make(map[bus.EventType]int64),
	}
}

// Run consumes events until ctx is done or the channel closes.
func (o *observer) Run(ctx context.Context, events <-chan bus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			o.observe(event)
		}
	}
}

func (o *observer) observe(event bus.Event) {
	o.mu.Lock()
	o.counts[event.Type]++
	o.lastEvent = event.At
	o.mu.Unlock()

	switch event.Type {
	case bus.EventSendFailed:
		o.log.Warn("Delivery failed", "platform", event.Platform, "target", event.Target, "module", event.Module, "error", event.Error)
	case bus.EventScheduledPost:
		o.log.Info("Scheduled post delivered", "module", event.Module, "target", event.Target)
	default:
		o.log.Debug("Event observed", "type", event.Type, "target", event.Target, "count", event.Count)
	}
}

// Counts returns a copy of the per-type tallies.
func (o *observer) Counts() map[bus.EventType]int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return maps.Clone(o.counts)
}

// LastEventAt returns when the most recent event was published.
func (o *observer) LastEventAt() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.lastEvent
}
