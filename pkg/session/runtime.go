// Package session addresses targets and delivers message chains through
// platform posters.
package session

import (
	"context"
	"log/slog"
	"time"

	"relaybot/pkg/bus"
	"relaybot/pkg/i18n"
	"relaybot/pkg/logger"
	"relaybot/pkg/message"
)

// TargetInfo is what the target store knows about one target.
type TargetInfo struct {
	Muted          bool          `json:"muted"`
	Locale         string        `json:"locale,omitempty"`
	TimezoneOffset time.Duration `json:"timezone_offset,omitempty"`
}

// TargetStore is the persistent target and permission database.
type TargetStore interface {
	Lookup(ctx context.Context, id string) (TargetInfo, error)
	// EnabledFor lists target ids on platform with module enabled.
	EnabledFor(ctx context.Context, module string, platform string) ([]string, error)
}

// EventPublisher receives delivery events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event bus.Event) bool
}

// Recorder archives every chain a session sends.
type Recorder interface {
	Record(ctx context.Context, target Target, chain message.Chain) error
}

// Runtime holds the collaborators shared by every session.
type Runtime struct {
	Safety        message.SafetyCheck
	Callbacks     *CallbackTable
	Fetcher       message.ResourceFetcher
	Locales       *i18n.Bundle
	DefaultLocale string
	Targets       TargetStore
	Events        EventPublisher
	History       Recorder
	Composer      message.Composer
	Analytics     bool
	Log           *slog.Logger
}

func (rt *Runtime) logger() *slog.Logger {
	if rt == nil {
		return logger.Discard()
	}

	return logger.OrDefault(rt.Log, "")
}

// Info looks up a target, falling back to defaults when the store is missing
// or fails.
func (rt *Runtime) Info(ctx context.Context, id string) TargetInfo {
	if rt == nil || rt.Targets == nil {
		return TargetInfo{}
	}

	info, err := rt.Targets.Lookup(ctx, id)
	if err != nil {
		rt.logger().With("component", "session.runtime").Warn("Target lookup failed", "target", id, "error", err)
		return TargetInfo{}
	}

	return info
}

// Locale resolves a locale name against the bundle, or nil without one.
func (rt *Runtime) Locale(name string) i18n.Locale {
	if rt == nil || rt.Locales == nil {
		return nil
	}
	if name == "" {
		name = rt.DefaultLocale
	}

	return rt.Locales.Locale(name)
}

// Publish forwards event to the configured publisher, if any.
func (rt *Runtime) Publish(ctx context.Context, event bus.Event) {
	if rt == nil || rt.Events == nil {
		return
	}

	rt.Events.PublishEvent(ctx, event)
}

// NewSession builds a session bound to poster.
func (rt *Runtime) NewSession(target Target, poster Poster, info TargetInfo) *MessageSession {
	return &MessageSession{
		Target:  target,
		Info:    info,
		runtime: rt,
		poster:  poster,
		locale:  rt.Locale(info.Locale),
		log:     rt.logger().With("component", "session.message", "target", target.TargetKey()),
	}
}
