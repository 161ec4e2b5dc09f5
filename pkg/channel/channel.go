// Package channel connects chat platforms to message sessions.
package channel

import (
	"context"
	"log/slog"
	"strings"

	"relaybot/pkg/bus"
	"relaybot/pkg/message"
	"relaybot/pkg/resource"
	"relaybot/pkg/session"
)

const messagePreviewLimit = 240

// Handler processes one inbound chain within its session.
type Handler func(context.Context, *session.MessageSession, message.Chain) error

// Adapter bridges one external transport into relaybot.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}

// Platform is an adapter whose targets can also be addressed directly.
type Platform interface {
	Adapter
	session.Opener
}

// Deps are the collaborators every adapter shares.
type Deps struct {
	Runtime *session.Runtime
	Fetcher *resource.Fetcher
}

// ResourceFetcher returns the fetcher as an interface, nil when unset.
func (d Deps) ResourceFetcher() message.ResourceFetcher {
	if d.Fetcher == nil {
		return nil
	}

	return d.Fetcher
}

// Inbound is one received message, already mapped to relaybot types.
type Inbound struct {
	Target session.Target
	Event  message.InboundEvent
	// Poster replies in the conversation the message arrived in.
	Poster session.Poster
}

// Receive converts in to a chain, opens its session and runs handler.
func Receive(ctx context.Context, deps Deps, in Inbound, handler Handler, log *slog.Logger) error {
	var (
		downloader message.Downloader
		cache      *resource.Cache
	)
	if deps.Fetcher != nil {
		downloader = deps.Fetcher
		cache = deps.Fetcher.Cache()
	}

	chain, err := message.FromInbound(ctx, in.Event, downloader, cache)
	if err != nil {
		log.Warn("Dropped inbound attachments", "target", in.Target.TargetKey(), "error", err)
	}

	info := deps.Runtime.Info(ctx, in.Target.TargetKey())
	sess := deps.Runtime.NewSession(in.Target, in.Poster, info)

	deps.Runtime.Publish(ctx, bus.Event{
		Type:     bus.EventChainReceived,
		Platform: in.Target.TargetFrom,
		Target:   in.Target.TargetKey(),
		Sender:   in.Target.SenderKey(),
		Count:    chain.Len(),
	})

	return handler(ctx, sess, chain)
}

// Flatten renders an embed into elements for platforms without native embeds.
func Flatten(embed message.Embed, rc message.RenderContext) []message.Element {
	return embed.ToChain(rc).AsSendable(rc).Elements()
}

// AllowList normalizes configured ids into a lookup set. An empty set allows everyone.
type AllowList map[string]struct{}

// NewAllowList builds an allow list from raw config values.
func NewAllowList(values []string) AllowList {
	if len(values) == 0 {
		return nil
	}

	allowed := make(AllowList, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// Allows reports whether id may talk to the bot.
func (a AllowList) Allows(id string) bool {
	if len(a) == 0 {
		return true
	}

	_, ok := a[strings.TrimSpace(id)]
	return ok
}

// Preview returns a bounded log-safe preview of message text.
func Preview(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
