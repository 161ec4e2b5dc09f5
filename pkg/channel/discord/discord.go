// Package discord implements the Discord platform with native embeds.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"relaybot/pkg/bus"
	"relaybot/pkg/channel"
	"relaybot/pkg/config"
	"relaybot/pkg/message"
	"relaybot/pkg/session"

	"github.com/bwmarrin/discordgo"
)

const channelName = "discord"

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// ErrNotConnected is returned when a target is opened before Run connected.
var ErrNotConnected = errors.New("discord session is not connected")

// Adapter bridges the Discord gateway into relaybot sessions.
type Adapter struct {
	cfg  config.DiscordConfig
	deps channel.Deps
	log  *slog.Logger

	mu  sync.RWMutex
	api messageAPI
}

// NewAdapter validates Discord configuration and constructs an adapter instance.
func NewAdapter(cfg config.DiscordConfig, deps channel.Deps, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("channels.discord.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:  cfg,
		deps: deps,
		log:  log.With("component", "channel.discord"),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

func (a *Adapter) Platform() string {
	return channelName
}

// Open returns a poster for a channel id target.
func (a *Adapter) Open(_ context.Context, target session.Target) (session.Poster, error) {
	a.mu.RLock()
	api := a.api
	a.mu.RUnlock()

	if api == nil {
		return nil, ErrNotConnected
	}

	return a.newPoster(api, target.TargetID, nil), nil
}

// Run connects to the gateway and blocks until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	dg, err := discordgo.New("Bot " + strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize discord session: %w", err)
	}

	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessageReactions

	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(ctx, dg, m.Message, handler)
	})
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		a.handleReaction(ctx, r.MessageReaction, true)
	})
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
		a.handleReaction(ctx, r.MessageReaction, false)
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	a.mu.Lock()
	a.api = dg
	a.mu.Unlock()

	a.log.Info("Discord channel started")
	<-ctx.Done()

	a.mu.Lock()
	a.api = nil
	a.mu.Unlock()

	if err := dg.Close(); err != nil {
		a.log.Warn("Failed to close discord session", "error", err)
	}

	return nil
}

func (a *Adapter) handleMessage(ctx context.Context, api messageAPI, m *discordgo.Message, handler channel.Handler) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}

	attachments := make([]message.Attachment, 0, len(m.Attachments))
	for _, attachment := range m.Attachments {
		attachments = append(attachments, message.Attachment{URL: attachment.URL})
	}
	if strings.TrimSpace(m.Content) == "" && len(attachments) == 0 {
		return
	}

	target := session.Target{
		TargetFrom: channelName,
		TargetID:   m.ChannelID,
		SenderFrom: channelName,
		SenderID:   m.Author.ID,
	}
	a.log.Info("Received message", "target", target.TargetKey(), "sender_id", m.Author.ID, "attachments", len(attachments), "content", channel.Preview(Display(m.Content)))

	in := channel.Inbound{
		Target: target,
		Event:  message.InboundEvent{Body: m.Content, Attachments: attachments},
		Poster: a.newPoster(api, m.ChannelID, m.Reference()),
	}
	if err := channel.Receive(ctx, a.deps, in, handler, a.log); err != nil {
		a.log.Error("Failed to process inbound message", "target", target.TargetKey(), "error", err)
	}
}

func (a *Adapter) handleReaction(ctx context.Context, r *discordgo.MessageReaction, added bool) {
	rt := a.deps.Runtime
	if r == nil || rt == nil || rt.Callbacks == nil {
		return
	}

	event := session.CallbackEvent{
		Platform:  channelName,
		MessageID: r.MessageID,
		SenderID:  r.UserID,
		Reaction:  r.Emoji.Name,
		Added:     added,
	}
	if !rt.Callbacks.Dispatch(ctx, event) {
		return
	}

	rt.Publish(ctx, bus.Event{
		Type:     bus.EventCallbackMatched,
		Platform: channelName,
		Target:   session.Address(channelName, r.ChannelID),
		Sender:   session.Address(channelName, r.UserID),
		Payload:  map[string]string{"message_id": r.MessageID, "reaction": r.Emoji.Name},
	})
}

func (a *Adapter) newPoster(api messageAPI, channelID string, reference *discordgo.MessageReference) *poster {
	return &poster{
		api:       api,
		channelID: channelID,
		reference: reference,
		fetcher:   a.deps.ResourceFetcher(),
	}
}

// Display rewrites Discord mentions to the readable "discord|id" form.
func Display(text string) string {
	return message.RewriteMentions(text, mentionPattern, channelName)
}
