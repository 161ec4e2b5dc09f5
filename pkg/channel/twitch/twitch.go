// Package twitch implements the text-only Twitch chat platform.
package twitch

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"relaybot/pkg/channel"
	"relaybot/pkg/config"
	"relaybot/pkg/message"
	"relaybot/pkg/session"

	"github.com/gempir/go-twitch-irc/v4"
)

const channelName = "twitch"

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// ErrNotConnected is returned when a target is opened before Run connected.
var ErrNotConnected = errors.New("twitch client is not connected")

// ircClient is the subset of *twitch.Client used for sending.
type ircClient interface {
	Say(channel string, text string)
	Reply(channel string, parentMsgID string, text string)
}

// Adapter bridges Twitch IRC chat into relaybot sessions.
type Adapter struct {
	cfg  config.TwitchConfig
	deps channel.Deps
	log  *slog.Logger

	mu     sync.RWMutex
	client ircClient
}

// NewAdapter validates Twitch configuration and constructs an adapter instance.
func NewAdapter(cfg config.TwitchConfig, deps channel.Deps, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, errors.New("channels.twitch.username is required")
	}
	if strings.TrimSpace(cfg.OAuth) == "" {
		return nil, errors.New("channels.twitch.oauth is required (or set TWITCH_OAUTH env var)")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:  cfg,
		deps: deps,
		log:  log.With("component", "channel.twitch"),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

func (a *Adapter) Platform() string {
	return channelName
}

// Open returns a poster for a channel name target.
func (a *Adapter) Open(_ context.Context, target session.Target) (session.Poster, error) {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()

	if client == nil {
		return nil, ErrNotConnected
	}

	return &poster{client: client, channel: target.TargetID}, nil
}

// Run joins the configured channels and blocks until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	client := twitch.NewClient(a.cfg.Username, a.cfg.OAuth)
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		a.handleMessage(ctx, client, msg, handler)
	})
	client.OnConnect(func() {
		a.log.Info("Connected to Twitch IRC")
	})
	client.OnReconnectMessage(func(twitch.ReconnectMessage) {
		a.log.Info("Reconnecting to Twitch IRC")
	})

	for _, name := range a.cfg.Channels {
		client.Join(name)
		a.log.Info("Joined channel", "channel", name)
	}

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	var err error
	select {
	case <-ctx.Done():
		if disconnectErr := client.Disconnect(); disconnectErr != nil {
			a.log.Debug("Twitch disconnect returned error", "error", disconnectErr)
		}
	case err = <-errCh:
		if errors.Is(err, twitch.ErrClientDisconnected) {
			err = nil
		}
	}

	a.mu.Lock()
	a.client = nil
	a.mu.Unlock()

	return err
}

func (a *Adapter) handleMessage(ctx context.Context, client ircClient, msg twitch.PrivateMessage, handler channel.Handler) {
	if strings.TrimSpace(msg.Message) == "" {
		return
	}
	if strings.EqualFold(msg.User.Name, a.cfg.Username) {
		return
	}

	channelID := strings.TrimPrefix(msg.Channel, "#")
	target := session.Target{
		TargetFrom: channelName,
		TargetID:   channelID,
		SenderFrom: channelName,
		SenderID:   msg.User.ID,
	}
	a.log.Info("Received message", "target", target.TargetKey(), "sender", msg.User.DisplayName, "content", channel.Preview(msg.Message))

	in := channel.Inbound{
		Target: target,
		Event:  message.InboundEvent{Body: msg.Message},
		Poster: &poster{client: client, channel: channelID, replyTo: msg.ID},
	}
	if err := channel.Receive(ctx, a.deps, in, handler, a.log); err != nil {
		a.log.Error("Failed to process inbound message", "target", target.TargetKey(), "error", err)
	}
}

// Display rewrites @name mentions to the "twitch|name" form.
func Display(text string) string {
	return message.RewriteMentions(text, mentionPattern, channelName)
}
