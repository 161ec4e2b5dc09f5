package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"relaybot/pkg/bus"
	"relaybot/pkg/channel"
	"relaybot/pkg/channel/discord"
	"relaybot/pkg/channel/telegram"
	"relaybot/pkg/channel/twitch"
	"relaybot/pkg/config"
	"relaybot/pkg/gateway"
	"relaybot/pkg/history"
	"relaybot/pkg/i18n"
	"relaybot/pkg/message"
	"relaybot/pkg/module"
	"relaybot/pkg/module/coin"
	"relaybot/pkg/module/guess"
	"relaybot/pkg/playstate"
	"relaybot/pkg/random"
	"relaybot/pkg/resource"
	"relaybot/pkg/session"
	"relaybot/pkg/targets"
)

const historyQueueSize = 16

// app holds the collaborators every command shares.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	runtime   *session.Runtime
	resolver  *session.Resolver
	fetcher   *resource.Fetcher
	targets   *targets.Store
	playState *playstate.Store
	modules   *module.Registry
	events    *bus.MessageBus

	history     *history.Recorder
	uploader    *history.Uploader
	uploadQueue chan string
}

// newApp wires the runtime from cfg.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	bundle, err := i18n.LoadBuiltin(cfg.Locale.Default)
	if err != nil {
		return nil, fmt.Errorf("load builtin locales: %w", err)
	}
	if cfg.Locale.Dir != "" {
		if err := bundle.LoadDir(cfg.Locale.Dir); err != nil {
			return nil, fmt.Errorf("load locales: %w", err)
		}
	}

	cache, err := resource.NewCache(cfg.Resources.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("open resource cache: %w", err)
	}
	fetcher := resource.NewFetcher(cache,
		resource.WithTimeout(time.Duration(cfg.Resources.FetchTimeoutSeconds)*time.Second),
		resource.WithAttempts(cfg.Resources.FetchAttempts),
		resource.WithLogger(log),
	)

	store, err := targets.Load(cfg.Targets.Path)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		fetcher: fetcher,
		targets: store,
		playState: playstate.New(
			playstate.WithExpiry(time.Duration(cfg.PlayState.ExpirySeconds)*time.Second),
			playstate.WithLogger(log),
		),
		events: bus.NewMessageBus(),
	}

	if err := a.openHistory(ctx); err != nil {
		return nil, err
	}

	a.runtime = &session.Runtime{
		Safety:        message.SecretCheck(cfg.ChannelSecrets()),
		Callbacks:     session.NewCallbackTable(),
		Fetcher:       fetcher,
		Locales:       bundle,
		DefaultLocale: cfg.Locale.Default,
		Targets:       store,
		Events:        a.events,
		Composer: message.Composer{
			Links: message.LinkPolicy{
				Obfuscate:          cfg.Messages.ObfuscateLinks,
				DisableObfuscation: cfg.Messages.DisableObfuscation,
				RedirectTemplate:   cfg.Messages.RedirectTemplate,
				Markdown:           cfg.Messages.MarkdownLinks,
			},
			BugReportURL: cfg.Messages.BugReportURL,
		},
		Analytics: cfg.Analytics.Enabled,
		Log:       log,
	}
	if a.history != nil {
		a.runtime.History = a.history
	}
	a.resolver = session.NewResolver(a.runtime)

	rng := random.New(cfg.Modules.UseSecretsRandom)
	a.modules, err = module.NewRegistry(
		coin.New(cfg.Modules.Coin, rng),
		guess.New(a.playState, rng, guess.DefaultMax),
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("register modules: %w", err)
	}

	return a, nil
}

// openHistory prepares the sent-chain archive when enabled.
func (a *app) openHistory(ctx context.Context) error {
	hc := a.cfg.History
	if !hc.Enabled {
		return nil
	}

	opts := []history.Option{
		history.WithRotation(time.Duration(hc.RotateMinutes)*time.Minute, int64(hc.RotateMegabytes)*1024*1024),
		history.WithLogger(a.log),
	}

	if hc.S3.Enabled {
		uploader, err := history.NewUploader(ctx, hc.S3, a.log)
		if err != nil {
			return fmt.Errorf("initialize history uploader: %w", err)
		}
		a.uploader = uploader
		a.uploadQueue = make(chan string, historyQueueSize)
		opts = append(opts, history.WithQueue(a.uploadQueue))
	}

	recorder, err := history.NewRecorder(hc.Dir, opts...)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	a.history = recorder

	return nil
}

func (a *app) channelDeps() channel.Deps {
	return channel.Deps{Runtime: a.runtime, Fetcher: a.fetcher}
}

func (a *app) gatewayDeps() gateway.Deps {
	return gateway.Deps{
		Runtime:     a.runtime,
		Modules:     a.modules,
		PlayState:   a.playState,
		Events:      a.events,
		History:     a.history,
		Uploader:    a.uploader,
		UploadQueue: a.uploadQueue,
	}
}

// platforms builds every enabled remote platform and registers it with the resolver.
func (a *app) platforms() ([]channel.Platform, error) {
	var platforms []channel.Platform
	channels := a.cfg.Channels

	if channels.Discord.Enabled {
		adapter, err := discord.NewAdapter(channels.Discord, a.channelDeps(), a.log)
		if err != nil {
			return nil, fmt.Errorf("configure discord channel: %w", err)
		}
		platforms = append(platforms, adapter)
	}

	if channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(channels.Telegram, a.channelDeps(), a.log)
		if err != nil {
			return nil, fmt.Errorf("configure telegram channel: %w", err)
		}
		platforms = append(platforms, adapter)
	}

	if channels.Twitch.Enabled {
		adapter, err := twitch.NewAdapter(channels.Twitch, a.channelDeps(), a.log)
		if err != nil {
			return nil, fmt.Errorf("configure twitch channel: %w", err)
		}
		platforms = append(platforms, adapter)
	}

	if len(platforms) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	for _, platform := range platforms {
		a.resolver.Register(platform)
	}

	return platforms, nil
}

// close releases the archive and event bus.
func (a *app) close() {
	if a.history != nil {
		a.history.Close()
	}
	a.events.Close()
}
