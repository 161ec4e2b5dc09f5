package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"relaybot/pkg/channel"
	"relaybot/pkg/config"
	"relaybot/pkg/message"
	"relaybot/pkg/session"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const typingRefreshInterval = 4 * time.Second

// ErrNotConnected is returned when a target is opened before Run connected the bot.
var ErrNotConnected = errors.New("telegram bot is not connected")

// Adapter bridges Telegram updates into relaybot sessions.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom channel.AllowList
	deps      channel.Deps
	log       *slog.Logger

	mu  sync.RWMutex
	api botAPI
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, deps channel.Deps, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: channel.NewAllowList(cfg.AllowFrom),
		deps:      deps,
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in logs.
func (a *Adapter) Name() string {
	return channelName
}

// Platform returns the address token for Telegram chats.
func (a *Adapter) Platform() string {
	return channelName
}

// Open returns a poster for a chat id target.
func (a *Adapter) Open(_ context.Context, target session.Target) (session.Poster, error) {
	a.mu.RLock()
	api := a.api
	a.mu.RUnlock()

	if api == nil {
		return nil, ErrNotConnected
	}

	chatID, err := strconv.ParseInt(target.TargetID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse telegram chat id %q: %w", target.TargetID, err)
	}

	return a.newPoster(api, chatID, 0), nil
}

// Run starts Telegram long polling and forwards messages through the shared channel handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	opts, err := botOptions(a.cfg.Proxy)
	if err != nil {
		return err
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token), opts...)
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.mu.Lock()
	a.api = bot
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.api = nil
		a.mu.Unlock()
	}()

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			if update.Message == nil {
				continue
			}
			a.handleMessage(ctx, bot, bot, update.Message, handler)
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, api botAPI, files fileAPI, msg *telego.Message, handler channel.Handler) {
	if msg.From == nil {
		a.log.Debug("Ignoring message without sender")
		return
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !a.allowFrom.Allows(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return
	}

	body := msg.Text
	if body == "" {
		body = msg.Caption
	}
	attachments := a.attachments(ctx, files, msg)
	if strings.TrimSpace(body) == "" && len(attachments) == 0 {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	target := session.Target{
		TargetFrom: channelName,
		TargetID:   chatID,
		SenderFrom: channelName,
		SenderID:   senderID,
	}
	a.log.Info("Received message", "target", target.TargetKey(), "sender_id", senderID, "attachments", len(attachments), "content", channel.Preview(body))

	stopTyping := a.startTypingIndicator(ctx, api, msg.Chat.ID)
	defer stopTyping()

	in := channel.Inbound{
		Target: target,
		Event:  message.InboundEvent{Body: body, Attachments: attachments},
		Poster: a.newPoster(api, msg.Chat.ID, msg.MessageID),
	}
	if err := channel.Receive(ctx, a.deps, in, handler, a.log); err != nil {
		a.log.Error("Failed to process inbound message", "target", target.TargetKey(), "error", err)
	}
}

// attachments resolves photo and voice file ids to download URLs.
func (a *Adapter) attachments(ctx context.Context, files fileAPI, msg *telego.Message) []message.Attachment {
	var fileIDs []string
	if n := len(msg.Photo); n > 0 {
		// Sizes are ordered smallest first.
		fileIDs = append(fileIDs, msg.Photo[n-1].FileID)
	}
	if msg.Voice != nil {
		fileIDs = append(fileIDs, msg.Voice.FileID)
	}
	if msg.Audio != nil {
		fileIDs = append(fileIDs, msg.Audio.FileID)
	}

	attachments := make([]message.Attachment, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		file, err := files.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
		if err != nil {
			a.log.Warn("Failed to resolve telegram file", "file_id", fileID, "error", err)
			continue
		}
		attachments = append(attachments, message.Attachment{URL: files.FileDownloadURL(file.FilePath)})
	}

	return attachments
}

func (a *Adapter) newPoster(api botAPI, chatID int64, replyTo int) *poster {
	return &poster{
		api:     api,
		chatID:  chatID,
		replyTo: replyTo,
		fetcher: a.deps.ResourceFetcher(),
		log:     a.log,
	}
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, api botAPI, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := api.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}

func botOptions(proxy string) ([]telego.BotOption, error) {
	proxy = strings.TrimSpace(proxy)
	if proxy == "" {
		return nil, nil
	}

	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("parse channels.telegram.proxy: %w", err)
	}

	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
	return []telego.BotOption{telego.WithHTTPClient(client)}, nil
}
