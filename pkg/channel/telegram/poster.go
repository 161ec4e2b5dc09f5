package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"relaybot/pkg/channel"
	"relaybot/pkg/message"
	"relaybot/pkg/session"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// botAPI is the subset of *telego.Bot used for sending.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	SendVoice(ctx context.Context, params *telego.SendVoiceParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
	DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error
}

// fileAPI is the subset of *telego.Bot used to resolve inbound files.
type fileAPI interface {
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
}

// poster sends elements into one Telegram chat.
type poster struct {
	api     botAPI
	chatID  int64
	replyTo int
	fetcher message.ResourceFetcher
	log     *slog.Logger
}

func (p *poster) Post(ctx context.Context, el message.Element, opts session.PostOptions) ([]session.Receipt, error) {
	switch typed := el.(type) {
	case message.Plain:
		return p.sendText(ctx, typed.Text, opts.Quote)
	case message.URL, message.FormattedTime, message.I18NContext, message.ErrorMessage, message.EmbedField:
		return p.sendText(ctx, el.Render(opts.Render), opts.Quote)
	case message.Image:
		return p.sendImage(ctx, typed, opts.Quote)
	case message.Voice:
		return p.sendVoice(ctx, typed, opts.Quote)
	case message.Embed:
		var receipts []session.Receipt
		for index, part := range channel.Flatten(typed, opts.Render) {
			partOpts := opts
			partOpts.Quote = opts.Quote && index == 0
			sent, err := p.Post(ctx, part, partOpts)
			receipts = append(receipts, sent...)
			if err != nil {
				return receipts, err
			}
		}
		return receipts, nil
	default:
		return nil, nil
	}
}

func (p *poster) Delete(ctx context.Context, messageID string) error {
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("parse telegram message id %q: %w", messageID, err)
	}

	return p.api.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.ID(p.chatID), MessageID: id})
}

func (p *poster) sendText(ctx context.Context, text string, quote bool) ([]session.Receipt, error) {
	if text == "" {
		return nil, nil
	}

	params := tu.Message(tu.ID(p.chatID), text)
	params.ReplyParameters = p.reply(quote)

	msg, err := p.api.SendMessage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("send telegram message: %w", err)
	}

	return receipt(msg), nil
}

func (p *poster) sendImage(ctx context.Context, img message.Image, quote bool) ([]session.Receipt, error) {
	path, err := img.Get(ctx, p.fetcher)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	params := tu.Photo(tu.ID(p.chatID), tu.File(file))
	params.ReplyParameters = p.reply(quote)

	msg, err := p.api.SendPhoto(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("send telegram photo: %w", err)
	}

	return receipt(msg), nil
}

func (p *poster) sendVoice(ctx context.Context, voice message.Voice, quote bool) ([]session.Receipt, error) {
	path, err := voice.Get()
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open voice: %w", err)
	}
	defer file.Close()

	params := tu.Voice(tu.ID(p.chatID), tu.File(file))
	params.ReplyParameters = p.reply(quote)

	msg, err := p.api.SendVoice(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("send telegram voice: %w", err)
	}

	return receipt(msg), nil
}

func (p *poster) reply(quote bool) *telego.ReplyParameters {
	if !quote || p.replyTo == 0 {
		return nil
	}

	return &telego.ReplyParameters{MessageID: p.replyTo, AllowSendingWithoutReply: true}
}

func receipt(msg *telego.Message) []session.Receipt {
	if msg == nil {
		return nil
	}

	return []session.Receipt{{ID: strconv.Itoa(msg.MessageID), Raw: msg}}
}
