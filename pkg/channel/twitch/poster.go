package twitch

import (
	"context"
	"errors"
	"strings"

	"relaybot/pkg/channel"
	"relaybot/pkg/message"
	"relaybot/pkg/session"
)

// ErrDeleteUnsupported is returned by Delete; IRC sends carry no message ids.
var ErrDeleteUnsupported = errors.New("twitch does not support deleting sent messages")

// poster sends text into one Twitch channel. Images and voices are dropped.
type poster struct {
	client  ircClient
	channel string
	replyTo string
}

func (p *poster) Post(_ context.Context, el message.Element, opts session.PostOptions) ([]session.Receipt, error) {
	var text string
	switch typed := el.(type) {
	case message.Image, message.Voice:
		return nil, nil
	case message.Embed:
		parts := make([]string, 0, len(typed.Fields)+4)
		for _, part := range channel.Flatten(typed, opts.Render) {
			if part.Kind().Textual() {
				parts = append(parts, part.Render(opts.Render))
			}
		}
		text = strings.Join(parts, " ")
	default:
		text = el.Render(opts.Render)
	}

	// IRC lines cannot carry newlines.
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil, nil
	}

	if opts.Quote && p.replyTo != "" {
		p.client.Reply(p.channel, p.replyTo, text)
	} else {
		p.client.Say(p.channel, text)
	}

	return []session.Receipt{{Raw: text}}, nil
}

func (p *poster) Delete(context.Context, string) error {
	return ErrDeleteUnsupported
}
