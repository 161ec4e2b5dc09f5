package discord

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"relaybot/pkg/message"
	"relaybot/pkg/resource"
	"relaybot/pkg/session"

	"github.com/bwmarrin/discordgo"
)

// messageAPI is the subset of *discordgo.Session used for sending.
type messageAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID string, messageID string, options ...discordgo.RequestOption) error
}

// poster sends elements into one Discord channel.
type poster struct {
	api       messageAPI
	channelID string
	reference *discordgo.MessageReference
	fetcher   message.ResourceFetcher
}

func (p *poster) Post(ctx context.Context, el message.Element, opts session.PostOptions) ([]session.Receipt, error) {
	switch typed := el.(type) {
	case message.Plain:
		if typed.Text == "" {
			return nil, nil
		}
		return p.send(ctx, &discordgo.MessageSend{Content: typed.Text}, opts.Quote)
	case message.URL, message.FormattedTime, message.I18NContext, message.ErrorMessage, message.EmbedField:
		return p.send(ctx, &discordgo.MessageSend{Content: el.Render(opts.Render)}, opts.Quote)
	case message.Image:
		path, err := typed.Get(ctx, p.fetcher)
		if err != nil {
			return nil, err
		}
		file, err := attachmentFile(path)
		if err != nil {
			return nil, err
		}
		return p.send(ctx, &discordgo.MessageSend{Files: []*discordgo.File{file}}, opts.Quote)
	case message.Voice:
		path, err := typed.Get()
		if err != nil {
			return nil, err
		}
		file, err := attachmentFile(path)
		if err != nil {
			return nil, err
		}
		return p.send(ctx, &discordgo.MessageSend{Files: []*discordgo.File{file}}, opts.Quote)
	case message.Embed:
		embed, files, err := p.nativeEmbed(ctx, typed)
		if err != nil {
			return nil, err
		}
		return p.send(ctx, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}, Files: files}, opts.Quote)
	default:
		return nil, nil
	}
}

func (p *poster) Delete(ctx context.Context, messageID string) error {
	return p.api.ChannelMessageDelete(p.channelID, messageID, discordgo.WithContext(ctx))
}

func (p *poster) send(ctx context.Context, data *discordgo.MessageSend, quote bool) ([]session.Receipt, error) {
	if quote && p.reference != nil {
		data.Reference = p.reference
	}

	msg, err := p.api.ChannelMessageSendComplex(p.channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("send discord message: %w", err)
	}

	return []session.Receipt{{ID: msg.ID, Raw: msg}}, nil
}

// nativeEmbed maps an embed to Discord's representation. Image and thumbnail
// are uploaded with the message and referenced by attachment name.
func (p *poster) nativeEmbed(ctx context.Context, e message.Embed) (*discordgo.MessageEmbed, []*discordgo.File, error) {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
	}
	if e.Timestamp > 0 {
		embed.Timestamp = message.FormattedTime{Timestamp: e.Timestamp}.Instant().UTC().Format(time.RFC3339)
	}
	if e.Author != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: e.Author}
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, field := range e.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   field.Name,
			Value:  field.Value,
			Inline: field.Inline,
		})
	}

	var files []*discordgo.File
	attach := func(img *message.Image) (string, error) {
		path, err := img.Get(ctx, p.fetcher)
		if err != nil {
			return "", err
		}
		file, err := attachmentFile(path)
		if err != nil {
			return "", err
		}
		files = append(files, file)
		return "attachment://" + file.Name, nil
	}

	if e.Image != nil {
		ref, err := attach(e.Image)
		if err != nil {
			return nil, nil, err
		}
		embed.Image = &discordgo.MessageEmbedImage{URL: ref}
	}
	if e.Thumbnail != nil {
		ref, err := attach(e.Thumbnail)
		if err != nil {
			return nil, nil, err
		}
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: ref}
	}

	return embed, files, nil
}

// attachmentFile loads path into an upload named by its content hash.
func attachmentFile(path string) (*discordgo.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}

	sum := sha256.Sum256(data)
	ext := filepath.Ext(path)
	contentType := "application/octet-stream"
	if kind, err := resource.Sniff(data); err == nil {
		ext = "." + kind.Extension
		contentType = kind.MIME.Value
	}

	return &discordgo.File{
		Name:        hex.EncodeToString(sum[:]) + ext,
		ContentType: contentType,
		Reader:      bytes.NewReader(data),
	}, nil
}
