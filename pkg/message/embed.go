package message

import (
	"strings"
	"time"
)

// DefaultEmbedColor is the accent used when none is given.
const DefaultEmbedColor = 0x0091ff

// Embed is a rich card. Fields are displayed in slice order.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Timestamp   float64      `json:"timestamp"`
	Color       int          `json:"color"`
	Image       *Image       `json:"image,omitempty"`
	Thumbnail   *Image       `json:"thumbnail,omitempty"`
	Author      string       `json:"author,omitempty"`
	Footer      string       `json:"footer,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// NewEmbed stamps the embed with the current time and the default color.
func NewEmbed(title string, description string, fields ...EmbedField) Embed {
	return Embed{
		Title:       title,
		Description: description,
		Timestamp:   NewFormattedTime(time.Now()).Timestamp,
		Color:       DefaultEmbedColor,
		Fields:      fields,
	}
}

func (Embed) Kind() Kind { return KindEmbed }

func (e Embed) Render(rc RenderContext) string {
	chain := e.ToChain(rc)
	return chain.Render(rc)
}

func (Embed) isElement() {}

// ToChain flattens the embed for clients without native embeds.
func (e Embed) ToChain(rc RenderContext) Chain {
	var chain Chain

	if e.Thumbnail != nil {
		chain.Append(*e.Thumbnail)
	}
	if e.Title != "" {
		chain.Append(NewPlain(e.Title))
	}
	if e.Description != "" {
		chain.Append(NewPlain(e.Description))
	}
	if e.URL != "" {
		chain.Append(URL{URL: e.URL})
	}
	for _, field := range e.Fields {
		chain.Append(field)
	}
	if e.Image != nil {
		chain.Append(*e.Image)
	}

	var tail []string
	if e.Author != "" {
		prefix := "Author: "
		if loc := localeOf(rc); loc != nil {
			prefix = loc.T("message.embed.author", nil)
		}
		tail = append(tail, prefix+e.Author)
	}
	if e.Footer != "" {
		tail = append(tail, e.Footer)
	}
	if len(tail) > 0 {
		chain.Append(NewPlain(strings.Join(tail, "\n")))
	}
	if e.Timestamp > 0 {
		chain.Append(FormattedTime{Timestamp: e.Timestamp, Date: true, Time: true, Seconds: true, Timezone: true})
	}

	return chain
}
