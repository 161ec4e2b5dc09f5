// Package message defines the platform-neutral message element model and chains.
package message

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"relaybot/pkg/i18n"
)

// Kind is the canonical type tag of an element.
type Kind string

const (
	KindPlain         Kind = "plain"
	KindURL           Kind = "url"
	KindFormattedTime Kind = "formatted_time"
	KindI18N          Kind = "i18n"
	KindError         Kind = "error"
	KindImage         Kind = "image"
	KindVoice         Kind = "voice"
	KindEmbed         Kind = "embed"
	KindField         Kind = "field"
)

// Kinds lists every element kind in canonical order.
var Kinds = []Kind{
	KindPlain, KindURL, KindFormattedTime, KindI18N, KindError,
	KindImage, KindVoice, KindEmbed, KindField,
}

// Textual reports whether elements of this kind render to plain text on send.
func (k Kind) Textual() bool {
	switch k {
	case KindPlain, KindURL, KindFormattedTime, KindI18N, KindError, KindField:
		return true
	default:
		return false
	}
}

// RenderContext supplies the per-session locale and timezone used at render time.
type RenderContext interface {
	Locale() i18n.Locale
	TimezoneOffset() time.Duration
}

// Element is one typed unit of content. The set of implementations is closed.
type Element interface {
	Kind() Kind
	// Render renders the element as text. rc may be nil.
	Render(rc RenderContext) string
	isElement()
}

func localeOf(rc RenderContext) i18n.Locale {
	if rc == nil {
		return nil
	}

	return rc.Locale()
}

// Plain is literal text.
type Plain struct {
	Text string `json:"text"`
}

// NewPlain concatenates parts into one Plain element without filtering.
func NewPlain(parts ...string) Plain {
	return Plain{Text: strings.Join(parts, "")}
}

func (Plain) Kind() Kind                       { return KindPlain }
func (p Plain) Render(rc RenderContext) string { return p.Text }
func (Plain) isElement()                       {}

// URL is a link, possibly already wrapped by the redirect service.
type URL struct {
	URL      string `json:"url"`
	Markdown bool   `json:"markdown,omitempty"`
}

func (URL) Kind() Kind { return KindURL }
func (u URL) Render(rc RenderContext) string {
	if u.Markdown {
		return fmt.Sprintf("[%s](%s)", u.URL, u.URL)
	}

	return u.URL
}
func (URL) isElement() {}

// I18NContext is a localized string resolved at render time.
type I18NContext struct {
	Key  string         `json:"key"`
	Args map[string]any `json:"args,omitempty"`
}

// NewI18N builds a deferred localized reference.
func NewI18N(key string, args map[string]any) I18NContext {
	return I18NContext{Key: key, Args: args}
}

func (I18NContext) Kind() Kind { return KindI18N }
func (c I18NContext) Render(rc RenderContext) string {
	loc := localeOf(rc)
	if loc == nil {
		return c.Key
	}

	return loc.T(c.Key, c.Args)
}
func (I18NContext) isElement() {}

// ErrorMessage carries an error text that was localized once at construction.
type ErrorMessage struct {
	Message string `json:"message"`
}

// NewErrorMessage localizes raw against loc when given and appends the bug
// report prompt when reportURL is set. Without a locale raw is kept as is.
func NewErrorMessage(raw string, loc i18n.Locale, args map[string]any, reportURL string) ErrorMessage {
	if loc == nil {
		return ErrorMessage{Message: raw}
	}

	text := loc.T("message.error", nil) + loc.TStr(raw, args)
	if reportURL != "" {
		text += "\n" + loc.T("error.prompt.address", map[string]any{"url": reportURL})
	}

	return ErrorMessage{Message: text}
}

func (ErrorMessage) Kind() Kind                       { return KindError }
func (e ErrorMessage) Render(rc RenderContext) string { return e.Message }
func (ErrorMessage) isElement()                       {}

// Voice is a local audio file.
type Voice struct {
	Path string `json:"path"`
}

func (Voice) Kind() Kind                       { return KindVoice }
func (v Voice) Render(rc RenderContext) string { return "[Voice]" }
func (Voice) isElement()                       {}

// Get returns the absolute path of the audio file.
func (v Voice) Get() (string, error) {
	return filepath.Abs(v.Path)
}

// EmbedField is one named value inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

func (EmbedField) Kind() Kind { return KindField }
func (f EmbedField) Render(rc RenderContext) string {
	colon := ": "
	if loc := localeOf(rc); loc != nil {
		colon = loc.T("message.colon", nil)
	}

	return f.Name + colon + f.Value
}
func (EmbedField) isElement() {}

// TextFilter mutates outgoing plain text.
type TextFilter func(string) string

// LinkPolicy controls how URLs are wrapped by the redirect service.
type LinkPolicy struct {
	Obfuscate          bool
	DisableObfuscation bool
	// RedirectTemplate contains {url}, replaced by the encoded target.
	RedirectTemplate string
	Markdown         bool
}

// URL builds a URL element, obfuscating it at most once.
func (p LinkPolicy) URL(raw string, useObfuscation bool, disableObfuscation bool) URL {
	wrap := (p.Obfuscate && !disableObfuscation) || (useObfuscation && !p.DisableObfuscation)
	if wrap && p.RedirectTemplate != "" {
		raw = p.wrap(raw)
	}

	return URL{URL: raw, Markdown: p.Markdown}
}

func (p LinkPolicy) wrap(raw string) string {
	unquoted, err := url.QueryUnescape(raw)
	if err != nil {
		unquoted = raw
	}

	encoded := url.QueryEscape(rot13(unquoted))
	encoded = strings.NewReplacer("+", "%20", "%2F", "/").Replace(encoded)

	if !strings.Contains(p.RedirectTemplate, "{url}") {
		return p.RedirectTemplate + encoded
	}

	return strings.ReplaceAll(p.RedirectTemplate, "{url}", encoded)
}

func rot13(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+13)%26
		default:
			return r
		}
	}, s)
}

// Composer builds elements with the process-wide text and link settings.
type Composer struct {
	Filter       TextFilter
	Links        LinkPolicy
	BugReportURL string
}

// Plain builds filtered text.
func (c Composer) Plain(parts ...string) Plain {
	p := NewPlain(parts...)
	if c.Filter != nil {
		p.Text = c.Filter(p.Text)
	}

	return p
}

// PlainRaw builds text that bypasses the filter.
func (c Composer) PlainRaw(parts ...string) Plain {
	return NewPlain(parts...)
}

// URL builds a link with the configured policy.
func (c Composer) URL(raw string, useObfuscation bool, disableObfuscation bool) URL {
	return c.Links.URL(raw, useObfuscation, disableObfuscation)
}

// Error builds a localized error, optionally with the report link.
func (c Composer) Error(raw string, loc i18n.Locale, args map[string]any, reportLink bool) ErrorMessage {
	reportURL := ""
	if reportLink {
		reportURL = c.BugReportURL
	}

	return NewErrorMessage(raw, loc, args, reportURL)
}
