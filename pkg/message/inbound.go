package message

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"relaybot/pkg/resource"
)

// Attachment is one file attached to an inbound message.
type Attachment struct {
	URL  string
	Data []byte
}

// InboundEvent is the platform-neutral shape of a received message.
type InboundEvent struct {
	Body        string
	Attachments []Attachment
}

// Downloader fetches attachment bytes in one bounded attempt.
type Downloader interface {
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// FromInbound builds [Plain(body), Image|Voice...] from an inbound event.
// Attachments that are neither image nor audio are dropped. Attachments that
// cannot be downloaded or stored are dropped too and reported in the error,
// while the returned chain stays usable.
func FromInbound(ctx context.Context, event InboundEvent, downloader Downloader, cache *resource.Cache) (Chain, error) {
	chain := NewChain(NewPlain(event.Body))

	var errs []error
	for _, attachment := range event.Attachments {
		data := attachment.Data
		if len(data) == 0 && attachment.URL != "" && downloader != nil {
			downloaded, err := downloader.Download(ctx, attachment.URL)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			data = downloaded
		}

		isImage, isAudio := resource.IsImage(data), resource.IsAudio(data)
		if !isImage && !isAudio {
			continue
		}
		if cache == nil {
			errs = append(errs, fmt.Errorf("store attachment %s: no cache", attachment.URL))
			continue
		}

		kind, err := resource.Sniff(data)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		path, err := cache.Write(data, kind.Extension)
		if err != nil {
			errs = append(errs, fmt.Errorf("store attachment: %w", err))
			continue
		}

		if isImage {
			chain.Append(Image{Path: path})
		} else {
			chain.Append(Voice{Path: path})
		}
	}

	return chain, errors.Join(errs...)
}

// RewriteMentions replaces platform mention syntax with "platform|id". The
// pattern's first capture group must hold the user id.
func RewriteMentions(text string, pattern *regexp.Regexp, platform string) string {
	if pattern == nil {
		return text
	}

	return pattern.ReplaceAllString(text, platform+"|$1")
}
