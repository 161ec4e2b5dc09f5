package logger

import (
	"context"
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

// secretKeys are attribute key fragments whose values never reach the log:
// platform tokens, twitch oauth strings and S3 credentials.
var secretKeys = []string{"token", "secret", "password", "oauth", "access_key", "credential"}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, fragment := range secretKeys {
		if strings.Contains(key, fragment) {
			return true
		}
	}

	return false
}

// redactHandler masks secret-looking attributes before next sees them.
type redactHandler struct {
	next slog.Handler
}

func (h redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h redactHandler) Handle(ctx context.Context, record slog.Record) error {
	masked := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		masked.AddAttrs(redactAttr(attr))
		return true
	})

	return h.next.Handle(ctx, masked)
}

func (h redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		masked[i] = redactAttr(attr)
	}

	return redactHandler{next: h.next.WithAttrs(masked)}
}

func (h redactHandler) WithGroup(name string) slog.Handler {
	return redactHandler{next: h.next.WithGroup(name)}
}

func redactAttr(attr slog.Attr) slog.Attr {
	if isSecretKey(attr.Key) {
		return slog.String(attr.Key, redacted)
	}

	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() != slog.KindGroup {
		return attr
	}

	group := attr.Value.Group()
	masked := make([]any, len(group))
	for i, item := range group {
		masked[i] = redactAttr(item)
	}

	return slog.Group(attr.Key, masked...)
}
