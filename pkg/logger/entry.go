package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Entry is one JSON log line. Chat routing attributes are lifted out of
// Fields so lines can be filtered per platform, target, sender or module.
type Entry struct {
	Level     string         `json:"level"`
	Time      string         `json:"time"`
	Component string         `json:"component,omitempty"`
	Platform  string         `json:"platform,omitempty"`
	Target    string         `json:"target,omitempty"`
	Sender    string         `json:"sender,omitempty"`
	Module    string         `json:"module,omitempty"`
	Message   string         `json:"msg"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

func (e *Entry) route(key string, value slog.Value) bool {
	if key == "error" {
		if err, ok := value.Any().(error); ok {
			e.Error = err.Error()
			return true
		}
	}
	if value.Kind() != slog.KindString {
		return false
	}

	var slot *string
	switch key {
	case "component":
		slot = &e.Component
	case "platform":
		slot = &e.Platform
	case "target":
		slot = &e.Target
	case "sender":
		slot = &e.Sender
	case "module":
		slot = &e.Module
	case "error":
		slot = &e.Error
	default:
		return false
	}
	*slot = value.String()

	return true
}

type entryHandler struct {
	level     slog.Level
	addSource bool
	w         io.Writer
	mu        *sync.Mutex
	attrs     []scopedAttr
	groups    []string
}

// scopedAttr remembers the groups that were open when the attr was bound.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

func (h *entryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *entryHandler) Handle(_ context.Context, record slog.Record) error {
	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}
	entry := Entry{
		Level:   strings.ToLower(record.Level.String()),
		Time:    when.UTC().Format(time.RFC3339Nano),
		Message: record.Message,
		Fields:  map[string]any{},
	}

	for _, bound := range h.attrs {
		addAttr(&entry, bound.groups, bound.attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		addAttr(&entry, h.groups, attr)
		return true
	})
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}
	if h.addSource {
		entry.Caller = caller(record.PC)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(line, '\n'))
	return err
}

func addAttr(entry *Entry, groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if len(groups) == 0 && entry.route(attr.Key, attr.Value) {
		return
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	entry.Fields[key] = plain(attr.Value)
}

func (h *entryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]scopedAttr{}, h.attrs...)
	for _, attr := range attrs {
		next.attrs = append(next.attrs, scopedAttr{groups: h.groups, attr: attr})
	}

	return &next
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

// plain converts v into something encoding/json renders faithfully.
func plain(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := v.Group()
		out := make(map[string]any, len(group))
		for _, item := range group {
			out[item.Key] = plain(item.Value.Resolve())
		}
		return out
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case fmt.Stringer:
			return x.String()
		default:
			return x
		}
	default:
		return v.Any()
	}
}

func caller(pc uintptr) string {
	if pc == 0 {
		return ""
	}

	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}

	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}
