// Package logger builds the process slog.Logger. Text output goes through
// charmbracelet/log; JSON output writes one chat-aware Entry per line.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	charmLog "github.com/charmbracelet/log"

	"relaybot/pkg/config"
)

const (
	envFormat    = "RELAYBOT_LOG_FORMAT"
	envLevel     = "RELAYBOT_LOG_LEVEL"
	envAddSource = "RELAYBOT_LOG_ADD_SOURCE"
)

// Settings is the logging configuration after environment overrides.
type Settings struct {
	JSON      bool
	Level     slog.Level
	AddSource bool
}

// Resolve applies RELAYBOT_LOG_* overrides to cfg and validates the result.
func Resolve(cfg config.LoggingConfig) (Settings, error) {
	format := firstNonEmpty(os.Getenv(envFormat), cfg.Format, "text")
	levelText := firstNonEmpty(os.Getenv(envLevel), cfg.Level, "info")

	var s Settings
	switch format {
	case "text":
	case "json":
		s.JSON = true
	default:
		return Settings{}, fmt.Errorf("unsupported log format %q", format)
	}

	level, ok := levels[levelText]
	if !ok {
		return Settings{}, fmt.Errorf("unsupported log level %q", levelText)
	}
	s.Level = level

	s.AddSource = cfg.AddSource
	if env := strings.TrimSpace(os.Getenv(envAddSource)); env != "" {
		s.AddSource = truthy(env)
	}

	return s, nil
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds the logger described by cfg, writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	s, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}

	var h slog.Handler
	if s.JSON {
		h = &entryHandler{level: s.Level, addSource: s.AddSource, w: w, mu: &sync.Mutex{}}
	} else {
		h = charmLog.NewWithOptions(w, charmLog.Options{
			Level:           charmLevel(s.Level),
			ReportTimestamp: true,
			ReportCaller:    s.AddSource,
			Formatter:       charmLog.TextFormatter,
		})
	}

	return slog.New(redactHandler{next: h}), nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(&entryHandler{level: slog.LevelError + 1, w: io.Discard, mu: &sync.Mutex{}})
}

// OrDefault returns log, or slog.Default when log is nil, scoped to component.
func OrDefault(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	if component == "" {
		return log
	}

	return log.With("component", component)
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			return v
		}
	}

	return ""
}

func truthy(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
