// Package history archives sent chains as JSONL and ships rotated files to S3.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"relaybot/pkg/logger"
	"relaybot/pkg/message"
	"relaybot/pkg/session"

	"github.com/google/uuid"
)

const (
	fileTimeLayout        = "20060102_150405"
	defaultRotateAfter    = time.Hour
	defaultRotateBytes    = 100 * 1024 * 1024
	rotationCheckInterval = time.Minute
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// Record is one archived line.
type Record struct {
	Time     time.Time           `json:"time"`
	Target   string              `json:"target"`
	Sender   string              `json:"sender,omitempty"`
	Elements []message.Canonical `json:"elements"`
}

type fileWriter struct {
	file         *os.File
	writer       *bufio.Writer
	path         string
	createdAt    time.Time
	bytesWritten int64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithRotation sets the age and size limits of one archive file.
func WithRotation(after time.Duration, bytes int64) Option {
	return func(r *Recorder) {
		if after > 0 {
			r.rotateAfter = after
		}
		if bytes > 0 {
			r.rotateBytes = bytes
		}
	}
}

// WithQueue delivers the paths of closed files to an uploader.
func WithQueue(queue chan<- string) Option {
	return func(r *Recorder) {
		r.queue = queue
	}
}

// WithLogger sets the recorder logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Recorder) {
		r.log = logger.OrDefault(log, "history.recorder")
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// Recorder appends sent chains to one file per target.
type Recorder struct {
	dir         string
	rotateAfter time.Duration
	rotateBytes int64
	queue       chan<- string
	now         func() time.Time
	log         *slog.Logger

	mu    sync.Mutex
	files map[string]*fileWriter
}

var _ session.Recorder = (*Recorder)(nil)

// NewRecorder creates dir and returns a recorder writing into it.
func NewRecorder(dir string, opts ...Option) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	r := &Recorder{
		dir:         dir,
		rotateAfter: defaultRotateAfter,
		rotateBytes: defaultRotateBytes,
		now:         time.Now,
		log:         logger.Discard(),
		files:       make(map[string]*fileWriter),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Dir returns the archive directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// Record appends chain as one JSON line to the target's current file.
func (r *Recorder) Record(_ context.Context, target session.Target, chain message.Chain) error {
	elements, err := message.SerializeChain(chain)
	if err != nil {
		return fmt.Errorf("serialize chain: %w", err)
	}

	record := Record{
		Time:     r.now().UTC(),
		Target:   target.TargetKey(),
		Elements: elements,
	}
	if target.SenderID != "" {
		record.Sender = target.SenderKey()
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	key := target.TargetKey()
	fw := r.files[key]
	if fw == nil {
		fw, err = r.createFileWriter(target)
		if err != nil {
			return err
		}
		r.files[key] = fw
	}

	n, err := fw.writer.Write(line)
	fw.bytesWritten += int64(n)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := fw.writer.Flush(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}

	if fw.bytesWritten >= r.rotateBytes {
		r.log.Info("Rotating history file", "file", filepath.Base(fw.path), "reason", "size")
		r.closeFile(key, fw)
	}

	return nil
}

// CheckRotation closes files older than the rotation age.
func (r *Recorder) CheckRotation() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, fw := range r.files {
		if now.Sub(fw.createdAt) >= r.rotateAfter {
			r.log.Info("Rotating history file", "file", filepath.Base(fw.path), "reason", "age")
			r.closeFile(key, fw)
		}
	}
}

// Close flushes and closes every open file, queueing each for upload.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, fw := range r.files {
		r.closeFile(key, fw)
	}
}

// Run checks rotation periodically and closes all files when ctx ends.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(rotationCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			r.CheckRotation()
		}
	}
}

// createFileWriter opens <platform>_<target>_<time>_<suffix>.jsonl.
func (r *Recorder) createFileWriter(target session.Target) (*fileWriter, error) {
	createdAt := r.now()
	name := fmt.Sprintf("%s_%s_%s_%s.jsonl",
		sanitize(target.TargetFrom),
		sanitize(target.TargetID),
		createdAt.UTC().Format(fileTimeLayout),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
	)
	path := filepath.Join(r.dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create history file: %w", err)
	}

	r.log.Debug("Created history file", "file", name)

	return &fileWriter{
		file:      file,
		writer:    bufio.NewWriter(file),
		path:      path,
		createdAt: createdAt,
	}, nil
}

// closeFile must be called with r.mu held.
func (r *Recorder) closeFile(key string, fw *fileWriter) {
	delete(r.files, key)

	if err := fw.writer.Flush(); err != nil {
		r.log.Error("Flush history file failed", "file", fw.path, "error", err)
	}
	if err := fw.file.Close(); err != nil {
		r.log.Error("Close history file failed", "file", fw.path, "error", err)
	}

	if r.queue == nil {
		return
	}

	select {
	case r.queue <- fw.path:
		r.log.Debug("Queued history file for upload", "file", filepath.Base(fw.path))
	default:
		r.log.Warn("Upload queue full, file left for the next scan", "file", filepath.Base(fw.path))
	}
}

func sanitize(part string) string {
	clean := strings.Trim(unsafeNameChars.ReplaceAllString(part, "-"), "-")
	if clean == "" {
		return "unknown"
	}

	return clean
}
