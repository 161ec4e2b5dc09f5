// Package resource acquires remote binary resources into a local cache.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"relaybot/pkg/logger"
)

const (
	DefaultTimeout    = 20 * time.Second
	DefaultAttempts   = 3
	DefaultRetryDelay = 500 * time.Millisecond

	DefaultMaxBytes = 32 << 20
)

// Fetcher downloads remote resources with a bounded, retried policy.
type Fetcher struct {
	client   *http.Client
	cache    *Cache
	timeout  time.Duration
	attempts uint
	delay    time.Duration
	maxBytes int64
	log      *slog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithTimeout bounds every single attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithAttempts sets the total number of attempts.
func WithAttempts(attempts int) Option {
	return func(f *Fetcher) {
		if attempts > 0 {
			f.attempts = uint(attempts)
		}
	}
}

// WithRetryDelay sets the fixed pause between attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(f *Fetcher) {
		if delay >= 0 {
			f.delay = delay
		}
	}
}

// WithMaxBytes caps the accepted body size. Larger bodies fail with
// ErrorTooLarge.
func WithMaxBytes(limit int64) Option {
	return func(f *Fetcher) {
		if limit > 0 {
			f.maxBytes = limit
		}
	}
}

// WithLogger sets the fetcher logger.
func WithLogger(log *slog.Logger) Option {
	return func(f *Fetcher) {
		f.log = logger.OrDefault(log, "resource.fetcher")
	}
}

// NewFetcher creates a fetcher persisting into cache.
func NewFetcher(cache *Cache, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{},
		cache:    cache,
		timeout:  DefaultTimeout,
		attempts: DefaultAttempts,
		delay:    DefaultRetryDelay,
		maxBytes: DefaultMaxBytes,
		log:      logger.OrDefault(nil, "resource.fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Cache returns the cache the fetcher writes into.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// Fetch downloads rawURL, sniffs its content type and stores it under a random
// cache name with the detected extension. It returns the absolute local path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	if f.cache == nil {
		return "", NewError(ErrorIO, "fetcher has no cache")
	}

	var path string
	err := retry.Do(
		func() error {
			data, err := f.get(ctx, rawURL, headers)
			if err != nil {
				if !retryable(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}

			kind, err := Sniff(data)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			stored, err := f.cache.Write(data, kind.Extension)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			path = stored
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.log.Warn("Resource fetch attempt failed",
				"url", rawURL,
				"attempt", n+1,
				"category", CategoryFromError(err),
				"error", err,
			)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, err)
	}

	f.log.Debug("Resource fetched", "url", rawURL, "path", path)
	return path, nil
}

// Download performs one bounded attempt and returns the body bytes.
func (f *Fetcher) Download(ctx context.Context, rawURL string) ([]byte, error) {
	data, err := f.get(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}

	return data, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, NewError(ErrorIO, err.Error())
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, NewError(ErrorHTTPStatus, strconv.Itoa(resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, NewError(ErrorTooLarge, fmt.Sprintf("body exceeds %d bytes", f.maxBytes))
	}

	return data, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTimeout, err.Error())
	}

	return NewError(ErrorNetwork, err.Error())
}
