package cache

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"perfkit/internal/httpclient"
)

// DefaultMaxBodyBytes caps how much of a response body is read (10MB).
const DefaultMaxBodyBytes int64 = 10 * 1024 * 1024

// ErrBodyTooLarge is returned when a response body exceeds the configured cap.
var ErrBodyTooLarge = errors.New("response body too large")

// ErrStatus is matched by errors.Is for non-2xx upstream responses.
var ErrStatus = errors.New("unexpected response status")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s: %d %s", e.Method, e.URL, ErrStatus, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrStatus) match.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Hooks receives cache events. All methods must be safe for concurrent use.
type Hooks interface {
	CacheHit()
	CacheMiss()
	CacheEvicted(n int)
	FetchDone(d time.Duration, err error)
}

// Config holds Fetcher options. Zero values use defaults.
type Config struct {
	// TTL is how long entries are served (defaults to DefaultTTL)
	TTL time.Duration

	// MaxBodyBytes caps response bodies (defaults to DefaultMaxBodyBytes)
	MaxBodyBytes int64

	// Client performs requests (defaults to httpclient.NewDefaultHTTPClient())
	Client *http.Client

	// Hooks receives cache events (optional)
	Hooks Hooks

	// Now returns the current time (defaults to time.Now)
	Now func() time.Time

	// Logger receives store failures (defaults to slog.Default())
	Logger *slog.Logger
}

// Fetcher performs HTTP requests and memoizes their JSON responses.
type Fetcher struct {
	store        Store
	ttl          time.Duration
	maxBodyBytes int64
	client       *http.Client
	hooks        Hooks
	now          func() time.Time
	logger       *slog.Logger
}

// NewFetcher creates a Fetcher that stores entries in store.
func NewFetcher(store Store, cfg Config) *Fetcher {
	f := &Fetcher{
		store:        store,
		ttl:          cfg.TTL,
		maxBodyBytes: cfg.MaxBodyBytes,
		client:       cfg.Client,
		hooks:        cfg.Hooks,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}
	if f.ttl <= 0 {
		f.ttl = DefaultTTL
	}
	if f.maxBodyBytes <= 0 {
		f.maxBodyBytes = DefaultMaxBodyBytes
	}
	if f.client == nil {
		f.client = httpclient.NewDefaultHTTPClient()
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = f.logger.With("component", "request_cache")
	return f
}

// Store returns the underlying entry store.
func (f *Fetcher) Store() Store {
	return f.store
}

// Fetch returns the JSON payload for url and opts, from the cache when a
// fresh entry exists, otherwise from the network. Failed requests are not
// cached and not retried.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts *Options) (Payload, error) {
	key := Key(url, opts)

	entry, err := f.store.Get(ctx, key)
	if err != nil {
		// A broken store degrades to uncached fetching.
		f.logger.Warn("cache lookup failed", "url", url, "error", err)
	}
	if entry != nil && entry.Fresh(f.now(), f.ttl) {
		if f.hooks != nil {
			f.hooks.CacheHit()
		}
		return entry.Payload, nil
	}
	if f.hooks != nil {
		f.hooks.CacheMiss()
	}

	start := time.Now()
	payload, err := f.do(ctx, url, opts)
	if f.hooks != nil {
		f.hooks.FetchDone(time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	evicted, err := f.store.Set(ctx, key, &Entry{Payload: payload, Timestamp: f.now()})
	if err != nil {
		f.logger.Warn("cache store failed", "url", url, "error", err)
	}
	if evicted > 0 {
		f.logger.Debug("cache entries evicted", "count", evicted)
		if f.hooks != nil {
			f.hooks.CacheEvicted(evicted)
		}
	}
	return payload, nil
}

func (f *Fetcher) do(ctx context.Context, url string, opts *Options) (Payload, error) {
	var body io.Reader
	if opts != nil && opts.Body != "" {
		body = strings.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, opts.method(), url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if opts != nil {
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Method: req.Method, URL: url, StatusCode: resp.StatusCode}
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", url, ErrBodyTooLarge, f.maxBodyBytes)
	}

	payload, err := ParsePayload(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response from %s: %w", url, err)
	}
	return payload, nil
}

// decodeBody unwraps the Content-Encoding we asked for. The transport only
// decompresses transparently when it set Accept-Encoding itself.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode gzip body: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}
