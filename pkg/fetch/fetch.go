// Package fetch performs the single HTTP GET behind every tool call and
// hands the response body back untouched.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Options configures an HTTPFetcher.
type Options struct {
	UserAgent string        `yaml:"user_agent" env:"BTCMCP_USER_AGENT"`
	Timeout   time.Duration `yaml:"timeout" env:"BTCMCP_FETCH_TIMEOUT"`
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() Options {
	return Options{
		UserAgent:    "bitcoin-data-mcp/1.0 (+https://github.com/RobinCoderZhao/bitcoin-data-mcp)",
		Timeout:      30 * time.Second,
		MaxBodyBytes: 8 << 20,
	}
}

// Fetcher defines the interface for fetching a URL as text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// ErrTooLarge is returned when a body exceeds Options.MaxBodyBytes.
var ErrTooLarge = errors.New("response body too large")

// HTTPFetcher implements Fetcher using standard HTTP. It does not retry or
// cache; each call is exactly one request.
type HTTPFetcher struct {
	client *http.Client
	opts   Options
}

// NewHTTPFetcher creates a new HTTP-based fetcher. Zero option fields take
// their defaults.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	def := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Fetch retrieves url and returns the body as text.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Only the head of an error body is kept, whatever its size.
		head, _ := io.ReadAll(io.LimitReader(resp.Body, snippetBytes))
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode, Body: snippet(string(head))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return "", fmt.Errorf("fetch %s: %w (limit %d bytes)", url, ErrTooLarge, f.opts.MaxBodyBytes)
	}
	return string(body), nil
}

// snippetBytes bounds how much of a non-2xx body is read.
const snippetBytes = 4096

func snippet(s string) string {
	s = strings.TrimSpace(s)
	const limit = 200
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
