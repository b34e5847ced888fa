// Package fetcher retrieves supplementary web content for the context
// builder. Fetches run concurrently with a bounded worker count; a failed URL
// never blocks or fails the batch, it just yields an empty result.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/DealFlow/logger"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "DealFlow/1.0"

	// maxAttempts bounds retries per URL; client errors are not retried.
	maxAttempts = 3

	// maxConcurrent bounds in-flight fetches across a batch.
	maxConcurrent = 5

	// maxBodyBytes caps how much of a page is read. Content beyond this is
	// past any reasonable context budget anyway.
	maxBodyBytes = 1 << 20
)

var retryBackoff = []time.Duration{time.Second, 2 * time.Second}

// Result is the outcome of fetching one URL. Results preserve input order.
type Result struct {
	URL     string
	Content string
	OK      bool
}

// Fetcher fetches web pages with per-URL retry and bounded concurrency.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// New creates a Fetcher with a 30 second request timeout.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves a single URL, retrying transient failures. A 4xx response
// fails immediately; transport errors and 5xx responses are retried up to
// maxAttempts with fixed backoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) Result {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		content, retryable, err := f.fetchOnce(ctx, url)
		if err == nil {
			return Result{URL: url, Content: content, OK: true}
		}
		lastErr = err
		if !retryable {
			break
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				logger.Warn("web fetch cancelled", "url", url)
				return Result{URL: url}
			case <-time.After(retryBackoff[attempt-1]):
			}
		}
	}
	logger.Warn("web fetch failed", "url", url, "error", lastErr)
	return Result{URL: url}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (content string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("server error: HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", false, fmt.Errorf("client error: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", true, err
	}
	return string(body), true, nil
}

// FetchAll fetches every URL concurrently, at most maxConcurrent in flight.
// The returned slice matches the input order; individual failures appear as
// results with OK unset.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, url := range urls {
		g.Go(func() error {
			results[i] = f.Fetch(ctx, url)
			return nil
		})
	}
	// Workers never return errors, so Wait only synchronizes.
	_ = g.Wait()

	return results
}
