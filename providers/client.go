package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AltairaLabs/DealFlow/logger"
)

const (
	// maxRetries is the attempt budget per execution path.
	maxRetries = 3

	defaultTemperature    = 0.3
	summarizerTemperature = 0.3
)

// backoffSchedule holds the sleep applied after failed attempt i (1-based).
// No sleep follows the final attempt.
var backoffSchedule = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// SleepFunc sleeps for the given duration, honoring context cancellation.
// Override for deterministic tests.
type SleepFunc func(ctx context.Context, d time.Duration)

func defaultSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Client wraps a primary model backend, and optionally a cloud fallback
// backend, with the retry policy. The cloud path is only exercised when the
// caller explicitly asks for it; recording user consent before doing so is
// the orchestration layer's responsibility.
type Client struct {
	primary Provider
	cloud   Provider
	sleep   SleepFunc
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCloudProvider configures the secondary (cloud) execution path.
func WithCloudProvider(p Provider) ClientOption {
	return func(c *Client) {
		c.cloud = p
	}
}

// WithSleepFunc replaces the backoff sleep for deterministic tests.
func WithSleepFunc(fn SleepFunc) ClientOption {
	return func(c *Client) {
		c.sleep = fn
	}
}

// NewClient creates a model client over the primary backend.
func NewClient(primary Provider, opts ...ClientOption) *Client {
	c := &Client{
		primary: primary,
		sleep:   defaultSleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasCloud reports whether a cloud fallback path is configured.
func (c *Client) HasCloud() bool {
	return c.cloud != nil
}

// Generate produces a completion with bounded retry.
//
// Retryable faults (connection, status, timeout, unclassified) are retried up
// to maxRetries attempts with the fixed backoff schedule. An empty or
// whitespace-only response fails immediately as KindInvalidResponse. When the
// final attempt fails with a connectivity-class error the result is
// KindOffline, so the caller can offer the cloud fallback; other exhaustion
// is KindServiceError.
//
// With useCloud set the call runs against the cloud backend with its own
// independent retry loop under the same policy.
func (c *Client) Generate(ctx context.Context, messages []Message, temperature float64, useCloud bool) (string, error) {
	target := c.primary
	path := "local"
	if useCloud {
		if c.cloud == nil {
			return "", &Error{Kind: KindServiceError, Message: "cloud execution path not configured"}
		}
		target = c.cloud
		path = "cloud"
	}

	logger.LLMCall(path, len(messages), temperature)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		content, err := target.Complete(ctx, Request{Messages: messages, Temperature: temperature})
		if err == nil {
			if strings.TrimSpace(content) == "" {
				return "", &Error{Kind: KindInvalidResponse, Message: "model returned empty response"}
			}
			logger.Debug("LLM response", "path", path, "attempt", attempt, "chars", len(content))
			return content, nil
		}

		if !isRetryable(err) {
			return "", err
		}

		lastErr = err
		logger.LLMError(path, attempt, err, "timeout", isTimeout(err))

		if attempt < maxRetries {
			c.sleep(ctx, backoffSchedule[attempt-1])
			if ctx.Err() != nil {
				break
			}
		}
	}

	if isConnectionClass(lastErr) {
		return "", &Error{
			Kind:    KindOffline,
			Message: fmt.Sprintf("cannot connect to %s language model service", path),
			Err:     lastErr,
		}
	}
	return "", &Error{
		Kind:    KindServiceError,
		Message: fmt.Sprintf("request failed after %d attempts", maxRetries),
		Err:     lastErr,
	}
}

// Summarize compresses one transcript chunk into a concise summary. Used by
// the context builder when a transcript exceeds its budget. Summarization
// always runs against the primary backend; by the time a cloud fallback is
// in play the transcript has already been assembled.
func (c *Client) Summarize(ctx context.Context, chunk string) (string, error) {
	if strings.TrimSpace(chunk) == "" {
		return "", nil
	}

	messages := []Message{
		{
			Role: "system",
			Content: "You are a meeting transcript summarizer. Summarize the following " +
				"transcript segment concisely, preserving participants, decisions, " +
				"requirements, objections, and commitments. Be factual and brief.",
		},
		{
			Role:    "user",
			Content: "Summarize this transcript segment:\n\n" + chunk,
		},
	}

	return c.Generate(ctx, messages, summarizerTemperature, false)
}
