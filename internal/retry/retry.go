// Package retry provides bounded retry with exponential backoff for
// transient failures against external services.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior for one call site.
type Config struct {
	MaxRetries     int           // retry attempts after the first try (0 = no retries)
	InitialBackoff time.Duration // backoff before the first retry
	MaxBackoff     time.Duration // backoff cap
	BackoffFactor  float64       // exponential multiplier
}

// DefaultConfig returns the retry configuration used for most external calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// IsRetryable reports whether an error looks transient. Upstream services do
// not return typed errors, so classification is by message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	permanent := []string{
		"invalid",
		"malformed",
		"unauthorized",
		"not authorized",
	}
	for _, s := range permanent {
		if strings.Contains(msg, s) {
			return false
		}
	}

	transient := []string{
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"temporary",
		"rate limit",
		"throttl",
		"too many requests",
		"status 502",
		"status 503",
		"status 504",
	}
	for _, s := range transient {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}

// WithRetry executes fn, retrying transient failures with exponential
// backoff until it succeeds, the retry budget is spent, or ctx is cancelled.
func WithRetry(ctx context.Context, cfg Config, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				slog.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempt+1,
				)
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt >= cfg.MaxRetries {
			slog.Warn("Max retries exceeded",
				"operation", operation,
				"attempts", attempt+1,
				"error", err,
			)
			return err
		}

		backoff := backoffFor(cfg, attempt)
		slog.Warn("Operation failed, retrying",
			"operation", operation,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return lastErr
}

// backoffFor computes the exponential backoff for an attempt with ±25%
// jitter.
func backoffFor(cfg Config, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	backoff += backoff * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(backoff)
}
