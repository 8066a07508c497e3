package client

import (
	"context"
	"math/rand"
	"time"

	"pilot/internal/logging"
)

// RetryConfig holds retry configuration used across all client implementations.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum backoff delay (cap)
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

func (r RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
	if r.RetryDelay <= 0 {
		r.RetryDelay = def.RetryDelay
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = def.MaxDelay
	}
	return r
}

// CalculateBackoff calculates exponential backoff with up to 25% jitter.
func CalculateBackoff(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	if q := int64(delay / 4); q > 0 {
		delay += time.Duration(rand.Int63n(q))
	}
	return delay
}

// withRetry calls fn until it succeeds, fails with a non-retryable error,
// the retries are spent or ctx is done.
func withRetry(ctx context.Context, provider string, cfg RetryConfig, fn func(ctx context.Context) (string, error)) (string, error) {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(cfg.RetryDelay, attempt-1, cfg.MaxDelay)
			logging.Debug("retrying completion", "provider", provider, "attempt", attempt, "delay", delay, "error", lastErr)

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", ctx.Err()
			case <-t.C:
			}
		}

		text, err := fn(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsRetryableError(err) || ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}
