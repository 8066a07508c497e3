package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter bounds requests and estimated tokens per minute sent to a
// completion provider.
type Limiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
	enabled  bool
	mu       sync.RWMutex

	// Statistics
	totalRequests   int64
	blockedRequests int64
	totalTokens     int64
}

// Config holds rate limiter configuration. A zero limit disables that
// dimension.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	TokensPerMinute   int64
	BurstSize         int
}

// DefaultConfig returns the default rate limiter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerMinute: 30,
		TokensPerMinute:   200000,
		BurstSize:         5,
	}
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{enabled: cfg.Enabled}

	if cfg.RequestsPerMinute > 0 {
		burst := cfg.BurstSize
		if burst < 1 {
			burst = 1
		}
		l.requests = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}
	if cfg.TokensPerMinute > 0 {
		// token burst is 10% of the per-minute budget
		burst := int(cfg.TokensPerMinute / 10)
		if burst < 1 {
			burst = 1
		}
		l.tokens = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60.0), burst)
	}
	return l
}

// Wait blocks until a request slot and capacity for estimatedTokens are
// available, or ctx is done.
func (l *Limiter) Wait(ctx context.Context, estimatedTokens int64) error {
	if !l.isEnabled() {
		return nil
	}

	l.mu.Lock()
	l.totalRequests++
	l.mu.Unlock()

	if l.requests != nil {
		if err := l.requests.Wait(ctx); err != nil {
			l.blocked()
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	if l.tokens != nil && estimatedTokens > 0 {
		n := int(estimatedTokens)
		// a single request larger than the burst waits for a full bucket
		if b := l.tokens.Burst(); n > b {
			n = b
		}
		if err := l.tokens.WaitN(ctx, n); err != nil {
			l.blocked()
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	return nil
}

// RecordUsage records actual token usage after a request completes.
func (l *Limiter) RecordUsage(actualTokens int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalTokens += actualTokens
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{
		Enabled:         l.enabled,
		TotalRequests:   l.totalRequests,
		BlockedRequests: l.blockedRequests,
		TotalTokens:     l.totalTokens,
	}
	if l.requests != nil {
		s.AvailableRequests = l.requests.Tokens()
	}
	if l.tokens != nil {
		s.AvailableTokens = l.tokens.Tokens()
	}
	return s
}

// Stats holds rate limiter statistics.
type Stats struct {
	Enabled           bool
	TotalRequests     int64
	BlockedRequests   int64
	TotalTokens       int64
	AvailableRequests float64
	AvailableTokens   float64
}

func (l *Limiter) isEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

func (l *Limiter) blocked() {
	l.mu.Lock()
	l.blockedRequests++
	l.mu.Unlock()
}

// EstimateTokens is a rough token count for a prompt, about four
// characters per token.
func EstimateTokens(text string) int64 {
	return int64(len(text) / 4)
}
