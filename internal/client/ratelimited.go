package client

import (
	"context"

	"pilot/internal/logging"
	"pilot/internal/ratelimit"
)

type rateLimitedCompleter struct {
	inner   Completer
	limiter *ratelimit.Limiter
}

// WithRateLimit wraps c so every call first waits on l. A nil limiter
// returns c unchanged.
func WithRateLimit(c Completer, l *ratelimit.Limiter) Completer {
	if l == nil {
		return c
	}
	return &rateLimitedCompleter{inner: c, limiter: l}
}

func (r *rateLimitedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	est := ratelimit.EstimateTokens(prompt)
	if err := r.limiter.Wait(ctx, est); err != nil {
		return "", err
	}
	text, err := r.inner.Complete(ctx, prompt)
	if err == nil {
		r.limiter.RecordUsage(est + ratelimit.EstimateTokens(text))
		st := r.limiter.Stats()
		logging.Debug("summarizer usage", "requests", st.TotalRequests, "tokens", st.TotalTokens, "blocked", st.BlockedRequests)
	}
	return text, err
}

func (r *rateLimitedCompleter) Name() string {
	return r.inner.Name()
}
