package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(Config{Enabled: false, RequestsPerMinute: 1, BurstSize: 1})
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(shortCtx(t), 100))
	}
	assert.Zero(t, l.Stats().TotalRequests)
}

func TestLimiter_WaitExhaustsBurst(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, RequestsPerMinute: 1, BurstSize: 2})

	require.NoError(t, l.Wait(shortCtx(t), 0))
	require.NoError(t, l.Wait(shortCtx(t), 0))
	// the next slot is 60s away, past the deadline
	require.Error(t, l.Wait(shortCtx(t), 0))

	st := l.Stats()
	assert.Equal(t, int64(3), st.TotalRequests)
	assert.Equal(t, int64(1), st.BlockedRequests)
}

func TestLimiter_TokenBudget(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, TokensPerMinute: 1000})

	// burst is 10% of the per-minute budget
	require.NoError(t, l.Wait(shortCtx(t), 100))
	require.Error(t, l.Wait(shortCtx(t), 50))
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, RequestsPerMinute: 1, BurstSize: 1})
	require.NoError(t, l.Wait(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, 0)
	require.Error(t, err)
	assert.Equal(t, int64(1), l.Stats().BlockedRequests)
}

func TestLimiter_WaitClampsOversizedRequest(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, TokensPerMinute: 600000})
	// larger than the 60000 burst; waits for a full bucket instead of failing
	require.NoError(t, l.Wait(context.Background(), 100000))
}

func TestLimiter_RecordUsage(t *testing.T) {
	l := NewLimiter(DefaultConfig())
	l.RecordUsage(120)
	l.RecordUsage(30)
	assert.Equal(t, int64(150), l.Stats().TotalTokens)
	assert.Equal(t, int64(3), EstimateTokens("twelve chars"))
}
