package confidence

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_InitialState(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	assert.Equal(t, 0.5, tr.Overall())
	assert.False(t, tr.ShouldEscalate())
	assert.True(t, tr.ShouldVerify())
	assert.False(t, tr.CanFastPath())
	assert.Equal(t, 5, tr.RetryIntensity())
	assert.Equal(t, ToolModeThorough, tr.ToolSelectionMode())
}

func TestNewTracker_ZeroThresholdsUseDefaults(t *testing.T) {
	tr := NewTracker(Config{Initial: 0.5})
	assert.False(t, tr.CanFastPath())
	assert.True(t, tr.ShouldVerify())
	assert.False(t, tr.ShouldEscalate())

	tr = NewTracker(Config{Initial: 0.1})
	assert.True(t, tr.ShouldEscalate())
}

func TestTracker_ConvergesOnRepeatedSignal(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	for i := 0; i < 30; i++ {
		tr.AddSignal(SourceToolResult, 0.9, "ok", 1.0)
	}

	assert.InDelta(t, 0.9, tr.Overall(), 1e-9)
	assert.True(t, tr.CanFastPath())
	assert.Equal(t, 1, tr.RetryIntensity())
	assert.Equal(t, ToolModeFast, tr.ToolSelectionMode())
}

func TestTracker_OnlyLastTenSignalsCount(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	for i := 0; i < 10; i++ {
		tr.AddSignal(SourceToolResult, 0.0, "bad", 1.0)
	}
	for i := 0; i < 10; i++ {
		tr.AddSignal(SourceToolResult, 1.0, "good", 1.0)
	}
	assert.Equal(t, 1.0, tr.Overall())
}

func TestTracker_WeightedMean(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.AddSignal(SourceToolResult, 1.0, "", 3.0)
	tr.AddSignal(SourceToolResult, 0.0, "", 1.0)
	assert.InDelta(t, 0.75, tr.Overall(), 1e-9)
}

func TestTracker_ClampsValues(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	rng := rand.New(rand.NewSource(7))

	values := []float64{-3, 7, math.NaN(), math.Inf(1), math.Inf(-1)}
	for i := 0; i < 500; i++ {
		v := rng.Float64()*4 - 2
		if i%50 == 0 {
			v = values[(i/50)%len(values)]
		}
		sig := tr.AddSignal(SourceToolResult, v, "", rng.Float64()*2-0.5)
		require.GreaterOrEqual(t, sig.Value, 0.0)
		require.LessOrEqual(t, sig.Value, 1.0)

		o := tr.Overall()
		require.GreaterOrEqual(t, o, 0.0)
		require.LessOrEqual(t, o, 1.0)
	}
}

func TestTracker_RecordActionDerivesSuccessRate(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	tr.RecordAction(true)
	tr.RecordAction(false)
	assert.Empty(t, tr.State().Signals, "no derived signal before three actions")

	tr.RecordAction(true)
	st := tr.State()
	require.Len(t, st.Signals, 1)
	sig := st.Signals[0]
	assert.Equal(t, SourceSuccessRate, sig.Source)
	assert.InDelta(t, 2.0/3.0, sig.Value, 1e-9)
	assert.Equal(t, 0.5, sig.Weight)
	assert.Equal(t, 3, st.ActionCount)
	assert.Equal(t, 1, st.FailureCount)
	assert.Equal(t, 2, st.SuccessCount)
}

func TestTracker_BandCallbacks(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	var events []Event
	tr.OnEvent(func(ev Event, _ float64) { events = append(events, ev) })

	tr.AddSignal(SourceToolResult, 0.95, "", 1) // 0.95 fast
	tr.AddSignal(SourceToolResult, 0.95, "", 1) // still fast, no event
	for i := 0; i < 10; i++ {
		tr.AddSignal(SourceToolResult, 0.1, "", 1)
	}

	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, EventHighConfidence, events[0])
	assert.Contains(t, events, EventEscalationNeeded)
	assert.Equal(t, EventEscalationNeeded, events[len(events)-1])
}

func TestTracker_RetryIntensityBands(t *testing.T) {
	tests := []struct {
		value float64
		want  int
	}{
		{0.81, 1},
		{0.8, 3},
		{0.51, 3},
		{0.5, 5},
		{0.1, 5},
	}
	for _, tt := range tests {
		tr := NewTracker(DefaultConfig())
		tr.AddSignal(SourceUser, tt.value, "", 1)
		assert.Equal(t, tt.want, tr.RetryIntensity(), "value %v", tt.value)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.AddSignal(SourceToolResult, 0.1, "", 1)
	tr.RecordAction(false)
	tr.Reset()

	st := tr.State()
	assert.Equal(t, 0.5, st.Overall)
	assert.Empty(t, st.Signals)
	assert.Zero(t, st.ActionCount)
}
