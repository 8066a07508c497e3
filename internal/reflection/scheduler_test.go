package reflection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldReflect_FailureTriggerOnSecondCall(t *testing.T) {
	s := NewScheduler(DefaultConfig())

	var triggers []Trigger
	for i := 1; i <= 3; i++ {
		s.RecordActionResult(false, false)
		trig, ok := s.ShouldReflect(ExecutionState{Iteration: i}, 0.5)
		if ok {
			triggers = append(triggers, trig)
		} else {
			triggers = append(triggers, "")
		}
	}

	assert.Equal(t, []Trigger{"", TriggerFailure, ""}, triggers)
}

func TestShouldReflect_Periodic(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	for i := 1; i <= 4; i++ {
		s.RecordActionResult(true, true)
		_, ok := s.ShouldReflect(ExecutionState{Iteration: i}, 0.6)
		require.False(t, ok, "iteration %d", i)
	}

	s.RecordActionResult(true, true)
	trig, ok := s.ShouldReflect(ExecutionState{Iteration: 5}, 0.6)
	require.True(t, ok)
	assert.Equal(t, TriggerPeriodic, trig)
}

func TestShouldReflect_PriorityPeriodicBeforeFailure(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	s.RecordActionResult(false, false)
	s.RecordActionResult(false, false)

	trig, ok := s.ShouldReflect(ExecutionState{Iteration: 5}, 0.5)
	require.True(t, ok)
	assert.Equal(t, TriggerPeriodic, trig)
	assert.Equal(t, 0, s.ConsecutiveFailures())
}

func TestShouldReflect_ConfidenceDrop(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	s.UpdateConfidence(0.8)
	s.RecordActionResult(true, true)

	_, ok := s.ShouldReflect(ExecutionState{Iteration: 1}, 0.7)
	assert.False(t, ok)

	trig, ok := s.ShouldReflect(ExecutionState{Iteration: 1}, 0.55)
	require.True(t, ok)
	assert.Equal(t, TriggerConfidenceDrop, trig)

	// baseline moved to 0.55
	_, ok = s.ShouldReflect(ExecutionState{Iteration: 1}, 0.5)
	assert.False(t, ok)
}

func TestShouldReflect_Stall(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	s.ShouldReflect(ExecutionState{Iteration: 1}, 0.5)
	s.RecordActionResult(true, true) // progress at iteration 1

	for i := 2; i <= 3; i++ {
		s.RecordActionResult(true, false)
		_, ok := s.ShouldReflect(ExecutionState{Iteration: i}, 0.5)
		require.False(t, ok)
	}

	s.RecordActionResult(true, false)
	trig, ok := s.ShouldReflect(ExecutionState{Iteration: 4}, 0.5)
	require.True(t, ok)
	assert.Equal(t, TriggerStall, trig)
}

func TestReflect_Assessments(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []bool
		want     Assessment
		delta    float64
	}{
		{"all failures", []bool{false, false, false}, Stuck, -0.2},
		{"two failures only", []bool{false, false}, Struggling, -0.1},
		{"mostly failing", []bool{true, false, false}, Struggling, -0.1},
		{"balanced", []bool{true, false}, OnTrack, 0.05},
		{"window of five", []bool{false, false, false, false, true, true, true, true, true}, OnTrack, 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(DefaultConfig())
			for _, ok := range tt.outcomes {
				s.RecordActionResult(ok, ok)
			}
			res := s.Reflect(ExecutionState{Iteration: 3}, TriggerPeriodic)
			assert.Equal(t, tt.want, res.Assessment)
			assert.InDelta(t, tt.delta, res.ConfidenceDelta, 1e-9)
			assert.True(t, res.ShouldContinue)
			assert.False(t, res.ShouldReset)
		})
	}
}

func TestReflect_LoopOverridesToStuck(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	for i := 0; i < 3; i++ {
		s.RecordActionResult(true, false)
	}

	state := ExecutionState{
		Iteration:     12,
		RecentActions: []string{"scroll", "click:#next", "click:#next", "click:#next"},
	}
	res := s.Reflect(state, TriggerStall)
	assert.Equal(t, Stuck, res.Assessment)
	assert.True(t, res.ShouldReset, "reset recommended past iteration 10")
	assert.True(t, res.ShouldContinue)
	assert.Contains(t, res.Observation, "repeating")

	state.Iteration = 9
	res = s.Reflect(state, TriggerStall)
	assert.Equal(t, Stuck, res.Assessment)
	assert.False(t, res.ShouldReset)
}

func TestReflect_StopsWhenStuckLate(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	for i := 0; i < 4; i++ {
		s.RecordOutcome(Outcome{Action: "click", Error: "element #buy not found"})
	}

	res := s.Reflect(ExecutionState{Iteration: 16}, TriggerFailure)
	assert.Equal(t, Stuck, res.Assessment)
	assert.False(t, res.ShouldContinue)
	assert.True(t, res.ShouldReset)
	assert.Equal(t, 4, res.FailureCategories["element_not_found"])
	assert.Contains(t, res.Observation, "element_not_found x4")
}

func TestReflect_Completed(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	s.RecordActionResult(false, false)
	res := s.Reflect(ExecutionState{Iteration: 4, TaskComplete: true}, "")

	assert.Equal(t, Completed, res.Assessment)
	assert.Equal(t, TriggerManual, res.Trigger)
	assert.False(t, res.ShouldContinue)

	last, ok := s.LastResult()
	require.True(t, ok)
	assert.Equal(t, Completed, last.Assessment)
	assert.Equal(t, 1, s.Count())
}

func TestReflect_ThresholdsAreConfigurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopAfterIteration = 40
	s := NewScheduler(cfg)
	for i := 0; i < 3; i++ {
		s.RecordActionResult(false, false)
	}
	res := s.Reflect(ExecutionState{Iteration: 20}, TriggerFailure)
	assert.Equal(t, Stuck, res.Assessment)
	assert.True(t, res.ShouldContinue)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg      string
		category string
	}{
		{"Element not found: #submit", "element_not_found"},
		{"element is not clickable at point (10, 20)", "element_not_interactable"},
		{"navigation timed out after 30s", "timeout"},
		{"net::ERR_NAME_NOT_RESOLVED", "network_error"},
		{"Please complete the CAPTCHA", "blocked"},
		{"HTTP 429 Too Many Requests", "rate_limit"},
		{"", "unspecified"},
		{"something odd happened", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.category, Classify(tt.msg).Category, tt.msg)
	}
}

func TestScheduler_Reset(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	s.RecordActionResult(false, false)
	s.Reflect(ExecutionState{Iteration: 2}, TriggerManual)
	s.Reset()

	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 0, s.ConsecutiveFailures())
	_, ok := s.LastResult()
	assert.False(t, ok)
}
