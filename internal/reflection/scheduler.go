package reflection

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"pilot/internal/logging"
)

// Config holds trigger thresholds and assessment limits.
type Config struct {
	PeriodicInterval         int
	MaxFailuresBeforeReflect int
	ConfidenceDropThreshold  float64
	StallThreshold           int
	// HistoryWindow is how many recent outcomes an assessment examines.
	HistoryWindow int
	// LoopRepeat identical consecutive actions count as a loop.
	LoopRepeat int
	// ResetAfterIteration is the iteration after which a stuck assessment
	// recommends a context reset.
	ResetAfterIteration int
	// StopAfterIteration is the iteration after which a stuck assessment
	// sets ShouldContinue to false.
	StopAfterIteration int
}

// DefaultConfig returns the stock scheduler settings.
func DefaultConfig() Config {
	return Config{
		PeriodicInterval:         5,
		MaxFailuresBeforeReflect: 2,
		ConfidenceDropThreshold:  0.2,
		StallThreshold:           3,
		HistoryWindow:            5,
		LoopRepeat:               3,
		ResetAfterIteration:      10,
		StopAfterIteration:       15,
	}
}

const maxOutcomes = 100

// Scheduler decides when the loop should pause and produces a rule-based
// assessment when it does.
type Scheduler struct {
	cfg Config

	iteration           int
	lastTriggerIter     int
	lastProgressIter    int
	consecutiveFailures int
	confidence          float64
	baseline            float64
	baselineSet         bool

	outcomes []Outcome
	last     *Result
	count    int

	mu sync.Mutex
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.PeriodicInterval <= 0 {
		cfg.PeriodicInterval = def.PeriodicInterval
	}
	if cfg.MaxFailuresBeforeReflect <= 0 {
		cfg.MaxFailuresBeforeReflect = def.MaxFailuresBeforeReflect
	}
	if cfg.ConfidenceDropThreshold <= 0 {
		cfg.ConfidenceDropThreshold = def.ConfidenceDropThreshold
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = def.StallThreshold
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.LoopRepeat < 2 {
		cfg.LoopRepeat = def.LoopRepeat
	}
	return &Scheduler{cfg: cfg}
}

// RecordActionResult records a bare outcome.
func (s *Scheduler) RecordActionResult(success, meaningfulProgress bool) {
	s.RecordOutcome(Outcome{Success: success, Progress: meaningfulProgress})
}

// RecordOutcome records an outcome with its action and error text.
func (s *Scheduler) RecordOutcome(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.Iteration == 0 {
		o.Iteration = s.iteration
	}
	s.outcomes = append(s.outcomes, o)
	if len(s.outcomes) > maxOutcomes {
		s.outcomes = append(s.outcomes[:0:0], s.outcomes[len(s.outcomes)-maxOutcomes:]...)
	}

	if o.Success {
		s.consecutiveFailures = 0
		if o.Progress {
			s.lastProgressIter = s.iteration
		}
	} else {
		s.consecutiveFailures++
	}
}

// UpdateConfidence records the latest confidence value. The first value
// seen becomes the drop baseline.
func (s *Scheduler) UpdateConfidence(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConfidenceLocked(value)
}

func (s *Scheduler) setConfidenceLocked(value float64) {
	s.confidence = value
	if !s.baselineSet {
		s.baseline = value
		s.baselineSet = true
	}
}

// ShouldReflect returns the highest-priority trigger that currently holds.
// A firing trigger restarts the periodic count, clears the failure streak
// and rebases the confidence-drop baseline.
func (s *Scheduler) ShouldReflect(state ExecutionState, confidence float64) (Trigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.Iteration > s.iteration {
		s.iteration = state.Iteration
	}
	s.setConfidenceLocked(confidence)

	trigger, ok := s.checkLocked()
	if !ok {
		return "", false
	}

	s.markTriggeredLocked()
	logging.Debug("reflection triggered", "trigger", string(trigger), "iteration", s.iteration)
	return trigger, true
}

func (s *Scheduler) checkLocked() (Trigger, bool) {
	switch {
	case s.iteration-s.lastTriggerIter >= s.cfg.PeriodicInterval:
		return TriggerPeriodic, true
	case s.consecutiveFailures >= s.cfg.MaxFailuresBeforeReflect:
		return TriggerFailure, true
	case s.baseline-s.confidence >= s.cfg.ConfidenceDropThreshold:
		return TriggerConfidenceDrop, true
	case s.iteration-max(s.lastProgressIter, s.lastTriggerIter) >= s.cfg.StallThreshold:
		return TriggerStall, true
	}
	return "", false
}

func (s *Scheduler) markTriggeredLocked() {
	s.lastTriggerIter = s.iteration
	s.consecutiveFailures = 0
	s.baseline = s.confidence
}

// Reflect assesses the recent outcomes. A manual trigger also counts as a
// reflection for trigger bookkeeping.
func (s *Scheduler) Reflect(state ExecutionState, trigger Trigger) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.Iteration > s.iteration {
		s.iteration = state.Iteration
	}
	iter := state.Iteration
	if iter == 0 {
		iter = s.iteration
	}
	if trigger == "" {
		trigger = TriggerManual
	}
	if trigger == TriggerManual {
		s.markTriggeredLocked()
	}

	window := s.outcomes
	if len(window) > s.cfg.HistoryWindow {
		window = window[len(window)-s.cfg.HistoryWindow:]
	}

	successes, failures := 0, 0
	categories := make(map[string]int)
	var suggestions []string
	seen := make(map[string]bool)
	for _, o := range window {
		if o.Success {
			successes++
			continue
		}
		failures++
		c := Classify(o.Error)
		categories[c.Category]++
		if c.Suggestion != "" && !seen[c.Suggestion] {
			seen[c.Suggestion] = true
			suggestions = append(suggestions, c.Suggestion)
		}
	}

	res := Result{
		Trigger:           trigger,
		Iteration:         iter,
		ShouldContinue:    true,
		FailureCategories: categories,
	}

	switch {
	case state.TaskComplete:
		res.Assessment = Completed
		res.ConfidenceDelta = 0.1
		res.ShouldContinue = false
		res.Adjustments = []string{"Verify the result against the goal and finish"}
	case successes == 0 && failures > 2:
		res.Assessment = Stuck
		res.ConfidenceDelta = -0.2
	case failures > successes:
		res.Assessment = Struggling
		res.ConfidenceDelta = -0.1
	default:
		res.Assessment = OnTrack
		res.ConfidenceDelta = 0.05
	}

	looping, loopAction := detectLoop(state.RecentActions, s.cfg.LoopRepeat)
	if looping && res.Assessment != Completed {
		res.Assessment = Stuck
		res.ConfidenceDelta = -0.2
		res.Adjustments = append(res.Adjustments,
			fmt.Sprintf("Stop repeating %q; it ran %d times in a row without changing the outcome", loopAction, s.cfg.LoopRepeat))
	}

	switch res.Assessment {
	case Stuck:
		res.Adjustments = append(res.Adjustments, "Step back and re-plan from the original goal")
		if iter > s.cfg.ResetAfterIteration {
			res.ShouldReset = true
		}
		if iter > s.cfg.StopAfterIteration {
			res.ShouldContinue = false
			res.Adjustments = append(res.Adjustments, "Stop and ask the user for help")
		}
	case Struggling:
		res.Adjustments = append(res.Adjustments, "Verify each step before moving on")
	}
	if res.Assessment != Completed {
		res.Adjustments = append(res.Adjustments, suggestions...)
	}

	res.Observation = observe(window, successes, failures, categories, looping, loopAction)

	s.last = &res
	s.count++
	logging.Debug("reflection complete",
		"trigger", string(trigger),
		"assessment", string(res.Assessment),
		"delta", res.ConfidenceDelta,
		"continue", res.ShouldContinue,
		"reset", res.ShouldReset)
	return res
}

// detectLoop reports whether the last n actions are identical.
func detectLoop(actions []string, n int) (bool, string) {
	if len(actions) < n {
		return false, ""
	}
	tail := actions[len(actions)-n:]
	for _, a := range tail[1:] {
		if a != tail[0] {
			return false, ""
		}
	}
	return tail[0] != "", tail[0]
}

func observe(window []Outcome, successes, failures int, categories map[string]int, looping bool, loopAction string) string {
	if len(window) == 0 {
		return "No actions recorded yet."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of the last %d actions succeeded, %d failed.", successes, len(window), failures)

	if len(categories) > 0 {
		names := make([]string, 0, len(categories))
		for name := range categories {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s x%d", name, categories[name])
		}
		sb.WriteString(" Failures: " + strings.Join(parts, ", ") + ".")
	}
	if looping {
		fmt.Fprintf(&sb, " Action %q is repeating.", loopAction)
	}
	return sb.String()
}

// LastResult returns the most recent reflection.
func (s *Scheduler) LastResult() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// Count returns how many reflections have been produced.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// ConsecutiveFailures returns the current failure streak.
func (s *Scheduler) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

// Reset clears all state.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration = 0
	s.lastTriggerIter = 0
	s.lastProgressIter = 0
	s.consecutiveFailures = 0
	s.confidence = 0
	s.baseline = 0
	s.baselineSet = false
	s.outcomes = nil
	s.last = nil
	s.count = 0
}
