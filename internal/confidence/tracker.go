package confidence

import (
	"sync"
	"time"

	"pilot/internal/logging"
)

// Config holds tracker thresholds.
type Config struct {
	Initial           float64
	WindowSize        int
	EscalateThreshold float64
	VerifyThreshold   float64
	FastPathThreshold float64
	MinActionsForRate int
	SuccessRateWeight float64
	SuccessRateWindow int
	// HistoryLimit bounds the retained signal history.
	HistoryLimit int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Initial:           0.5,
		WindowSize:        10,
		EscalateThreshold: 0.3,
		VerifyThreshold:   0.6,
		FastPathThreshold: 0.85,
		MinActionsForRate: 3,
		SuccessRateWeight: 0.5,
		SuccessRateWindow: 10,
		HistoryLimit:      200,
	}
}

// State is a snapshot of the tracker.
type State struct {
	Overall      float64
	Signals      []Signal
	ActionCount  int
	SuccessCount int
	FailureCount int
}

// Tracker aggregates weighted signals into one trust score.
type Tracker struct {
	cfg       Config
	overall   float64
	signals   []Signal
	outcomes  []bool
	actions   int
	failures  int
	callbacks []Callback
	now       func() time.Time

	mu sync.Mutex
}

// NewTracker creates a tracker. Zero-valued windows, weights and thresholds
// fall back to DefaultConfig. Initial is taken as given.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.EscalateThreshold <= 0 {
		cfg.EscalateThreshold = def.EscalateThreshold
	}
	if cfg.VerifyThreshold <= 0 {
		cfg.VerifyThreshold = def.VerifyThreshold
	}
	if cfg.FastPathThreshold <= 0 {
		cfg.FastPathThreshold = def.FastPathThreshold
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinActionsForRate <= 0 {
		cfg.MinActionsForRate = def.MinActionsForRate
	}
	if cfg.SuccessRateWeight <= 0 {
		cfg.SuccessRateWeight = def.SuccessRateWeight
	}
	if cfg.SuccessRateWindow <= 0 {
		cfg.SuccessRateWindow = def.SuccessRateWindow
	}
	if cfg.HistoryLimit < cfg.WindowSize {
		cfg.HistoryLimit = max(def.HistoryLimit, cfg.WindowSize)
	}
	cfg.Initial = clamp(cfg.Initial)

	return &Tracker{
		cfg:     cfg,
		overall: cfg.Initial,
		now:     time.Now,
	}
}

// OnEvent registers a band-crossing callback.
func (t *Tracker) OnEvent(cb Callback) {
	if cb == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// AddSignal records evidence and returns the stored signal. A non-positive
// weight is treated as 1.0.
func (t *Tracker) AddSignal(source Source, value float64, reason string, weight float64) Signal {
	t.mu.Lock()
	before := t.bandOf(t.overall)
	sig := t.appendLocked(newSignal(source, value, reason, weight, t.now()))
	after := t.bandOf(t.overall)
	overall := t.overall
	callbacks := t.callbacks
	t.mu.Unlock()

	t.notify(before, after, overall, callbacks)
	return sig
}

// RecordAction counts an executed action. Once enough actions have run a
// derived success-rate signal is added at reduced weight.
func (t *Tracker) RecordAction(success bool) {
	t.mu.Lock()
	t.actions++
	if !success {
		t.failures++
	}
	t.outcomes = append(t.outcomes, success)
	if len(t.outcomes) > t.cfg.SuccessRateWindow {
		t.outcomes = t.outcomes[len(t.outcomes)-t.cfg.SuccessRateWindow:]
	}

	if t.actions < t.cfg.MinActionsForRate {
		t.mu.Unlock()
		return
	}

	ok := 0
	for _, o := range t.outcomes {
		if o {
			ok++
		}
	}
	rate := float64(ok) / float64(len(t.outcomes))

	before := t.bandOf(t.overall)
	t.appendLocked(newSignal(SourceSuccessRate, rate, "rolling success rate", t.cfg.SuccessRateWeight, t.now()))
	after := t.bandOf(t.overall)
	overall := t.overall
	callbacks := t.callbacks
	t.mu.Unlock()

	t.notify(before, after, overall, callbacks)
}

func (t *Tracker) appendLocked(sig Signal) Signal {
	t.signals = append(t.signals, sig)
	if len(t.signals) > t.cfg.HistoryLimit {
		t.signals = append(t.signals[:0:0], t.signals[len(t.signals)-t.cfg.HistoryLimit:]...)
	}
	t.recalculateLocked()
	return sig
}

// recalculateLocked sets overall to the weighted mean of the newest window.
func (t *Tracker) recalculateLocked() {
	window := t.signals
	if len(window) > t.cfg.WindowSize {
		window = window[len(window)-t.cfg.WindowSize:]
	}
	if len(window) == 0 {
		t.overall = t.cfg.Initial
		return
	}

	var sum, weights float64
	for _, s := range window {
		sum += s.Value * s.Weight
		weights += s.Weight
	}
	t.overall = clamp(sum / weights)
}

func (t *Tracker) bandOf(v float64) band {
	switch {
	case v < t.cfg.EscalateThreshold:
		return bandEscalate
	case v < t.cfg.VerifyThreshold:
		return bandVerify
	case v > t.cfg.FastPathThreshold:
		return bandFast
	default:
		return bandNormal
	}
}

func (t *Tracker) notify(before, after band, overall float64, callbacks []Callback) {
	if before == after {
		return
	}

	var ev Event
	switch after {
	case bandEscalate:
		ev = EventEscalationNeeded
	case bandVerify:
		ev = EventLowConfidence
	case bandFast:
		ev = EventHighConfidence
	default:
		return
	}

	logging.Debug("confidence band changed", "event", string(ev), "overall", overall)
	for _, cb := range callbacks {
		cb(ev, overall)
	}
}

// Overall returns the current trust score.
func (t *Tracker) Overall() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overall
}

// ShouldEscalate reports whether a human should be involved.
func (t *Tracker) ShouldEscalate() bool {
	return t.Overall() < t.cfg.EscalateThreshold
}

// ShouldVerify reports whether results should be double-checked.
func (t *Tracker) ShouldVerify() bool {
	return t.Overall() < t.cfg.VerifyThreshold
}

// CanFastPath reports whether verification steps may be skipped.
func (t *Tracker) CanFastPath() bool {
	return t.Overall() > t.cfg.FastPathThreshold
}

// RetryIntensity returns how many attempts a failing step deserves; lower
// confidence means more persistence.
func (t *Tracker) RetryIntensity() int {
	switch v := t.Overall(); {
	case v > 0.8:
		return 1
	case v > 0.5:
		return 3
	default:
		return 5
	}
}

// ToolSelectionMode maps the score to a tool selection policy.
func (t *Tracker) ToolSelectionMode() ToolSelectionMode {
	switch {
	case t.CanFastPath():
		return ToolModeFast
	case t.ShouldVerify():
		return ToolModeThorough
	default:
		return ToolModeBalanced
	}
}

// State returns a snapshot including a copy of the signal history.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	signals := make([]Signal, len(t.signals))
	copy(signals, t.signals)
	return State{
		Overall:      t.overall,
		Signals:      signals,
		ActionCount:  t.actions,
		SuccessCount: t.actions - t.failures,
		FailureCount: t.failures,
	}
}

// Reset restores the initial score and clears history. Callbacks stay
// registered.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.overall = t.cfg.Initial
	t.signals = nil
	t.outcomes = nil
	t.actions = 0
	t.failures = 0
}
