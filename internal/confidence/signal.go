package confidence

import (
	"math"
	"time"
)

// Source names where a piece of evidence came from.
type Source string

const (
	SourceToolResult  Source = "tool_result"
	SourceSuccessRate Source = "success_rate"
	SourceReflection  Source = "reflection"
	SourceValidation  Source = "validation"
	SourceUser        Source = "user"
)

// Signal is one immutable unit of evidence. Value is clamped to [0,1] on
// creation.
type Signal struct {
	Source    Source
	Value     float64
	Reason    string
	Weight    float64
	Timestamp time.Time
}

func newSignal(source Source, value float64, reason string, weight float64, at time.Time) Signal {
	if weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		weight = 1.0
	}
	return Signal{
		Source:    source,
		Value:     clamp(value),
		Reason:    reason,
		Weight:    weight,
		Timestamp: at,
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Event is fired when the overall score enters a new band.
type Event string

const (
	EventEscalationNeeded Event = "escalation_needed"
	EventLowConfidence    Event = "low_confidence"
	EventHighConfidence   Event = "high_confidence"
)

// Callback receives band-crossing events.
type Callback func(event Event, overall float64)

// ToolSelectionMode tells the host how much verification to spend per tool.
type ToolSelectionMode string

const (
	ToolModeFast     ToolSelectionMode = "fast"
	ToolModeBalanced ToolSelectionMode = "balanced"
	ToolModeThorough ToolSelectionMode = "thorough"
)

type band int

const (
	bandEscalate band = iota
	bandVerify
	bandNormal
	bandFast
)
