package reflection

// Trigger is the condition that caused a reflection.
type Trigger string

const (
	TriggerPeriodic       Trigger = "periodic"
	TriggerFailure        Trigger = "failure"
	TriggerConfidenceDrop Trigger = "confidence_drop"
	TriggerStall          Trigger = "stall"
	TriggerManual         Trigger = "manual"
)

// Assessment is the scheduler's verdict on recent progress.
type Assessment string

const (
	OnTrack    Assessment = "on_track"
	Struggling Assessment = "struggling"
	Stuck      Assessment = "stuck"
	Completed  Assessment = "completed"
)

// ExecutionState is what the host loop knows about the task right now.
type ExecutionState struct {
	Iteration int
	Goal      string
	// RecentActions are action signatures, oldest first.
	RecentActions []string
	TaskComplete  bool
}

// Outcome is one recorded action result.
type Outcome struct {
	Iteration int
	Action    string
	Success   bool
	Progress  bool
	Error     string
}

// Result is the output of one reflection.
type Result struct {
	Trigger         Trigger
	Iteration       int
	Observation     string
	Assessment      Assessment
	Adjustments     []string
	ConfidenceDelta float64
	ShouldContinue  bool
	ShouldReset     bool
	// FailureCategories counts classified errors in the examined window.
	FailureCategories map[string]int
}
