package orchestrator

// Mode is the orchestrator's operating mode.
type Mode string

const (
	ModeExploration Mode = "exploration"
	ModeExecution   Mode = "execution"
	ModeFastTrack   Mode = "fast_track"
	ModeCautious    Mode = "cautious"
	ModeRecovery    Mode = "recovery"
)

// AllModes lists every mode.
var AllModes = []Mode{ModeExploration, ModeExecution, ModeFastTrack, ModeCautious, ModeRecovery}

func modeNames() []string {
	out := make([]string, len(AllModes))
	for i, m := range AllModes {
		out[i] = string(m)
	}
	return out
}

// Config holds mode thresholds and confidence adjustments.
type Config struct {
	// RecoveryFailures failed actions with no success force recovery.
	RecoveryFailures   int
	RecoveryConfidence float64
	// ExplorationActions is how many actions run in exploration mode.
	ExplorationActions  int
	FastTrackConfidence float64
	CautiousConfidence  float64
	CautiousAdjustment  float64
	RecoveryAdjustment  float64
	// RecentActionsHistory bounds the action history handed to the gate
	// and the loop detector.
	RecentActionsHistory int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		RecoveryFailures:     5,
		RecoveryConfidence:   0.25,
		ExplorationActions:   3,
		FastTrackConfidence:  0.85,
		CautiousConfidence:   0.4,
		CautiousAdjustment:   -0.05,
		RecoveryAdjustment:   -0.1,
		RecentActionsHistory: 10,
	}
}

// computeMode picks the mode from the action counts and confidence.
// Recovery wins over everything else.
func computeMode(cfg Config, total, succeeded, failed int, conf float64) Mode {
	switch {
	case failed >= cfg.RecoveryFailures && succeeded == 0:
		return ModeRecovery
	case conf <= cfg.RecoveryConfidence:
		return ModeRecovery
	case total < cfg.ExplorationActions:
		return ModeExploration
	case conf >= cfg.FastTrackConfidence:
		return ModeFastTrack
	case conf <= cfg.CautiousConfidence:
		return ModeCautious
	default:
		return ModeExecution
	}
}
