package permission

import "time"

// Level represents the policy for an action name.
type Level string

const (
	// LevelAllow lets the action run without further checks.
	LevelAllow Level = "allow"
	// LevelAsk requires an explicit approval.
	LevelAsk Level = "ask"
	// LevelDeny refuses the action.
	LevelDeny Level = "deny"
)

// RiskLevel indicates how risky an action is.
type RiskLevel int

const (
	// RiskLow for observation and navigation.
	RiskLow RiskLevel = iota
	// RiskMedium for actions that change page or account state.
	RiskMedium
	// RiskHigh for destructive or irreversible actions.
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalText renders the risk level as its name.
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Decision is the resolution state of an approval request.
type Decision int

const (
	// DecisionPending means nobody has decided yet.
	DecisionPending Decision = iota
	// DecisionApproved allows the action and identical repeats.
	DecisionApproved
	// DecisionRejected refuses the action and identical repeats.
	DecisionRejected
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionApproved:
		return "approved"
	case DecisionRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Request is an action waiting for external confirmation.
type Request struct {
	ID         string
	ActionName string
	Params     map[string]any
	Signature  string
	Reason     string
	Risk       RiskLevel
	Decision   Decision
	CreatedAt  time.Time
	ResolvedAt time.Time
}
