package gate

import (
	"maps"

	"pilot/internal/permission"
)

// Decision is the gate's verdict on an action or its output.
type Decision string

const (
	Allow            Decision = "allow"
	Deny             Decision = "deny"
	RequiresApproval Decision = "requires_approval"
	Modify           Decision = "modify"
)

// Action is a proposed step from the host loop.
type Action struct {
	Name       string         `json:"name" yaml:"name"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Clone returns a copy with its own parameter map.
func (a Action) Clone() Action {
	out := Action{Name: a.Name}
	if a.Parameters != nil {
		out.Parameters = maps.Clone(a.Parameters)
	}
	return out
}

// Signature identifies the action for approval caching and repeat detection.
func (a Action) Signature() string {
	return permission.Signature(a.Name, a.Parameters)
}

// Param returns a string parameter, or "" when missing or not a string.
func (a Action) Param(key string) string {
	if a.Parameters == nil {
		return ""
	}
	s, _ := a.Parameters[key].(string)
	return s
}

// HasParam reports whether key is present with a non-nil value.
func (a Action) HasParam(key string) bool {
	if a.Parameters == nil {
		return false
	}
	v, ok := a.Parameters[key]
	return ok && v != nil
}

// Severity ranks a detected output issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Issue is one problem found in produced data.
type Issue struct {
	Kind     string   `json:"kind"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidationOutput is the result of Validate and ValidateActionOutput.
type ValidationOutput struct {
	Decision  Decision             `json:"decision"`
	Reason    string               `json:"reason"`
	RiskLevel permission.RiskLevel `json:"risk_level"`
	// RuleID names the rule that produced the decision, if any.
	RuleID string `json:"rule_id,omitempty"`
	// ApprovalID is set when a pending approval was registered.
	ApprovalID string `json:"approval_id,omitempty"`

	ModifiedAction *Action `json:"modified_action,omitempty"`
	ModifiedData   any     `json:"modified_data,omitempty"`
	// Diff is a patch from the original to the cleaned data.
	Diff string `json:"diff,omitempty"`

	Suggestions []string `json:"suggestions,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`

	HallucinationIssues  []Issue  `json:"hallucination_issues,omitempty"`
	DataConfidence       *float64 `json:"data_confidence,omitempty"`
	ConfidenceAdjustment float64  `json:"confidence_adjustment,omitempty"`
}

// Allowed reports whether the action may run as proposed or modified.
func (v ValidationOutput) Allowed() bool {
	return v.Decision == Allow || v.Decision == Modify
}

// Context carries what the gate may consult besides the action itself.
type Context struct {
	// RecentActions are the most recent executed actions, oldest first.
	RecentActions []Action

	// Output check inputs.
	SourceURL  string
	SourceTool string
	DataType   string
	// ExtractionConfidence overrides the configured default when set.
	ExtractionConfidence *float64
}

func (c *Context) recent() []Action {
	if c == nil {
		return nil
	}
	return c.RecentActions
}
