package app

import (
	"fmt"
	"strings"

	"pilot/internal/gate"
	"pilot/internal/orchestrator"
	"pilot/internal/reflection"
)

// StepReport records what the control layer decided for one step.
type StepReport struct {
	Index       int
	Iteration   int
	Action      string
	Decision    gate.Decision
	Reason      string
	RuleID      string
	Risk        string
	Approval    string
	Modified    bool
	Executed    bool
	Warnings    []string
	Suggestions []string

	OutputDecision gate.Decision
	OutputIssues   int
	DataConfidence *float64

	Mode       orchestrator.Mode
	Confidence float64
	Compressed bool
	WasReset   bool
	Reflection *reflection.Result
	AskUser    bool

	Mismatches []string
}

// Report is the outcome of a replay.
type Report struct {
	Scenario   string
	Goal       string
	Steps      []StepReport
	Final      orchestrator.Status
	Messages   int
	Stopped    string
	Mismatches int
	// JournalDropped counts journal entries lost to the capacity limit.
	JournalDropped int
}

// Passed reports whether every expectation held.
func (r *Report) Passed() bool { return r.Mismatches == 0 }

// Markdown renders the report for a terminal markdown renderer.
func (r *Report) Markdown() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", r.Scenario)
	fmt.Fprintf(&sb, "**Goal:** %s\n\n", r.Goal)

	sb.WriteString("| # | Action | Decision | Risk | Output | Mode | Confidence | Notes |\n")
	sb.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, s := range r.Steps {
		output := "-"
		if s.OutputDecision != "" {
			output = string(s.OutputDecision)
		}
		fmt.Fprintf(&sb, "| %d | `%s` | %s | %s | %s | %s | %.2f | %s |\n",
			s.Index, s.Action, s.Decision, s.Risk, output, s.Mode, s.Confidence, stepNotes(s))
	}

	sb.WriteString("\n## Final state\n\n")
	f := r.Final
	fmt.Fprintf(&sb, "- Mode: **%s**, confidence %.2f (%s tools)\n", f.Mode, f.Confidence, f.ToolMode)
	fmt.Fprintf(&sb, "- Actions: %d total, %d succeeded, %d failed\n", f.TotalActions, f.SuccessfulActions, f.FailedActions)
	fmt.Fprintf(&sb, "- Reflections: %d, pending approvals: %d\n", f.Reflections, f.PendingApprovals)
	fmt.Fprintf(&sb, "- Milestones kept: %d, context messages: %d\n", len(f.Zones.Milestones), r.Messages)
	if f.TaskComplete {
		sb.WriteString("- Task complete\n")
	}
	if f.AskUser {
		sb.WriteString("- **Needs user input**\n")
	}
	if r.Stopped != "" {
		fmt.Fprintf(&sb, "- Stopped: %s\n", r.Stopped)
	}
	if r.JournalDropped > 0 {
		fmt.Fprintf(&sb, "- Journal full: %d older entries dropped\n", r.JournalDropped)
	}

	if r.Mismatches > 0 {
		sb.WriteString("\n## Expectation mismatches\n\n")
		for _, s := range r.Steps {
			for _, m := range s.Mismatches {
				fmt.Fprintf(&sb, "- step %d (`%s`): %s\n", s.Index, s.Action, m)
			}
		}
	}
	return sb.String()
}

func stepNotes(s StepReport) string {
	var notes []string
	if s.Approval != "" {
		notes = append(notes, s.Approval)
	}
	if s.Modified {
		notes = append(notes, "modified")
	}
	if !s.Executed {
		notes = append(notes, "not executed")
	}
	if s.Compressed {
		notes = append(notes, "context compressed")
	}
	if s.WasReset {
		notes = append(notes, "context reset")
	}
	if res, ok := lastReflection(s); ok {
		notes = append(notes, fmt.Sprintf("reflection: %s", res.Assessment))
	}
	if s.RuleID != "" && s.Decision != gate.Allow {
		notes = append(notes, "rule "+s.RuleID)
	}
	if len(notes) == 0 {
		return ""
	}
	return strings.Join(notes, ", ")
}
