package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pilot/internal/audit"
	"pilot/internal/client"
	"pilot/internal/config"
	ctxmgr "pilot/internal/context"
	"pilot/internal/gate"
	"pilot/internal/logging"
	"pilot/internal/metrics"
	"pilot/internal/orchestrator"
	"pilot/internal/reflection"
)

// DefaultSystemPrompt anchors replayed sessions that do not set their own.
const DefaultSystemPrompt = "You are an autonomous agent. Work toward the user's goal one action at a time and report only data you actually observed."

// App wires the cognitive control layer for one host process.
type App struct {
	cfg       *config.Config
	orch      *orchestrator.Orchestrator
	memory    *ctxmgr.Manager
	metrics   *metrics.Recorder
	journal   *audit.Journal
	completer client.Completer
	goal      *goalHolder
}

// New builds an App from cfg with no overrides.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	return NewBuilder(cfg).Build(ctx)
}

// Orchestrator returns the orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Metrics returns the recorder, or nil when metrics are disabled.
func (a *App) Metrics() *metrics.Recorder { return a.metrics }

// Journal returns the decision journal, or nil when auditing is disabled.
func (a *App) Journal() *audit.Journal { return a.journal }

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// HasLLMSummarizer reports whether evicted context goes to a completer.
func (a *App) HasLLMSummarizer() bool { return a.completer != nil }

// Start begins a task.
func (a *App) Start(goal string) {
	a.goal.Set(goal)
	a.orch.Start(goal)
}

// Replay drives the orchestrator through a recorded scenario. Each step is
// one iteration: prepare, reflect when triggered, validate the action,
// resolve approval, execute (by recording the scenario's result) and
// validate output. The orchestrator is reset first.
func (a *App) Replay(ctx context.Context, sc *Scenario) (*Report, error) {
	a.orch.Reset()
	a.Start(sc.Goal)

	system := sc.System
	if system == "" {
		system = DefaultSystemPrompt
	}
	msgs := []ctxmgr.Message{
		ctxmgr.NewMessage(ctxmgr.RoleSystem, system),
		ctxmgr.NewMessage(ctxmgr.RoleUser, sc.Goal),
	}

	report := &Report{Scenario: sc.Name, Goal: sc.Goal}
	logging.Info("replay started", "scenario", sc.Name, "steps", len(sc.Steps))

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			report.Stopped = "cancelled"
			report.Final = a.orch.GetStatus()
			return report, NewAppError(ErrCodeCancelled, fmt.Sprintf("replay stopped before step %d", i+1), err)
		}

		var sr StepReport
		sr, msgs = a.runStep(ctx, i, step, msgs)
		report.Steps = append(report.Steps, sr)
		report.Mismatches += len(sr.Mismatches)

		if sr.AskUser && sc.StopOnAskUser {
			report.Stopped = "asked user for help"
			break
		}
		if step.Result.TaskComplete && sr.Executed {
			report.Stopped = "task complete"
			break
		}
	}

	report.Final = a.orch.GetStatus()
	report.Messages = len(msgs)
	report.JournalDropped = a.journal.Dropped()
	if report.JournalDropped > 0 {
		logging.Warn("decision journal at capacity", "dropped", report.JournalDropped, "max_entries", a.cfg.Audit.MaxEntries)
	}
	a.metrics.SetConfidence(report.Final.Confidence)
	logging.Info("replay finished",
		"scenario", sc.Name,
		"steps", len(report.Steps),
		"mismatches", report.Mismatches,
		"mode", string(report.Final.Mode))
	return report, nil
}

func (a *App) runStep(ctx context.Context, i int, step Step, msgs []ctxmgr.Message) (StepReport, []ctxmgr.Message) {
	ic := a.orch.PrepareIteration(ctx, msgs, i+1)
	msgs = ic.Messages

	sr := StepReport{
		Index:      i + 1,
		Iteration:  ic.Iteration,
		Action:     step.Action.Name,
		Compressed: ic.Compressed,
		WasReset:   ic.WasReset,
	}

	if ic.Reflect {
		res := a.orch.Reflect(ic.Trigger)
		sr.Reflection = &res
		msgs = append(msgs, ctxmgr.NewMessage(ctxmgr.RoleAssistant,
			fmt.Sprintf("Reflection (%s): %s. %s", res.Trigger, res.Assessment, res.Observation)))
	}

	action := step.Action.Clone()
	out := a.orch.ValidateAction(ctx, action)
	if out.Decision == gate.RequiresApproval && out.ApprovalID != "" && step.Approve != nil {
		if _, err := a.orch.ResolveApproval(out.ApprovalID, *step.Approve); err != nil {
			logging.Warn("approval could not be resolved", "id", out.ApprovalID, "error", err)
		} else {
			sr.Approval = "rejected"
			if *step.Approve {
				sr.Approval = "approved"
			}
			out = a.orch.ValidateAction(ctx, action)
		}
	}
	sr.Decision = out.Decision
	sr.Reason = out.Reason
	sr.RuleID = out.RuleID
	sr.Risk = out.RiskLevel.String()
	sr.Warnings = out.Warnings
	sr.Suggestions = out.Suggestions

	switch out.Decision {
	case gate.Allow:
	case gate.Modify:
		if out.ModifiedAction != nil {
			action = *out.ModifiedAction
			sr.Action = action.Name
			sr.Modified = true
		}
	default:
		sr.Mode = a.orch.GetStatus().Mode
		msgs = append(msgs, ctxmgr.NewMessage(ctxmgr.RoleTool,
			fmt.Sprintf("%s blocked (%s): %s", action.Name, out.Decision, out.Reason)))
		return a.finishStep(step, sr, ic), msgs
	}

	msgs = append(msgs, ctxmgr.NewMessage(ctxmgr.RoleAssistant, describeAction(action)))

	result := orchestrator.Result{
		Action:       action,
		Success:      step.Result.Success,
		Progress:     step.Result.Progress,
		Output:       step.Result.Output,
		Error:        step.Result.Error,
		TaskComplete: step.Result.TaskComplete,
	}
	if step.Data != nil {
		vout := a.orch.ValidateOutput(ctx, action, step.Data, &gate.Context{
			SourceURL:  step.SourceURL,
			SourceTool: action.Name,
			DataType:   step.DataType,
		})
		sr.OutputDecision = vout.Decision
		sr.OutputIssues = len(vout.HallucinationIssues)
		sr.DataConfidence = vout.DataConfidence
		if result.Output == "" {
			result.Output = renderData(step.Data)
		}
	}

	a.orch.RecordResult(result)
	sr.Executed = true

	content := result.Output
	if !result.Success {
		content = "error: " + result.Error
	}
	msgs = append(msgs, ctxmgr.NewMessage(ctxmgr.RoleTool, content))

	sr.Mode = a.orch.GetStatus().Mode
	return a.finishStep(step, sr, ic), msgs
}

func (a *App) finishStep(step Step, sr StepReport, ic orchestrator.IterationContext) StepReport {
	st := a.orch.GetStatus()
	sr.Confidence = st.Confidence
	sr.AskUser = st.AskUser
	sr.Mismatches = checkExpect(step.Expect, sr, ic)
	return sr
}

func checkExpect(e *Expect, sr StepReport, ic orchestrator.IterationContext) []string {
	if e == nil {
		return nil
	}
	var out []string
	mismatch := func(field string, want, got any) {
		out = append(out, fmt.Sprintf("%s: want %v, got %v", field, want, got))
	}
	if e.Decision != "" && e.Decision != string(sr.Decision) {
		mismatch("decision", e.Decision, sr.Decision)
	}
	if e.OutputDecision != "" && e.OutputDecision != string(sr.OutputDecision) {
		mismatch("output_decision", e.OutputDecision, sr.OutputDecision)
	}
	if e.Mode != "" && e.Mode != string(sr.Mode) {
		mismatch("mode", e.Mode, sr.Mode)
	}
	if e.Risk != "" && e.Risk != sr.Risk {
		mismatch("risk", e.Risk, sr.Risk)
	}
	if e.Reflect != nil && *e.Reflect != ic.Reflect {
		mismatch("reflect", *e.Reflect, ic.Reflect)
	}
	if e.Reset != nil && *e.Reset != ic.WasReset {
		mismatch("reset", *e.Reset, ic.WasReset)
	}
	if e.AskUser != nil && *e.AskUser != sr.AskUser {
		mismatch("ask_user", *e.AskUser, sr.AskUser)
	}
	return out
}

func describeAction(a gate.Action) string {
	if len(a.Parameters) == 0 {
		return "Action: " + a.Name
	}
	params, err := json.Marshal(a.Parameters)
	if err != nil {
		return "Action: " + a.Name
	}
	return fmt.Sprintf("Action: %s %s", a.Name, params)
}

func renderData(data any) string {
	if s, ok := data.(string); ok {
		return s
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return strings.TrimSpace(string(b))
}

// lastReflection is a convenience for callers printing a step.
func lastReflection(sr StepReport) (reflection.Result, bool) {
	if sr.Reflection == nil {
		return reflection.Result{}, false
	}
	return *sr.Reflection, true
}
