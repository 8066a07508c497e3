package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pilot/internal/audit"
	"pilot/internal/confidence"
	ctxmgr "pilot/internal/context"
	"pilot/internal/gate"
	"pilot/internal/logging"
	"pilot/internal/metrics"
	"pilot/internal/permission"
	"pilot/internal/reflection"
)

// State is the task-level state the orchestrator mutates every iteration.
type State struct {
	TaskID            string
	Goal              string
	Mode              Mode
	Iteration         int
	TotalActions      int
	SuccessfulActions int
	FailedActions     int
	Stuck             bool
	NeedsHelp         bool
	TaskComplete      bool
	StartedAt         time.Time
}

// IterationContext is what PrepareIteration hands back to the host loop.
type IterationContext struct {
	Iteration int
	Mode      Mode
	// Messages is the managed history the loop should use from now on.
	Messages       []ctxmgr.Message
	Compressed     bool
	WasReset       bool
	Confidence     float64
	ToolMode       confidence.ToolSelectionMode
	RetryIntensity int
	// Reflect is set when the scheduler wants a reflection this iteration.
	Reflect bool
	Trigger reflection.Trigger
}

// Result is one executed action as reported by the host loop.
type Result struct {
	Action   gate.Action
	Success  bool
	Progress bool
	Output   string
	Error    string
	// TaskComplete marks the goal as reached.
	TaskComplete bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal records decisions, results and reflections in j.
func WithJournal(j *audit.Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithMetrics records instruments in r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithApprovals uses m for approval requests and remembered decisions.
func WithApprovals(m *permission.Manager) Option {
	return func(o *Orchestrator) { o.approvals = m }
}

// WithTaskID sets the id of the first task instead of a generated one.
func WithTaskID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.state.TaskID = id
		}
	}
}

// Orchestrator composes the memory manager, confidence tracker, reflection
// scheduler and action gate for one task. It is driven by a single control
// loop; its methods must not be called concurrently.
type Orchestrator struct {
	cfg       Config
	memory    *ctxmgr.Manager
	tracker   *confidence.Tracker
	scheduler *reflection.Scheduler
	gate      *gate.Gate
	approvals *permission.Manager
	journal   *audit.Journal
	metrics   *metrics.Recorder

	state        State
	recent       []gate.Action
	resetPending bool
	now          func() time.Time
}

// New creates an orchestrator over the given subsystems. Zero counts and
// thresholds fall back to DefaultConfig; zero adjustments are kept.
func New(cfg Config, memory *ctxmgr.Manager, tracker *confidence.Tracker, scheduler *reflection.Scheduler, g *gate.Gate, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.RecoveryFailures <= 0 {
		cfg.RecoveryFailures = def.RecoveryFailures
	}
	if cfg.ExplorationActions < 0 {
		cfg.ExplorationActions = def.ExplorationActions
	}
	if cfg.RecentActionsHistory <= 0 {
		cfg.RecentActionsHistory = def.RecentActionsHistory
	}
	if cfg.RecoveryConfidence <= 0 {
		cfg.RecoveryConfidence = def.RecoveryConfidence
	}
	if cfg.FastTrackConfidence <= 0 {
		cfg.FastTrackConfidence = def.FastTrackConfidence
	}
	if cfg.CautiousConfidence <= 0 {
		cfg.CautiousConfidence = def.CautiousConfidence
	}

	o := &Orchestrator{
		cfg:       cfg,
		memory:    memory,
		tracker:   tracker,
		scheduler: scheduler,
		gate:      g,
		now:       time.Now,
	}
	o.state = o.freshState("")
	for _, opt := range opts {
		opt(o)
	}
	if o.approvals == nil {
		o.approvals = permission.NewManager(256, 30*time.Minute)
	}
	return o
}

func (o *Orchestrator) freshState(goal string) State {
	return State{
		TaskID:    uuid.New().String(),
		Goal:      goal,
		Mode:      ModeExploration,
		StartedAt: o.now(),
	}
}

// Start begins a task with the given goal.
func (o *Orchestrator) Start(goal string) {
	o.state.Goal = goal
	o.state.StartedAt = o.now()
	o.memory.SetGoal(goal)
	o.state.Mode = o.mode()
	o.metrics.SetMode(string(o.state.Mode), modeNames())
	logging.Info("task started", "task_id", o.state.TaskID, "goal", goal)
}

// PrepareIteration runs memory management, then the mode computation, then
// the reflection trigger check, in that order.
func (o *Orchestrator) PrepareIteration(ctx context.Context, messages []ctxmgr.Message, iteration int) IterationContext {
	if iteration <= 0 {
		iteration = o.state.Iteration + 1
	}
	o.state.Iteration = iteration
	ic := IterationContext{Iteration: iteration, Messages: messages}

	// memory
	o.memory.IncrementIteration()
	before := o.memory.Stats()
	switch {
	case o.resetPending || o.memory.ShouldReset():
		ic.Messages = o.memory.PerformReset(ctx, messages, o.state.Goal)
		ic.WasReset = true
		o.resetPending = false
		o.metrics.ObserveReset()
		o.record(audit.NewEntry(audit.KindReset, "", "reset", "context rebuilt from progress narrative").
			WithDetail("messages_in", len(messages)).
			WithDetail("messages_out", len(ic.Messages)))
	case o.memory.NeedsManagement(messages):
		ic.Messages = o.memory.ManageContext(ctx, messages, o.state.Goal)
		after := o.memory.Stats()
		if after.Compressions > before.Compressions {
			ic.Compressed = true
			o.metrics.ObserveCompression(after.TokensSaved - before.TokensSaved)
		}
		o.metrics.ObserveSummarizerFallbacks(after.SummarizerFailures - before.SummarizerFailures)
	}

	// mode
	o.updateMode()

	// reflection
	conf := o.tracker.Overall()
	trigger, ok := o.scheduler.ShouldReflect(o.executionState(), conf)
	ic.Reflect = ok
	ic.Trigger = trigger

	ic.Mode = o.state.Mode
	ic.Confidence = conf
	ic.ToolMode = o.tracker.ToolSelectionMode()
	ic.RetryIntensity = o.tracker.RetryIntensity()
	return ic
}

func (o *Orchestrator) mode() Mode {
	return computeMode(o.cfg, o.state.TotalActions, o.state.SuccessfulActions, o.state.FailedActions, o.tracker.Overall())
}

func (o *Orchestrator) updateMode() {
	next := o.mode()
	if next == o.state.Mode {
		return
	}
	prev := o.state.Mode
	o.state.Mode = next
	logging.Debug("mode changed", "from", string(prev), "to", string(next), "confidence", o.tracker.Overall())
	o.metrics.SetMode(string(next), modeNames())
	o.record(audit.NewEntry(audit.KindMode, "", string(next), "mode changed from "+string(prev)))
}

func (o *Orchestrator) executionState() reflection.ExecutionState {
	sigs := make([]string, len(o.recent))
	for i, a := range o.recent {
		sigs[i] = a.Signature()
	}
	return reflection.ExecutionState{
		Iteration:     o.state.Iteration,
		Goal:          o.state.Goal,
		RecentActions: sigs,
		TaskComplete:  o.state.TaskComplete,
	}
}

// ValidateAction runs the gate and then applies approvals and the current
// mode. A gate denial is returned unchanged; mode and confidence only add
// warnings and suggestions.
func (o *Orchestrator) ValidateAction(ctx context.Context, action gate.Action) gate.ValidationOutput {
	start := o.now()
	out := o.gate.Validate(ctx, action, &gate.Context{RecentActions: o.recent})

	if out.Decision != gate.Deny {
		if out.Decision == gate.RequiresApproval {
			out = o.applyApproval(action, out)
		}
		if out.Decision != gate.Deny {
			out = o.applyMode(out)
		}
	}

	o.metrics.ObserveDecision(string(out.Decision), out.RiskLevel.String(), o.now().Sub(start))
	o.metrics.SetPendingApprovals(len(o.approvals.Pending()))
	o.record(audit.NewEntry(audit.KindDecision, action.Name, string(out.Decision), out.Reason).
		WithDetail("risk", out.RiskLevel.String()).
		WithDetail("rule", out.RuleID).
		WithDetail("mode", string(o.state.Mode)))
	return out
}

func (o *Orchestrator) applyApproval(action gate.Action, out gate.ValidationOutput) gate.ValidationOutput {
	sig := action.Signature()
	decision, known := o.approvals.Lookup(sig, out.Reason)
	if known {
		switch decision {
		case permission.DecisionApproved:
			// an approved action still runs in its corrected form
			out.Decision = gate.Allow
			if out.ModifiedAction != nil {
				out.Decision = gate.Modify
			}
			out.Warnings = append(out.Warnings, "previously approved: "+out.Reason)
			return out
		case permission.DecisionRejected:
			out.Decision = gate.Deny
			out.Reason = "previously rejected: " + out.Reason
			return out
		}
	}

	req := o.approvals.Request(action.Name, action.Parameters, out.Reason, out.RiskLevel)
	out.ApprovalID = req.ID
	return out
}

func (o *Orchestrator) applyMode(out gate.ValidationOutput) gate.ValidationOutput {
	switch o.state.Mode {
	case ModeFastTrack:
		out.Suggestions = nil
	case ModeCautious:
		out.Warnings = append(out.Warnings, "Cautious mode: verify the outcome of this action before continuing")
		out.ConfidenceAdjustment += o.cfg.CautiousAdjustment
	case ModeRecovery:
		out.Warnings = append(out.Warnings, "Recovery mode: recent actions have been failing")
		out.ConfidenceAdjustment += o.cfg.RecoveryAdjustment
		out.Suggestions = append(out.Suggestions, "Consider escalating to a human before retrying")
	}
	if o.state.Mode != ModeRecovery && o.tracker.ShouldEscalate() {
		out.Suggestions = append(out.Suggestions, "Confidence is very low; consider asking the user for guidance")
	}
	return out
}

// ValidateOutput checks data produced by an executed action. The resulting
// data confidence is fed to the tracker as a validation signal.
func (o *Orchestrator) ValidateOutput(ctx context.Context, action gate.Action, data any, vctx *gate.Context) gate.ValidationOutput {
	out := o.gate.ValidateActionOutput(ctx, action, data, vctx)
	if out.DataConfidence != nil {
		o.tracker.AddSignal(confidence.SourceValidation, *out.DataConfidence, out.Reason, 1.0)
	}

	o.metrics.ObserveOutputCheck(string(out.Decision))
	o.record(audit.NewEntry(audit.KindOutput, action.Name, string(out.Decision), out.Reason).
		WithDetail("issues", len(out.HallucinationIssues)))
	return out
}

// RecordResult feeds one outcome to the tracker, the scheduler and memory.
func (o *Orchestrator) RecordResult(r Result) {
	o.state.TotalActions++
	if r.Success {
		o.state.SuccessfulActions++
	} else {
		o.state.FailedActions++
	}
	if r.TaskComplete {
		o.state.TaskComplete = true
	}

	o.tracker.RecordAction(r.Success)
	o.tracker.AddSignal(confidence.SourceToolResult, resultValue(r), resultReason(r), 1.0)
	conf := o.tracker.Overall()

	o.scheduler.RecordOutcome(reflection.Outcome{
		Iteration: o.state.Iteration,
		Action:    r.Action.Signature(),
		Success:   r.Success,
		Progress:  r.Success && r.Progress,
		Error:     r.Error,
	})
	o.scheduler.UpdateConfidence(conf)

	importance := ctxmgr.ImportanceNormal
	switch {
	case !r.Success:
		importance = ctxmgr.ImportanceLow
	case r.Progress:
		importance = ctxmgr.ImportanceMilestone
	}
	o.memory.AddMessage(ctxmgr.NewMessage(ctxmgr.RoleTool, resultMessage(r)), importance)

	o.recent = append(o.recent, r.Action)
	if len(o.recent) > o.cfg.RecentActionsHistory {
		o.recent = append(o.recent[:0:0], o.recent[len(o.recent)-o.cfg.RecentActionsHistory:]...)
	}

	if o.tracker.ShouldEscalate() {
		o.state.NeedsHelp = true
	}

	o.metrics.ObserveAction(r.Success, conf)
	o.record(audit.NewEntry(audit.KindResult, r.Action.Name, resultReason(r), r.Error).
		WithSuccess(r.Success).
		WithDetail("confidence", conf))
}

func resultValue(r Result) float64 {
	switch {
	case !r.Success:
		return 0.2
	case r.Progress:
		return 0.9
	default:
		return 0.7
	}
}

func resultReason(r Result) string {
	switch {
	case !r.Success:
		return "failure"
	case r.Progress:
		return "progress"
	default:
		return "success"
	}
}

func resultMessage(r Result) string {
	if !r.Success {
		msg := r.Error
		if msg == "" {
			msg = "failed"
		}
		return fmt.Sprintf("%s failed: %s", r.Action.Name, msg)
	}
	if r.Output == "" {
		return fmt.Sprintf("%s completed", r.Action.Name)
	}
	return fmt.Sprintf("%s: %s", r.Action.Name, r.Output)
}

// Reflect runs a reflection and applies its confidence delta and
// recommendations. An empty trigger means a manual reflection.
func (o *Orchestrator) Reflect(trigger reflection.Trigger) reflection.Result {
	res := o.scheduler.Reflect(o.executionState(), trigger)

	if res.ConfidenceDelta != 0 {
		o.tracker.AddSignal(confidence.SourceReflection, o.tracker.Overall()+res.ConfidenceDelta, res.Observation, 1.0)
		o.scheduler.UpdateConfidence(o.tracker.Overall())
	}

	o.state.Stuck = res.Assessment == reflection.Stuck
	if res.Assessment == reflection.Completed {
		o.state.TaskComplete = true
	} else if !res.ShouldContinue {
		o.state.NeedsHelp = true
	}
	if res.ShouldReset {
		o.resetPending = true
	}
	o.updateMode()

	o.metrics.ObserveReflection(string(res.Trigger), string(res.Assessment))
	o.record(audit.NewEntry(audit.KindReflection, "", string(res.Assessment), res.Observation).
		WithDetail("trigger", string(res.Trigger)).
		WithDetail("delta", res.ConfidenceDelta).
		WithDetail("continue", res.ShouldContinue).
		WithDetail("reset", res.ShouldReset))
	return res
}

// ResolveApproval records a decision for a pending approval. Identical
// requests are decided the same way afterwards.
func (o *Orchestrator) ResolveApproval(id string, approved bool) (*permission.Request, error) {
	req, err := o.approvals.Resolve(id, approved)
	if err != nil {
		return nil, err
	}
	o.metrics.SetPendingApprovals(len(o.approvals.Pending()))
	o.record(audit.NewEntry(audit.KindApproval, req.ActionName, req.Decision.String(), req.Reason))
	return req, nil
}

// PendingApprovals lists approval requests awaiting a decision.
func (o *Orchestrator) PendingApprovals() []*permission.Request {
	return o.approvals.Pending()
}

// OnConfidenceEvent registers a callback for confidence band crossings.
func (o *Orchestrator) OnConfidenceEvent(cb confidence.Callback) {
	o.tracker.OnEvent(cb)
}

// ShouldAskUser reports whether the host loop should stop and ask for help.
func (o *Orchestrator) ShouldAskUser() bool {
	if o.state.NeedsHelp || o.tracker.ShouldEscalate() {
		return true
	}
	if last, ok := o.scheduler.LastResult(); ok {
		return !last.ShouldContinue && last.Assessment != reflection.Completed
	}
	return false
}

// Status is a read-only snapshot for the host loop.
type Status struct {
	State
	Confidence       float64
	ToolMode         confidence.ToolSelectionMode
	RetryIntensity   int
	Reflections      int
	PendingApprovals int
	MemoryIteration  int
	Zones            ctxmgr.Zones
	AskUser          bool
}

// GetStatus returns the current status.
func (o *Orchestrator) GetStatus() Status {
	return Status{
		State:            o.state,
		Confidence:       o.tracker.Overall(),
		ToolMode:         o.tracker.ToolSelectionMode(),
		RetryIntensity:   o.tracker.RetryIntensity(),
		Reflections:      o.scheduler.Count(),
		PendingApprovals: len(o.approvals.Pending()),
		MemoryIteration:  o.memory.Iteration(),
		Zones:            o.memory.Zones(),
		AskUser:          o.ShouldAskUser(),
	}
}

// Journal returns the recorded entries, or nil without a journal.
func (o *Orchestrator) Journal() []audit.Entry {
	return o.journal.Entries()
}

// Reset discards all task state. The journal is kept.
func (o *Orchestrator) Reset() {
	o.tracker.Reset()
	o.scheduler.Reset()
	o.memory.Reset()
	o.approvals.Clear()
	o.recent = nil
	o.resetPending = false
	o.state = o.freshState("")
	o.metrics.SetMode(string(o.state.Mode), modeNames())
	o.metrics.SetPendingApprovals(0)
	o.record(audit.NewEntry(audit.KindReset, "", "task_reset", "orchestrator reset"))
	logging.Info("orchestrator reset")
}

func (o *Orchestrator) record(e *audit.Entry) {
	o.journal.Record(o.state.Iteration, e)
}
