package gate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"pilot/internal/logging"
	"pilot/internal/permission"
	"pilot/internal/security"
)

// Config holds the gate's policy lists and thresholds.
type Config struct {
	// AllowList holds globs of known-safe action names.
	AllowList []string
	// ApprovalList holds globs of action names that always need approval.
	ApprovalList []string
	// DataProducingActions holds globs of actions whose output is checked.
	DataProducingActions []string

	MinDataConfidence           float64
	DefaultExtractionConfidence float64
	RepeatedActionThreshold     int
}

// DefaultConfig returns the stock gate policy.
func DefaultConfig() Config {
	return Config{
		AllowList: []string{
			"wait", "wait_*", "scroll*", "screenshot", "get_*", "read_*",
			"observe*", "go_back", "hover",
		},
		DataProducingActions: []string{
			"extract*", "summarize*", "generate*", "scrape*", "collect*",
		},
		MinDataConfidence:           0.5,
		DefaultExtractionConfidence: 0.8,
		RepeatedActionThreshold:     3,
	}
}

// ProvenanceChecker is an optional collaborator that verifies produced
// data against its source.
type ProvenanceChecker interface {
	CheckOutput(ctx context.Context, req OutputCheck) (OutputReport, error)
}

// OutputCheck describes produced data for a ProvenanceChecker.
type OutputCheck struct {
	Data       any
	SourceTool string
	SourceURL  string
	DataType   string
}

// OutputReport is a ProvenanceChecker's verdict.
type OutputReport struct {
	Valid          bool
	Issues         []Issue
	CleanedData    any
	SourceMetadata map[string]any
}

// Option configures a Gate.
type Option func(*Gate)

// WithProvenanceChecker adds an external provenance checker to the output
// check.
func WithProvenanceChecker(c ProvenanceChecker) Option {
	return func(g *Gate) { g.checker = c }
}

// Gate validates proposed actions before execution and data-producing
// outputs after execution. It holds no mutable state.
type Gate struct {
	cfg      Config
	policy   *permission.Rules
	producer *permission.Rules
	rules    []patternRule
	commands *security.CommandValidator
	urls     *security.URLValidator
	secrets  *security.CredentialScanner
	checker  ProvenanceChecker
}

// New creates a gate.
func New(cfg Config, opts ...Option) *Gate {
	def := DefaultConfig()
	if cfg.AllowList == nil {
		cfg.AllowList = def.AllowList
	}
	if cfg.DataProducingActions == nil {
		cfg.DataProducingActions = def.DataProducingActions
	}
	if cfg.MinDataConfidence <= 0 {
		cfg.MinDataConfidence = def.MinDataConfidence
	}
	if cfg.DefaultExtractionConfidence <= 0 {
		cfg.DefaultExtractionConfidence = def.DefaultExtractionConfidence
	}
	if cfg.RepeatedActionThreshold < 2 {
		cfg.RepeatedActionThreshold = def.RepeatedActionThreshold
	}

	g := &Gate{
		cfg:      cfg,
		policy:   permission.NewRulesFromLists(cfg.AllowList, cfg.ApprovalList),
		producer: permission.NewRulesFromLists(cfg.DataProducingActions, nil),
		rules:    safetyRules,
		commands: security.NewCommandValidator(),
		urls:     security.NewURLValidator(),
		secrets:  security.NewCredentialScanner(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsDataProducing reports whether the action's output is subject to the
// output check.
func (g *Gate) IsDataProducing(name string) bool {
	level, _, ok := g.producer.Match(strings.ToLower(name))
	return ok && level == permission.LevelAllow
}

var (
	navigationAction = regexp.MustCompile(`(?i)^(navigate|goto|go_to|open_url|open_page|visit|browse)(_|$)`)
	fillAction       = regexp.MustCompile(`(?i)^(fill|type|input|enter_text|set_value)(_|$)`)
	clickAction      = regexp.MustCompile(`(?i)^(click|tap|press|select_option|check|uncheck)(_|$)`)
	stateChanging    = regexp.MustCompile(`(?i)^(navigate|goto|go_to|open_url|visit|click|tap|press|submit|fill|type|select_option)(_|$)`)
	settleAction     = regexp.MustCompile(`(?i)^(wait|observe|screenshot|get_page|read_page)`)
)

// Validate runs the pre-execution stages in order: allow-list, safety
// patterns, parameter checks, then advisory suggestions. A Deny from any
// stage ends validation.
func (g *Gate) Validate(_ context.Context, action Action, vctx *Context) ValidationOutput {
	name := strings.TrimSpace(action.Name)
	if name == "" {
		return ValidationOutput{Decision: Deny, Reason: "action has no name", RiskLevel: permission.RiskMedium, RuleID: "empty_name"}
	}
	action.Name = name

	// Parameters the safety patterns cannot read are never allowed.
	texts, err := action.matchTexts()
	if err != nil {
		return g.deny(action, "unreadable_parameters", err.Error(), permission.RiskHigh)
	}

	// Stage 1: allow-list. Deny patterns still apply to allow-listed names.
	level, pattern, matched := g.policy.Match(strings.ToLower(name))
	if matched && level == permission.LevelAllow {
		if rule, hit := matchSafetyRule(g.rules, texts, true); hit {
			return g.deny(action, rule.ID, rule.Reason, rule.Risk)
		}
		if out, blocked := g.checkCommand(action); blocked {
			return out
		}
		return ValidationOutput{Decision: Allow, Reason: "allow-listed action", RiskLevel: permission.RiskLow, RuleID: "allow:" + pattern}
	}

	// Stage 2: safety patterns.
	out := ValidationOutput{Decision: Allow, RiskLevel: permission.RiskLow}
	if rule, hit := matchSafetyRule(g.rules, texts, false); hit {
		if rule.Decision == Deny {
			return g.deny(action, rule.ID, rule.Reason, rule.Risk)
		}
		out = ValidationOutput{Decision: rule.Decision, Reason: rule.Reason, RiskLevel: rule.Risk, RuleID: rule.ID}
	}
	if cmdOut, ok := g.checkCommand(action); ok {
		if cmdOut.Decision == Deny {
			return cmdOut
		}
		out = escalate(out, cmdOut)
	}
	if matched && level == permission.LevelAsk && out.Decision == Allow {
		out = ValidationOutput{Decision: RequiresApproval, Reason: "action requires approval by policy", RiskLevel: permission.RiskMedium, RuleID: "ask:" + pattern}
	}

	// Stage 3: parameter checks.
	if paramOut, ok := g.checkParameters(action); ok {
		switch paramOut.Decision {
		case Deny:
			logging.Warn("action denied by parameter check", "action", action.Name, "reason", paramOut.Reason)
			return paramOut
		case Modify:
			if out.Decision == Allow {
				out = paramOut
			} else {
				out.ModifiedAction = paramOut.ModifiedAction
				out.Warnings = append(out.Warnings, paramOut.Reason)
			}
		default:
			out = escalate(out, paramOut)
		}
	}

	// Stage 4: advisory suggestions.
	out.Suggestions = append(out.Suggestions, g.suggest(action, vctx.recent())...)

	if out.Reason == "" {
		out.Reason = "no safety concerns detected"
	}
	return out
}

func (g *Gate) deny(action Action, ruleID, reason string, risk permission.RiskLevel) ValidationOutput {
	logging.Warn("action denied", "action", action.Name, "rule", ruleID, "reason", reason)
	return ValidationOutput{Decision: Deny, Reason: reason, RiskLevel: risk, RuleID: ruleID}
}

// escalate keeps the stricter of two non-deny verdicts.
func escalate(current, next ValidationOutput) ValidationOutput {
	if next.Decision != RequiresApproval {
		return current
	}
	if current.Decision == RequiresApproval && next.RiskLevel <= current.RiskLevel {
		return current
	}
	return next
}

// checkCommand classifies a "command" parameter. ok is false when the
// action carries no command or the command is safe.
func (g *Gate) checkCommand(action Action) (ValidationOutput, bool) {
	cmd := action.Param("command")
	if cmd == "" {
		return ValidationOutput{}, false
	}
	v := g.commands.Classify(normalizeText(cmd))
	switch v.Level {
	case security.CommandBlocked:
		return g.deny(action, "command:"+v.Rule, "blocked command: "+v.Reason, permission.RiskHigh), true
	case security.CommandCaution:
		return ValidationOutput{
			Decision:  RequiresApproval,
			Reason:    "command needs review: " + v.Reason,
			RiskLevel: permission.RiskMedium,
			RuleID:    "command:" + v.Rule,
		}, true
	}
	return ValidationOutput{}, false
}

// checkParameters validates action-specific parameters. ok is false when
// nothing applies.
func (g *Gate) checkParameters(action Action) (ValidationOutput, bool) {
	switch {
	case navigationAction.MatchString(action.Name):
		return g.checkNavigation(action)

	case fillAction.MatchString(action.Name):
		text := firstNonEmpty(action, "text", "value", "content")
		if strings.TrimSpace(text) == "" {
			return ValidationOutput{
				Decision:  Deny,
				Reason:    fmt.Sprintf("%s requires non-empty text", action.Name),
				RiskLevel: permission.RiskLow,
				RuleID:    "param:empty_text",
			}, true
		}

	case clickAction.MatchString(action.Name):
		if !hasTarget(action) {
			return ValidationOutput{
				Decision:  Deny,
				Reason:    fmt.Sprintf("%s requires a target element", action.Name),
				RiskLevel: permission.RiskLow,
				RuleID:    "param:missing_target",
			}, true
		}
	}
	return ValidationOutput{}, false
}

func (g *Gate) checkNavigation(action Action) (ValidationOutput, bool) {
	key := "url"
	if !action.HasParam("url") && action.HasParam("target") {
		key = "target"
	}
	raw := action.Param(key)

	verdict := g.urls.Check(raw)
	switch verdict.Problem {
	case security.URLOK:
		return ValidationOutput{}, false

	case security.URLMissingScheme:
		fixed := action.Clone()
		if fixed.Parameters == nil {
			fixed.Parameters = map[string]any{}
		}
		fixed.Parameters[key] = verdict.Normalized
		return ValidationOutput{
			Decision:       Modify,
			Reason:         "added missing URL scheme",
			RiskLevel:      permission.RiskLow,
			RuleID:         "param:missing_scheme",
			ModifiedAction: &fixed,
		}, true

	case security.URLPrivateAddress:
		return ValidationOutput{
			Decision:  RequiresApproval,
			Reason:    "navigation to a private network address: " + verdict.Reason,
			RiskLevel: permission.RiskMedium,
			RuleID:    "param:private_address",
		}, true

	default:
		return ValidationOutput{
			Decision:  Deny,
			Reason:    "invalid navigation target: " + verdict.Reason,
			RiskLevel: permission.RiskMedium,
			RuleID:    "param:" + verdict.Problem.String(),
		}, true
	}
}

func (g *Gate) suggest(action Action, recent []Action) []string {
	if len(recent) == 0 {
		if g.IsDataProducing(action.Name) {
			return []string{"No page has been loaded yet; navigate to a source before extracting"}
		}
		return nil
	}

	var out []string
	prev := recent[len(recent)-1]
	if stateChanging.MatchString(prev.Name) && !settleAction.MatchString(action.Name) &&
		(g.IsDataProducing(action.Name) || clickAction.MatchString(action.Name)) {
		out = append(out, fmt.Sprintf("Wait for the page to settle after %s before %s", prev.Name, action.Name))
	}

	sig := action.Signature()
	repeats := 0
	for i := len(recent) - 1; i >= 0 && recent[i].Signature() == sig; i-- {
		repeats++
	}
	if repeats >= g.cfg.RepeatedActionThreshold-1 {
		out = append(out, fmt.Sprintf("%s would run %d times in a row; try a different approach", action.Name, repeats+1))
	}
	return out
}

func firstNonEmpty(action Action, keys ...string) string {
	for _, k := range keys {
		if v := action.Param(k); v != "" {
			return v
		}
	}
	return ""
}

func hasTarget(action Action) bool {
	for _, k := range []string{"selector", "element", "ref", "index", "xpath", "text"} {
		if !action.HasParam(k) {
			continue
		}
		if s, ok := action.Parameters[k].(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return true
	}
	return false
}
