package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilot/internal/audit"
	"pilot/internal/config"
	"pilot/internal/gate"
	"pilot/internal/orchestrator"
)

const bakeryScenario = `
name: bakery contacts
goal: Collect contact emails for three bakeries in Lyon
steps:
  - action:
      name: navigate
      parameters: {url: annuaire-boulangeries.fr/lyon}
    result: {success: true, progress: true, output: Directory page loaded with 24 bakeries}
    expect: {decision: modify}
  - action:
      name: extract_contacts
      parameters: {selector: .listing}
    data:
      name: Boulangerie Paul
      email: contact@boulangerie-paul.fr
    source_url: https://annuaire-boulangeries.fr/lyon
    result: {success: true, progress: true}
    expect: {decision: allow, output_decision: allow}
  - action:
      name: rm_rf_equivalent
      parameters: {path: /}
    result: {success: true}
    expect: {decision: deny, risk: high}
  - action:
      name: click
      parameters: {selector: "#place-order"}
    approve: false
    result: {success: true}
    expect: {decision: deny}
  - action:
      name: extract_contacts
      parameters: {selector: .sidebar}
    data: "Jane Doe, jane@example.com, 555-0123"
    result: {success: true}
    expect: {output_decision: deny}
`

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Summarizer.Provider = "none"
	return cfg
}

func buildApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := NewBuilder(cfg).WithTaskID("test-task").Build(context.Background())
	require.NoError(t, err)
	return a
}

func TestBuild_Defaults(t *testing.T) {
	a := buildApp(t, testConfig())

	assert.NotNil(t, a.Orchestrator())
	assert.NotNil(t, a.Metrics())
	assert.NotNil(t, a.Journal())
	assert.False(t, a.HasLLMSummarizer())
}

func TestBuild_DisabledObservability(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = false

	a := buildApp(t, cfg)
	assert.Nil(t, a.Metrics())
	assert.Nil(t, a.Journal())

	// nil recorder and journal are usable
	sc, err := ParseScenario([]byte(bakeryScenario))
	require.NoError(t, err)
	_, err = a.Replay(context.Background(), sc)
	require.NoError(t, err)
}

func TestBuild_MissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Summarizer.Provider = "gemini"
	cfg.Summarizer.APIKey = ""

	_, err := NewBuilder(cfg).Build(context.Background())
	require.Error(t, err)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrCodeConfig, appErr.Code)
	assert.ErrorIs(t, err, config.ErrMissingAuth)
}

func TestBuild_InjectedCompleterSkipsProviderAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Summarizer.Provider = "gemini"
	cfg.Summarizer.APIKey = ""

	a, err := NewBuilder(cfg).WithCompleter(&fakeCompleter{}).Build(context.Background())
	require.NoError(t, err)
	assert.True(t, a.HasLLMSummarizer())
}

func TestBuild_BrokenProviderFallsBackToExtractive(t *testing.T) {
	cfg := testConfig()
	cfg.Summarizer.Provider = "ollama"
	cfg.Summarizer.Model = ""

	a, err := NewBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	assert.False(t, a.HasLLMSummarizer())

	sc, err := ParseScenario([]byte(bakeryScenario))
	require.NoError(t, err)
	_, err = a.Replay(context.Background(), sc)
	require.NoError(t, err)
}

func TestReplay_ReportsJournalOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.MaxEntries = 3
	a := buildApp(t, cfg)
	sc, err := ParseScenario([]byte(bakeryScenario))
	require.NoError(t, err)

	report, err := a.Replay(context.Background(), sc)
	require.NoError(t, err)

	assert.Len(t, a.Journal().Entries(), 3)
	assert.Positive(t, report.JournalDropped)
	assert.Contains(t, report.Markdown(), "older entries dropped")
}

func TestReplay_Bakery(t *testing.T) {
	a := buildApp(t, testConfig())
	sc, err := ParseScenario([]byte(bakeryScenario))
	require.NoError(t, err)

	report, err := a.Replay(context.Background(), sc)
	require.NoError(t, err)

	require.Len(t, report.Steps, 5)
	for _, s := range report.Steps {
		assert.Empty(t, s.Mismatches, "step %d", s.Index)
	}
	assert.True(t, report.Passed())

	nav := report.Steps[0]
	assert.True(t, nav.Modified)
	assert.True(t, nav.Executed)

	denied := report.Steps[2]
	assert.False(t, denied.Executed)
	assert.Equal(t, "recursive_delete", denied.RuleID)

	order := report.Steps[3]
	assert.Equal(t, "rejected", order.Approval)
	assert.False(t, order.Executed)

	final := report.Final
	assert.Equal(t, 3, final.TotalActions)
	assert.Zero(t, final.PendingApprovals)

	decisions := a.Journal().Query(audit.QueryFilter{Kind: audit.KindDecision, Outcome: string(gate.Deny)})
	assert.Len(t, decisions, 2)

	md := report.Markdown()
	assert.Contains(t, md, "# bakery contacts")
	assert.Contains(t, md, "rule recursive_delete")
	assert.NotContains(t, md, "Expectation mismatches")

	var buf bytes.Buffer
	require.NoError(t, a.Metrics().WriteText(&buf))
	assert.Contains(t, buf.String(), "pilot_gate_decisions_total")
}

func TestReplay_ApprovedActionRuns(t *testing.T) {
	a := buildApp(t, testConfig())
	sc, err := ParseScenario([]byte(`
name: checkout
goal: Buy the cheapest train ticket to Paris
steps:
  - action:
      name: click
      parameters: {selector: "#place-order"}
    approve: true
    result: {success: true, progress: true, output: Order placed, task_complete: true}
    expect: {decision: allow}
  - action:
      name: click
      parameters: {selector: "#receipt"}
    result: {success: true}
`))
	require.NoError(t, err)

	report, err := a.Replay(context.Background(), sc)
	require.NoError(t, err)

	require.Len(t, report.Steps, 1, "replay ends when the task completes")
	assert.Equal(t, "approved", report.Steps[0].Approval)
	assert.True(t, report.Steps[0].Executed)
	assert.Equal(t, "task complete", report.Stopped)
	assert.True(t, report.Final.TaskComplete)
}

func TestReplay_UnansweredApprovalStaysPending(t *testing.T) {
	a := buildApp(t, testConfig())
	sc, err := ParseScenario([]byte(`
name: pending
goal: Update the newsletter settings
steps:
  - action: {name: close_account}
    result: {success: true}
    expect: {decision: requires_approval, risk: medium}
`))
	require.NoError(t, err)

	report, err := a.Replay(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.False(t, report.Steps[0].Executed)
	assert.Equal(t, 1, report.Final.PendingApprovals)
}

func TestReplay_StopOnAskUser(t *testing.T) {
	var steps strings.Builder
	for i := 0; i < 6; i++ {
		steps.WriteString(`
  - action:
      name: click
      parameters: {selector: "#next"}
    result: {success: false, error: "element not found: #next"}`)
	}
	sc, err := ParseScenario([]byte("name: failing\ngoal: Page through results\nstop_on_ask_user: true\nsteps:" + steps.String()))
	require.NoError(t, err)

	a := buildApp(t, testConfig())
	report, err := a.Replay(context.Background(), sc)
	require.NoError(t, err)

	assert.Len(t, report.Steps, 1)
	assert.Equal(t, "asked user for help", report.Stopped)
	assert.True(t, report.Final.AskUser)
}

func TestReplay_ReportsMismatches(t *testing.T) {
	a := buildApp(t, testConfig())
	sc, err := ParseScenario([]byte(`
name: wrong expectation
goal: Read the page
steps:
  - action: {name: screenshot}
    result: {success: true}
    expect: {decision: deny, mode: recovery}
`))
	require.NoError(t, err)

	report, err := a.Replay(context.Background(), sc)
	require.NoError(t, err)
	assert.False(t, report.Passed())
	assert.Equal(t, 2, report.Mismatches)
	assert.Contains(t, report.Markdown(), "Expectation mismatches")
}

func TestReplay_Cancelled(t *testing.T) {
	a := buildApp(t, testConfig())
	sc, err := ParseScenario([]byte(bakeryScenario))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := a.Replay(ctx, sc)
	require.Error(t, err)
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrCodeCancelled, appErr.Code)
	assert.Equal(t, "cancelled", report.Stopped)
	assert.Empty(t, report.Steps)
}

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return "- Scrolled through result pages; no contact details found yet", nil
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func TestReplay_CompressesThroughCompleter(t *testing.T) {
	cfg := testConfig()
	cfg.Memory.MaxTokens = 400
	cfg.Memory.WindowSize = 4

	var steps strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&steps, `
  - action:
      name: scroll
      parameters: {page: %d}
    result:
      success: true
      output: "Page %d shows a long list of bakery names with opening hours, street addresses and short reviews, but the listing does not include any email address or contact form link for the shops."`, i, i)
	}
	sc, err := ParseScenario([]byte("name: long\ngoal: Collect bakery emails in Lyon\nsteps:" + steps.String()))
	require.NoError(t, err)

	fc := &fakeCompleter{}
	a, err := NewBuilder(cfg).WithCompleter(fc).Build(context.Background())
	require.NoError(t, err)

	report, err := a.Replay(context.Background(), sc)
	require.NoError(t, err)

	compressed := false
	for _, s := range report.Steps {
		compressed = compressed || s.Compressed
	}
	assert.True(t, compressed)

	prompts := fc.calls()
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], "GOAL: Collect bakery emails in Lyon")
}

func TestLoadScenarios(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web", "b.yaml"), []byte(bakeryScenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: a\ngoal: g\nsteps:\n  - action: {name: wait}\n    result: {success: true}\n"), 0o644))

	scenarios, err := LoadScenarios(filepath.Join(dir, "**", "*.yaml"))
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a", scenarios[0].Name)
	assert.Equal(t, filepath.Join(dir, "web", "b.yaml"), scenarios[1].Path())

	_, err = LoadScenarios(filepath.Join(dir, "*.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no goal", "name: x\nsteps:\n  - action: {name: wait}\n"},
		{"no steps", "name: x\ngoal: y\n"},
		{"unnamed action", "name: x\ngoal: y\nsteps:\n  - action: {parameters: {a: 1}}\n"},
		{"bad expectation", "name: x\ngoal: y\nsteps:\n  - action: {name: wait}\n    expect: {decision: maybe}\n"},
		{"not yaml", "name: [x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			var appErr *AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, ErrCodeScenario, appErr.Code)
		})
	}
}

func TestCheckExpect(t *testing.T) {
	yes := true
	sr := StepReport{Decision: gate.Allow, Mode: orchestrator.ModeExploration, Risk: "low"}
	ic := orchestrator.IterationContext{Reflect: false}

	assert.Empty(t, checkExpect(nil, sr, ic))
	assert.Empty(t, checkExpect(&Expect{Decision: "allow", Mode: "exploration", Risk: "low"}, sr, ic))

	got := checkExpect(&Expect{Reflect: &yes, AskUser: &yes}, sr, ic)
	assert.Equal(t, []string{"reflect: want true, got false", "ask_user: want true, got false"}, got)
}
