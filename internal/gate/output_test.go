package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilot/internal/permission"
)

func TestValidateActionOutput(t *testing.T) {
	g := New(DefaultConfig())
	ctx := context.Background()
	sourced := &Context{SourceURL: "https://boulangerie.fr/contact"}

	t.Run("non data-producing passes", func(t *testing.T) {
		out := g.ValidateActionOutput(ctx, act("click", "selector", "#a"), "anything", nil)
		assert.Equal(t, Allow, out.Decision)
		assert.Nil(t, out.DataConfidence)
	})

	t.Run("clean sourced data", func(t *testing.T) {
		data := map[string]any{"name": "Boulangerie Paul", "email": "contact@boulangerie.fr"}
		out := g.ValidateActionOutput(ctx, act("extract_contacts"), data, sourced)
		assert.Equal(t, Allow, out.Decision, out.Reason)
		require.NotNil(t, out.DataConfidence)
		assert.InDelta(t, 0.8, *out.DataConfidence, 1e-9)
		assert.Empty(t, out.HallucinationIssues)
	})

	t.Run("source key counts as provenance", func(t *testing.T) {
		data := map[string]any{"title": "Opening hours", "source": "page 2"}
		out := g.ValidateActionOutput(ctx, act("extract_hours"), data, nil)
		assert.Equal(t, Allow, out.Decision)
	})

	t.Run("missing provenance", func(t *testing.T) {
		out := g.ValidateActionOutput(ctx, act("extract_contacts"), "Boulangerie Paul, open daily", nil)
		assert.Equal(t, Deny, out.Decision)
		assert.Equal(t, permission.RiskHigh, out.RiskLevel)
		assert.Equal(t, "missing_provenance", out.HallucinationIssues[0].Kind)
		assert.InDelta(t, 0.5, *out.DataConfidence, 1e-9)
	})

	t.Run("fabricated contacts", func(t *testing.T) {
		out := g.ValidateActionOutput(ctx, act("extract_contacts"), "Call 555-0123 or mail info@example.com", sourced)
		assert.Equal(t, Deny, out.Decision)
		assert.Len(t, out.HallucinationIssues, 2)
		assert.InDelta(t, 0.2, *out.DataConfidence, 1e-9)
	})

	t.Run("leaked narration is cleaned", func(t *testing.T) {
		data := "Here is the extracted data: Boulangerie Paul, 12 rue Victor Hugo"
		out := g.ValidateActionOutput(ctx, act("summarize_page"), data, sourced)
		require.Equal(t, Modify, out.Decision, out.Reason)
		assert.Equal(t, "Boulangerie Paul, 12 rue Victor Hugo", out.ModifiedData)
		assert.NotEmpty(t, out.Diff)
		assert.Less(t, out.ConfidenceAdjustment, 0.0)
	})

	t.Run("credentials are redacted", func(t *testing.T) {
		data := map[string]any{"config": "api_key=sk9f8e7d6c5b4a", "url": "https://shop.fr"}
		out := g.ValidateActionOutput(ctx, act("extract_settings"), data, nil)
		require.Equal(t, Modify, out.Decision)
		cleaned := out.ModifiedData.(map[string]any)
		assert.NotContains(t, cleaned["config"], "sk9f8e7d6c5b4a")
		assert.Equal(t, "api_key=sk9f8e7d6c5b4a", data["config"], "input must not be mutated")

		var kinds []string
		for _, is := range out.HallucinationIssues {
			if is.Kind == "credential_leak" {
				kinds = append(kinds, is.Message)
			}
		}
		require.Len(t, kinds, 1)
		assert.Contains(t, kinds[0], "labeled_secret")
	})

	t.Run("empty output needs review", func(t *testing.T) {
		out := g.ValidateActionOutput(ctx, act("extract_table"), "", sourced)
		assert.Equal(t, RequiresApproval, out.Decision)
	})

	t.Run("low extraction confidence needs review", func(t *testing.T) {
		low := 0.4
		vctx := &Context{SourceURL: "https://shop.fr", ExtractionConfidence: &low}
		out := g.ValidateActionOutput(ctx, act("extract_prices"), "12.50 EUR", vctx)
		assert.Equal(t, RequiresApproval, out.Decision)
		assert.Empty(t, out.HallucinationIssues)
	})
}

type stubChecker struct {
	report OutputReport
	err    error
}

func (s stubChecker) CheckOutput(context.Context, OutputCheck) (OutputReport, error) {
	return s.report, s.err
}

func TestValidateActionOutput_ExternalChecker(t *testing.T) {
	ctx := context.Background()
	sourced := &Context{SourceURL: "https://shop.fr"}

	t.Run("issues merged", func(t *testing.T) {
		g := New(DefaultConfig(), WithProvenanceChecker(stubChecker{report: OutputReport{
			Issues: []Issue{{Kind: "mismatch", Severity: SeverityCritical, Message: "not on page"}},
		}}))
		out := g.ValidateActionOutput(ctx, act("extract_prices"), "12.50 EUR", sourced)
		assert.Equal(t, Deny, out.Decision)
	})

	t.Run("checker failure is a warning", func(t *testing.T) {
		g := New(DefaultConfig(), WithProvenanceChecker(stubChecker{err: errors.New("timeout")}))
		out := g.ValidateActionOutput(ctx, act("extract_prices"), "12.50 EUR", sourced)
		assert.Equal(t, Allow, out.Decision)
		assert.Len(t, out.Warnings, 1)
	})
}
