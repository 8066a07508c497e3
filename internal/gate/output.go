package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"pilot/internal/logging"
	"pilot/internal/permission"
	"pilot/internal/security"
)

var (
	fabricatedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@(example\.(com|org|net)|test\.com|domain\.com|email\.com|company\.com)\b`),
		regexp.MustCompile(`\b555[\s.\-]?01\d{2}\b`),
		regexp.MustCompile(`\(?\b123\)?[\s.\-]?456[\s.\-]?7890\b`),
		regexp.MustCompile(`(?i)\blorem ipsum\b`),
		regexp.MustCompile(`(?i)\b(john|jane) doe\b`),
	}

	leakedInstructionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bas an ai( language model)?\b`),
		regexp.MustCompile(`(?i)\bignore (all )?(previous|prior) instructions\b`),
		regexp.MustCompile(`(?i)\b(my|the) system prompt\b`),
		regexp.MustCompile(`(?i)\byou are a helpful assistant\b`),
		regexp.MustCompile(`(?i)\bi (cannot|can't|am unable to) (access|browse|verify)\b`),
		regexp.MustCompile(`(?i)\bhere (is|are) the (extracted|requested) (data|information)\b[:.]?`),
	}

	placeholderPattern = regexp.MustCompile(`(?i)(\[insert [^\]]*\]|\{\{[^}]*\}\}|\bTBD\b|\bplaceholder\b)`)
	sourceURLPattern   = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

var sourceKeys = []string{"source", "source_url", "sourceUrl", "url", "sources", "citation", "citations"}

// ValidateActionOutput checks data produced by a data-producing action for
// provenance, fabrication, leaked instructions and credentials. Other
// actions pass unchecked.
func (g *Gate) ValidateActionOutput(ctx context.Context, action Action, data any, vctx *Context) ValidationOutput {
	if !g.IsDataProducing(action.Name) {
		return ValidationOutput{Decision: Allow, Reason: "not a data-producing action", RiskLevel: permission.RiskLow}
	}
	if vctx == nil {
		vctx = &Context{}
	}

	text := renderData(data)
	var issues []Issue
	var cleaned any
	var warnings []string

	if strings.TrimSpace(text) == "" {
		issues = append(issues, Issue{Kind: "empty_output", Severity: SeverityMedium, Message: "action produced no data"})
	} else {
		if !hasProvenance(data, text, vctx) {
			issues = append(issues, Issue{Kind: "missing_provenance", Severity: SeverityCritical, Message: "output has no traceable source"})
		}
		for _, p := range fabricatedPatterns {
			if m := p.FindString(text); m != "" {
				issues = append(issues, Issue{Kind: "fabricated_data", Severity: SeverityCritical, Message: fmt.Sprintf("looks fabricated: %q", m)})
			}
		}

		leaked := false
		for _, p := range leakedInstructionPatterns {
			if m := p.FindString(text); m != "" {
				leaked = true
				issues = append(issues, Issue{Kind: "leaked_instruction", Severity: SeverityHigh, Message: fmt.Sprintf("contains model narration: %q", m)})
			}
		}
		found := g.secrets.Scan(text)
		hasSecrets := len(found) > 0
		if hasSecrets {
			issues = append(issues, Issue{Kind: "credential_leak", Severity: SeverityHigh, Message: "output contains credentials: " + credentialKinds(found)})
		}
		if leaked || hasSecrets {
			cleaned = g.clean(data)
		}

		if m := placeholderPattern.FindString(text); m != "" {
			issues = append(issues, Issue{Kind: "placeholder", Severity: SeverityMedium, Message: fmt.Sprintf("contains placeholder %q", m)})
		}
	}

	if g.checker != nil {
		report, err := g.checker.CheckOutput(ctx, OutputCheck{
			Data:       data,
			SourceTool: vctx.SourceTool,
			SourceURL:  vctx.SourceURL,
			DataType:   vctx.DataType,
		})
		if err != nil {
			logging.Warn("provenance checker failed", "action", action.Name, "error", err)
			warnings = append(warnings, "external provenance check unavailable: "+err.Error())
		} else {
			issues = append(issues, report.Issues...)
			if report.CleanedData != nil {
				cleaned = report.CleanedData
			}
			if !report.Valid && len(report.Issues) == 0 {
				issues = append(issues, Issue{Kind: "provenance_rejected", Severity: SeverityHigh, Message: "external checker rejected the output"})
			}
		}
	}

	conf := g.dataConfidence(issues, vctx)
	out := ValidationOutput{
		HallucinationIssues:  issues,
		DataConfidence:       &conf,
		ConfidenceAdjustment: conf - g.baseConfidence(vctx),
		Warnings:             warnings,
	}

	worst := worstSeverity(issues)
	switch {
	case worst == SeverityCritical:
		out.Decision = Deny
		out.RiskLevel = permission.RiskHigh
		out.Reason = "output failed provenance check: " + firstIssue(issues, SeverityCritical)
		logging.Warn("output denied", "action", action.Name, "issues", len(issues), "confidence", conf)

	case worst == SeverityHigh && cleaned != nil:
		out.Decision = Modify
		out.RiskLevel = permission.RiskMedium
		out.Reason = "output cleaned: " + firstIssue(issues, SeverityHigh)
		out.ModifiedData = cleaned
		out.Diff = dataDiff(text, renderData(cleaned))

	case len(issues) > 0 || conf < g.cfg.MinDataConfidence:
		out.Decision = RequiresApproval
		out.RiskLevel = permission.RiskMedium
		if worst == SeverityHigh {
			out.RiskLevel = permission.RiskHigh
		}
		out.Reason = fmt.Sprintf("output needs manual review (confidence %.2f)", conf)

	default:
		out.Decision = Allow
		out.RiskLevel = permission.RiskLow
		out.Reason = "output passed provenance check"
	}
	return out
}

func (g *Gate) baseConfidence(vctx *Context) float64 {
	if vctx != nil && vctx.ExtractionConfidence != nil {
		return clamp01(*vctx.ExtractionConfidence)
	}
	return g.cfg.DefaultExtractionConfidence
}

// dataConfidence blends the extraction confidence with the detected issues.
// Critical issues cost more than high ones, high more than the rest.
func (g *Gate) dataConfidence(issues []Issue, vctx *Context) float64 {
	conf := g.baseConfidence(vctx)
	for _, is := range issues {
		switch is.Severity {
		case SeverityCritical:
			conf -= 0.3
		case SeverityHigh:
			conf -= 0.15
		default:
			conf -= 0.05
		}
	}
	return clamp01(conf)
}

func (g *Gate) clean(v any) any {
	switch t := g.secrets.RedactValue(v).(type) {
	case string:
		return stripLeaks(t)
	case map[string]any:
		for k, item := range t {
			t[k] = g.clean(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = g.clean(item)
		}
		return t
	case []string:
		for i, item := range t {
			t[i] = stripLeaks(item)
		}
		return t
	default:
		return t
	}
}

func credentialKinds(found []security.CredentialFinding) string {
	var kinds []string
	for _, f := range found {
		if !slices.Contains(kinds, f.Kind) {
			kinds = append(kinds, f.Kind)
		}
	}
	return strings.Join(kinds, ", ")
}

func stripLeaks(s string) string {
	for _, p := range leakedInstructionPatterns {
		s = p.ReplaceAllString(s, "")
	}
	return strings.Join(strings.Fields(s), " ")
}

func hasProvenance(data any, text string, vctx *Context) bool {
	if vctx.SourceURL != "" {
		return true
	}
	if m, ok := data.(map[string]any); ok {
		for _, k := range sourceKeys {
			if v, ok := m[k]; ok && v != nil && v != "" {
				return true
			}
		}
	}
	return sourceURLPattern.MatchString(text)
}

// renderData turns produced data into text for pattern checks.
func renderData(data any) string {
	switch t := data.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(b)
}

func dataDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(before, diffs))
}

func worstSeverity(issues []Issue) Severity {
	rank := map[Severity]int{SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3, SeverityCritical: 4}
	var worst Severity
	for _, is := range issues {
		if rank[is.Severity] > rank[worst] {
			worst = is.Severity
		}
	}
	return worst
}

func firstIssue(issues []Issue, sev Severity) string {
	for _, is := range issues {
		if is.Severity == sev {
			return is.Message
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
