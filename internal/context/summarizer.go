package context

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pilot/internal/cache"
	"pilot/internal/logging"
	"pilot/internal/robustness"
)

const summaryPrefix = "[Context summary]"

// ErrEmptySummary is returned when a summarizer produced no text.
var ErrEmptySummary = errors.New("summarizer returned empty text")

// Summarizer condenses messages that are being evicted from context.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) (string, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, messages []Message) (string, error)

// Summarize calls f.
func (f SummarizerFunc) Summarize(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// SummaryResult is the outcome at the summarizer boundary. Err holds the
// primary summarizer's failure when Fallback is set.
type SummaryResult struct {
	Text     string
	Err      error
	Fallback bool
}

// summarize runs primary and falls back to the extractive summarizer on
// error, panic or empty output. It never fails.
func summarize(ctx context.Context, primary Summarizer, fallback *ExtractiveSummarizer, msgs []Message) SummaryResult {
	if primary == nil {
		return SummaryResult{Text: fallback.Extract(msgs), Fallback: true}
	}

	text, err := callSummarizer(ctx, primary, msgs)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptySummary
	}
	if err != nil {
		logging.Warn("summarizer failed, using extractive fallback", "error", err, "messages", len(msgs))
		return SummaryResult{Text: fallback.Extract(msgs), Err: err, Fallback: true}
	}
	return SummaryResult{Text: fallback.truncate(strings.TrimSpace(text))}
}

func callSummarizer(ctx context.Context, s Summarizer, msgs []Message) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("summarizer panic: %v", r)
		}
	}()
	return s.Summarize(ctx, msgs)
}

// ExtractiveSummarizer is the deterministic fallback: recent distinct
// actions, their results and a count of recoverable data items.
type ExtractiveSummarizer struct {
	MaxItems int
	MaxChars int
}

// NewExtractiveSummarizer creates a fallback summarizer.
func NewExtractiveSummarizer(maxChars int) *ExtractiveSummarizer {
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &ExtractiveSummarizer{MaxItems: 5, MaxChars: maxChars}
}

// Summarize implements Summarizer.
func (e *ExtractiveSummarizer) Summarize(_ context.Context, msgs []Message) (string, error) {
	return e.Extract(msgs), nil
}

// Extract builds the summary text.
func (e *ExtractiveSummarizer) Extract(msgs []Message) string {
	var actions, results, earlier []string
	items := 0
	for _, m := range msgs {
		if m.Summary || isSummaryContent(m.Content) {
			earlier = append(earlier, stripSummaryPrefix(m.Content))
			continue
		}
		items += CountDataItems(m.Content)
		line := firstLine(m.Content, 120)
		if line == "" {
			continue
		}
		switch m.Role {
		case RoleAssistant:
			actions = appendDistinct(actions, line)
		case RoleTool:
			results = appendDistinct(results, line)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d earlier messages condensed.", len(msgs)-len(earlier))
	if len(earlier) > 0 {
		sb.WriteString("\nEarlier: " + strings.Join(earlier, " "))
	}
	if len(actions) > 0 {
		sb.WriteString("\nRecent actions: " + strings.Join(lastN(actions, e.MaxItems), "; "))
	}
	if len(results) > 0 {
		sb.WriteString("\nResults: " + strings.Join(lastN(results, e.MaxItems), "; "))
	}
	if items > 0 {
		fmt.Fprintf(&sb, "\nRecoverable data items: %d", items)
	}
	return e.truncate(sb.String())
}

// truncate keeps the tail, which holds the most recent information.
func (e *ExtractiveSummarizer) truncate(s string) string {
	if e.MaxChars <= 0 || len(s) <= e.MaxChars {
		return s
	}
	cut := len(s) - e.MaxChars + 3
	for cut < len(s) && (s[cut]&0xC0) == 0x80 {
		cut++
	}
	return "..." + s[cut:]
}

func appendDistinct(list []string, s string) []string {
	for i, existing := range list {
		if existing == s {
			// move to the end so ordering reflects recency
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	return append(list, s)
}

func lastN(list []string, n int) []string {
	if n > 0 && len(list) > n {
		return list[len(list)-n:]
	}
	return list
}

func firstLine(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if len(s) > max {
		cut := max - 3
		for cut > 0 && (s[cut]&0xC0) == 0x80 {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

func isSummaryContent(content string) bool {
	return strings.HasPrefix(content, summaryPrefix)
}

func stripSummaryPrefix(content string) string {
	return strings.TrimSpace(strings.TrimPrefix(content, summaryPrefix))
}

func newSummaryMessage(text string) Message {
	m := NewMessage(RoleAssistant, summaryPrefix+"\n"+text)
	m.Importance = ImportanceMilestone
	m.Summary = true
	return m
}

// Completer is a text-completion service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const summarizationPrompt = `Summarize this excerpt of an autonomous task session so the agent can continue without it.

KEEP (highest priority first):
1. Data that was found: names, emails, phone numbers, URLs, prices, counts
2. Actions that succeeded or failed, and why they failed
3. Pages or sources the data came from
4. Open problems and the next step that was planned

DROP:
- Narration of scrolling, waiting or looking around
- Repeated observations of the same page

Use short bullet points. Do not invent data that is not in the excerpt.

GOAL: %s

EXCERPT:
%s

SUMMARY:`

// LLMSummarizer summarizes through a Completer. Results are cached by the
// hash of the summarized messages and calls go through a circuit breaker.
type LLMSummarizer struct {
	completer Completer
	breaker   *robustness.CircuitBreaker
	cache     *cache.LRUCache[string, string]
	goal      func() string
}

// NewLLMSummarizer creates a summarizer. breaker and summaries may be nil.
func NewLLMSummarizer(c Completer, breaker *robustness.CircuitBreaker, summaries *cache.LRUCache[string, string]) *LLMSummarizer {
	return &LLMSummarizer{completer: c, breaker: breaker, cache: summaries}
}

// WithGoal sets a provider for the current goal included in the prompt.
// The provider runs while the Manager holds its lock and must not call
// back into it.
func (s *LLMSummarizer) WithGoal(goal func() string) *LLMSummarizer {
	s.goal = goal
	return s
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, msgs []Message) (string, error) {
	key := hashMessages(msgs)
	if s.cache != nil {
		if text, ok := s.cache.Get(key); ok {
			return text, nil
		}
	}

	goal := ""
	if s.goal != nil {
		goal = s.goal()
	}
	prompt := fmt.Sprintf(summarizationPrompt, goal, formatMessages(msgs))

	var text string
	call := func() error {
		var err error
		text, err = s.completer.Complete(ctx, prompt)
		return err
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		return "", fmt.Errorf("summarization request failed: %w", err)
	}

	if s.cache != nil && strings.TrimSpace(text) != "" {
		s.cache.Set(key, text)
	}
	return text, nil
}

func hashMessages(msgs []Message) string {
	parts := make([]string, 0, len(msgs)*2)
	for _, m := range msgs {
		parts = append(parts, string(m.Role), m.Content)
	}
	return cache.HashKey(parts...)
}

func formatMessages(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		content := m.Content
		if len(content) > 2000 {
			content = content[:2000] + "...[truncated]"
		}
		fmt.Fprintf(&sb, "[%s] %s\n", m.Role, content)
	}
	return sb.String()
}
