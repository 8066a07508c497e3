package context

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conversation(middle int) []Message {
	msgs := []Message{
		NewMessage(RoleSystem, "You are a web research agent."),
		NewMessage(RoleUser, "Find contact emails for bakeries in Lyon"),
	}
	for i := 0; i < middle; i++ {
		if i%2 == 0 {
			msgs = append(msgs, NewMessage(RoleAssistant, fmt.Sprintf("Open listing page %d and read the bakery description in detail", i)))
		} else {
			msgs = append(msgs, NewMessage(RoleTool, fmt.Sprintf("Page %d shows a bakery description with opening hours and a short history of the shop", i)))
		}
	}
	return msgs
}

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxTokens = 300
	cfg.WindowSize = 4
	return cfg
}

func TestManageContext_PreservesAnchorAndWindow(t *testing.T) {
	for _, size := range []int{0, 3, 10, 40, 120} {
		t.Run(fmt.Sprintf("middle=%d", size), func(t *testing.T) {
			m := NewManager(smallConfig(), nil)
			in := conversation(size)

			out := m.ManageContext(context.Background(), in, "Find contact emails for bakeries in Lyon")

			require.GreaterOrEqual(t, len(out), 2)
			assert.Equal(t, contents(in[:2]), contents(out[:2]))

			w := min(4, len(in)-2)
			assert.Equal(t, contents(in[len(in)-w:]), contents(out[len(out)-w:]))

			zones := m.Zones()
			assert.Len(t, zones.Anchor, 2)
			assert.Len(t, zones.Window, w)
		})
	}
}

func TestManageContext_SummarizesMiddle(t *testing.T) {
	m := NewManager(smallConfig(), nil)
	in := conversation(60)

	out := m.ManageContext(context.Background(), in, "Find contact emails for bakeries in Lyon")

	assert.Less(t, totalTokens(out), totalTokens(in))
	summaries := 0
	for _, msg := range out {
		if msg.Summary {
			summaries++
			assert.True(t, strings.HasPrefix(msg.Content, summaryPrefix))
		}
	}
	assert.Equal(t, 1, summaries)
	assert.Equal(t, 1, m.Stats().Compressions)
}

func TestManageContext_Idempotent(t *testing.T) {
	m := NewManager(smallConfig(), nil)
	goal := "Find contact emails for bakeries in Lyon"

	once := m.ManageContext(context.Background(), conversation(60), goal)
	twice := m.ManageContext(context.Background(), once, goal)

	assert.Equal(t, totalTokens(once), totalTokens(twice))
	assert.Equal(t, contents(once), contents(twice))
	assert.Equal(t, 1, m.Stats().Compressions)
}

func TestManageContext_SummaryCountsAgainstBudget(t *testing.T) {
	cfg := smallConfig()
	verbose := SummarizerFunc(func(context.Context, []Message) (string, error) {
		return strings.Repeat("Visited another listing page and noted the bakery hours. ", 60), nil
	})
	m := NewManager(cfg, verbose)

	out := m.ManageContext(context.Background(), conversation(60), "Find contact emails for bakeries in Lyon")

	limit := int(float64(cfg.MaxTokens) * (1 - cfg.ReserveFraction))
	assert.LessOrEqual(t, totalTokens(out), limit)
	require.Equal(t, 1, m.Stats().Compressions)
	for _, msg := range out {
		if msg.Summary {
			assert.True(t, strings.HasPrefix(msg.Content, summaryPrefix))
			assert.Contains(t, msg.Content, "bakery hours")
		}
	}
}

func TestFitSummary(t *testing.T) {
	long := strings.Repeat("word ", 400) + "latest result"
	msg := fitSummary(long, 40)
	assert.LessOrEqual(t, msg.TokenCount(), 40)
	assert.True(t, strings.HasSuffix(msg.Content, "latest result"))

	short := fitSummary("done", 40)
	assert.Equal(t, summaryPrefix+"\ndone", short.Content)
}

func TestManageContext_KeepsCriticalInMiddle(t *testing.T) {
	m := NewManager(smallConfig(), nil)
	in := conversation(40)
	pinned := NewMessage(RoleSystem, "New instruction: never submit forms.")
	in = append(in[:10], append([]Message{pinned}, in[10:]...)...)

	out := m.ManageContext(context.Background(), in, "bakeries")

	assert.Contains(t, contents(out), pinned.Content)
}

func TestManageContext_MilestoneAndWindowZones(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 10
	cfg.MilestoneCapacity = 20
	m := NewManager(cfg, nil)

	msgs := []Message{
		NewMessage(RoleSystem, "You are a research agent."),
		NewMessage(RoleUser, "Collect bakery contacts"),
	}
	for i := 0; i < 48; i++ {
		if i%3 == 0 {
			msgs = append(msgs, NewMessage(RoleTool, fmt.Sprintf("Found %d bakeries on page %d", i+1, i)))
		} else {
			msgs = append(msgs, NewMessage(RoleAssistant, "Reading the next listing"))
		}
	}
	require.Len(t, msgs, 50)

	m.ManageContext(context.Background(), msgs, "Collect bakery contacts")

	zones := m.Zones()
	assert.LessOrEqual(t, len(zones.Milestones), 20)
	assert.Len(t, zones.Window, 10)
}

func TestAddMessage_MilestoneOverflowFolds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MilestoneCapacity = 3
	m := NewManager(cfg, nil)

	for i := 0; i < 6; i++ {
		sm := m.AddMessage(NewMessage(RoleTool, fmt.Sprintf("Successfully saved record %d", i)), ImportanceAuto)
		assert.Equal(t, ImportanceMilestone, sm.Importance)
	}
	// duplicate content is ignored
	m.AddMessage(NewMessage(RoleTool, "Successfully saved record 5"), ImportanceAuto)

	zones := m.Zones()
	assert.Len(t, zones.Milestones, 3)
	assert.NotEmpty(t, zones.CompressedMilestones)
	assert.Equal(t, 3, m.Stats().MilestonesFolded)
}

func TestAddMessage_ScoresAsNewest(t *testing.T) {
	goal := "Find contact emails for bakeries in Lyon"
	m := NewManager(DefaultConfig(), nil)
	m.SetGoal(goal)

	msg := NewMessage(RoleAssistant, "Opened the Lyon bakery directory")
	first := m.AddMessage(msg, ImportanceNormal)
	for i := 0; i < 20; i++ {
		m.AddMessage(NewMessage(RoleTool, fmt.Sprintf("page %d loaded", i)), ImportanceNormal)
	}
	again := m.AddMessage(msg, ImportanceNormal)

	want := NewScorer().Score(first.Message, 0, 1, GoalKeywords(goal))
	assert.InDelta(t, want, first.Score, 1e-9)
	assert.InDelta(t, first.Score, again.Score, 1e-9)
}

func TestAddMessage_DetectsImportance(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)

	assert.Equal(t, ImportanceCritical, m.AddMessage(NewMessage(RoleSystem, "rules"), ImportanceAuto).Importance)
	assert.Equal(t, ImportanceCritical, m.AddMessage(NewMessage(RoleUser, "the goal"), ImportanceAuto).Importance)
	assert.Equal(t, ImportanceNormal, m.AddMessage(NewMessage(RoleUser, "a follow-up"), ImportanceAuto).Importance)
	assert.Equal(t, ImportanceLow, m.AddMessage(NewMessage(RoleAssistant, "Scrolling down the page"), ImportanceAuto).Importance)
	assert.Equal(t, ImportanceLow, m.AddMessage(NewMessage(RoleTool, "anything"), ImportanceLow).Importance)
}

func TestNeedsManagement(t *testing.T) {
	cfg := smallConfig()
	cfg.MaxMessages = 20
	m := NewManager(cfg, nil)

	assert.False(t, m.NeedsManagement(conversation(2)))
	assert.True(t, m.NeedsManagement(conversation(30)))
}

func TestShouldResetCadence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterationsBeforeReset = 20
	m := NewManager(cfg, nil)

	for i := 1; i < 20; i++ {
		m.IncrementIteration()
		assert.False(t, m.ShouldReset(), "iteration %d", i)
	}
	m.IncrementIteration()
	assert.True(t, m.ShouldReset())

	out := m.PerformReset(context.Background(), conversation(30), "Find contact emails for bakeries in Lyon")

	assert.Equal(t, 0, m.Iteration())
	assert.False(t, m.ShouldReset())
	assert.Equal(t, 1, m.Stats().Resets)

	require.Len(t, out, 2+1+2)
	assert.Equal(t, RoleSystem, out[0].Role)
	assert.True(t, out[2].Summary)
	assert.Contains(t, out[2].Content, "Goal: Find contact emails for bakeries in Lyon")
	assert.Contains(t, out[2].Content, "after 20 iterations")
}

func TestPerformReset_SynthesizesGoalAnchor(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	in := []Message{
		{Role: RoleAssistant, Content: "Opened the search page"},
		{Role: RoleTool, Content: "Found 4 results"},
	}

	out := m.PerformReset(context.Background(), in, "Compare laptop prices")

	require.NotEmpty(t, out)
	assert.Equal(t, "Compare laptop prices", out[0].Content)
	assert.Equal(t, ImportanceCritical, out[0].Importance)
	assert.Contains(t, out[1].Content, "Found 4 results")
}

func TestManageContext_SummarizerFailureFallsBack(t *testing.T) {
	tests := []struct {
		name string
		fn   SummarizerFunc
	}{
		{"error", func(context.Context, []Message) (string, error) { return "", errors.New("service unavailable") }},
		{"empty", func(context.Context, []Message) (string, error) { return "  ", nil }},
		{"panic", func(context.Context, []Message) (string, error) { panic("boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(smallConfig(), tt.fn)
			out := m.ManageContext(context.Background(), conversation(60), "bakeries")

			var summary *Message
			for i := range out {
				if out[i].Summary {
					summary = &out[i]
				}
			}
			require.NotNil(t, summary)
			assert.Contains(t, summary.Content, "earlier messages condensed")
			assert.Equal(t, 1, m.Stats().SummarizerFailures)
		})
	}
}

func TestManageContext_UsesSummarizer(t *testing.T) {
	calls := 0
	fn := SummarizerFunc(func(_ context.Context, msgs []Message) (string, error) {
		calls++
		return fmt.Sprintf("condensed %d messages", len(msgs)), nil
	})
	m := NewManager(smallConfig(), fn)

	out := m.ManageContext(context.Background(), conversation(60), "bakeries")

	assert.Equal(t, 1, calls)
	found := false
	for _, msg := range out {
		if msg.Summary {
			found = strings.Contains(msg.Content, "condensed")
		}
	}
	assert.True(t, found)
	assert.Zero(t, m.Stats().SummarizerFailures)
}

func TestExtractiveSummarizer(t *testing.T) {
	e := NewExtractiveSummarizer(500)
	msgs := []Message{
		{Role: RoleAssistant, Content: "click #next"},
		{Role: RoleTool, Content: "page 2 loaded\n- a@shop.fr\n- b@shop.fr"},
		{Role: RoleAssistant, Content: "click #next"},
	}

	text := e.Extract(msgs)

	assert.Contains(t, text, "3 earlier messages condensed.")
	assert.Contains(t, text, "Recent actions: click #next")
	assert.Equal(t, 1, strings.Count(text, "click #next"))
	assert.Contains(t, text, "Results: page 2 loaded")
	assert.Contains(t, text, "Recoverable data items: 4")
}

func TestExtractiveSummarizer_Truncates(t *testing.T) {
	e := NewExtractiveSummarizer(50)
	text := e.Extract(conversation(40))
	assert.LessOrEqual(t, len(text), 50)
	assert.True(t, strings.HasPrefix(text, "..."))
}
