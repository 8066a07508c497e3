package context

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pilot/internal/cache"
	"pilot/internal/logging"
)

// Config controls zone sizes, the token budget and the reset cadence.
type Config struct {
	MaxTokens       int
	ReserveFraction float64
	WindowSize      int
	// MilestoneCapacity bounds the milestone zone; overflow is folded into
	// a rolling compressed summary.
	MilestoneCapacity        int
	MaxIterationsBeforeReset int
	// ResetKeepRecent messages survive a reset verbatim after the narrative.
	ResetKeepRecent int
	ManageThreshold float64
	MaxMessages     int
	SummaryMaxChars int
}

// DefaultConfig returns the stock memory settings.
func DefaultConfig() Config {
	return Config{
		MaxTokens:                32000,
		ReserveFraction:          0.25,
		WindowSize:               10,
		MilestoneCapacity:        20,
		MaxIterationsBeforeReset: 20,
		ResetKeepRecent:          2,
		ManageThreshold:          0.8,
		MaxMessages:              60,
		SummaryMaxChars:          2000,
	}
}

const compressedLabel = "\nEarlier milestones: "

// Zones is a snapshot of the three memory zones.
type Zones struct {
	Anchor               []Message
	Milestones           []Message
	Window               []Message
	CompressedMilestones string
}

// Stats counts what the manager has done.
type Stats struct {
	Compressions       int
	Resets             int
	SummarizerFailures int
	MessagesSummarized int
	TokensSaved        int
	MilestonesFolded   int
}

// Manager keeps conversation memory bounded. Anchor and window messages
// are always returned verbatim; only the middle is scored, summarized or
// dropped.
type Manager struct {
	cfg        Config
	scorer     *Scorer
	summarizer Summarizer
	fallback   *ExtractiveSummarizer

	goal     string
	keywords map[string]bool

	sawUser    bool
	milestones []Message
	seen       map[string]bool
	compressed string

	anchor []Message
	window []Message

	iteration int
	stats     Stats

	mu sync.Mutex
}

// NewManager creates a memory manager. A nil summarizer uses the
// extractive summary only.
func NewManager(cfg Config, summarizer Summarizer) *Manager {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.ReserveFraction < 0 || cfg.ReserveFraction >= 1 {
		cfg.ReserveFraction = def.ReserveFraction
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MilestoneCapacity <= 0 {
		cfg.MilestoneCapacity = def.MilestoneCapacity
	}
	if cfg.MaxIterationsBeforeReset <= 0 {
		cfg.MaxIterationsBeforeReset = def.MaxIterationsBeforeReset
	}
	if cfg.ResetKeepRecent < 0 {
		cfg.ResetKeepRecent = def.ResetKeepRecent
	}
	if cfg.ManageThreshold <= 0 || cfg.ManageThreshold > 1 {
		cfg.ManageThreshold = def.ManageThreshold
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	return &Manager{
		cfg:        cfg,
		scorer:     NewScorer(),
		summarizer: summarizer,
		fallback:   NewExtractiveSummarizer(cfg.SummaryMaxChars),
		keywords:   map[string]bool{},
		seen:       map[string]bool{},
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// SetGoal updates the goal used for relevance scoring.
func (m *Manager) SetGoal(goal string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setGoalLocked(goal)
}

func (m *Manager) setGoalLocked(goal string) {
	if goal == "" || goal == m.goal {
		return
	}
	m.goal = goal
	m.keywords = GoalKeywords(goal)
}

// Goal returns the current goal.
func (m *Manager) Goal() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.goal
}

// AddMessage scores msg and tracks it. ImportanceAuto detects the tier.
// Milestones enter the milestone zone.
func (m *Manager) AddMessage(msg Message, importance Importance) ScoredMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.Tokens <= 0 {
		msg.Tokens = EstimateTokens(msg.Content)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if importance == ImportanceAuto {
		importance = msg.Importance
	}
	if importance == ImportanceAuto {
		firstUser := msg.Role == RoleUser && !m.sawUser
		importance = m.scorer.DetectImportance(msg, firstUser)
	}
	if msg.Role == RoleUser {
		m.sawUser = true
	}
	msg.Importance = importance

	// scored as the newest message
	sm := ScoredMessage{Message: msg, Score: m.scorer.Score(msg, 0, 1, m.keywords)}

	if importance == ImportanceMilestone {
		m.addMilestoneLocked(msg)
	}
	return sm
}

// NeedsManagement reports whether messages exceed the token threshold or
// the message count limit.
func (m *Manager) NeedsManagement(messages []Message) bool {
	if len(messages) > m.cfg.MaxMessages {
		return true
	}
	limit := int(float64(m.cfg.MaxTokens) * m.cfg.ManageThreshold)
	return totalTokens(messages) >= limit
}

// IncrementIteration advances the reset cadence and returns the new count.
func (m *Manager) IncrementIteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iteration++
	return m.iteration
}

// Iteration returns iterations since the last reset.
func (m *Manager) Iteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.iteration
}

// ShouldReset reports whether the reset cadence has been reached. It does
// not depend on token pressure.
func (m *Manager) ShouldReset() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.iteration >= m.cfg.MaxIterationsBeforeReset
}

// ManageContext shrinks the middle of messages to fit the token budget.
// Messages removed from the middle are replaced by one summary message. A
// second call with the same input is a no-op.
func (m *Manager) ManageContext(ctx context.Context, messages []Message, goal string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setGoalLocked(goal)
	msgs := m.annotateLocked(messages)

	anchor, middle, window := m.split(msgs)
	m.anchor = cloneMessages(anchor)
	m.window = cloneMessages(window)

	if len(middle) == 0 {
		return msgs
	}

	var (
		priorSummaries []int
		pinned         = map[int]bool{}
		candidates     []int
	)
	pinnedTokens := 0
	for i, msg := range middle {
		switch {
		case msg.Summary:
			priorSummaries = append(priorSummaries, i)
		case msg.Importance == ImportanceCritical:
			pinned[i] = true
			pinnedTokens += msg.TokenCount()
		default:
			candidates = append(candidates, i)
		}
		if msg.Importance == ImportanceMilestone && !msg.Summary {
			m.addMilestoneLocked(msg)
		}
	}

	available := int(float64(m.cfg.MaxTokens)*(1-m.cfg.ReserveFraction)) -
		totalTokens(anchor) - totalTokens(window) - pinnedTokens
	// The summary message that replaces evicted messages is paid for up front.
	reserve := m.summaryReserveLocked(available)
	budget := available - reserve

	scores := make(map[int]float64, len(candidates))
	for _, i := range candidates {
		scores[i] = m.scorer.Score(middle[i], i, len(middle), m.keywords)
	}
	ranked := append([]int(nil), candidates...)
	sort.SliceStable(ranked, func(a, b int) bool {
		return scores[ranked[a]] > scores[ranked[b]]
	})

	keep := make(map[int]bool, len(middle))
	for i := range pinned {
		keep[i] = true
	}
	used, kept := 0, 0
	for _, i := range ranked {
		t := middle[i].TokenCount()
		if used+t > budget {
			continue
		}
		used += t
		keep[i] = true
		kept++
	}

	if kept == len(candidates) {
		return msgs
	}

	var removed []Message
	for _, i := range priorSummaries {
		removed = append(removed, middle[i])
	}
	removedTokens := 0
	removedCount := 0
	for i, msg := range middle {
		if msg.Summary || keep[i] {
			continue
		}
		removed = append(removed, msg)
		removedTokens += msg.TokenCount()
		removedCount++
	}

	res := summarize(ctx, m.summarizer, m.fallback, removed)
	if res.Err != nil {
		m.stats.SummarizerFailures++
	}
	text := res.Text
	if m.compressed != "" {
		text += compressedLabel + m.compressed
	}
	summary := fitSummary(text, reserve)

	out := make([]Message, 0, len(anchor)+1+len(keep)+len(window))
	out = append(out, anchor...)
	out = append(out, summary)
	for i, msg := range middle {
		if keep[i] {
			out = append(out, msg)
		}
	}
	out = append(out, window...)

	m.stats.Compressions++
	m.stats.MessagesSummarized += removedCount
	m.stats.TokensSaved += removedTokens - summary.TokenCount()

	logging.Debug("context managed",
		"messages_in", len(messages),
		"messages_out", len(out),
		"summarized", removedCount,
		"tokens_removed", removedTokens,
		"fallback", res.Fallback)
	return out
}

// summaryReserveLocked is the token allowance for the summary message: what
// a full-length summary would cost, but at most half of what is available.
func (m *Manager) summaryReserveLocked(available int) int {
	chars := len(summaryPrefix) + 1 + m.fallback.MaxChars
	if m.compressed != "" {
		chars += len(compressedLabel) + len(m.compressed)
	}
	reserve := chars / 3
	if half := available / 2; reserve > half {
		reserve = half
	}
	return max(reserve, EstimateTokens(summaryPrefix)+1)
}

// fitSummary builds the summary message, dropping the oldest part of text
// until it costs at most maxTokens.
func fitSummary(text string, maxTokens int) Message {
	msg := newSummaryMessage(text)
	for msg.TokenCount() > maxTokens && text != "" {
		keep := len(text) * maxTokens / (msg.TokenCount() + 1)
		cut := len(text) - keep
		if cut < 1 {
			cut = 1
		}
		for cut < len(text) && (text[cut]&0xC0) == 0x80 {
			cut++
		}
		text = text[cut:]
		msg = newSummaryMessage(text)
	}
	return msg
}

// PerformReset rebuilds the context from the anchor, a progress narrative
// and the most recent messages, and restarts the reset cadence.
func (m *Manager) PerformReset(ctx context.Context, messages []Message, goal string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setGoalLocked(goal)
	msgs := m.annotateLocked(messages)
	anchor, rest := splitAnchor(msgs)

	if len(anchor) == 0 && m.goal != "" {
		g := NewMessage(RoleUser, m.goal)
		g.Importance = ImportanceCritical
		anchor = []Message{g}
	}

	var recent []Message
	for i := len(rest) - 1; i >= 0 && len(recent) < m.cfg.ResetKeepRecent; i-- {
		if rest[i].Summary || rest[i].Importance == ImportanceCritical {
			continue
		}
		recent = append(recent, rest[i])
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	for _, msg := range rest {
		if msg.Importance == ImportanceMilestone && !msg.Summary {
			m.addMilestoneLocked(msg)
		}
	}

	narrative := newSummaryMessage(m.narrativeLocked(rest))

	out := make([]Message, 0, len(anchor)+1+len(recent))
	out = append(out, anchor...)
	out = append(out, narrative)
	out = append(out, recent...)

	logging.Info("context reset",
		"after_iterations", m.iteration,
		"messages_in", len(messages),
		"messages_out", len(out))

	m.iteration = 0
	m.stats.Resets++
	m.anchor = cloneMessages(anchor)
	m.window = cloneMessages(recent)
	return out
}

func (m *Manager) narrativeLocked(rest []Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Progress checkpoint after %d iterations.\n", m.iteration)
	if m.goal != "" {
		sb.WriteString("Goal: " + m.goal + "\n")
	}

	if len(m.milestones) > 0 {
		sb.WriteString("Accomplished so far:\n")
		for _, ms := range m.milestones {
			sb.WriteString("- " + firstLine(ms.Content, 160) + "\n")
		}
	}
	if m.compressed != "" {
		sb.WriteString("Earlier milestones: " + m.compressed + "\n")
	}

	if state := currentState(rest); state != "" {
		sb.WriteString("Current state: " + state + "\n")
	}
	sb.WriteString("Continue from the current state. Do not repeat completed steps.")
	return m.fallback.truncate(sb.String())
}

func currentState(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.Summary || msg.Role == RoleSystem {
			continue
		}
		if line := firstLine(msg.Content, 200); line != "" {
			return line
		}
	}
	return ""
}

// Zones returns a snapshot of the zones as of the last management pass.
func (m *Manager) Zones() Zones {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Zones{
		Anchor:               cloneMessages(m.anchor),
		Milestones:           cloneMessages(m.milestones),
		Window:               cloneMessages(m.window),
		CompressedMilestones: m.compressed,
	}
}

// Stats returns the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Reset clears all state, including the goal.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goal = ""
	m.keywords = map[string]bool{}
	m.sawUser = false
	m.milestones = nil
	m.seen = map[string]bool{}
	m.compressed = ""
	m.anchor = nil
	m.window = nil
	m.iteration = 0
	m.stats = Stats{}
}

// annotateLocked returns a copy of messages with token estimates and
// importance filled in.
func (m *Manager) annotateLocked(messages []Message) []Message {
	out := make([]Message, len(messages))
	firstUser := true
	for i, msg := range messages {
		if msg.Tokens <= 0 {
			msg.Tokens = EstimateTokens(msg.Content)
		}
		if !msg.Summary && isSummaryContent(msg.Content) {
			msg.Summary = true
		}
		if msg.Importance == ImportanceAuto {
			if msg.Summary {
				msg.Importance = ImportanceMilestone
			} else {
				msg.Importance = m.scorer.DetectImportance(msg, msg.Role == RoleUser && firstUser)
			}
		}
		if msg.Role == RoleUser && !msg.Summary {
			firstUser = false
		}
		out[i] = msg
	}
	return out
}

// split divides msgs into the anchor prefix, the middle and the trailing
// window. The window never overlaps the anchor.
func (m *Manager) split(msgs []Message) (anchor, middle, window []Message) {
	anchor, rest := splitAnchor(msgs)
	if len(rest) <= m.cfg.WindowSize {
		return anchor, nil, rest
	}
	cut := len(rest) - m.cfg.WindowSize
	return anchor, rest[:cut], rest[cut:]
}

func splitAnchor(msgs []Message) (anchor, rest []Message) {
	n := 0
	for n < len(msgs) && msgs[n].Importance == ImportanceCritical {
		n++
	}
	return msgs[:n], msgs[n:]
}

func (m *Manager) addMilestoneLocked(msg Message) {
	key := cache.HashKey(string(msg.Role), msg.Content)
	if m.seen[key] {
		return
	}
	m.seen[key] = true
	msg.Importance = ImportanceMilestone
	m.milestones = append(m.milestones, msg)

	if len(m.milestones) > m.cfg.MilestoneCapacity {
		m.foldMilestonesLocked()
	}
}

// foldMilestonesLocked folds the lowest-scored overflow into the rolling
// compressed summary.
func (m *Manager) foldMilestonesLocked() {
	excess := len(m.milestones) - m.cfg.MilestoneCapacity
	if excess <= 0 {
		return
	}

	n := len(m.milestones)
	idx := make([]int, n)
	scores := make([]float64, n)
	for i := range m.milestones {
		idx[i] = i
		scores[i] = m.scorer.Score(m.milestones[i], i, n, m.keywords)
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	drop := make(map[int]bool, excess)
	for _, i := range idx[:excess] {
		drop[i] = true
	}

	var folded []string
	kept := m.milestones[:0:0]
	for i, ms := range m.milestones {
		if drop[i] {
			folded = append(folded, firstLine(ms.Content, 100))
			continue
		}
		kept = append(kept, ms)
	}
	m.milestones = kept

	parts := folded
	if m.compressed != "" {
		parts = append([]string{m.compressed}, folded...)
	}
	m.compressed = m.fallback.truncate(strings.Join(parts, "; "))
	m.stats.MilestonesFolded += len(folded)
}

func cloneMessages(msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	return append([]Message(nil), msgs...)
}
