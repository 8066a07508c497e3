package context

import (
	"math"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Importance is a retention tier.
type Importance int

const (
	// ImportanceAuto asks the manager to detect the tier.
	ImportanceAuto Importance = iota
	ImportanceTrivial
	ImportanceLow
	ImportanceNormal
	ImportanceMilestone
	ImportanceCritical
)

func (i Importance) String() string {
	switch i {
	case ImportanceAuto:
		return "auto"
	case ImportanceTrivial:
		return "trivial"
	case ImportanceLow:
		return "low"
	case ImportanceNormal:
		return "normal"
	case ImportanceMilestone:
		return "milestone"
	case ImportanceCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Weight is the multiplier applied to a message's retention score.
// Critical messages bypass scoring, so their weight is +Inf.
func (i Importance) Weight() float64 {
	switch i {
	case ImportanceCritical:
		return math.Inf(1)
	case ImportanceMilestone:
		return 2.0
	case ImportanceLow:
		return 0.5
	case ImportanceTrivial:
		return 0.1
	default:
		return 1.0
	}
}

// Message is one entry of the conversation history.
type Message struct {
	Role       Role
	Content    string
	Tokens     int
	Importance Importance
	Timestamp  time.Time
	// Summary marks a message synthesized by the manager.
	Summary bool
}

// NewMessage creates a message with its token estimate filled in.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Tokens:    EstimateTokens(content),
		Timestamp: time.Now(),
	}
}

// TokenCount returns the stored estimate, computing it when missing.
func (m Message) TokenCount() int {
	if m.Tokens > 0 || m.Content == "" {
		return m.Tokens
	}
	return EstimateTokens(m.Content)
}

// ScoredMessage is a message with its detected tier and retention score.
type ScoredMessage struct {
	Message
	Score float64
}

func totalTokens(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		n += m.TokenCount()
	}
	return n
}
