package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindDecision   Kind = "decision"
	KindOutput     Kind = "output"
	KindResult     Kind = "result"
	KindReflection Kind = "reflection"
	KindReset      Kind = "reset"
	KindApproval   Kind = "approval"
	KindMode       Kind = "mode"
)

// Entry represents a single journal entry.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	TaskID    string         `json:"task_id"`
	Iteration int            `json:"iteration"`
	Kind      Kind           `json:"kind"`
	Action    string         `json:"action,omitempty"`
	Outcome   string         `json:"outcome,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Success   *bool          `json:"success,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewEntry creates a new entry with a generated ID and timestamp.
func NewEntry(kind Kind, action, outcome, reason string) *Entry {
	return &Entry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Kind:      kind,
		Action:    action,
		Outcome:   outcome,
		Reason:    reason,
	}
}

// WithSuccess sets the success flag.
func (e *Entry) WithSuccess(ok bool) *Entry {
	e.Success = &ok
	return e
}

// WithDetail attaches a detail value.
func (e *Entry) WithDetail(key string, value any) *Entry {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// QueryFilter defines criteria for querying entries.
type QueryFilter struct {
	Kind    Kind
	Action  string
	Outcome string
	Since   time.Time
	Limit   int
}

func (f QueryFilter) matches(e *Entry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
