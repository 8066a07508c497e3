package audit

import (
	"encoding/json"
	"io"
	"sync"
)

// Journal is a bounded in-memory record of what the control core decided.
// When full, the oldest entries are dropped.
type Journal struct {
	taskID     string
	maxEntries int
	entries    []*Entry
	dropped    int
	mu         sync.RWMutex
}

// NewJournal creates a journal for one task.
func NewJournal(taskID string, maxEntries int) *Journal {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Journal{
		taskID:     taskID,
		maxEntries: maxEntries,
		entries:    make([]*Entry, 0, min(maxEntries, 256)),
	}
}

// Record appends an entry, stamping it with the journal's task id.
func (j *Journal) Record(iteration int, e *Entry) {
	if j == nil || e == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	e.TaskID = j.taskID
	e.Iteration = iteration
	j.entries = append(j.entries, e)
	if over := len(j.entries) - j.maxEntries; over > 0 {
		j.entries = append(j.entries[:0:0], j.entries[over:]...)
		j.dropped += over
	}
}

// Entries returns a copy of all entries, oldest first.
func (j *Journal) Entries() []Entry {
	return j.Query(QueryFilter{})
}

// Query returns entries matching the filter, oldest first.
func (j *Journal) Query(f QueryFilter) []Entry {
	if j == nil {
		return nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []Entry
	for _, e := range j.entries {
		if !f.matches(e) {
			continue
		}
		out = append(out, *e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Len returns the number of retained entries.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Dropped returns how many entries were discarded for capacity.
func (j *Journal) Dropped() int {
	if j == nil {
		return 0
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.dropped
}

// Clear removes all entries.
func (j *Journal) Clear() {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = j.entries[:0]
	j.dropped = 0
}

// WriteJSONL writes one JSON object per entry.
func (j *Journal) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, e := range j.Entries() {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
