package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pilot/internal/cache"
	"pilot/internal/logging"
)

// ErrUnknownApproval is returned when resolving an id that is not pending.
var ErrUnknownApproval = errors.New("unknown approval request")

// Manager tracks approval requests and remembers resolved decisions per
// action signature and reason, so identical requests are not asked twice.
type Manager struct {
	decided *cache.LRUCache[string, Decision]
	pending map[string]*Request
	byKey   map[string]string // cache key -> pending id
	now     func() time.Time

	mu sync.Mutex
}

// NewManager creates a manager whose decision cache holds capacity entries
// for ttl (zero ttl keeps them until evicted).
func NewManager(capacity int, ttl time.Duration) *Manager {
	return &Manager{
		decided: cache.NewLRUCache[string, Decision](capacity, ttl),
		pending: make(map[string]*Request),
		byKey:   make(map[string]string),
		now:     time.Now,
	}
}

func cacheKey(signature, reason string) string {
	return cache.HashKey(signature, reason)
}

// Lookup returns a remembered decision for the signature and reason.
func (m *Manager) Lookup(signature, reason string) (Decision, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cacheKey(signature, reason)
	if d, ok := m.decided.Get(key); ok {
		return d, true
	}
	if _, ok := m.byKey[key]; ok {
		return DecisionPending, true
	}
	return DecisionPending, false
}

// Request registers an approval request. An identical pending request is
// returned instead of creating a duplicate.
func (m *Manager) Request(name string, params map[string]any, reason string, risk RiskLevel) *Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig := Signature(name, params)
	key := cacheKey(sig, reason)
	if id, ok := m.byKey[key]; ok {
		return m.pending[id]
	}

	req := &Request{
		ID:         uuid.New().String(),
		ActionName: name,
		Params:     params,
		Signature:  sig,
		Reason:     reason,
		Risk:       risk,
		Decision:   DecisionPending,
		CreatedAt:  m.now(),
	}
	m.pending[req.ID] = req
	m.byKey[key] = req.ID

	logging.Debug("approval requested", "id", req.ID, "action", name, "risk", risk.String())
	return req
}

// Resolve records the decision for a pending request.
func (m *Manager) Resolve(id string, approved bool) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.pending[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApproval, id)
	}
	req.Decision = DecisionRejected
	if approved {
		req.Decision = DecisionApproved
	}
	req.ResolvedAt = m.now()

	key := cacheKey(req.Signature, req.Reason)
	m.decided.Set(key, req.Decision)
	delete(m.pending, id)
	delete(m.byKey, key)

	logging.Info("approval resolved", "id", id, "action", req.ActionName, "decision", req.Decision.String())
	return req, nil
}

// Pending returns open requests, oldest first.
func (m *Manager) Pending() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Request, 0, len(m.pending))
	for _, r := range m.pending {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clear drops all pending requests and remembered decisions.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decided.Clear()
	m.pending = make(map[string]*Request)
	m.byKey = make(map[string]string)
}
