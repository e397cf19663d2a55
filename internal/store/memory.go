package store

import (
	"context"
	"sort"
	"sync"

	"drawboard-backend/internal/model"
)

// MemoryStore keeps session documents in process memory. Used by unit
// tests and single-node development runs; semantics match the Postgres
// store (atomic per-document mutation, full-document fan-out).
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]*model.Session
	revs     map[string]int64
	notifier *notifier
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]*model.Session),
		revs:     make(map[string]int64),
		notifier: newNotifier(),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.docs[s.ID]; exists {
		return ErrAlreadyExists
	}
	m.docs[s.ID] = s.Clone()
	m.revs[s.ID] = 1
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, mutate func(*model.Session) error) (*model.Session, error) {
	m.mu.Lock()
	doc, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	// Mutate a clone so a failed mutation leaves the document untouched.
	next := doc.Clone()
	if err := mutate(next); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	next.UpdatedAt = nowFunc()
	m.docs[id] = next
	m.revs[id]++
	rev := m.revs[id]
	committed := next.Clone()
	m.mu.Unlock()

	m.notifier.notify(committed, rev)
	return committed, nil
}

func (m *MemoryStore) ListByTeam(_ context.Context, teamID string, status model.SessionStatus) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Session, 0)
	for _, doc := range m.docs {
		if doc.TeamID != teamID {
			continue
		}
		if status != "" && doc.Status != status {
			continue
		}
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Subscribe(id string, onChange func(*model.Session)) (func(), error) {
	m.mu.Lock()
	doc, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	current := doc.Clone()
	rev := m.revs[id]
	m.mu.Unlock()

	return m.notifier.subscribe(id, onChange, current, rev), nil
}
