package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"drawboard-backend/internal/model"
)

var (
	ErrNotFound      = errors.New("session document not found")
	ErrAlreadyExists = errors.New("session document already exists")
)

// nowFunc stamps UpdatedAt on committed documents; swapped in tests.
var nowFunc = time.Now

// Store is the document-store contract the session protocol runs against.
// A session is one document; Update applies a mutation atomically against
// the current document (no blind whole-document writes), and Subscribe
// delivers the full committed document to subscribers, firing once
// immediately with the current state.
//
// The protocol core only ever talks to this interface, so it stays
// unit-testable against the in-memory implementation.
type Store interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	// Update loads the document, applies mutate under the store's
	// per-document serialization, and persists the result. A mutate error
	// aborts the write and is returned unchanged. Returns the committed
	// document.
	Update(ctx context.Context, id string, mutate func(*model.Session) error) (*model.Session, error)
	// ListByTeam returns a team's sessions, newest first. Empty status
	// means all statuses.
	ListByTeam(ctx context.Context, teamID string, status model.SessionStatus) ([]*model.Session, error)
	// Subscribe registers onChange for a session and invokes it once with
	// the current document before returning. The returned func removes
	// the subscription. Intermediate states may be coalesced.
	Subscribe(id string, onChange func(*model.Session)) (func(), error)
}

// notifier fans committed documents out to per-session subscribers.
// Revisions are assigned under the store's per-document lock, so they
// reflect commit order even when notify calls arrive out of order;
// a frame older than what a subscriber already saw is dropped, keeping
// each subscriber's observed state monotonic. Callbacks receive clones
// and are never invoked under a store lock.
type notifier struct {
	mu        sync.RWMutex
	next      int
	subs      map[string]map[int]*subscriber
	deliverMu sync.Mutex
}

// subscriber tracks the newest revision delivered to one callback.
// lastRev is guarded by the notifier's deliverMu.
type subscriber struct {
	fn      func(*model.Session)
	lastRev int64
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[int]*subscriber)}
}

// subscribe registers fn and immediately delivers current at its
// revision. The returned func removes the subscription.
func (n *notifier) subscribe(sessionID string, fn func(*model.Session), current *model.Session, rev int64) func() {
	sub := &subscriber{fn: fn}

	n.mu.Lock()
	n.next++
	id := n.next
	if n.subs[sessionID] == nil {
		n.subs[sessionID] = make(map[int]*subscriber)
	}
	n.subs[sessionID][id] = sub
	n.mu.Unlock()

	n.deliverMu.Lock()
	sub.lastRev = rev
	fn(current.Clone())
	n.deliverMu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[sessionID], id)
		if len(n.subs[sessionID]) == 0 {
			delete(n.subs, sessionID)
		}
	}
}

// notify delivers a committed document at revision rev, skipping any
// subscriber that already saw a newer one.
func (n *notifier) notify(s *model.Session, rev int64) {
	n.mu.RLock()
	subs := make([]*subscriber, 0, len(n.subs[s.ID]))
	for _, sub := range n.subs[s.ID] {
		subs = append(subs, sub)
	}
	n.mu.RUnlock()

	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()
	for _, sub := range subs {
		if rev <= sub.lastRev {
			continue
		}
		sub.lastRev = rev
		sub.fn(s.Clone())
	}
}
