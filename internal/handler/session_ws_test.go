package handler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawboard-backend/internal/session"
	"drawboard-backend/internal/store"
)

// stubConn records every frame written to it.
type stubConn struct {
	mu     sync.Mutex
	frames []string
}

func (c *stubConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, string(data))
	return nil
}

func (c *stubConn) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func newHubFixture(t *testing.T) (*SessionHub, *session.Service, string) {
	t.Helper()
	svc := session.NewService(store.NewMemoryStore(), session.DefaultConfig(), nil)
	sess, err := svc.Create(context.Background(),
		session.Identity{UserID: 1, Name: "Alice"}, "team-1", "Sketches", "", nil)
	require.NoError(t, err)
	return NewSessionHub(svc, time.Hour), svc, sess.ID
}

func TestJoinDuringTeardownKeepsSubscription(t *testing.T) {
	hub, svc, sessionID := newHubFixture(t)
	alice := session.Identity{UserID: 1, Name: "Alice"}

	a := &wsClient{conn: &stubConn{}, identity: alice}
	roomA, err := hub.joinRoom(sessionID, a)
	require.NoError(t, err)

	// Last client leaves, scheduling a teardown, while a new client
	// joins. Whichever order they land in, the joiner must end up in a
	// live room that still receives committed documents.
	roomA.removeClient(a)

	bConn := &stubConn{}
	b := &wsClient{conn: bConn, identity: session.Identity{UserID: 2, Name: "Bob"}}
	_, err = hub.joinRoom(sessionID, b)
	require.NoError(t, err)

	// The scheduled teardown runs after the join; it must be a no-op.
	hub.removeRoom(sessionID)

	hub.mu.RLock()
	_, alive := hub.rooms[sessionID]
	hub.mu.RUnlock()
	assert.True(t, alive)

	_, err = svc.SendMessage(context.Background(), alice, sessionID, "still here")
	require.NoError(t, err)

	var delivered bool
	for _, frame := range bConn.snapshot() {
		if strings.Contains(frame, `"type":"session"`) && strings.Contains(frame, "still here") {
			delivered = true
		}
	}
	assert.True(t, delivered, "joiner should receive updates after the stale teardown")
}

func TestEmptyRoomIsRemoved(t *testing.T) {
	hub, svc, sessionID := newHubFixture(t)
	alice := session.Identity{UserID: 1, Name: "Alice"}

	a := &wsClient{conn: &stubConn{}, identity: alice}
	_, err := hub.joinRoom(sessionID, a)
	require.NoError(t, err)

	room := hub.rooms[sessionID]
	room.mu.Lock()
	delete(room.clients, a)
	room.mu.Unlock()
	hub.removeRoom(sessionID)

	hub.mu.RLock()
	_, alive := hub.rooms[sessionID]
	hub.mu.RUnlock()
	assert.False(t, alive)

	// A rejoin builds a fresh room with a working subscription.
	bConn := &stubConn{}
	b := &wsClient{conn: bConn, identity: alice}
	_, err = hub.joinRoom(sessionID, b)
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), alice, sessionID, "back again")
	require.NoError(t, err)

	var delivered bool
	for _, frame := range bConn.snapshot() {
		if strings.Contains(frame, "back again") {
			delivered = true
		}
	}
	assert.True(t, delivered)
}
