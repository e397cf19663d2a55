package handler

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"drawboard-backend/internal/model"
	"drawboard-backend/internal/session"
)

// =============================================================================
// Session Hub - per-session WebSocket fan-out
// =============================================================================

// SessionHub manages one room per live session. Each room holds a store
// subscription and pushes every committed document to its clients.
type SessionHub struct {
	rooms         map[string]*sessionRoom
	mu            sync.RWMutex
	svc           *session.Service
	flushInterval time.Duration
}

type sessionRoom struct {
	id          string
	clients     map[*wsClient]struct{}
	unsubscribe func()
	mu          sync.RWMutex
	hub         *SessionHub
}

// wsConn is the write side of a connection. Satisfied by
// *websocket.Conn; stubbed in tests.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
}

type wsClient struct {
	conn     wsConn
	identity session.Identity
	writeMu  sync.Mutex

	// latest unsent cursor position; flushed at the hub interval so a
	// fast mouse does not turn into a store write per pixel
	cursorMu      sync.Mutex
	pendingCursor *cursorFrame
}

type cursorFrame struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// inboundMessage is the envelope clients send over the socket.
type inboundMessage struct {
	Type    string          `json:"type"` // "cursor" | "path" | "chat" | "undo"
	X       float64         `json:"x,omitempty"`
	Y       float64         `json:"y,omitempty"`
	Message string          `json:"message,omitempty"`
	Path    json.RawMessage `json:"path,omitempty"`
}

// outboundMessage is the envelope pushed to clients.
type outboundMessage struct {
	Type    string         `json:"type"` // "session" | "error"
	Payload *model.Session `json:"payload,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func NewSessionHub(svc *session.Service, flushInterval time.Duration) *SessionHub {
	if flushInterval <= 0 {
		flushInterval = 50 * time.Millisecond
	}
	return &SessionHub{
		rooms:         make(map[string]*sessionRoom),
		svc:           svc,
		flushInterval: flushInterval,
	}
}

// joinRoom registers the client in the session's room, creating the
// room and its store subscription on first use. Lookup and registration
// share one hub critical section, so a teardown triggered by the last
// departure can never observe the room empty while a joiner is between
// lookup and registration.
func (h *SessionHub) joinRoom(sessionID string, client *wsClient) (*sessionRoom, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[sessionID]
	if !exists {
		room = &sessionRoom{
			id:      sessionID,
			clients: make(map[*wsClient]struct{}),
			hub:     h,
		}
		unsubscribe, err := h.svc.Store().Subscribe(sessionID, func(doc *model.Session) {
			room.broadcast(doc)
		})
		if err != nil {
			return nil, err
		}
		room.unsubscribe = unsubscribe

		h.rooms[sessionID] = room
		log.Printf("[SessionHub] Created room: %s", sessionID)
	}

	room.mu.Lock()
	room.clients[client] = struct{}{}
	total := len(room.clients)
	room.mu.Unlock()

	log.Printf("[Session %s] Client connected (user=%d), total: %d",
		sessionID, client.identity.UserID, total)
	return room, nil
}

// removeRoom drops an empty room and its store subscription. Joins run
// under the same hub lock, so the emptiness check here is exact: a room
// with a client in flight is never torn down.
func (h *SessionHub) removeRoom(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[sessionID]
	if !exists {
		return
	}
	room.mu.RLock()
	empty := len(room.clients) == 0
	room.mu.RUnlock()
	if !empty {
		return
	}

	room.unsubscribe()
	delete(h.rooms, sessionID)
	log.Printf("[SessionHub] Removed room: %s", sessionID)
}

// HandleConnection runs the read loop for one socket. The upgrade guard
// has already authenticated the caller and verified membership.
func (h *SessionHub) HandleConnection(conn *websocket.Conn) {
	sessionID := conn.Params("id")
	identity, ok := conn.Locals("identity").(session.Identity)
	if !ok || identity.UserID == 0 {
		conn.Close()
		return
	}

	client := &wsClient{conn: conn, identity: identity}
	room, err := h.joinRoom(sessionID, client)
	if err != nil {
		log.Printf("[SessionHub] Failed to open room %s: %v", sessionID, err)
		conn.Close()
		return
	}

	// Late joiners still get a full document immediately.
	initCtx, cancelInit := context.WithTimeout(context.Background(), 3*time.Second)
	if doc, err := h.svc.Get(initCtx, identity, sessionID); err == nil {
		client.send(&outboundMessage{Type: "session", Payload: doc})
	}
	cancelInit()

	flushCtx, stopFlusher := context.WithCancel(context.Background())
	go h.runCursorFlusher(flushCtx, room.id, client)

	defer func() {
		stopFlusher()
		room.removeClient(client)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.sendError("invalid message")
			continue
		}
		h.dispatch(room.id, client, &msg)
	}
}

// dispatch applies one inbound frame. Cursor frames are coalesced; the
// rest hit the store directly. Errors go back to the sender only; the
// committed document reaches everyone through the subscription.
func (h *SessionHub) dispatch(sessionID string, client *wsClient, msg *inboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch msg.Type {
	case "cursor":
		client.cursorMu.Lock()
		client.pendingCursor = &cursorFrame{X: msg.X, Y: msg.Y}
		client.cursorMu.Unlock()

	case "path":
		var path model.DrawingPath
		if err := json.Unmarshal(msg.Path, &path); err != nil {
			client.sendError("invalid path payload")
			return
		}
		if _, err := h.svc.AddPath(ctx, client.identity, sessionID, path); err != nil {
			client.sendError(err.Error())
		}

	case "chat":
		if _, err := h.svc.SendMessage(ctx, client.identity, sessionID, msg.Message); err != nil {
			client.sendError(err.Error())
		}

	case "undo":
		if _, err := h.svc.UndoLast(ctx, client.identity, sessionID); err != nil {
			client.sendError(err.Error())
		}

	default:
		client.sendError("unknown message type")
	}
}

// runCursorFlusher applies the latest pending cursor position at the
// configured interval.
func (h *SessionHub) runCursorFlusher(ctx context.Context, sessionID string, client *wsClient) {
	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client.cursorMu.Lock()
			frame := client.pendingCursor
			client.pendingCursor = nil
			client.cursorMu.Unlock()
			if frame == nil {
				continue
			}

			opCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_, err := h.svc.UpdateCursor(opCtx, client.identity, sessionID, frame.X, frame.Y)
			cancel()
			if err != nil {
				log.Printf("[SessionHub] Cursor update failed for %s: %v", sessionID, err)
			}
		}
	}
}

// =============================================================================
// Room Methods
// =============================================================================

func (r *sessionRoom) removeClient(client *wsClient) {
	r.mu.Lock()
	delete(r.clients, client)
	remaining := len(r.clients)
	r.mu.Unlock()

	log.Printf("[Session %s] Client disconnected (user=%d), remaining: %d",
		r.id, client.identity.UserID, remaining)

	if remaining == 0 {
		go r.hub.removeRoom(r.id)
	}
}

// broadcast pushes a committed document to every connected client.
func (r *sessionRoom) broadcast(doc *model.Session) {
	r.mu.RLock()
	clients := make([]*wsClient, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	msg := &outboundMessage{Type: "session", Payload: doc}
	for _, client := range clients {
		client.send(msg)
	}
}

// =============================================================================
// Client Writes
// =============================================================================

func (c *wsClient) send(msg *outboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[SessionHub] Failed to marshal message: %v", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[SessionHub] Failed to send to user %d: %v", c.identity.UserID, err)
	}
}

func (c *wsClient) sendError(message string) {
	c.send(&outboundMessage{Type: "error", Error: message})
}
