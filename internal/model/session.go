package model

import (
	"strconv"
	"time"
)

// Session is the root aggregate of one collaborative drawing whiteboard.
// Everything reachable from it (canvas, participants, cursors, chat,
// history) is embedded in the same document; the store serializes writes
// per document, so the last committed mutation wins.
type Session struct {
	ID          string        `json:"id"`
	TeamID      string        `json:"team_id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Status      SessionStatus `json:"status"`
	CreatedBy   int64         `json:"created_by"`

	Canvas       CanvasState                `json:"canvas"`
	Participants map[string]*Participant    `json:"participants"`
	Cursors      map[string]*CursorPosition `json:"cursors"`
	Chat         []ChatEntry                `json:"chat"`
	History      []DrawingSnapshot          `json:"drawing_history"`
	Settings     SessionSettings            `json:"settings"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// ParticipantKey is the participants/cursors map key for a user.
func ParticipantKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Participant returns the participant record for userID, or nil.
func (s *Session) Participant(userID int64) *Participant {
	return s.Participants[ParticipantKey(userID)]
}

// Clone returns a deep copy. Stores hand out clones so subscribers and
// callers can never alias the authoritative document.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Canvas = s.Canvas.Clone()

	cp.Participants = make(map[string]*Participant, len(s.Participants))
	for k, p := range s.Participants {
		pc := *p
		cp.Participants[k] = &pc
	}

	cp.Cursors = make(map[string]*CursorPosition, len(s.Cursors))
	for k, c := range s.Cursors {
		cc := *c
		cp.Cursors[k] = &cc
	}

	cp.Chat = make([]ChatEntry, len(s.Chat))
	copy(cp.Chat, s.Chat)

	cp.History = make([]DrawingSnapshot, len(s.History))
	for i, snap := range s.History {
		cp.History[i] = snap
		cp.History[i].Canvas = snap.Canvas.Clone()
	}

	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

// CanvasState holds the ordered drawing log plus view geometry.
// Insertion order of Paths is z-order; paths are append-only except for
// clear and undo-last.
type CanvasState struct {
	Paths      []DrawingPath `json:"paths"`
	Background string        `json:"background"`
	Zoom       float64       `json:"zoom"`
	PanX       float64       `json:"pan_x"`
	PanY       float64       `json:"pan_y"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
}

// Clone deep-copies the canvas, including every path's point list.
func (c CanvasState) Clone() CanvasState {
	cp := c
	cp.Paths = make([]DrawingPath, len(c.Paths))
	for i, p := range c.Paths {
		cp.Paths[i] = p.Clone()
	}
	return cp
}

// DrawingPath is one atomic stroke or shape. The id is caller-generated
// and must be unique within the session.
type DrawingPath struct {
	ID         string      `json:"id"`
	Tool       ToolKind    `json:"tool"`
	Points     []PathPoint `json:"points"`
	Color      string      `json:"color"`
	Size       float64     `json:"size"`
	Fill       string      `json:"fill,omitempty"`
	Opacity    *float64    `json:"opacity,omitempty"`
	AuthorID   int64       `json:"author_id"`
	AuthorName string      `json:"author_name"`
	Text       string      `json:"text,omitempty"`     // text tool only
	TextPos    *PathPoint  `json:"text_pos,omitempty"` // text tool only
	CreatedAt  time.Time   `json:"created_at"`
}

func (p DrawingPath) Clone() DrawingPath {
	cp := p
	cp.Points = make([]PathPoint, len(p.Points))
	copy(cp.Points, p.Points)
	if p.Opacity != nil {
		v := *p.Opacity
		cp.Opacity = &v
	}
	if p.TextPos != nil {
		v := *p.TextPos
		cp.TextPos = &v
	}
	return cp
}

// PathPoint is a 2-D point with optional pen pressure.
type PathPoint struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Pressure *float64 `json:"pressure,omitempty"`
}

// Participant is a session member. Created at join, removed at leave;
// role changes only through the switch-role action.
type Participant struct {
	UserID       int64           `json:"user_id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Role         ParticipantRole `json:"role"`
	Color        string          `json:"color"`
	Active       bool            `json:"active"`
	JoinedAt     time.Time       `json:"joined_at"`
	LastActivity time.Time       `json:"last_activity"`
}

// CursorPosition is ephemeral per-participant pointer state,
// overwritten on every move and deleted when the owner leaves.
type CursorPosition struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatEntry is one line of the append-only session log. SenderID 0 with
// SenderName "system" marks an automated notice.
type ChatEntry struct {
	ID         string    `json:"id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Message    string    `json:"message"`
	Kind       ChatKind  `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
}

// DrawingSnapshot is a named full copy of canvas state kept for restore.
type DrawingSnapshot struct {
	ID          string      `json:"id"`
	Canvas      CanvasState `json:"canvas"`
	TakenBy     int64       `json:"taken_by"`
	TakenByName string      `json:"taken_by_name"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SessionSettings session configuration. AllowMultipleDrawers and
// MaxParticipants are enforced at join; the display toggles are echoed
// for the renderer and not enforced by the core.
type SessionSettings struct {
	AllowMultipleDrawers  bool `json:"allow_multiple_drawers"`
	AutoSaveInterval      int  `json:"auto_save_interval"` // seconds, advisory
	MaxParticipants       int  `json:"max_participants"`
	MaxSnapshots          int  `json:"max_snapshots"`
	RequireApprovalToJoin bool `json:"require_approval_to_join"`
	EnableVoiceChat       bool `json:"enable_voice_chat"`
	ShowCursors           bool `json:"show_cursors"`
	ShowDrawingHistory    bool `json:"show_drawing_history"`
}
