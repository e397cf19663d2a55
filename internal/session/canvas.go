package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"drawboard-backend/internal/model"
)

// Canvas operations: the append-only drawing log and its two bulk
// mutations, plus view geometry and snapshots. All of them require the
// caller to currently hold the drawer role (viewers are rejected here,
// not just hidden from the tools in the UI).

// AddPath appends a drawing path to the canvas.
func (s *Service) AddPath(ctx context.Context, id Identity, sessionID string, path model.DrawingPath) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	if err := validatePath(&path); err != nil {
		return nil, err
	}

	return s.update(ctx, sessionID, func(doc *model.Session) error {
		p, err := requireDrawer(doc, id)
		if err != nil {
			return err
		}
		for i := range doc.Canvas.Paths {
			if doc.Canvas.Paths[i].ID == path.ID {
				return fmt.Errorf("%w: duplicate path id %q", ErrInvalidInput, path.ID)
			}
		}

		path.AuthorID = id.UserID
		path.AuthorName = p.Name
		path.CreatedAt = time.Now()
		doc.Canvas.Paths = append(doc.Canvas.Paths, path)
		p.LastActivity = path.CreatedAt
		return nil
	})
}

// Clear replaces the path sequence with an empty one. Irreversible
// except via snapshot restore. Safe on an already-empty canvas.
func (s *Service) Clear(ctx context.Context, id Identity, sessionID string) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	return s.update(ctx, sessionID, func(doc *model.Session) error {
		p, err := requireDrawer(doc, id)
		if err != nil {
			return err
		}
		doc.Canvas.Paths = []model.DrawingPath{}
		p.LastActivity = time.Now()
		return nil
	})
}

// UndoLast removes the most recently appended path. No-op on an empty
// canvas. Any drawer may undo, regardless of who authored the path.
func (s *Service) UndoLast(ctx context.Context, id Identity, sessionID string) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	return s.update(ctx, sessionID, func(doc *model.Session) error {
		p, err := requireDrawer(doc, id)
		if err != nil {
			return err
		}
		if n := len(doc.Canvas.Paths); n > 0 {
			doc.Canvas.Paths = doc.Canvas.Paths[:n-1]
		}
		p.LastActivity = time.Now()
		return nil
	})
}

// CanvasPatch carries partial canvas-geometry updates; nil fields are
// left untouched.
type CanvasPatch struct {
	Background *string
	Zoom       *float64
	PanX       *float64
	PanY       *float64
	Width      *int
	Height     *int
}

// UpdateCanvas merges partial geometry fields into the canvas and
// optionally captures a snapshot of the resulting state.
func (s *Service) UpdateCanvas(ctx context.Context, id Identity, sessionID string, patch CanvasPatch, createSnapshot bool) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	return s.update(ctx, sessionID, func(doc *model.Session) error {
		p, err := requireDrawer(doc, id)
		if err != nil {
			return err
		}

		if patch.Background != nil {
			doc.Canvas.Background = *patch.Background
		}
		if patch.Zoom != nil {
			if *patch.Zoom <= 0 {
				return fmt.Errorf("%w: zoom must be positive", ErrInvalidInput)
			}
			doc.Canvas.Zoom = *patch.Zoom
		}
		if patch.PanX != nil {
			doc.Canvas.PanX = *patch.PanX
		}
		if patch.PanY != nil {
			doc.Canvas.PanY = *patch.PanY
		}
		if patch.Width != nil {
			doc.Canvas.Width = *patch.Width
		}
		if patch.Height != nil {
			doc.Canvas.Height = *patch.Height
		}
		p.LastActivity = time.Now()

		if createSnapshot {
			appendSnapshot(doc, p, "")
		}
		return nil
	})
}

// SaveSnapshot captures the current canvas into the drawing history.
// Always succeeds for a participant; viewers may save too.
func (s *Service) SaveSnapshot(ctx context.Context, id Identity, sessionID, description string) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	return s.update(ctx, sessionID, func(doc *model.Session) error {
		p, err := requireParticipant(doc, id)
		if err != nil {
			return err
		}
		appendSnapshot(doc, p, strings.TrimSpace(description))
		p.LastActivity = time.Now()
		return nil
	})
}

// RestoreSnapshot overwrites the live canvas with a snapshot's stored
// copy. The restore itself is an ordinary mutation, not a new snapshot.
func (s *Service) RestoreSnapshot(ctx context.Context, id Identity, sessionID, snapshotID string) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	return s.update(ctx, sessionID, func(doc *model.Session) error {
		p, err := requireDrawer(doc, id)
		if err != nil {
			return err
		}
		for i := range doc.History {
			if doc.History[i].ID == snapshotID {
				doc.Canvas = doc.History[i].Canvas.Clone()
				p.LastActivity = time.Now()
				return nil
			}
		}
		return fmt.Errorf("%w: unknown snapshot %q", ErrNotFound, snapshotID)
	})
}

// appendSnapshot records a deep copy of the current canvas, trimming
// the history to the configured retention bound.
func appendSnapshot(doc *model.Session, by *model.Participant, description string) {
	doc.History = append(doc.History, model.DrawingSnapshot{
		ID:          uuid.New().String(),
		Canvas:      doc.Canvas.Clone(),
		TakenBy:     by.UserID,
		TakenByName: by.Name,
		Description: description,
		CreatedAt:   time.Now(),
	})
	if limit := doc.Settings.MaxSnapshots; limit > 0 && len(doc.History) > limit {
		doc.History = doc.History[len(doc.History)-limit:]
	}
}

func validatePath(path *model.DrawingPath) error {
	if strings.TrimSpace(path.ID) == "" {
		return fmt.Errorf("%w: path id is required", ErrInvalidInput)
	}
	if !path.Tool.IsValid() {
		return fmt.Errorf("%w: unknown tool %q", ErrInvalidInput, path.Tool)
	}
	if path.Tool == model.ToolText {
		if strings.TrimSpace(path.Text) == "" || path.TextPos == nil {
			return fmt.Errorf("%w: text paths need text and an anchor point", ErrInvalidInput)
		}
	} else if len(path.Points) == 0 {
		return fmt.Errorf("%w: points are required for %s paths", ErrInvalidInput, path.Tool)
	}
	return nil
}

// requireParticipant rejects callers outside the roster and any action
// against an ended session.
func requireParticipant(doc *model.Session, id Identity) (*model.Participant, error) {
	if doc.Status == model.SessionStatusEnded {
		return nil, fmt.Errorf("%w: session has ended", ErrInvalidState)
	}
	p := doc.Participant(id.UserID)
	if p == nil {
		return nil, fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	return p, nil
}

// requireDrawer additionally requires the drawer role.
func requireDrawer(doc *model.Session, id Identity) (*model.Participant, error) {
	p, err := requireParticipant(doc, id)
	if err != nil {
		return nil, err
	}
	if p.Role != model.RoleDrawer {
		return nil, fmt.Errorf("%w: drawer role required", ErrForbidden)
	}
	return p, nil
}
