package session

import (
	"context"
	"time"

	"drawboard-backend/internal/model"
)

// UpdateCursor overwrites the caller's cursor entry with a fresh
// position. Last write per participant wins; a cursor update never
// touches the canvas.
func (s *Service) UpdateCursor(ctx context.Context, id Identity, sessionID string, x, y float64) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	return s.update(ctx, sessionID, func(doc *model.Session) error {
		p, err := requireParticipant(doc, id)
		if err != nil {
			return err
		}
		now := time.Now()
		doc.Cursors[model.ParticipantKey(id.UserID)] = &model.CursorPosition{
			X:         x,
			Y:         y,
			Name:      p.Name,
			Color:     p.Color,
			UpdatedAt: now,
		}
		p.LastActivity = now
		return nil
	})
}
