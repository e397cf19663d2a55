package session

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"drawboard-backend/internal/model"
)

// maxChatMessageLen caps a message in runes, matching the REST DTO
// bound; the WebSocket path has no validator in front of it.
const maxChatMessageLen = 2000

// SendMessage appends a user chat entry to the session log. System
// notices are appended by the manager/canvas operations, not here.
func (s *Service) SendMessage(ctx context.Context, id Identity, sessionID, text string) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > maxChatMessageLen {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, maxChatMessageLen)
	}

	var entry model.ChatEntry
	sess, err := s.update(ctx, sessionID, func(doc *model.Session) error {
		p, err := requireParticipant(doc, id)
		if err != nil {
			return err
		}
		entry = model.ChatEntry{
			ID:         uuid.New().String(),
			SenderID:   id.UserID,
			SenderName: p.Name,
			Message:    text,
			Kind:       model.ChatKindText,
			CreatedAt:  time.Now(),
		}
		doc.Chat = append(doc.Chat, entry)
		p.LastActivity = entry.CreatedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirrorEntries(sessionID, entry)
	return sess, nil
}

// RecentChat returns the last count chat entries from the cache when
// available, falling back to the document tail.
func (s *Service) RecentChat(ctx context.Context, id Identity, sessionID string, count int) ([]model.ChatEntry, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	if count <= 0 {
		count = 50
	}

	if s.mirror != nil {
		if entries, err := s.mirror.GetRecentChat(ctx, sessionID, int64(count)); err == nil && len(entries) > 0 {
			return entries, nil
		}
	}

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if len(sess.Chat) > count {
		return sess.Chat[len(sess.Chat)-count:], nil
	}
	return sess.Chat, nil
}
