package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"drawboard-backend/internal/model"
	"drawboard-backend/internal/store"
)

// Identity is the authenticated caller of a protocol operation.
type Identity struct {
	UserID int64
	Name   string
	Email  string
}

// Config service-level session defaults.
type Config struct {
	MaxParticipants int // default settings.max_participants for new sessions
	MaxSnapshots    int // drawing history retention bound
}

// DefaultConfig matches the values used when no config is provided.
func DefaultConfig() Config {
	return Config{
		MaxParticipants: 10,
		MaxSnapshots:    20,
	}
}

// ChatMirror backs the recent-chat cache. Best-effort; a mirror failure
// never fails the operation that produced the entry.
type ChatMirror interface {
	AddChatEntry(ctx context.Context, sessionID string, e *model.ChatEntry) error
	GetRecentChat(ctx context.Context, sessionID string, count int64) ([]model.ChatEntry, error)
}

// Service implements the collaborative drawing-session protocol against
// an injected document store. Every operation is one atomic store
// round trip; concurrency control is entirely the store's per-document
// serialization.
type Service struct {
	store  store.Store
	cfg    Config
	mirror ChatMirror
}

// NewService creates the protocol service. mirror may be nil.
func NewService(st store.Store, cfg Config, mirror ChatMirror) *Service {
	if cfg.MaxParticipants <= 0 {
		cfg.MaxParticipants = DefaultConfig().MaxParticipants
	}
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = DefaultConfig().MaxSnapshots
	}
	return &Service{store: st, cfg: cfg, mirror: mirror}
}

// Store exposes the underlying store for subscription wiring.
func (s *Service) Store() store.Store {
	return s.store
}

// Create allocates a new session with the caller as sole drawer.
func (s *Service) Create(ctx context.Context, id Identity, teamID, title, description string, settings *model.SessionSettings) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(teamID) == "" {
		return nil, fmt.Errorf("%w: team id is required", ErrInvalidInput)
	}

	now := time.Now()
	sess := &model.Session{
		TeamID:      teamID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      model.SessionStatusActive,
		CreatedBy:   id.UserID,
		Canvas: model.CanvasState{
			Paths:      []model.DrawingPath{},
			Background: model.DefaultBackground,
			Zoom:       1,
			Width:      model.DefaultCanvasWidth,
			Height:     model.DefaultCanvasHeight,
		},
		Participants: map[string]*model.Participant{
			model.ParticipantKey(id.UserID): {
				UserID:       id.UserID,
				Name:         id.Name,
				Email:        id.Email,
				Role:         model.RoleDrawer,
				Color:        model.ParticipantPalette[0],
				Active:       true,
				JoinedAt:     now,
				LastActivity: now,
			},
		},
		Cursors:   map[string]*model.CursorPosition{},
		Chat:      []model.ChatEntry{},
		History:   []model.DrawingSnapshot{},
		Settings:  s.applySettings(settings),
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry := systemEntry(fmt.Sprintf("%s created the drawing session", id.Name))
	sess.Chat = append(sess.Chat, entry)

	// Retry on the unlikely id collision.
	for attempt := 0; attempt < 3; attempt++ {
		sid, err := NewSessionID()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		sess.ID = sid

		err = s.store.Create(ctx, sess)
		if err == nil {
			log.Printf("[Session] Created session %s (team=%s, creator=%d)", sid, teamID, id.UserID)
			s.mirrorEntries(sid, entry)
			return sess.Clone(), nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	return nil, fmt.Errorf("%w: could not allocate session id", ErrTransport)
}

// Get fetches the current session document.
func (s *Service) Get(ctx context.Context, id Identity, sessionID string) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return sess, nil
}

// ListTeam lists a team's sessions, newest first.
func (s *Service) ListTeam(ctx context.Context, id Identity, teamID string, status model.SessionStatus) ([]*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	sessions, err := s.store.ListByTeam(ctx, teamID, status)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return sessions, nil
}

// Join adds the caller as a participant. Role follows the
// allow-multiple-drawers policy; color cycles the palette by current
// participant count.
func (s *Service) Join(ctx context.Context, id Identity, sessionID string) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	var entries []model.ChatEntry
	sess, err := s.update(ctx, sessionID, func(doc *model.Session) error {
		if doc.Status == model.SessionStatusEnded {
			return fmt.Errorf("%w: session has ended", ErrInvalidState)
		}

		key := model.ParticipantKey(id.UserID)
		if p, ok := doc.Participants[key]; ok {
			// Rejoin: refresh activity, nothing else changes.
			p.Active = true
			p.LastActivity = time.Now()
			return nil
		}

		if len(doc.Participants) >= doc.Settings.MaxParticipants {
			return ErrCapacityExceeded
		}

		role := model.RoleViewer
		if doc.Settings.AllowMultipleDrawers {
			role = model.RoleDrawer
		}
		now := time.Now()
		doc.Participants[key] = &model.Participant{
			UserID:       id.UserID,
			Name:         id.Name,
			Email:        id.Email,
			Role:         role,
			Color:        model.ParticipantPalette[len(doc.Participants)%len(model.ParticipantPalette)],
			Active:       true,
			JoinedAt:     now,
			LastActivity: now,
		}
		entries = appendSystem(doc, &entries, fmt.Sprintf("%s joined the session", id.Name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirrorEntries(sessionID, entries...)
	return sess, nil
}

// Leave removes the caller from participants and cursors. No-op if the
// caller was never a participant. The last participant leaving ends the
// session.
func (s *Service) Leave(ctx context.Context, id Identity, sessionID string) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	var entries []model.ChatEntry
	sess, err := s.update(ctx, sessionID, func(doc *model.Session) error {
		key := model.ParticipantKey(id.UserID)
		if _, ok := doc.Participants[key]; !ok {
			return nil
		}
		delete(doc.Participants, key)
		delete(doc.Cursors, key)
		entries = appendSystem(doc, &entries, fmt.Sprintf("%s left the session", id.Name))

		if len(doc.Participants) == 0 && doc.Status != model.SessionStatusEnded {
			now := time.Now()
			doc.Status = model.SessionStatusEnded
			doc.EndedAt = &now
			entries = appendSystem(doc, &entries, "session ended")
			log.Printf("[Session] Session %s ended (last participant left)", doc.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirrorEntries(sessionID, entries...)
	return sess, nil
}

// End terminates the session. Creator only.
func (s *Service) End(ctx context.Context, id Identity, sessionID string) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	var entries []model.ChatEntry
	sess, err := s.update(ctx, sessionID, func(doc *model.Session) error {
		if doc.CreatedBy != id.UserID {
			return fmt.Errorf("%w: only the creator can end the session", ErrForbidden)
		}
		if doc.Status == model.SessionStatusEnded {
			return fmt.Errorf("%w: session already ended", ErrInvalidState)
		}
		now := time.Now()
		doc.Status = model.SessionStatusEnded
		doc.EndedAt = &now
		entries = appendSystem(doc, &entries, fmt.Sprintf("%s ended the session", id.Name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirrorEntries(sessionID, entries...)
	return sess, nil
}

// SwitchRole toggles a participant between drawer and viewer.
// Creator only, for any target including themself.
func (s *Service) SwitchRole(ctx context.Context, id Identity, sessionID string, targetUserID int64) (*model.Session, error) {
	if id.UserID == 0 {
		return nil, ErrNotAuthenticated
	}

	var entries []model.ChatEntry
	sess, err := s.update(ctx, sessionID, func(doc *model.Session) error {
		if doc.CreatedBy != id.UserID {
			return fmt.Errorf("%w: only the creator can switch roles", ErrForbidden)
		}
		target, ok := doc.Participants[model.ParticipantKey(targetUserID)]
		if !ok {
			return fmt.Errorf("%w: target is not a participant", ErrNotFound)
		}
		target.Role = target.Role.Toggle()
		entries = appendSystem(doc, &entries, fmt.Sprintf("%s is now a %s", target.Name, target.Role))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirrorEntries(sessionID, entries...)
	return sess, nil
}

// =============================================================================
// Helpers
// =============================================================================

// update wraps store.Update, translating store errors into the protocol
// taxonomy while letting domain errors pass through unchanged.
func (s *Service) update(ctx context.Context, sessionID string, mutate func(*model.Session) error) (*model.Session, error) {
	sess, err := s.store.Update(ctx, sessionID, mutate)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return sess, nil
}

func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: unknown session", ErrNotFound)
	case errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrInvalidInput):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}

func systemEntry(message string) model.ChatEntry {
	return model.ChatEntry{
		ID:         uuid.New().String(),
		SenderID:   0,
		SenderName: model.SystemSenderName,
		Message:    message,
		Kind:       model.ChatKindSystem,
		CreatedAt:  time.Now(),
	}
}

// appendSystem appends a system notice to the document's chat log and
// records it for mirroring after commit.
func appendSystem(doc *model.Session, entries *[]model.ChatEntry, message string) []model.ChatEntry {
	e := systemEntry(message)
	doc.Chat = append(doc.Chat, e)
	*entries = append(*entries, e)
	return *entries
}

// mirrorEntries pushes committed chat entries to the recent-chat cache.
func (s *Service) mirrorEntries(sessionID string, entries ...model.ChatEntry) {
	if s.mirror == nil || len(entries) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := range entries {
			if err := s.mirror.AddChatEntry(ctx, sessionID, &entries[i]); err != nil {
				log.Printf("[Session] Failed to mirror chat entry for %s: %v", sessionID, err)
				return
			}
		}
	}()
}

func (s *Service) applySettings(in *model.SessionSettings) model.SessionSettings {
	out := model.SessionSettings{
		AllowMultipleDrawers: true,
		AutoSaveInterval:     30,
		MaxParticipants:      s.cfg.MaxParticipants,
		MaxSnapshots:         s.cfg.MaxSnapshots,
		ShowCursors:          true,
		ShowDrawingHistory:   true,
	}
	if in == nil {
		return out
	}
	out.AllowMultipleDrawers = in.AllowMultipleDrawers
	out.RequireApprovalToJoin = in.RequireApprovalToJoin
	out.EnableVoiceChat = in.EnableVoiceChat
	out.ShowCursors = in.ShowCursors
	out.ShowDrawingHistory = in.ShowDrawingHistory
	if in.AutoSaveInterval > 0 {
		out.AutoSaveInterval = in.AutoSaveInterval
	}
	if in.MaxParticipants > 0 {
		out.MaxParticipants = in.MaxParticipants
	}
	if in.MaxSnapshots > 0 {
		out.MaxSnapshots = in.MaxSnapshots
	}
	return out
}
