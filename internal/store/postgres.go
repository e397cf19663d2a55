package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drawboard-backend/internal/model"
)

// SessionDocument is the jsonb row backing one session. team_id and
// status are lifted into columns for listing queries; the Data blob is
// the authoritative document.
type SessionDocument struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TeamID    string    `gorm:"type:varchar(64);index" json:"team_id"`
	Status    string    `gorm:"type:varchar(16);index" json:"status"`
	Data      string    `gorm:"type:jsonb;not null" json:"data"`
	Revision  int64     `gorm:"not null;default:0" json:"revision"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SessionDocument) TableName() string {
	return "session_documents"
}

// Broadcast carries committed documents across server instances.
// Implemented by cache.RedisClient; nil disables cross-instance fan-out.
type Broadcast interface {
	PublishSessionUpdate(ctx context.Context, payload []byte) error
	SessionUpdates(ctx context.Context) <-chan []byte
}

// updateEnvelope is the pub/sub wire format. Origin lets an instance
// skip its own messages (local subscribers were already notified);
// Revision is the commit revision, shared across instances through the
// database row, so remote frames obey the same staleness gate.
type updateEnvelope struct {
	Origin   string          `json:"origin"`
	Revision int64           `json:"revision"`
	Session  json.RawMessage `json:"session"`
}

// PostgresStore persists sessions as jsonb documents. Update runs under
// a row-level lock (SELECT ... FOR UPDATE) so concurrent mutations to
// one session serialize instead of losing writes.
type PostgresStore struct {
	db       *gorm.DB
	notifier *notifier
	bcast    Broadcast
	origin   string
}

func NewPostgresStore(db *gorm.DB, bcast Broadcast) *PostgresStore {
	return &PostgresStore{
		db:       db,
		notifier: newNotifier(),
		bcast:    bcast,
		origin:   uuid.New().String(),
	}
}

func (p *PostgresStore) Create(ctx context.Context, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	doc := SessionDocument{
		ID:       s.ID,
		TeamID:   s.TeamID,
		Status:   s.Status.String(),
		Data:     string(data),
		Revision: 1,
	}
	if err := p.db.WithContext(ctx).Create(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*model.Session, error) {
	var doc SessionDocument
	err := p.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(&doc)
}

func (p *PostgresStore) Update(ctx context.Context, id string, mutate func(*model.Session) error) (*model.Session, error) {
	var committed *model.Session
	var rev int64

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc SessionDocument
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&doc, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		s, err := decodeDocument(&doc)
		if err != nil {
			return err
		}

		if err := mutate(s); err != nil {
			return err
		}
		s.UpdatedAt = nowFunc()

		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		doc.Data = string(data)
		doc.TeamID = s.TeamID
		doc.Status = s.Status.String()
		// incremented under the row lock, so it reflects commit order
		doc.Revision++
		if err := tx.Save(&doc).Error; err != nil {
			return err
		}

		committed = s
		rev = doc.Revision
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.notifier.notify(committed, rev)
	p.publish(ctx, committed, rev)
	return committed, nil
}

func (p *PostgresStore) ListByTeam(ctx context.Context, teamID string, status model.SessionStatus) ([]*model.Session, error) {
	q := p.db.WithContext(ctx).Where("team_id = ?", teamID)
	if status != "" {
		q = q.Where("status = ?", status.String())
	}

	var docs []SessionDocument
	if err := q.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, err
	}

	sessions := make([]*model.Session, 0, len(docs))
	for i := range docs {
		s, err := decodeDocument(&docs[i])
		if err != nil {
			log.Printf("[Store] Skipping undecodable document %s: %v", docs[i].ID, err)
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (p *PostgresStore) Subscribe(id string, onChange func(*model.Session)) (func(), error) {
	var doc SessionDocument
	err := p.db.First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	current, err := decodeDocument(&doc)
	if err != nil {
		return nil, err
	}

	return p.notifier.subscribe(id, onChange, current, doc.Revision), nil
}

// publish pushes the committed document to other instances. Best-effort:
// a pub/sub failure never fails the write that already committed.
func (p *PostgresStore) publish(ctx context.Context, s *model.Session, rev int64) {
	if p.bcast == nil {
		return
	}

	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	payload, err := json.Marshal(updateEnvelope{Origin: p.origin, Revision: rev, Session: data})
	if err != nil {
		return
	}
	if err := p.bcast.PublishSessionUpdate(ctx, payload); err != nil {
		log.Printf("[Store] Failed to publish update for session %s: %v", s.ID, err)
	}
}

// ListenRemote consumes session updates published by other instances and
// feeds them to local subscribers. Runs until ctx is cancelled.
func (p *PostgresStore) ListenRemote(ctx context.Context) {
	if p.bcast == nil {
		return
	}

	log.Printf("[Store] Remote update listener started")
	defer log.Printf("[Store] Remote update listener stopped")

	updates := p.bcast.SessionUpdates(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-updates:
			if !ok {
				return
			}
			var env updateEnvelope
			if err := json.Unmarshal(payload, &env); err != nil {
				continue
			}
			if env.Origin == p.origin {
				continue
			}
			var s model.Session
			if err := json.Unmarshal(env.Session, &s); err != nil {
				continue
			}
			p.notifier.notify(&s, env.Revision)
		}
	}
}

func decodeDocument(doc *SessionDocument) (*model.Session, error) {
	var s model.Session
	if err := json.Unmarshal([]byte(doc.Data), &s); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", doc.ID, err)
	}
	return &s, nil
}
