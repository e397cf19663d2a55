package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawboard-backend/internal/model"
)

func testSession(id, teamID string) *model.Session {
	now := time.Now()
	return &model.Session{
		ID:           id,
		TeamID:       teamID,
		Title:        "test",
		Status:       model.SessionStatusActive,
		CreatedBy:    1,
		Participants: map[string]*model.Participant{},
		Cursors:      map[string]*model.CursorPosition{},
		Chat:         []model.ChatEntry{},
		History:      []model.DrawingSnapshot{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, testSession("s1", "t1")))
	assert.ErrorIs(t, st.Create(ctx, testSession("s1", "t1")), ErrAlreadyExists)
}

func TestGetReturnsClone(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, testSession("s1", "t1")))

	a, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	a.Title = "mutated"

	b, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "test", b.Title)

	_, err = st.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSerializesConcurrentMutations(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, testSession("s1", "t1")))

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.Update(ctx, "s1", func(s *model.Session) error {
				s.Chat = append(s.Chat, model.ChatEntry{
					ID:      fmt.Sprintf("e-%d", i),
					Message: "hi",
				})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, final.Chat, writers)
}

func TestUpdateMutateErrorLeavesDocumentUntouched(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, testSession("s1", "t1")))

	boom := fmt.Errorf("boom")
	_, err := st.Update(ctx, "s1", func(s *model.Session) error {
		s.Title = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	current, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "test", current.Title)
}

func TestSubscribeFiresImmediatelyAndOnChange(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, testSession("s1", "t1")))

	var mu sync.Mutex
	var seen []string
	unsubscribe, err := st.Subscribe("s1", func(s *model.Session) {
		mu.Lock()
		seen = append(seen, s.Title)
		mu.Unlock()
	})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, "test", seen[0])
	mu.Unlock()

	_, err = st.Update(ctx, "s1", func(s *model.Session) error {
		s.Title = "renamed"
		return nil
	})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 2)
	assert.Equal(t, "renamed", seen[1])
	mu.Unlock()

	unsubscribe()
	_, err = st.Update(ctx, "s1", func(s *model.Session) error {
		s.Title = "again"
		return nil
	})
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
}

func TestNotifierDropsStaleFrames(t *testing.T) {
	n := newNotifier()
	current := testSession("s1", "t1")

	var seen []string
	unsubscribe := n.subscribe("s1", func(s *model.Session) {
		seen = append(seen, s.Title)
	}, current, 3)
	defer unsubscribe()

	require.Equal(t, []string{"test"}, seen)

	// a frame from a commit older than the subscriber's state arrives late
	older := testSession("s1", "t1")
	older.Title = "old"
	n.notify(older, 2)
	assert.Equal(t, []string{"test"}, seen)

	newer := testSession("s1", "t1")
	newer.Title = "new"
	n.notify(newer, 4)
	assert.Equal(t, []string{"test", "new"}, seen)

	n.notify(older, 2)
	assert.Equal(t, []string{"test", "new"}, seen)
}

func TestConcurrentUpdatesNeverRegressSubscribers(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, testSession("s1", "t1")))

	var mu sync.Mutex
	var seen []int
	unsubscribe, err := st.Subscribe("s1", func(s *model.Session) {
		mu.Lock()
		seen = append(seen, len(s.Chat))
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubscribe()

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.Update(ctx, "s1", func(s *model.Session) error {
				s.Chat = append(s.Chat, model.ChatEntry{ID: fmt.Sprintf("e-%d", i)})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// delivered states only ever advance, and the newest commit always
	// lands (stale frames are dropped, never the latest)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}
	assert.Equal(t, writers, seen[len(seen)-1])
}

func TestSubscribeUnknownSession(t *testing.T) {
	st := NewMemoryStore()
	_, err := st.Subscribe("missing", func(*model.Session) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByTeamFiltersAndSorts(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	older := testSession("s1", "t1")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := testSession("s2", "t1")
	ended := testSession("s3", "t1")
	ended.Status = model.SessionStatusEnded
	other := testSession("s4", "t2")

	for _, s := range []*model.Session{older, newer, ended, other} {
		require.NoError(t, st.Create(ctx, s))
	}

	all, err := st.ListByTeam(ctx, "t1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s1", all[len(all)-1].ID) // oldest last

	active, err := st.ListByTeam(ctx, "t1", model.SessionStatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
