package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawboard-backend/internal/model"
)

func penPath(id string) model.DrawingPath {
	return model.DrawingPath{
		ID:    id,
		Tool:  model.ToolPen,
		Color: "#000000",
		Size:  3,
		Points: []model.PathPoint{
			{X: 0, Y: 0},
			{X: 10, Y: 10},
		},
	}
}

// drawingSession creates a session with alice drawing and bob as viewer.
func drawingSession(t *testing.T, svc *Service) *model.Session {
	t.Helper()
	sess := mustCreate(t, svc, alice, &model.SessionSettings{})
	_, err := svc.Join(context.Background(), bob, sess.ID)
	require.NoError(t, err)
	return sess
}

func TestAddPathAppendsAndStampsAuthor(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := drawingSession(t, svc)

	updated, err := svc.AddPath(ctx, alice, sess.ID, penPath("p1"))
	require.NoError(t, err)
	updated, err = svc.AddPath(ctx, alice, sess.ID, penPath("p2"))
	require.NoError(t, err)

	require.Len(t, updated.Canvas.Paths, 2)
	assert.Equal(t, "p1", updated.Canvas.Paths[0].ID)
	assert.Equal(t, "p2", updated.Canvas.Paths[1].ID)
	assert.Equal(t, alice.UserID, updated.Canvas.Paths[0].AuthorID)
	assert.Equal(t, "Alice", updated.Canvas.Paths[0].AuthorName)
	assert.False(t, updated.Canvas.Paths[0].CreatedAt.IsZero())
}

func TestAddPathDuplicateID(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := drawingSession(t, svc)

	_, err := svc.AddPath(ctx, alice, sess.ID, penPath("p1"))
	require.NoError(t, err)

	_, err = svc.AddPath(ctx, alice, sess.ID, penPath("p1"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	current, err := svc.Get(ctx, alice, sess.ID)
	require.NoError(t, err)
	assert.Len(t, current.Canvas.Paths, 1)
}

func TestAddPathViewerForbidden(t *testing.T) {
	svc := newTestService()
	sess := drawingSession(t, svc)

	_, err := svc.AddPath(context.Background(), bob, sess.ID, penPath("p1"))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAddPathValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := drawingSession(t, svc)

	missing := penPath("")
	_, err := svc.AddPath(ctx, alice, sess.ID, missing)
	assert.ErrorIs(t, err, ErrInvalidInput)

	badTool := penPath("p1")
	badTool.Tool = "spraycan"
	_, err = svc.AddPath(ctx, alice, sess.ID, badTool)
	assert.ErrorIs(t, err, ErrInvalidInput)

	noPoints := penPath("p1")
	noPoints.Points = nil
	_, err = svc.AddPath(ctx, alice, sess.ID, noPoints)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// text paths need text and an anchor instead of points
	text := model.DrawingPath{ID: "t1", Tool: model.ToolText, Text: "hello"}
	_, err = svc.AddPath(ctx, alice, sess.ID, text)
	assert.ErrorIs(t, err, ErrInvalidInput)

	text.TextPos = &model.PathPoint{X: 5, Y: 5}
	_, err = svc.AddPath(ctx, alice, sess.ID, text)
	assert.NoError(t, err)
}

func TestUndoRemovesLastPath(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := drawingSession(t, svc)

	_, err := svc.AddPath(ctx, alice, sess.ID, penPath("p1"))
	require.NoError(t, err)
	_, err = svc.AddPath(ctx, alice, sess.ID, penPath("p2"))
	require.NoError(t, err)

	updated, err := svc.UndoLast(ctx, alice, sess.ID)
	require.NoError(t, err)
	require.Len(t, updated.Canvas.Paths, 1)
	assert.Equal(t, "p1", updated.Canvas.Paths[0].ID)

	// draining past empty stays a no-op
	updated, err = svc.UndoLast(ctx, alice, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Canvas.Paths)

	updated, err = svc.UndoLast(ctx, alice, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Canvas.Paths)
}

func TestUndoViewerForbidden(t *testing.T) {
	svc := newTestService()
	sess := drawingSession(t, svc)

	_, err := svc.UndoLast(context.Background(), bob, sess.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestClearEmptiesCanvas(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := drawingSession(t, svc)

	_, err := svc.AddPath(ctx, alice, sess.ID, penPath("p1"))
	require.NoError(t, err)

	cleared, err := svc.Clear(ctx, alice, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Canvas.Paths)

	// clearing an empty canvas succeeds
	cleared, err = svc.Clear(ctx, alice, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Canvas.Paths)
}

func TestSnapshotRoundTrip(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := drawingSession(t, svc)

	_, err := svc.AddPath(ctx, alice, sess.ID, penPath("p1"))
	require.NoError(t, err)

	saved, err := svc.SaveSnapshot(ctx, alice, sess.ID, "one path")
	require.NoError(t, err)
	require.Len(t, saved.History, 1)
	snap := saved.History[0]
	assert.Equal(t, alice.UserID, snap.TakenBy)
	assert.Equal(t, "one path", snap.Description)
	assert.Len(t, snap.Canvas.Paths, 1)

	// mutate past the snapshot, then restore
	_, err = svc.AddPath(ctx, alice, sess.ID, penPath("p2"))
	require.NoError(t, err)
	_, err = svc.Clear(ctx, alice, sess.ID)
	require.NoError(t, err)

	restored, err := svc.RestoreSnapshot(ctx, alice, sess.ID, snap.ID)
	require.NoError(t, err)
	require.Len(t, restored.Canvas.Paths, 1)
	assert.Equal(t, "p1", restored.Canvas.Paths[0].ID)

	// restore does not add a new history entry
	assert.Len(t, restored.History, 1)
}

func TestSnapshotRetention(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := mustCreate(t, svc, alice, &model.SessionSettings{
		AllowMultipleDrawers: true,
		MaxSnapshots:         3,
	})

	for i := 0; i < 5; i++ {
		_, err := svc.SaveSnapshot(ctx, alice, sess.ID, fmt.Sprintf("snap-%d", i))
		require.NoError(t, err)
	}

	current, err := svc.Get(ctx, alice, sess.ID)
	require.NoError(t, err)
	require.Len(t, current.History, 3)
	assert.Equal(t, "snap-2", current.History[0].Description)
	assert.Equal(t, "snap-4", current.History[2].Description)
}

func TestViewerMaySaveSnapshot(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := drawingSession(t, svc)

	saved, err := svc.SaveSnapshot(ctx, bob, sess.ID, "")
	require.NoError(t, err)
	assert.Len(t, saved.History, 1)

	// but restoring needs the drawer role
	_, err = svc.RestoreSnapshot(ctx, bob, sess.ID, saved.History[0].ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	svc := newTestService()
	sess := drawingSession(t, svc)

	_, err := svc.RestoreSnapshot(context.Background(), alice, sess.ID, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateCanvasMergesPatch(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := drawingSession(t, svc)

	bg := "#1e1e1e"
	zoom := 2.5
	panX := 120.0
	updated, err := svc.UpdateCanvas(ctx, alice, sess.ID, CanvasPatch{
		Background: &bg,
		Zoom:       &zoom,
		PanX:       &panX,
	}, false)
	require.NoError(t, err)

	assert.Equal(t, bg, updated.Canvas.Background)
	assert.Equal(t, zoom, updated.Canvas.Zoom)
	assert.Equal(t, panX, updated.Canvas.PanX)
	// untouched fields keep their values
	assert.Equal(t, 0.0, updated.Canvas.PanY)
	assert.Equal(t, model.DefaultCanvasWidth, updated.Canvas.Width)

	badZoom := -1.0
	_, err = svc.UpdateCanvas(ctx, alice, sess.ID, CanvasPatch{Zoom: &badZoom}, false)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateCanvasWithSnapshot(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := drawingSession(t, svc)

	bg := "#fafafa"
	updated, err := svc.UpdateCanvas(ctx, alice, sess.ID, CanvasPatch{Background: &bg}, true)
	require.NoError(t, err)
	require.Len(t, updated.History, 1)
	assert.Equal(t, bg, updated.History[0].Canvas.Background)
}

func TestCanvasMutationsOnEndedSession(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	sess := drawingSession(t, svc)

	_, err := svc.End(ctx, alice, sess.ID)
	require.NoError(t, err)

	_, err = svc.AddPath(ctx, alice, sess.ID, penPath("p1"))
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.Clear(ctx, alice, sess.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.SendMessage(ctx, alice, sess.ID, "anyone there?")
	assert.ErrorIs(t, err, ErrInvalidState)
}
