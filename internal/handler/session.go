package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"drawboard-backend/internal/auth"
	"drawboard-backend/internal/model"
	"drawboard-backend/internal/session"
)

// SessionHandler REST surface over the drawing-session protocol.
type SessionHandler struct {
	svc      *session.Service
	validate *validator.Validate
}

func NewSessionHandler(svc *session.Service) *SessionHandler {
	return &SessionHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

// identityFromCtx builds the caller identity from the auth middleware's
// claims local.
func identityFromCtx(c *fiber.Ctx) session.Identity {
	claims, ok := c.Locals("claims").(*auth.Claims)
	if !ok {
		return session.Identity{}
	}
	return session.Identity{
		UserID: claims.UserID,
		Name:   claims.Nickname,
		Email:  claims.Email,
	}
}

// mapError translates protocol errors to HTTP status codes.
func mapError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, session.ErrNotAuthenticated):
		status = fiber.StatusUnauthorized
	case errors.Is(err, session.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, session.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrCapacityExceeded):
		status = fiber.StatusConflict
	case errors.Is(err, session.ErrTransport):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// SessionSettingsRequest tri-state settings input; nil fields keep the
// server defaults.
type SessionSettingsRequest struct {
	AllowMultipleDrawers  *bool `json:"allow_multiple_drawers"`
	AutoSaveInterval      int   `json:"auto_save_interval" validate:"omitempty,min=0"`
	MaxParticipants       int   `json:"max_participants" validate:"omitempty,min=0,max=100"`
	MaxSnapshots          int   `json:"max_snapshots" validate:"omitempty,min=0,max=100"`
	RequireApprovalToJoin *bool `json:"require_approval_to_join"`
	EnableVoiceChat       *bool `json:"enable_voice_chat"`
	ShowCursors           *bool `json:"show_cursors"`
	ShowDrawingHistory    *bool `json:"show_drawing_history"`
}

func (r *SessionSettingsRequest) toModel() *model.SessionSettings {
	if r == nil {
		return nil
	}
	s := &model.SessionSettings{
		AllowMultipleDrawers: true,
		ShowCursors:          true,
		ShowDrawingHistory:   true,
		AutoSaveInterval:     r.AutoSaveInterval,
		MaxParticipants:      r.MaxParticipants,
		MaxSnapshots:         r.MaxSnapshots,
	}
	if r.AllowMultipleDrawers != nil {
		s.AllowMultipleDrawers = *r.AllowMultipleDrawers
	}
	if r.RequireApprovalToJoin != nil {
		s.RequireApprovalToJoin = *r.RequireApprovalToJoin
	}
	if r.EnableVoiceChat != nil {
		s.EnableVoiceChat = *r.EnableVoiceChat
	}
	if r.ShowCursors != nil {
		s.ShowCursors = *r.ShowCursors
	}
	if r.ShowDrawingHistory != nil {
		s.ShowDrawingHistory = *r.ShowDrawingHistory
	}
	return s
}

type CreateSessionRequest struct {
	TeamID      string                  `json:"team_id" validate:"required"`
	Title       string                  `json:"title" validate:"required,max=200"`
	Description string                  `json:"description" validate:"omitempty,max=1000"`
	Settings    *SessionSettingsRequest `json:"settings"`
}

// CreateSession POST /api/sessions
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	sess, err := h.svc.Create(c.Context(), identityFromCtx(c), req.TeamID, req.Title, req.Description, req.Settings.toModel())
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// GetSession GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	sess, err := h.svc.Get(c.Context(), identityFromCtx(c), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

// SessionSummary is the list-view shape: no chat, history or path
// payloads.
type SessionSummary struct {
	ID               string              `json:"id"`
	TeamID           string              `json:"team_id"`
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	Status           model.SessionStatus `json:"status"`
	CreatedBy        int64               `json:"created_by"`
	ParticipantCount int                 `json:"participant_count"`
	PathCount        int                 `json:"path_count"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	EndedAt          *time.Time          `json:"ended_at,omitempty"`
}

// ListSessions GET /api/teams/:teamId/sessions?status=...
func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	status := model.SessionStatus(c.Query("status"))
	sessions, err := h.svc.ListTeam(c.Context(), identityFromCtx(c), c.Params("teamId"), status)
	if err != nil {
		return mapError(c, err)
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, SessionSummary{
			ID:               s.ID,
			TeamID:           s.TeamID,
			Title:            s.Title,
			Description:      s.Description,
			Status:           s.Status,
			CreatedBy:        s.CreatedBy,
			ParticipantCount: len(s.Participants),
			PathCount:        len(s.Canvas.Paths),
			CreatedAt:        s.CreatedAt,
			UpdatedAt:        s.UpdatedAt,
			EndedAt:          s.EndedAt,
		})
	}
	return c.JSON(fiber.Map{
		"sessions": summaries,
		"count":    len(summaries),
	})
}

// JoinSession POST /api/sessions/:id/join
func (h *SessionHandler) JoinSession(c *fiber.Ctx) error {
	sess, err := h.svc.Join(c.Context(), identityFromCtx(c), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

// LeaveSession POST /api/sessions/:id/leave
func (h *SessionHandler) LeaveSession(c *fiber.Ctx) error {
	sess, err := h.svc.Leave(c.Context(), identityFromCtx(c), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

// EndSession POST /api/sessions/:id/end
func (h *SessionHandler) EndSession(c *fiber.Ctx) error {
	sess, err := h.svc.End(c.Context(), identityFromCtx(c), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

// SwitchRole PUT /api/sessions/:id/participants/:userId/role
func (h *SessionHandler) SwitchRole(c *fiber.Ctx) error {
	targetID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid user id",
		})
	}

	sess, err := h.svc.SwitchRole(c.Context(), identityFromCtx(c), c.Params("id"), targetID)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

// AddPath POST /api/sessions/:id/paths
func (h *SessionHandler) AddPath(c *fiber.Ctx) error {
	var path model.DrawingPath
	if err := c.BodyParser(&path); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	sess, err := h.svc.AddPath(c.Context(), identityFromCtx(c), c.Params("id"), path)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

// ClearCanvas POST /api/sessions/:id/canvas/clear
func (h *SessionHandler) ClearCanvas(c *fiber.Ctx) error {
	sess, err := h.svc.Clear(c.Context(), identityFromCtx(c), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

// UndoPath POST /api/sessions/:id/canvas/undo
func (h *SessionHandler) UndoPath(c *fiber.Ctx) error {
	sess, err := h.svc.UndoLast(c.Context(), identityFromCtx(c), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

type UpdateCanvasRequest struct {
	Background     *string  `json:"background"`
	Zoom           *float64 `json:"zoom"`
	PanX           *float64 `json:"pan_x"`
	PanY           *float64 `json:"pan_y"`
	Width          *int     `json:"width" validate:"omitempty,min=1"`
	Height         *int     `json:"height" validate:"omitempty,min=1"`
	CreateSnapshot bool     `json:"create_snapshot"`
}

// UpdateCanvas PUT /api/sessions/:id/canvas
func (h *SessionHandler) UpdateCanvas(c *fiber.Ctx) error {
	var req UpdateCanvasRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	patch := session.CanvasPatch{
		Background: req.Background,
		Zoom:       req.Zoom,
		PanX:       req.PanX,
		PanY:       req.PanY,
		Width:      req.Width,
		Height:     req.Height,
	}
	sess, err := h.svc.UpdateCanvas(c.Context(), identityFromCtx(c), c.Params("id"), patch, req.CreateSnapshot)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

type SaveSnapshotRequest struct {
	Description string `json:"description" validate:"omitempty,max=500"`
}

// SaveSnapshot POST /api/sessions/:id/snapshots
func (h *SessionHandler) SaveSnapshot(c *fiber.Ctx) error {
	var req SaveSnapshotRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	sess, err := h.svc.SaveSnapshot(c.Context(), identityFromCtx(c), c.Params("id"), req.Description)
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// RestoreSnapshot POST /api/sessions/:id/snapshots/:snapshotId/restore
func (h *SessionHandler) RestoreSnapshot(c *fiber.Ctx) error {
	sess, err := h.svc.RestoreSnapshot(c.Context(), identityFromCtx(c), c.Params("id"), c.Params("snapshotId"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

type ChatMessageRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// SendChat POST /api/sessions/:id/chat
func (h *SessionHandler) SendChat(c *fiber.Ctx) error {
	var req ChatMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	sess, err := h.svc.SendMessage(c.Context(), identityFromCtx(c), c.Params("id"), req.Message)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}

// RecentChat GET /api/sessions/:id/chat/recent?count=50
func (h *SessionHandler) RecentChat(c *fiber.Ctx) error {
	count := c.QueryInt("count", 50)
	entries, err := h.svc.RecentChat(c.Context(), identityFromCtx(c), c.Params("id"), count)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{
		"messages": entries,
		"count":    len(entries),
	})
}

type CursorRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UpdateCursor POST /api/sessions/:id/cursor
func (h *SessionHandler) UpdateCursor(c *fiber.Ctx) error {
	var req CursorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	sess, err := h.svc.UpdateCursor(c.Context(), identityFromCtx(c), c.Params("id"), req.X, req.Y)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(sess)
}
