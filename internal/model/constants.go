package model

// SessionStatus drawing session lifecycle status
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusPaused SessionStatus = "paused" // reserved, no action produces it yet
	SessionStatusEnded  SessionStatus = "ended"
)

func (s SessionStatus) String() string {
	return string(s)
}

// ParticipantRole role of a session participant
type ParticipantRole string

const (
	RoleDrawer ParticipantRole = "drawer"
	RoleViewer ParticipantRole = "viewer"
)

func (r ParticipantRole) String() string {
	return string(r)
}

// Toggle returns the opposite role.
func (r ParticipantRole) Toggle() ParticipantRole {
	if r == RoleDrawer {
		return RoleViewer
	}
	return RoleDrawer
}

// ToolKind drawing tool used for a path
type ToolKind string

const (
	ToolPen         ToolKind = "pen"
	ToolEraser      ToolKind = "eraser"
	ToolLine        ToolKind = "line"
	ToolRectangle   ToolKind = "rectangle"
	ToolCircle      ToolKind = "circle"
	ToolTriangle    ToolKind = "triangle"
	ToolArrow       ToolKind = "arrow"
	ToolText        ToolKind = "text"
	ToolHighlighter ToolKind = "highlighter"
	ToolSelect      ToolKind = "select"
	ToolFill        ToolKind = "fill"
)

var validTools = map[ToolKind]bool{
	ToolPen: true, ToolEraser: true, ToolLine: true, ToolRectangle: true,
	ToolCircle: true, ToolTriangle: true, ToolArrow: true, ToolText: true,
	ToolHighlighter: true, ToolSelect: true, ToolFill: true,
}

// IsValid reports whether k is one of the supported tools.
func (k ToolKind) IsValid() bool {
	return validTools[k]
}

// ChatKind chat entry kind
type ChatKind string

const (
	ChatKindText   ChatKind = "text"
	ChatKindSystem ChatKind = "system"
)

// SystemSenderName author name used for automated notices.
const SystemSenderName = "system"

// ParticipantPalette display colors, cycled by current participant count at join time.
var ParticipantPalette = []string{
	"#6366f1", // indigo
	"#ef4444", // red
	"#10b981", // emerald
	"#f59e0b", // amber
	"#3b82f6", // blue
	"#ec4899", // pink
	"#14b8a6", // teal
	"#8b5cf6", // violet
}

// Canvas defaults
const (
	DefaultCanvasWidth  = 1920
	DefaultCanvasHeight = 1080
	DefaultBackground   = "#ffffff"
)
