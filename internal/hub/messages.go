package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/overlaylabs/copresence/internal/domain"
)

// Inbound message types. The dispatch table in hub.go maps each one to its
// handler; anything else is rejected per-message without dropping the
// connection.
const (
	MsgEnterRoom      = "enter-room"
	MsgLeaveRoom      = "leave-room"
	MsgCursorMove     = "cursor-move"
	MsgCursorBatch    = "cursor-batch"
	MsgClick          = "click"
	MsgPresence       = "presence"
	MsgCommentCreate  = "comment-create"
	MsgCommentDelete  = "comment-delete"
	MsgCommentResolve = "comment-resolve"
	MsgThreadCreate   = "thread-create"
	MsgThreadResolve  = "thread-resolve"
	MsgSelectionShare = "selection-share"
	MsgScrollSync     = "scroll-sync"
)

// Outbound event types.
const (
	EvtRoomJoined      = "room-joined"
	EvtUserJoined      = "user-joined"
	EvtUserLeft        = "user-left"
	EvtCursorUpdate    = "cursor-update"
	EvtCursorTrail     = "cursor-trail"
	EvtCursorBatch     = "cursor-batch"
	EvtCursorClicked   = "cursor-clicked"
	EvtPresence        = "presence"
	EvtCommentCreated  = "comment-created"
	EvtCommentUpdated  = "comment-updated"
	EvtCommentDeleted  = "comment-deleted"
	EvtCommentResolved = "comment-resolved"
	EvtSelectionShared = "selection-shared"
	EvtScrollSynced    = "scroll-synced"
	EvtError           = "error"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// encodeEnvelope marshals a typed payload into a wire frame.
func encodeEnvelope(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Data: data})
}

// --- Inbound payloads

type enterRoomPayload struct {
	URL string `json:"url"`
}

type cursorMovePayload struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color,omitempty"`
}

type cursorBatchPayload struct {
	Positions []domain.Position `json:"positions"`
}

type clickPayload struct {
	X         float64          `json:"x"`
	Y         float64          `json:"y"`
	ClickType domain.ClickType `json:"clickType"`
}

type presencePayload struct {
	Idle bool `json:"idle"`
}

type commentCreatePayload struct {
	Content  string          `json:"content"`
	Position domain.Position `json:"position"`
	ParentID string          `json:"parentId,omitempty"`
	ThreadID string          `json:"threadId,omitempty"`
	XPath    string          `json:"xpath,omitempty"`
}

type commentRefPayload struct {
	CommentID string `json:"commentId"`
}

type threadCreatePayload struct {
	Content   string          `json:"content"`
	Position  domain.Position `json:"position"`
	URL       string          `json:"url"`
	PageTitle string          `json:"pageTitle,omitempty"`
}

type threadRefPayload struct {
	ThreadID string `json:"threadId"`
}

type selectionPayload struct {
	Text  string `json:"text"`
	XPath string `json:"xpath,omitempty"`
}

type scrollPayload struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Ratio float64 `json:"ratio,omitempty"`
}

// --- Outbound payloads

// roomSnapshot acknowledges enter-room with everything a late joiner needs
// to reconstruct the room: present users, live cursors, persisted comments.
type roomSnapshot struct {
	RoomID   string               `json:"roomId"`
	Users    []domain.Session     `json:"users"`
	Cursors  []domain.CursorState `json:"cursors"`
	Comments []*domain.Comment    `json:"comments"`
}

type userEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type cursorUpdateEvent struct {
	UserID   string          `json:"userId"`
	Username string          `json:"username"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
	Velocity domain.Velocity `json:"velocity"`
	Color    string          `json:"color"`
}

type cursorBatchEvent struct {
	UserID    string            `json:"userId"`
	Username  string            `json:"username"`
	Positions []domain.Position `json:"positions"`
	Color     string            `json:"color,omitempty"`
}

type cursorClickEvent struct {
	UserID    string           `json:"userId"`
	Username  string           `json:"username"`
	X         float64          `json:"x"`
	Y         float64          `json:"y"`
	ClickType domain.ClickType `json:"clickType"`
	Color     string           `json:"color,omitempty"`
}

type presenceEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Idle     bool   `json:"idle"`
}

type commentLifecycleEvent struct {
	RoomID  string                `json:"roomId"`
	ActorID string                `json:"actorId"`
	Comment *domain.Comment       `json:"comment,omitempty"`
	Thread  *domain.CommentThread `json:"thread,omitempty"`
	At      time.Time             `json:"at"`
}

type selectionEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Text     string `json:"text"`
	XPath    string `json:"xpath,omitempty"`
}

type scrollEvent struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Ratio    float64 `json:"ratio,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
