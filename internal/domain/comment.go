package domain

import "time"

// Comment is a remark anchored to page coordinates inside a room.
// Belongs to exactly one room and, optionally, one thread; may reference a
// parent comment for threaded replies.
type Comment struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	ID     string `json:"id"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`

	// ThreadID groups a comment under a thread. Empty for free-standing
	// comments.
	ThreadID string `json:"threadId,omitempty"`

	// ParentID references the comment being replied to, if any.
	ParentID string `json:"parentId,omitempty"`

	// ─────────────────────────────
	// Content & anchor
	// ─────────────────────────────

	Content  string   `json:"content"`
	Position Position `json:"position"`

	// XPath optionally anchors the comment to a DOM node so clients can
	// re-attach it after layout shifts.
	XPath string `json:"xpath,omitempty"`

	// ─────────────────────────────
	// Resolution (a toggle, not a one-way transition)
	// ─────────────────────────────

	IsResolved bool       `json:"isResolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`

	// ─────────────────────────────
	// Soft delete
	// ─────────────────────────────

	// Deleted marks a tombstone. Tombstoned comments stay in the store so
	// broadcast history and audit remain consistent, but are excluded
	// from listings.
	Deleted   bool       `json:"deleted,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	// ─────────────────────────────
	// Metadata
	// ─────────────────────────────

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CommentThread anchors a first comment plus its replies to a page.
type CommentThread struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId"`

	// URL and PageTitle describe the page the thread was opened on.
	URL       string `json:"url"`
	PageTitle string `json:"pageTitle,omitempty"`

	IsResolved bool       `json:"isResolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`

	// Comments are ordered by creation time. Populated on read, not stored
	// inline.
	Comments []*Comment `json:"comments,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
