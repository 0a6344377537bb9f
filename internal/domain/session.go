package domain

import "time"

// DefaultSessionTTL is the inactivity window after which a session is
// considered expired and flagged for cleanup.
const DefaultSessionTTL = 24 * time.Hour

// UserInfo identifies an authenticated participant.
// It is produced by the identity provider, never by this core.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Session represents one user's presence in one room.
//
// Exactly one session exists per (RoomID, UserID) pair: joining a room the
// user is already in refreshes the existing record instead of duplicating it.
type Session struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// RoomID is the deterministic room identifier (see ResolveRoomID).
	RoomID string `json:"roomId"`

	// UserID identifies the participant.
	UserID string `json:"userId"`

	// ─────────────────────────────
	// Participant info
	// ─────────────────────────────

	Username string `json:"username"`
	Email    string `json:"email,omitempty"`

	// ─────────────────────────────
	// Lifecycle
	// ─────────────────────────────

	// JoinedAt is set when the session is first created.
	JoinedAt time.Time `json:"joinedAt"`

	// LastActivityAt is refreshed on every activity signal.
	LastActivityAt time.Time `json:"lastActivityAt"`

	// IsActive is true between join and explicit leave or derived expiry.
	IsActive bool `json:"isActive"`

	// Cursor is the last broadcast pointer position, if any.
	// Ephemeral convenience for snapshots; the tracking engine owns
	// the authoritative cursor state.
	Cursor *Position `json:"cursorPosition,omitempty"`
}

// Touch refreshes the activity timestamp and reactivates the session.
func (s *Session) Touch(now time.Time) {
	s.IsActive = true
	s.LastActivityAt = now
}

// Invalid reports whether the session should be swept, with a reason.
// A session is invalid when it was explicitly left, when it has seen no
// activity for ttl, or when its timestamps fail clock-skew sanity checks.
func (s *Session) Invalid(now time.Time, ttl time.Duration) (bool, string) {
	switch {
	case !s.IsActive:
		return true, "inactive"
	case now.Sub(s.LastActivityAt) > ttl:
		return true, "expired"
	case s.JoinedAt.After(now):
		return true, "joined_in_future"
	case s.LastActivityAt.Before(s.JoinedAt):
		return true, "activity_before_join"
	default:
		return false, ""
	}
}
