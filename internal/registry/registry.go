// Package registry tracks which users are present in which room.
//
// It is the in-memory system of record for presence; durable session rows
// are written through the storage port by the caller. Rooms have a defined
// lifecycle: created on first join, destroyed on last leave.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/overlaylabs/copresence/internal/domain"
)

// Registry holds per-room session maps behind a single mutex. All mutations
// are atomic with respect to a room key; cross-room operations carry no
// ordering guarantee relative to each other.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*domain.Session
	ttl   time.Duration
	now   func() time.Time
}

// Option tunes a Registry.
type Option func(*Registry)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithTTL overrides the session inactivity window.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		rooms: make(map[string]map[string]*domain.Session),
		ttl:   domain.DefaultSessionTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join creates a session for (roomID, user) or refreshes the existing one.
// Idempotent: a second join for the same pair never duplicates the record,
// it reactivates it and advances LastActivityAt.
func (r *Registry) Join(roomID string, user domain.UserInfo) domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	sessions, ok := r.rooms[roomID]
	if !ok {
		sessions = make(map[string]*domain.Session)
		r.rooms[roomID] = sessions
	}

	s, ok := sessions[user.ID]
	if !ok {
		s = &domain.Session{
			RoomID:   roomID,
			UserID:   user.ID,
			Username: user.Username,
			Email:    user.Email,
			JoinedAt: now,
		}
		sessions[user.ID] = s
	}
	s.Username = user.Username
	s.Email = user.Email
	s.Touch(now)

	return *s
}

// Leave marks the session inactive and removes it from the room. When the
// room becomes empty its entry is discarded entirely. Returns the final
// session record (for persistence) and whether the room is now empty.
func (r *Registry) Leave(roomID, userID string) (domain.Session, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.rooms[roomID]
	if !ok {
		return domain.Session{}, false, false
	}
	s, ok := sessions[userID]
	if !ok {
		return domain.Session{}, false, len(sessions) == 0
	}

	s.IsActive = false
	s.LastActivityAt = r.now()
	final := *s

	delete(sessions, userID)
	empty := len(sessions) == 0
	if empty {
		delete(r.rooms, roomID)
	}
	return final, true, empty
}

// Touch refreshes the activity timestamp of a live session.
func (r *Registry) Touch(roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessions, ok := r.rooms[roomID]; ok {
		if s, ok := sessions[userID]; ok {
			s.Touch(r.now())
		}
	}
}

// UpdateCursor records the last broadcast cursor position on the session,
// so enter-room snapshots carry it.
func (r *Registry) UpdateCursor(roomID, userID string, pos domain.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessions, ok := r.rooms[roomID]; ok {
		if s, ok := sessions[userID]; ok {
			p := pos
			s.Cursor = &p
			s.Touch(r.now())
		}
	}
}

// ListActive returns copies of every active session in a room, ordered by
// join time for stable snapshots.
func (r *Registry) ListActive(roomID string) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.rooms[roomID]
	out := make([]domain.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.IsActive {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

// RoomCount returns the number of sessions in a room.
func (r *Registry) RoomCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[roomID])
}

// Rooms returns the ids of all rooms with at least one session.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}

// Load seeds the registry from persisted sessions, skipping any that are
// already invalid. Used by the startup store sync.
func (r *Registry) Load(sessions []*domain.Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	loaded := 0
	for _, s := range sessions {
		if invalid, _ := s.Invalid(now, r.ttl); invalid {
			continue
		}
		room, ok := r.rooms[s.RoomID]
		if !ok {
			room = make(map[string]*domain.Session)
			r.rooms[s.RoomID] = room
		}
		cp := *s
		room[s.UserID] = &cp
		loaded++
	}
	return loaded
}

// Sweep removes every invalid session and returns their final records so the
// caller can reconcile the store and tracking state. Rooms emptied by the
// sweep are discarded.
func (r *Registry) Sweep(now time.Time) []domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []domain.Session
	for roomID, sessions := range r.rooms {
		for userID, s := range sessions {
			if invalid, _ := s.Invalid(now, r.ttl); !invalid {
				continue
			}
			s.IsActive = false
			removed = append(removed, *s)
			delete(sessions, userID)
		}
		if len(sessions) == 0 {
			delete(r.rooms, roomID)
		}
	}
	return removed
}
