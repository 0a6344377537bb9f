package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/overlaylabs/copresence/internal/domain"
)

// DefaultSessionRowTTL bounds how long a persisted session row outlives its
// last write. Twice the inactivity window, so the sweep always sees a stale
// row before Redis expires it.
const DefaultSessionRowTTL = 2 * domain.DefaultSessionTTL

// SaveSession stores a session row and indexes it in the all-sessions set.
func (s *Store) SaveSession(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, SessionKey(session.RoomID, session.UserID), data, DefaultSessionRowTTL)
	pipe.SAdd(ctx, KeyAllSessions, SessionMember(session.RoomID, session.UserID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// GetSession retrieves a session row by (room, user).
func (s *Store) GetSession(ctx context.Context, roomID, userID string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, SessionKey(roomID, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: session %s/%s", domain.ErrNotFound, roomID, userID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// ListSessions retrieves all persisted session rows. Members whose row has
// expired are pruned from the index set as a side effect.
func (s *Store) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	members, err := s.client.SMembers(ctx, KeyAllSessions).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session members: %w", err)
	}

	sessions := make([]*domain.Session, 0, len(members))
	for _, member := range members {
		roomID, userID, ok := splitSessionMember(member)
		if !ok {
			continue
		}
		session, err := s.GetSession(ctx, roomID, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				_ = s.client.SRem(ctx, KeyAllSessions, member).Err()
			}
			continue
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

// MarkSessionInactive flips a persisted session row to inactive. Used by the
// sweep; a missing row is fine, the TTL already reclaimed it.
func (s *Store) MarkSessionInactive(ctx context.Context, roomID, userID string, at time.Time) error {
	session, err := s.GetSession(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	session.IsActive = false
	session.LastActivityAt = at

	return s.SaveSession(ctx, session)
}

// DeleteSession removes a session row and its index entry.
func (s *Store) DeleteSession(ctx context.Context, roomID, userID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, SessionKey(roomID, userID))
	pipe.SRem(ctx, KeyAllSessions, SessionMember(roomID, userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// splitSessionMember decodes a set member back into (roomID, userID).
func splitSessionMember(member string) (string, string, bool) {
	for i := 0; i < len(member); i++ {
		if member[i] == '|' {
			return member[:i], member[i+1:], true
		}
	}
	return "", "", false
}
