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

// Store handles Redis persistence for comments, threads and sessions.
// It implements the storage port consumed by the comment service and the
// session sweeper.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// SaveComment stores a comment and indexes it in its room's comment set.
// Comments are durable: no TTL.
func (s *Store) SaveComment(ctx context.Context, c *domain.Comment) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal comment: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, CommentKey(c.ID), data, 0)
	pipe.SAdd(ctx, RoomCommentsKey(c.RoomID), c.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save comment: %w", err)
	}

	return nil
}

// GetComment retrieves a comment by ID. Unknown ids surface as ErrNotFound.
func (s *Store) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	data, err := s.client.Get(ctx, CommentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: comment %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}

	var c domain.Comment
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal comment: %w", err)
	}

	return &c, nil
}

// ListComments retrieves all comments of a room, tombstones included.
// The service layer filters tombstones; the store keeps them for audit.
func (s *Store) ListComments(ctx context.Context, roomID string) ([]*domain.Comment, error) {
	ids, err := s.client.SMembers(ctx, RoomCommentsKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get comment IDs: %w", err)
	}

	comments := make([]*domain.Comment, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetComment(ctx, id)
		if err != nil {
			// Skip comments that couldn't be retrieved
			continue
		}
		comments = append(comments, c)
	}

	return comments, nil
}

// SoftDeleteComment tombstones a comment in place. The row is kept so
// broadcast history and audit remain consistent.
func (s *Store) SoftDeleteComment(ctx context.Context, id string, at time.Time) error {
	c, err := s.GetComment(ctx, id)
	if err != nil {
		return err
	}

	c.Deleted = true
	c.DeletedAt = &at
	c.UpdatedAt = at

	return s.SaveComment(ctx, c)
}

// SaveThread stores a thread and indexes it in its room's thread set.
func (s *Store) SaveThread(ctx context.Context, t *domain.CommentThread) error {
	// Comments are stored as separate rows, never inline.
	stored := *t
	stored.Comments = nil

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, ThreadKey(t.ID), data, 0)
	pipe.SAdd(ctx, RoomThreadsKey(t.RoomID), t.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}

	return nil
}

// GetThread retrieves a thread by ID.
func (s *Store) GetThread(ctx context.Context, id string) (*domain.CommentThread, error) {
	data, err := s.client.Get(ctx, ThreadKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: thread %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	var t domain.CommentThread
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread: %w", err)
	}

	return &t, nil
}

// ListThreads retrieves all threads of a room.
func (s *Store) ListThreads(ctx context.Context, roomID string) ([]*domain.CommentThread, error) {
	ids, err := s.client.SMembers(ctx, RoomThreadsKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get thread IDs: %w", err)
	}

	threads := make([]*domain.CommentThread, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetThread(ctx, id)
		if err != nil {
			continue
		}
		threads = append(threads, t)
	}

	return threads, nil
}
