package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overlaylabs/copresence/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestCommentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &domain.Comment{
		ID:        "c1",
		RoomID:    "room",
		UserID:    "u1",
		Content:   "hello",
		Position:  domain.Position{X: 10, Y: 20},
		CreatedAt: now,
		UpdatedAt: now,
	}

	require.NoError(t, s.SaveComment(ctx, c))

	got, err := s.GetComment(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c.Content, got.Content)
	assert.Equal(t, c.Position, got.Position)
	assert.True(t, got.CreatedAt.Equal(now))
}

func TestGetCommentNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetComment(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListCommentsScopedToRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveComment(ctx, &domain.Comment{ID: "a", RoomID: "room-1", UserID: "u1", Content: "a"}))
	require.NoError(t, s.SaveComment(ctx, &domain.Comment{ID: "b", RoomID: "room-1", UserID: "u1", Content: "b"}))
	require.NoError(t, s.SaveComment(ctx, &domain.Comment{ID: "c", RoomID: "room-2", UserID: "u1", Content: "c"}))

	got, err := s.ListComments(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSoftDeleteKeepsTombstone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveComment(ctx, &domain.Comment{ID: "c1", RoomID: "room", UserID: "u1", Content: "bye"}))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SoftDeleteComment(ctx, "c1", at))

	// The row is still there, flagged as deleted.
	got, err := s.GetComment(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, got.DeletedAt.Equal(at))

	// And still turns up in the raw listing for audit.
	all, err := s.ListComments(ctx, "room")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSoftDeleteUnknownComment(t *testing.T) {
	s := newTestStore(t)

	err := s.SoftDeleteComment(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestThreadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	th := &domain.CommentThread{
		ID:        "t1",
		RoomID:    "room",
		URL:       "https://example.com/page",
		PageTitle: "Example",
		Comments:  []*domain.Comment{{ID: "c1"}}, // must not be stored inline
	}
	require.NoError(t, s.SaveThread(ctx, th))

	got, err := s.GetThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, th.URL, got.URL)
	assert.Nil(t, got.Comments)

	threads, err := s.ListThreads(ctx, "room")
	require.NoError(t, err)
	assert.Len(t, threads, 1)
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sess := &domain.Session{
		RoomID:         "room",
		UserID:         "u1",
		Username:       "alice",
		JoinedAt:       now,
		LastActivityAt: now,
		IsActive:       true,
	}
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.GetSession(ctx, "room", "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.IsActive)

	all, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMarkSessionInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSession(ctx, &domain.Session{
		RoomID:         "room",
		UserID:         "u1",
		JoinedAt:       now,
		LastActivityAt: now,
		IsActive:       true,
	}))

	require.NoError(t, s.MarkSessionInactive(ctx, "room", "u1", now.Add(time.Hour)))

	got, err := s.GetSession(ctx, "room", "u1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Marking a missing session is a no-op, not an error.
	assert.NoError(t, s.MarkSessionInactive(ctx, "room", "ghost", now))
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, &domain.Session{RoomID: "room", UserID: "u1", IsActive: true}))
	require.NoError(t, s.DeleteSession(ctx, "room", "u1"))

	_, err := s.GetSession(ctx, "room", "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
