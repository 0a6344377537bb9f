// Package comments implements creation, deletion and resolution of comments
// and comment threads anchored to room coordinates.
//
// Durable rows are written through the storage port; every mutation emits a
// lifecycle event to the broadcast manager. Late-joining clients reconstruct
// state by replaying persisted comments, never events.
package comments

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/overlaylabs/copresence/internal/domain"
	"github.com/overlaylabs/copresence/internal/logger"
)

// MaxContentLength caps comment bodies.
const MaxContentLength = 10_000

// DefaultEventBuffer sizes the lifecycle event channel.
const DefaultEventBuffer = 128

// Store is the persistence port consumed by the service. Implementations are
// assumed eventually consistent with read-after-write within one process.
type Store interface {
	SaveComment(ctx context.Context, c *domain.Comment) error
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	ListComments(ctx context.Context, roomID string) ([]*domain.Comment, error)
	SoftDeleteComment(ctx context.Context, id string, at time.Time) error

	SaveThread(ctx context.Context, t *domain.CommentThread) error
	GetThread(ctx context.Context, id string) (*domain.CommentThread, error)
}

// EventKind classifies comment lifecycle events.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventUpdated  EventKind = "updated"
	EventDeleted  EventKind = "deleted"
	EventResolved EventKind = "resolved"
)

// Event carries the full comment payload plus actor and timestamp, so
// clients never need to re-fetch on broadcast.
type Event struct {
	Kind    EventKind
	RoomID  string
	ActorID string
	Comment *domain.Comment
	Thread  *domain.CommentThread
	At      time.Time
}

// Service coordinates the storage port and the lifecycle event stream.
type Service struct {
	store  Store
	logger logger.Logger
	out    chan Event
	now    func() time.Time
	newID  func() string
}

// Option tunes a Service.
type Option func(*Service)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDFunc injects an id generator for tests.
func WithIDFunc(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a comment service over a storage port.
func NewService(store Store, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log,
		out:    make(chan Event, DefaultEventBuffer),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events exposes the lifecycle event stream consumed by the broadcast manager.
func (s *Service) Events() <-chan Event { return s.out }

// CreateComment persists a new comment and emits a created event.
func (s *Service) CreateComment(ctx context.Context, roomID string, user domain.UserInfo, content string, pos domain.Position, parentID, threadID, xpath string) (*domain.Comment, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	now := s.now()
	c := &domain.Comment{
		ID:        s.newID(),
		RoomID:    roomID,
		UserID:    user.ID,
		ThreadID:  threadID,
		ParentID:  parentID,
		Content:   strings.TrimSpace(content),
		Position:  pos,
		XPath:     xpath,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.SaveComment(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save comment: %w", err)
	}

	s.emit(Event{Kind: EventCreated, RoomID: roomID, ActorID: user.ID, Comment: c, At: now})
	return c, nil
}

// CreateThread persists a thread anchored to a page plus its first comment,
// and emits a created event carrying both.
func (s *Service) CreateThread(ctx context.Context, roomID string, user domain.UserInfo, content string, pos domain.Position, pageURL, pageTitle string) (*domain.CommentThread, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	now := s.now()
	thread := &domain.CommentThread{
		ID:        s.newID(),
		RoomID:    roomID,
		URL:       pageURL,
		PageTitle: pageTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	first := &domain.Comment{
		ID:        s.newID(),
		RoomID:    roomID,
		UserID:    user.ID,
		ThreadID:  thread.ID,
		Content:   strings.TrimSpace(content),
		Position:  pos,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.SaveThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to save thread: %w", err)
	}
	if err := s.store.SaveComment(ctx, first); err != nil {
		return nil, fmt.Errorf("failed to save first comment: %w", err)
	}
	thread.Comments = []*domain.Comment{first}

	s.emit(Event{Kind: EventCreated, RoomID: roomID, ActorID: user.ID, Comment: first, Thread: thread, At: now})
	return thread, nil
}

// DeleteComment tombstones a comment. Only the author may delete; the
// tombstone stays in the store so history and audit remain consistent.
func (s *Service) DeleteComment(ctx context.Context, roomID, commentID, userID string) (*domain.Comment, error) {
	c, err := s.getLive(ctx, roomID, commentID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, fmt.Errorf("%w: comment %s belongs to another user", domain.ErrForbidden, commentID)
	}

	now := s.now()
	if err := s.store.SoftDeleteComment(ctx, commentID, now); err != nil {
		return nil, fmt.Errorf("failed to delete comment: %w", err)
	}

	c.Deleted = true
	c.DeletedAt = &now
	c.UpdatedAt = now

	s.emit(Event{Kind: EventDeleted, RoomID: roomID, ActorID: userID, Comment: c, At: now})
	return c, nil
}

// ToggleResolved flips the resolution state of a comment. Any room
// participant may toggle; resolution is a shared workflow signal, not a
// destructive act, so it carries no ownership check.
func (s *Service) ToggleResolved(ctx context.Context, roomID, commentID, userID string) (*domain.Comment, error) {
	c, err := s.getLive(ctx, roomID, commentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if c.IsResolved {
		c.IsResolved = false
		c.ResolvedAt = nil
		c.ResolvedBy = ""
	} else {
		c.IsResolved = true
		c.ResolvedAt = &now
		c.ResolvedBy = userID
	}
	c.UpdatedAt = now

	if err := s.store.SaveComment(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save resolution: %w", err)
	}

	s.emit(Event{Kind: EventResolved, RoomID: roomID, ActorID: userID, Comment: c, At: now})
	return c, nil
}

// ResolveThread flips the resolution state of a whole thread.
func (s *Service) ResolveThread(ctx context.Context, roomID, threadID, userID string) (*domain.CommentThread, error) {
	t, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if t.RoomID != roomID {
		return nil, fmt.Errorf("%w: thread %s", domain.ErrNotFound, threadID)
	}

	now := s.now()
	if t.IsResolved {
		t.IsResolved = false
		t.ResolvedAt = nil
		t.ResolvedBy = ""
	} else {
		t.IsResolved = true
		t.ResolvedAt = &now
		t.ResolvedBy = userID
	}
	t.UpdatedAt = now

	if err := s.store.SaveThread(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save thread resolution: %w", err)
	}

	s.emit(Event{Kind: EventResolved, RoomID: roomID, ActorID: userID, Thread: t, At: now})
	return t, nil
}

// ListComments returns the live (non-tombstoned) comments of a room, ordered
// by creation time. This is the replay source for late joiners.
func (s *Service) ListComments(ctx context.Context, roomID string) ([]*domain.Comment, error) {
	all, err := s.store.ListComments(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	live := make([]*domain.Comment, 0, len(all))
	for _, c := range all {
		if c.Deleted {
			continue
		}
		live = append(live, c)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.Before(live[j].CreatedAt) })
	return live, nil
}

// Get returns a live comment by id regardless of room. Callers that know
// the room should prefer the room-scoped operations.
func (s *Service) Get(ctx context.Context, commentID string) (*domain.Comment, error) {
	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.Deleted {
		return nil, fmt.Errorf("%w: comment %s", domain.ErrNotFound, commentID)
	}
	return c, nil
}

// getLive fetches a comment and verifies it belongs to the room and is not
// tombstoned. Tombstones and foreign-room ids both surface as not found.
func (s *Service) getLive(ctx context.Context, roomID, commentID string) (*domain.Comment, error) {
	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.RoomID != roomID || c.Deleted {
		return nil, fmt.Errorf("%w: comment %s", domain.ErrNotFound, commentID)
	}
	return c, nil
}

// emit pushes a lifecycle event without blocking the mutation path. Unlike
// cursor chatter, dropping durable events is worth a warning.
func (s *Service) emit(ev Event) {
	select {
	case s.out <- ev:
	default:
		if s.logger != nil {
			s.logger.Warn("comment lifecycle event dropped, consumer lagging",
				logger.String("room_id", ev.RoomID),
				logger.String("kind", string(ev.Kind)))
		}
	}
}

func validateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("%w: empty comment content", domain.ErrValidation)
	}
	if len(trimmed) > MaxContentLength {
		return fmt.Errorf("%w: comment content exceeds %d bytes", domain.ErrValidation, MaxContentLength)
	}
	return nil
}
