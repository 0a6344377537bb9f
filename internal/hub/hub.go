// Package hub owns live websocket connections, routes inbound typed messages
// to the tracking engine, session registry and comment service, and fans the
// resulting events out to every connection bound to the same room.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/overlaylabs/copresence/internal/comments"
	"github.com/overlaylabs/copresence/internal/domain"
	"github.com/overlaylabs/copresence/internal/logger"
	"github.com/overlaylabs/copresence/internal/registry"
	"github.com/overlaylabs/copresence/internal/tracking"
)

// DefaultOpTimeout bounds storage-port calls made from message handlers.
// Handlers run on their own connection's read goroutine, so a slow store
// call never blocks other connections.
const DefaultOpTimeout = 5 * time.Second

// DefaultSessionFlush is how often active sessions are re-persisted. Touch
// and cursor activity lands on the in-memory registry immediately and is
// coalesced into one durable write per session per flush window.
const DefaultSessionFlush = 30 * time.Second

// SessionStore is the durable side of the session lifecycle. The registry
// stays the in-memory system of record; store writes are best effort and a
// failure never corrupts presence.
type SessionStore interface {
	SaveSession(ctx context.Context, session *domain.Session) error
}

type handlerFunc func(c *Client, data json.RawMessage) error

// Hub is the connection and broadcast manager.
//
// Fan-out policy: cursor chatter goes to every room member except the
// originating user; durable comment lifecycle events go to all members,
// actor included, so the acting client sees the persisted truth.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	registry *registry.Registry
	engine   *tracking.Engine
	comments *comments.Service
	sessions SessionStore
	logger   logger.Logger

	handlers     map[string]handlerFunc
	opTimeout    time.Duration
	sessionFlush time.Duration
}

// Option tunes a Hub.
type Option func(*Hub)

// WithSessionFlush overrides the interval between coalesced session writes.
func WithSessionFlush(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sessionFlush = d
		}
	}
}

// New wires the hub to its collaborators and builds the dispatch table.
// The mapping from message type to handler is explicit and statically
// visible here, nowhere else.
func New(reg *registry.Registry, engine *tracking.Engine, svc *comments.Service, sessions SessionStore, log logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		rooms:        make(map[string]map[*Client]struct{}),
		registry:     reg,
		engine:       engine,
		comments:     svc,
		sessions:     sessions,
		logger:       log,
		opTimeout:    DefaultOpTimeout,
		sessionFlush: DefaultSessionFlush,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.handlers = map[string]handlerFunc{
		MsgEnterRoom:      h.handleEnterRoom,
		MsgLeaveRoom:      h.handleLeaveRoom,
		MsgCursorMove:     h.handleCursorMove,
		MsgCursorBatch:    h.handleCursorBatch,
		MsgClick:          h.handleClick,
		MsgPresence:       h.handlePresence,
		MsgCommentCreate:  h.handleCommentCreate,
		MsgCommentDelete:  h.handleCommentDelete,
		MsgCommentResolve: h.handleCommentResolve,
		MsgThreadCreate:   h.handleThreadCreate,
		MsgThreadResolve:  h.handleThreadResolve,
		MsgSelectionShare: h.handleSelectionShare,
		MsgScrollSync:     h.handleScrollSync,
	}
	return h
}

// Run drains the typed event channels of the tracking engine and the comment
// service, fans them out to rooms and periodically flushes active sessions
// through the storage port. Blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	flush := time.NewTicker(h.sessionFlush)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.engine.Events():
			h.fanoutTracking(ev)
		case ev := <-h.comments.Events():
			h.fanoutComment(ev)
		case <-flush.C:
			h.flushSessions()
		}
	}
}

// Shutdown disconnects every client. Called on graceful stop.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	var all []*Client
	for _, clients := range h.rooms {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.Disconnect(c)
	}
}

// handleMessage routes one inbound frame through the dispatch table.
// Malformed frames and handler failures are rejected per-message; the
// connection stays alive.
func (h *Hub) handleMessage(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError(fmt.Errorf("%w: malformed frame", domain.ErrValidation))
		return
	}

	handler, ok := h.handlers[env.Type]
	if !ok {
		c.sendError(fmt.Errorf("%w: unknown message type %q", domain.ErrValidation, env.Type))
		return
	}

	if err := handler(c, env.Data); err != nil {
		h.logger.Debug("message rejected",
			logger.String("type", env.Type),
			logger.String("user_id", c.user.ID),
			logger.Error(err))
		c.sendError(err)
	}
}

// Disconnect runs the full teardown sequence for a connection: leave the
// bound room, notify remaining members, discard empty-room state, close.
func (h *Hub) Disconnect(c *Client) {
	h.leaveCurrentRoom(c)
	c.close()
}

// --- Room membership

func (h *Hub) handleEnterRoom(c *Client, data json.RawMessage) error {
	var p enterRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: bad enter-room payload", domain.ErrValidation)
	}

	roomID, err := domain.ResolveRoomID(p.URL)
	if err != nil {
		return err
	}

	// Switching rooms performs the full leave sequence first; membership
	// in two rooms at once is never allowed.
	if current := c.RoomID(); current != "" && current != roomID {
		h.leaveCurrentRoom(c)
	}

	h.mu.Lock()
	clients, ok := h.rooms[roomID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.rooms[roomID] = clients
	}
	clients[c] = struct{}{}
	h.mu.Unlock()

	sess := h.registry.Join(roomID, c.user)
	h.persistSession(sess)
	c.setRoom(roomID)

	h.logger.Info("user entered room",
		logger.String("room_id", roomID),
		logger.String("user_id", c.user.ID))

	frame, err := encodeEnvelope(EvtUserJoined, userEvent{
		RoomID:   roomID,
		UserID:   c.user.ID,
		Username: c.user.Username,
	})
	if err == nil {
		h.broadcast(roomID, c, frame)
	}

	c.sendEnvelope(EvtRoomJoined, h.snapshot(roomID, sess))
	return nil
}

func (h *Hub) handleLeaveRoom(c *Client, _ json.RawMessage) error {
	if c.RoomID() == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}
	h.leaveCurrentRoom(c)
	return nil
}

// leaveCurrentRoom removes the client from its bound room: session closed,
// cursor state discarded, remaining members notified, empty room dropped.
func (h *Hub) leaveCurrentRoom(c *Client) {
	roomID := c.RoomID()
	if roomID == "" {
		return
	}
	c.setRoom("")

	h.mu.Lock()
	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	final, found, empty := h.registry.Leave(roomID, c.user.ID)
	if found {
		// The final record carries IsActive=false so the durable row
		// matches the in-memory outcome.
		h.persistSession(final)
	}
	h.engine.Cleanup(roomID, c.user.ID)
	if empty {
		// No zombie rooms: the last leave discards all ephemeral state.
		h.engine.CleanupRoom(roomID)
	}

	h.logger.Info("user left room",
		logger.String("room_id", roomID),
		logger.String("user_id", c.user.ID))

	frame, err := encodeEnvelope(EvtUserLeft, userEvent{
		RoomID:   roomID,
		UserID:   c.user.ID,
		Username: c.user.Username,
	})
	if err == nil {
		h.broadcast(roomID, c, frame)
	}
}

// persistSession writes one session row through the storage port. Best
// effort: a store failure is logged and the in-memory state stands.
func (h *Hub) persistSession(s domain.Session) {
	if h.sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	if err := h.sessions.SaveSession(ctx, &s); err != nil {
		h.logger.Warn("failed to persist session",
			logger.String("room_id", s.RoomID),
			logger.String("user_id", s.UserID),
			logger.Error(err))
	}
}

// flushSessions re-persists every active session so durable rows pick up
// the activity the registry absorbed since the last flush.
func (h *Hub) flushSessions() {
	if h.sessions == nil {
		return
	}
	for _, roomID := range h.registry.Rooms() {
		for _, s := range h.registry.ListActive(roomID) {
			h.persistSession(s)
		}
	}
}

// snapshot assembles the enter-room acknowledgment. A storage failure
// degrades to an empty comment list rather than failing the join; the
// client can re-fetch over the synchronous API.
func (h *Hub) snapshot(roomID string, sess domain.Session) roomSnapshot {
	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	list, err := h.comments.ListComments(ctx, roomID)
	if err != nil {
		h.logger.Warn("failed to load comments for room snapshot",
			logger.String("room_id", roomID),
			logger.Error(err))
		list = []*domain.Comment{}
	}

	users := h.registry.ListActive(roomID)
	if len(users) == 0 {
		users = []domain.Session{sess}
	}

	return roomSnapshot{
		RoomID:   roomID,
		Users:    users,
		Cursors:  h.engine.Snapshot(roomID),
		Comments: list,
	}
}

// --- Cursor & presence messages

func (h *Hub) handleCursorMove(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p cursorMovePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: bad cursor-move payload", domain.ErrValidation)
	}

	pos := domain.Position{X: p.X, Y: p.Y}
	h.engine.UpdatePosition(roomID, c.user.ID, c.user.Username, pos, p.Color)
	h.registry.UpdateCursor(roomID, c.user.ID, pos)
	return nil
}

func (h *Hub) handleCursorBatch(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p cursorBatchPayload
	if err := json.Unmarshal(data, &p); err != nil || len(p.Positions) == 0 {
		return fmt.Errorf("%w: bad cursor-batch payload", domain.ErrValidation)
	}

	h.engine.UpdateBatch(roomID, c.user.ID, c.user.Username, p.Positions)
	h.registry.Touch(roomID, c.user.ID)
	return nil
}

func (h *Hub) handleClick(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p clickPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: bad click payload", domain.ErrValidation)
	}
	if !p.ClickType.Valid() {
		return fmt.Errorf("%w: unknown click type %q", domain.ErrValidation, p.ClickType)
	}

	h.engine.RecordClick(roomID, c.user.ID, c.user.Username, domain.Position{X: p.X, Y: p.Y}, p.ClickType)
	h.registry.Touch(roomID, c.user.ID)
	return nil
}

func (h *Hub) handlePresence(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p presencePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: bad presence payload", domain.ErrValidation)
	}

	if p.Idle {
		h.engine.SetIdle(roomID, c.user.ID, c.user.Username)
	} else {
		h.engine.SetActive(roomID, c.user.ID, c.user.Username)
		h.registry.Touch(roomID, c.user.ID)
	}
	return nil
}

// --- Comment messages

func (h *Hub) handleCommentCreate(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p commentCreatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: bad comment-create payload", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	_, err := h.comments.CreateComment(ctx, roomID, c.user, p.Content, p.Position, p.ParentID, p.ThreadID, p.XPath)
	return err
}

func (h *Hub) handleCommentDelete(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p commentRefPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CommentID == "" {
		return fmt.Errorf("%w: bad comment-delete payload", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	_, err := h.comments.DeleteComment(ctx, roomID, p.CommentID, c.user.ID)
	return err
}

func (h *Hub) handleCommentResolve(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p commentRefPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CommentID == "" {
		return fmt.Errorf("%w: bad comment-resolve payload", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	_, err := h.comments.ToggleResolved(ctx, roomID, p.CommentID, c.user.ID)
	return err
}

func (h *Hub) handleThreadCreate(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p threadCreatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: bad thread-create payload", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	_, err := h.comments.CreateThread(ctx, roomID, c.user, p.Content, p.Position, p.URL, p.PageTitle)
	return err
}

func (h *Hub) handleThreadResolve(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p threadRefPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ThreadID == "" {
		return fmt.Errorf("%w: bad thread-resolve payload", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	_, err := h.comments.ResolveThread(ctx, roomID, p.ThreadID, c.user.ID)
	return err
}

// --- Relay messages

func (h *Hub) handleSelectionShare(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p selectionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: bad selection-share payload", domain.ErrValidation)
	}

	h.registry.Touch(roomID, c.user.ID)
	frame, err := encodeEnvelope(EvtSelectionShared, selectionEvent{
		UserID:   c.user.ID,
		Username: c.user.Username,
		Text:     p.Text,
		XPath:    p.XPath,
	})
	if err != nil {
		return err
	}
	h.broadcast(roomID, c, frame)
	return nil
}

func (h *Hub) handleScrollSync(c *Client, data json.RawMessage) error {
	roomID := c.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", domain.ErrValidation)
	}

	var p scrollPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: bad scroll-sync payload", domain.ErrValidation)
	}

	h.registry.Touch(roomID, c.user.ID)
	frame, err := encodeEnvelope(EvtScrollSynced, scrollEvent{
		UserID:   c.user.ID,
		Username: c.user.Username,
		X:        p.X,
		Y:        p.Y,
		Ratio:    p.Ratio,
	})
	if err != nil {
		return err
	}
	h.broadcast(roomID, c, frame)
	return nil
}

// --- Fan-out

// fanoutTracking translates one tracking event into a wire frame and
// delivers it to every room member except the originating user.
func (h *Hub) fanoutTracking(ev tracking.Event) {
	var (
		frame []byte
		err   error
	)
	switch ev.Type {
	case tracking.EventCursorMove:
		frame, err = encodeEnvelope(EvtCursorUpdate, cursorUpdateEvent{
			UserID:   ev.UserID,
			Username: ev.Username,
			X:        ev.Position.X,
			Y:        ev.Position.Y,
			Velocity: ev.Velocity,
			Color:    ev.Color,
		})
	case tracking.EventCursorTrail:
		frame, err = encodeEnvelope(EvtCursorTrail, cursorBatchEvent{
			UserID:    ev.UserID,
			Username:  ev.Username,
			Positions: ev.Positions,
			Color:     ev.Color,
		})
	case tracking.EventCursorBatch:
		frame, err = encodeEnvelope(EvtCursorBatch, cursorBatchEvent{
			UserID:    ev.UserID,
			Username:  ev.Username,
			Positions: ev.Positions,
			Color:     ev.Color,
		})
	case tracking.EventClick:
		frame, err = encodeEnvelope(EvtCursorClicked, cursorClickEvent{
			UserID:    ev.UserID,
			Username:  ev.Username,
			X:         ev.Position.X,
			Y:         ev.Position.Y,
			ClickType: ev.Click,
			Color:     ev.Color,
		})
	case tracking.EventPresence:
		frame, err = encodeEnvelope(EvtPresence, presenceEvent{
			UserID:   ev.UserID,
			Username: ev.Username,
			Idle:     ev.Idle,
		})
	default:
		return
	}
	if err != nil {
		h.logger.Error("failed to encode tracking event", logger.Error(err))
		return
	}

	h.broadcastExceptUser(ev.RoomID, ev.UserID, frame)
}

// fanoutComment delivers a comment lifecycle event to every room member,
// actor included.
func (h *Hub) fanoutComment(ev comments.Event) {
	var evtType string
	switch ev.Kind {
	case comments.EventCreated:
		evtType = EvtCommentCreated
	case comments.EventUpdated:
		evtType = EvtCommentUpdated
	case comments.EventDeleted:
		evtType = EvtCommentDeleted
	case comments.EventResolved:
		evtType = EvtCommentResolved
	default:
		return
	}

	frame, err := encodeEnvelope(evtType, commentLifecycleEvent{
		RoomID:  ev.RoomID,
		ActorID: ev.ActorID,
		Comment: ev.Comment,
		Thread:  ev.Thread,
		At:      ev.At,
	})
	if err != nil {
		h.logger.Error("failed to encode comment event", logger.Error(err))
		return
	}

	h.broadcastExceptUser(ev.RoomID, "", frame)
}

// roomClients snapshots the members of a room so delivery happens outside
// the hub lock.
func (h *Hub) roomClients(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.rooms[roomID]
	out := make([]*Client, 0, len(clients))
	for c := range clients {
		out = append(out, c)
	}
	return out
}

// broadcast delivers a frame to every room member except the given
// connection. Clients whose send buffer is full are disconnected rather
// than allowed to block the room.
func (h *Hub) broadcast(roomID string, except *Client, frame []byte) {
	for _, c := range h.roomClients(roomID) {
		if c == except {
			continue
		}
		h.deliver(c, frame)
	}
}

// broadcastExceptUser delivers a frame to every room member except any
// connection of the given user id. Empty user id means deliver to all.
func (h *Hub) broadcastExceptUser(roomID, exceptUserID string, frame []byte) {
	for _, c := range h.roomClients(roomID) {
		if exceptUserID != "" && c.user.ID == exceptUserID {
			continue
		}
		h.deliver(c, frame)
	}
}

func (h *Hub) deliver(c *Client, frame []byte) {
	if c.enqueue(frame) {
		return
	}
	h.logger.Warn("dropping slow client",
		logger.String("user_id", c.user.ID),
		logger.String("room_id", c.RoomID()))
	go h.Disconnect(c)
}
