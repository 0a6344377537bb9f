package tracking

import (
	"sync"
	"time"

	"github.com/overlaylabs/copresence/internal/domain"
	"github.com/overlaylabs/copresence/internal/logger"
)

const (
	// DefaultThrottleWindow bounds outbound cursor-move frequency per user.
	DefaultThrottleWindow = 50 * time.Millisecond
	// DefaultTrailCap is the maximum number of positions kept in the trail buffer.
	DefaultTrailCap = 20
	// DefaultTrailBatch is the trail length at which a single trail event
	// is emitted and the buffer cleared.
	DefaultTrailBatch = 10
	// DefaultPathCap is the mouse-path length that triggers truncation.
	DefaultPathCap = 1000
	// DefaultPathKeep is the number of most recent positions retained
	// after truncation.
	DefaultPathKeep = 500
	// DefaultEventBuffer sizes the outbound event channel.
	DefaultEventBuffer = 256
)

// EventType tags outbound tracking events.
type EventType string

const (
	EventCursorMove  EventType = "cursor-update"
	EventCursorTrail EventType = "cursor-trail"
	EventCursorBatch EventType = "cursor-batch"
	EventClick       EventType = "cursor-clicked"
	EventPresence    EventType = "presence"
)

// Event is one broadcast-worthy tracking occurrence. Events flow to the
// broadcast manager over a typed channel; cursor chatter is best-effort and
// may be dropped under backpressure.
type Event struct {
	Type      EventType
	RoomID    string
	UserID    string
	Username  string
	Position  domain.Position
	Velocity  domain.Velocity
	Positions []domain.Position
	Color     string
	Click     domain.ClickType
	Idle      bool
	At        time.Time
}

// Options tune the engine. Zero values fall back to the defaults above.
type Options struct {
	ThrottleWindow time.Duration
	TrailCap       int
	TrailBatch     int
	PathCap        int
	PathKeep       int
	EventBuffer    int
	Now            func() time.Time // for testing, defaults to time.Now
}

func (o Options) withDefaults() Options {
	if o.ThrottleWindow <= 0 {
		o.ThrottleWindow = DefaultThrottleWindow
	}
	if o.TrailCap <= 0 {
		o.TrailCap = DefaultTrailCap
	}
	if o.TrailBatch <= 0 {
		o.TrailBatch = DefaultTrailBatch
	}
	if o.PathCap <= 0 {
		o.PathCap = DefaultPathCap
	}
	if o.PathKeep <= 0 || o.PathKeep > o.PathCap {
		o.PathKeep = DefaultPathKeep
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// cursorState is the per-(room,user) mutable tracking state.
type cursorState struct {
	username      string
	position      domain.Position
	velocity      domain.Velocity
	color         string
	idle          bool
	trail         []domain.Position
	path          []domain.Position
	lastBroadcast time.Time
	lastPosition  domain.Position
	hasBroadcast  bool
}

// Engine owns the ephemeral per-user motion state of every room: position,
// velocity, bounded trail, capped mouse path and idle flag. It throttles
// cursor broadcasts to one per window per user; updates arriving inside the
// window are absorbed into the trail without triggering a broadcast, which
// bounds network chatter without losing path fidelity.
type Engine struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*cursorState
	out    chan Event
	opts   Options
	logger logger.Logger
}

// NewEngine creates a tracking engine.
func NewEngine(opts Options, log logger.Logger) *Engine {
	return &Engine{
		rooms:  make(map[string]map[string]*cursorState),
		out:    make(chan Event, opts.withDefaults().EventBuffer),
		opts:   opts.withDefaults(),
		logger: log,
	}
}

// Events exposes the outbound event stream consumed by the broadcast manager.
func (e *Engine) Events() <-chan Event { return e.out }

// UpdatePosition records one cursor sample. The sample always lands in the
// trail and path buffers; a cursor-update event is only emitted when the
// throttle window since the last broadcast has elapsed.
func (e *Engine) UpdatePosition(roomID, userID, username string, pos domain.Position, color string) {
	e.mu.Lock()
	st := e.state(roomID, userID, username, color)
	now := e.opts.Now()

	st.position = pos
	st.idle = false
	e.absorb(st, pos)

	var trailEv *Event
	if len(st.trail) >= e.opts.TrailBatch {
		trailEv = &Event{
			Type:      EventCursorTrail,
			RoomID:    roomID,
			UserID:    userID,
			Username:  st.username,
			Positions: copyPositions(st.trail),
			Color:     st.color,
			At:        now,
		}
		st.trail = st.trail[:0]
	}

	var moveEv *Event
	if !st.hasBroadcast || now.Sub(st.lastBroadcast) >= e.opts.ThrottleWindow {
		st.velocity = velocityBetween(st.lastPosition, pos, now.Sub(st.lastBroadcast), st.hasBroadcast)
		moveEv = &Event{
			Type:     EventCursorMove,
			RoomID:   roomID,
			UserID:   userID,
			Username: st.username,
			Position: pos,
			Velocity: st.velocity,
			Color:    st.color,
			At:       now,
		}
		st.lastBroadcast = now
		st.lastPosition = pos
		st.hasBroadcast = true
	}
	e.mu.Unlock()

	if trailEv != nil {
		e.emit(*trailEv)
	}
	if moveEv != nil {
		e.emit(*moveEv)
	}
}

// UpdateBatch records a pre-batched run of positions from the client and
// relays it as a single cursor-batch event. Batches bypass throttling: the
// client already coalesced them.
func (e *Engine) UpdateBatch(roomID, userID, username string, positions []domain.Position) {
	if len(positions) == 0 {
		return
	}

	e.mu.Lock()
	st := e.state(roomID, userID, username, "")
	now := e.opts.Now()
	for _, p := range positions {
		e.absorb(st, p)
	}
	last := positions[len(positions)-1]
	st.position = last
	st.idle = false
	color := st.color
	name := st.username
	e.mu.Unlock()

	e.emit(Event{
		Type:      EventCursorBatch,
		RoomID:    roomID,
		UserID:    userID,
		Username:  name,
		Positions: copyPositions(positions),
		Color:     color,
		At:        now,
	})
}

// RecordClick emits a click event. Clicks are never throttled.
func (e *Engine) RecordClick(roomID, userID, username string, pos domain.Position, click domain.ClickType) {
	e.mu.Lock()
	st := e.state(roomID, userID, username, "")
	now := e.opts.Now()
	st.position = pos
	st.idle = false
	color := st.color
	name := st.username
	e.mu.Unlock()

	e.emit(Event{
		Type:     EventClick,
		RoomID:   roomID,
		UserID:   userID,
		Username: name,
		Position: pos,
		Click:    click,
		Color:    color,
		At:       now,
	})
}

// SetIdle flags a user as idle and emits a presence event.
func (e *Engine) SetIdle(roomID, userID, username string) {
	e.setIdle(roomID, userID, username, true)
}

// SetActive clears the idle flag and emits a presence event.
func (e *Engine) SetActive(roomID, userID, username string) {
	e.setIdle(roomID, userID, username, false)
}

func (e *Engine) setIdle(roomID, userID, username string, idle bool) {
	e.mu.Lock()
	st := e.state(roomID, userID, username, "")
	now := e.opts.Now()
	st.idle = idle
	name := st.username
	e.mu.Unlock()

	e.emit(Event{
		Type:     EventPresence,
		RoomID:   roomID,
		UserID:   userID,
		Username: name,
		Idle:     idle,
		At:       now,
	})
}

// Cleanup discards all tracking state for a user. When the room has no
// tracked users left its map entry is removed entirely; no zombie rooms.
func (e *Engine) Cleanup(roomID, userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	users, ok := e.rooms[roomID]
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(e.rooms, roomID)
	}
}

// CleanupRoom discards all tracking state for a room.
func (e *Engine) CleanupRoom(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.rooms, roomID)
}

// Snapshot returns a copy of every cursor currently tracked in a room,
// for the enter-room acknowledgment.
func (e *Engine) Snapshot(roomID string) []domain.CursorState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	users := e.rooms[roomID]
	out := make([]domain.CursorState, 0, len(users))
	for id, st := range users {
		out = append(out, domain.CursorState{
			UserID:   id,
			Username: st.username,
			Position: st.position,
			Velocity: st.velocity,
			Trail:    copyPositions(st.trail),
			Color:    st.color,
			IsIdle:   st.idle,
		})
	}
	return out
}

// Path returns a copy of the recorded mouse path for a user.
func (e *Engine) Path(roomID, userID string) []domain.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if users, ok := e.rooms[roomID]; ok {
		if st, ok := users[userID]; ok {
			return copyPositions(st.path)
		}
	}
	return nil
}

// RoomCount returns the number of rooms with live tracking state.
func (e *Engine) RoomCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.rooms)
}

// state returns the tracking state for (roomID, userID), creating it with a
// deterministic fallback color when absent. Caller holds e.mu.
func (e *Engine) state(roomID, userID, username, color string) *cursorState {
	users, ok := e.rooms[roomID]
	if !ok {
		users = make(map[string]*cursorState)
		e.rooms[roomID] = users
	}
	st, ok := users[userID]
	if !ok {
		st = &cursorState{
			username: username,
			color:    domain.CursorColor(userID),
		}
		users[userID] = st
	}
	if username != "" {
		st.username = username
	}
	if color != "" {
		st.color = color
	}
	return st
}

// absorb appends a position to the trail and path buffers, enforcing the
// trail cap (FIFO) and the path sliding-window retention. Caller holds e.mu.
func (e *Engine) absorb(st *cursorState, pos domain.Position) {
	st.trail = append(st.trail, pos)
	if len(st.trail) > e.opts.TrailCap {
		st.trail = st.trail[len(st.trail)-e.opts.TrailCap:]
	}

	st.path = append(st.path, pos)
	if len(st.path) > e.opts.PathCap {
		st.path = append(st.path[:0], st.path[len(st.path)-e.opts.PathKeep:]...)
	}
}

// emit pushes an event to the broadcast manager without ever blocking a
// message handler. Cursor chatter is best-effort: when the consumer lags,
// the event is dropped.
func (e *Engine) emit(ev Event) {
	select {
	case e.out <- ev:
	default:
		if e.logger != nil {
			e.logger.Debug("tracking event dropped, consumer lagging",
				logger.String("room_id", ev.RoomID),
				logger.String("type", string(ev.Type)))
		}
	}
}

// velocityBetween computes (Δx, Δy) / Δt in units per second. Zero when the
// elapsed time is zero (duplicate timestamps) or no prior broadcast exists.
func velocityBetween(from, to domain.Position, dt time.Duration, hasPrior bool) domain.Velocity {
	if !hasPrior || dt <= 0 {
		return domain.Velocity{}
	}
	secs := dt.Seconds()
	return domain.Velocity{
		DX: (to.X - from.X) / secs,
		DY: (to.Y - from.Y) / secs,
	}
}

func copyPositions(src []domain.Position) []domain.Position {
	if len(src) == 0 {
		return nil
	}
	out := make([]domain.Position, len(src))
	copy(out, src)
	return out
}
