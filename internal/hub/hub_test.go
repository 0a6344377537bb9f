package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/overlaylabs/copresence/internal/comments"
	"github.com/overlaylabs/copresence/internal/domain"
	"github.com/overlaylabs/copresence/internal/registry"
	"github.com/overlaylabs/copresence/internal/tracking"
)

type memStore struct {
	mu           sync.Mutex
	comments     map[string]*domain.Comment
	threads      map[string]*domain.CommentThread
	sessions     map[string]*domain.Session
	sessionSaves int
}

func newMemStore() *memStore {
	return &memStore{
		comments: make(map[string]*domain.Comment),
		threads:  make(map[string]*domain.CommentThread),
		sessions: make(map[string]*domain.Session),
	}
}

func (m *memStore) SaveSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.RoomID+"|"+s.UserID] = &cp
	m.sessionSaves++
	return nil
}

func (m *memStore) sessionRow(roomID, userID string) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[roomID+"|"+userID]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionSaves
}

func (m *memStore) SaveComment(_ context.Context, c *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.comments[c.ID] = &cp
	return nil
}

func (m *memStore) GetComment(_ context.Context, id string) (*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListComments(_ context.Context, roomID string) ([]*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Comment
	for _, c := range m.comments {
		if c.RoomID == roomID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) SoftDeleteComment(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Deleted = true
	c.DeletedAt = &at
	return nil
}

func (m *memStore) SaveThread(_ context.Context, t *domain.CommentThread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.threads[t.ID] = &cp
	return nil
}

func (m *memStore) GetThread(_ context.Context, id string) (*domain.CommentThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...zap.Field) {}
func (nopLogger) Info(string, ...zap.Field)  {}
func (nopLogger) Warn(string, ...zap.Field)  {}
func (nopLogger) Error(string, ...zap.Field) {}
func (nopLogger) Fatal(string, ...zap.Field) {}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Fatalf(string, ...interface{}) {}

func (nopLogger) Sync() error { return nil }

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h, _ := newTestHubWithStore(t)
	return h
}

func newTestHubWithStore(t *testing.T, opts ...Option) (*Hub, *memStore) {
	t.Helper()
	log := nopLogger{}
	store := newMemStore()
	eng := tracking.NewEngine(tracking.Options{}, log)
	reg := registry.New()
	svc := comments.NewService(store, log)
	return New(reg, eng, svc, store, log, opts...), store
}

func connect(h *Hub, id, name string) *Client {
	return NewClient(h, nil, domain.UserInfo{ID: id, Username: name}, 32)
}

func enter(t *testing.T, h *Hub, c *Client, url string) string {
	t.Helper()
	data, _ := json.Marshal(enterRoomPayload{URL: url})
	h.handleMessage(c, mustEnvelope(t, MsgEnterRoom, data))
	env := recvEnvelope(t, c)
	if env.Type != EvtRoomJoined {
		t.Fatalf("expected %s, got %s", EvtRoomJoined, env.Type)
	}
	var snap roomSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("bad snapshot: %v", err)
	}
	return snap.RoomID
}

func mustEnvelope(t *testing.T, msgType string, data json.RawMessage) []byte {
	t.Helper()
	raw, err := json.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func recvEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return Envelope{}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEnterRoomSnapshot(t *testing.T) {
	h := newTestHub(t)
	alice := connect(h, "u1", "alice")

	roomID := enter(t, h, alice, "https://example.com/page")
	if roomID == "" {
		t.Fatal("empty room id")
	}
	if got := alice.RoomID(); got != roomID {
		t.Fatalf("client bound to %q, want %q", got, roomID)
	}

	want, err := domain.ResolveRoomID("https://example.com/page?utm=1#sec")
	if err != nil {
		t.Fatal(err)
	}
	if roomID != want {
		t.Fatalf("room id %q does not match normalized identity %q", roomID, want)
	}
}

func TestEnterRoomRejectsInvalidURL(t *testing.T) {
	h := newTestHub(t)
	c := connect(h, "u1", "alice")

	data, _ := json.Marshal(enterRoomPayload{URL: "not a url"})
	h.handleMessage(c, mustEnvelope(t, MsgEnterRoom, data))

	env := recvEnvelope(t, c)
	if env.Type != EvtError {
		t.Fatalf("expected error frame, got %s", env.Type)
	}
	var p errorPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Code != "invalid_url" {
		t.Fatalf("code = %q, want invalid_url", p.Code)
	}
	if c.RoomID() != "" {
		t.Fatal("client should not be bound to a room")
	}
}

func TestJoinNotifiesOtherMembers(t *testing.T) {
	h := newTestHub(t)
	alice := connect(h, "u1", "alice")
	bob := connect(h, "u2", "bob")

	roomID := enter(t, h, alice, "https://example.com/doc")
	enter(t, h, bob, "https://example.com/doc")

	env := recvEnvelope(t, alice)
	if env.Type != EvtUserJoined {
		t.Fatalf("expected %s, got %s", EvtUserJoined, env.Type)
	}
	var ev userEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.UserID != "u2" || ev.RoomID != roomID {
		t.Fatalf("unexpected join event: %+v", ev)
	}
}

func TestSwitchingRoomsLeavesFirst(t *testing.T) {
	h := newTestHub(t)
	alice := connect(h, "u1", "alice")
	bob := connect(h, "u2", "bob")

	first := enter(t, h, alice, "https://example.com/a")
	enter(t, h, bob, "https://example.com/a")
	recvEnvelope(t, alice) // bob joined

	second := enter(t, h, alice, "https://example.com/b")
	if first == second {
		t.Fatal("distinct URLs must map to distinct rooms")
	}

	env := recvEnvelope(t, bob)
	if env.Type != EvtUserLeft {
		t.Fatalf("expected %s, got %s", EvtUserLeft, env.Type)
	}
	if h.registry.RoomCount(first) != 1 {
		t.Fatalf("first room should only hold bob, got %d members", h.registry.RoomCount(first))
	}
}

func TestMessagesRequireRoom(t *testing.T) {
	h := newTestHub(t)
	c := connect(h, "u1", "alice")

	for _, msgType := range []string{MsgCursorMove, MsgClick, MsgCommentCreate, MsgSelectionShare} {
		h.handleMessage(c, mustEnvelope(t, msgType, json.RawMessage(`{}`)))
		env := recvEnvelope(t, c)
		if env.Type != EvtError {
			t.Fatalf("%s without a room: expected error frame, got %s", msgType, env.Type)
		}
	}
}

func TestUnknownMessageType(t *testing.T) {
	h := newTestHub(t)
	c := connect(h, "u1", "alice")

	h.handleMessage(c, mustEnvelope(t, "teleport", json.RawMessage(`{}`)))
	env := recvEnvelope(t, c)
	if env.Type != EvtError {
		t.Fatalf("expected error frame, got %s", env.Type)
	}
}

func TestCursorFanoutExcludesSender(t *testing.T) {
	h := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	alice := connect(h, "u1", "alice")
	bob := connect(h, "u2", "bob")
	enter(t, h, alice, "https://example.com/doc")
	enter(t, h, bob, "https://example.com/doc")
	recvEnvelope(t, alice) // bob joined

	data, _ := json.Marshal(cursorMovePayload{X: 10, Y: 20})
	h.handleMessage(alice, mustEnvelope(t, MsgCursorMove, data))

	env := recvEnvelope(t, bob)
	if env.Type != EvtCursorUpdate {
		t.Fatalf("expected %s, got %s", EvtCursorUpdate, env.Type)
	}
	var ev cursorUpdateEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.UserID != "u1" || ev.X != 10 || ev.Y != 20 {
		t.Fatalf("unexpected cursor event: %+v", ev)
	}
	expectNoFrame(t, alice)
}

func TestClickRejectsUnknownType(t *testing.T) {
	h := newTestHub(t)
	c := connect(h, "u1", "alice")
	enter(t, h, c, "https://example.com/doc")

	data, _ := json.Marshal(clickPayload{X: 1, Y: 2, ClickType: "quadruple"})
	h.handleMessage(c, mustEnvelope(t, MsgClick, data))

	env := recvEnvelope(t, c)
	if env.Type != EvtError {
		t.Fatalf("expected error frame, got %s", env.Type)
	}
}

func TestCommentLifecycleFanoutIncludesActor(t *testing.T) {
	h := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	alice := connect(h, "u1", "alice")
	bob := connect(h, "u2", "bob")
	enter(t, h, alice, "https://example.com/doc")
	enter(t, h, bob, "https://example.com/doc")
	recvEnvelope(t, alice) // bob joined

	data, _ := json.Marshal(commentCreatePayload{
		Content:  "ship it",
		Position: domain.Position{X: 5, Y: 6},
	})
	h.handleMessage(alice, mustEnvelope(t, MsgCommentCreate, data))

	for _, c := range []*Client{alice, bob} {
		env := recvEnvelope(t, c)
		if env.Type != EvtCommentCreated {
			t.Fatalf("expected %s for %s, got %s", EvtCommentCreated, c.user.ID, env.Type)
		}
		var ev commentLifecycleEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.ActorID != "u1" || ev.Comment == nil || ev.Comment.Content != "ship it" {
			t.Fatalf("unexpected comment event: %+v", ev)
		}
	}
}

func TestDeleteCommentAuthorOnly(t *testing.T) {
	h := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	alice := connect(h, "u1", "alice")
	bob := connect(h, "u2", "bob")
	enter(t, h, alice, "https://example.com/doc")
	enter(t, h, bob, "https://example.com/doc")
	recvEnvelope(t, alice) // bob joined

	data, _ := json.Marshal(commentCreatePayload{Content: "mine"})
	h.handleMessage(alice, mustEnvelope(t, MsgCommentCreate, data))

	env := recvEnvelope(t, bob)
	var created commentLifecycleEvent
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}
	recvEnvelope(t, alice) // same created event

	ref, _ := json.Marshal(commentRefPayload{CommentID: created.Comment.ID})
	h.handleMessage(bob, mustEnvelope(t, MsgCommentDelete, ref))

	errEnv := recvEnvelope(t, bob)
	if errEnv.Type != EvtError {
		t.Fatalf("expected error frame, got %s", errEnv.Type)
	}
	var p errorPayload
	if err := json.Unmarshal(errEnv.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Code != "forbidden" {
		t.Fatalf("code = %q, want forbidden", p.Code)
	}
}

func TestSelectionShareRelaysToOthers(t *testing.T) {
	h := newTestHub(t)
	alice := connect(h, "u1", "alice")
	bob := connect(h, "u2", "bob")
	enter(t, h, alice, "https://example.com/doc")
	enter(t, h, bob, "https://example.com/doc")
	recvEnvelope(t, alice) // bob joined

	data, _ := json.Marshal(selectionPayload{Text: "look here", XPath: "/html/body/p[2]"})
	h.handleMessage(alice, mustEnvelope(t, MsgSelectionShare, data))

	env := recvEnvelope(t, bob)
	if env.Type != EvtSelectionShared {
		t.Fatalf("expected %s, got %s", EvtSelectionShared, env.Type)
	}
	var ev selectionEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Text != "look here" || ev.UserID != "u1" {
		t.Fatalf("unexpected selection event: %+v", ev)
	}
	expectNoFrame(t, alice)
}

func TestDisconnectCleansUpRoom(t *testing.T) {
	h := newTestHub(t)
	alice := connect(h, "u1", "alice")
	bob := connect(h, "u2", "bob")
	roomID := enter(t, h, alice, "https://example.com/doc")
	enter(t, h, bob, "https://example.com/doc")
	recvEnvelope(t, alice) // bob joined

	h.Disconnect(bob)

	env := recvEnvelope(t, alice)
	if env.Type != EvtUserLeft {
		t.Fatalf("expected %s, got %s", EvtUserLeft, env.Type)
	}
	if h.registry.RoomCount(roomID) != 1 {
		t.Fatalf("room should hold one member, got %d", h.registry.RoomCount(roomID))
	}

	h.Disconnect(alice)
	if h.registry.RoomCount(roomID) != 0 {
		t.Fatal("empty room should be discarded")
	}
	if h.engine.RoomCount() != 0 {
		t.Fatal("empty room cursor state should be discarded")
	}
	if len(h.roomClients(roomID)) != 0 {
		t.Fatal("hub should have dropped the room")
	}
}

func TestJoinWritesDurableSessionRow(t *testing.T) {
	h, store := newTestHubWithStore(t)
	alice := connect(h, "u1", "alice")

	roomID := enter(t, h, alice, "https://example.com/doc")

	row, ok := store.sessionRow(roomID, "u1")
	if !ok {
		t.Fatal("join did not persist a session row")
	}
	if !row.IsActive || row.Username != "alice" {
		t.Fatalf("unexpected session row: %+v", row)
	}

	h.Disconnect(alice)

	row, ok = store.sessionRow(roomID, "u1")
	if !ok {
		t.Fatal("leave should rewrite the row, not remove it")
	}
	if row.IsActive {
		t.Fatal("leave should persist the row as inactive")
	}
}

func TestSessionFlushCoalescesActivity(t *testing.T) {
	h, store := newTestHubWithStore(t, WithSessionFlush(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	alice := connect(h, "u1", "alice")
	enter(t, h, alice, "https://example.com/doc")

	base := store.saveCount()
	deadline := time.Now().Add(2 * time.Second)
	for store.saveCount() <= base {
		if time.Now().After(deadline) {
			t.Fatal("flush never re-persisted the active session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSnapshotContainsExistingComments(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	alice := connect(h, "u1", "alice")
	roomID := enter(t, h, alice, "https://example.com/doc")

	if _, err := h.comments.CreateComment(ctx, roomID, alice.user, "already here", domain.Position{}, "", "", ""); err != nil {
		t.Fatal(err)
	}

	bob := connect(h, "u2", "bob")
	data, _ := json.Marshal(enterRoomPayload{URL: "https://example.com/doc"})
	h.handleMessage(bob, mustEnvelope(t, MsgEnterRoom, data))

	env := recvEnvelope(t, bob)
	if env.Type != EvtRoomJoined {
		t.Fatalf("expected %s, got %s", EvtRoomJoined, env.Type)
	}
	var snap roomSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Comments) != 1 || snap.Comments[0].Content != "already here" {
		t.Fatalf("snapshot comments = %+v", snap.Comments)
	}
	if len(snap.Users) != 2 {
		t.Fatalf("snapshot users = %d, want 2", len(snap.Users))
	}
}
