package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavenet-im/chat-client/internal/domain"
	"github.com/wavenet-im/chat-client/internal/transport/ws"
)

// fakeConn is an in-memory connection handle double with a controllable
// inbound stream.
type fakeConn struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]ws.Handler
	connect  map[int]func()
	emitted  []fakeEmit
	offline  bool
}

type fakeEmit struct {
	event   string
	payload any
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		handlers: make(map[string]map[int]ws.Handler),
		connect:  make(map[int]func()),
	}
}

func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	c.emitted = append(c.emitted, fakeEmit{event: event, payload: payload})
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Subscribe(event string, h ws.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	hs := c.handlers[event]
	if hs == nil {
		hs = make(map[int]ws.Handler)
		c.handlers[event] = hs
	}
	hs[id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

func (c *fakeConn) OnConnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.connect[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.connect, id)
	}
}

func (c *fakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.offline
}

// deliver pushes one inbound event through the registered handlers, the way
// the read loop would.
func (c *fakeConn) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	c.mu.Lock()
	hs := make([]ws.Handler, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(raw)
	}
}

func (c *fakeConn) reconnect() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.connect))
	for _, fn := range c.connect {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *fakeConn) countEmitted(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.emitted {
		if e.event == event {
			n++
		}
	}
	return n
}

func (c *fakeConn) handlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, hs := range c.handlers {
		n += len(hs)
	}
	return n
}

type fakeAPI struct {
	mu         sync.Mutex
	msgs       []domain.Message
	conv       domain.Conversation
	msgsErr    error
	detailErr  error
	msgsGate   chan struct{}
	detailGate chan struct{}
	sent       []string
}

func (a *fakeAPI) Messages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if a.msgsGate != nil {
		<-a.msgsGate
	}
	return a.msgs, a.msgsErr
}

func (a *fakeAPI) ConversationDetail(ctx context.Context, conversationID string) (domain.Conversation, error) {
	if a.detailGate != nil {
		<-a.detailGate
	}
	return a.conv, a.detailErr
}

func (a *fakeAPI) SendMessage(ctx context.Context, conversationID, senderID, content string) (domain.Message, error) {
	a.mu.Lock()
	a.sent = append(a.sent, content)
	a.mu.Unlock()
	return domain.Message{ID: "sent", ConversationID: conversationID, SenderID: senderID, Content: content}, nil
}

func waitState(t *testing.T, ch <-chan State, pred func(State) bool) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if pred(st) {
				return st
			}
		case <-deadline:
			t.Fatal("timed out waiting for session state")
			return State{}
		}
	}
}

func newTestSession(t *testing.T, a *fakeAPI) (*Session, *fakeConn, chan State) {
	t.Helper()
	conn := newFakeConn()
	s := NewSession("conv-1", "self", a, conn, NewPresence(), time.Minute)
	updates := make(chan State, 64)
	s.OnUpdate(func(st State) { updates <- st })
	t.Cleanup(s.Close)
	return s, conn, updates
}

func TestSession_OpenLoadsSnapshotAndJoins(t *testing.T) {
	a := &fakeAPI{
		msgs: []domain.Message{msg("1", "peer"), msg("2", "self")},
		conv: domain.Conversation{
			ID: "conv-1",
			Participants: []domain.Participant{
				{ID: "self", Username: "me"},
				{ID: "peer", Username: "them", Online: true},
			},
		},
	}
	s, conn, updates := newTestSession(t, a)
	s.Open(context.Background())

	st := waitState(t, updates, func(st State) bool { return st.Ready })
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "them", st.Partner.Username)
	assert.True(t, st.PartnerOnline, "snapshot online flag folds into presence")
	assert.True(t, st.Messages[0].SeenBy.Has("self"), "entering marks the peer's messages seen")
	assert.False(t, st.Messages[1].SeenBy.Has("self"), "own message is not self-seen")

	assert.Equal(t, 1, conn.countEmitted(ws.EventJoinConversation))
	assert.Equal(t, 1, conn.countEmitted(ws.EventMarkMessagesSeen))
}

func TestSession_InboundMessageAppendsAndAcknowledges(t *testing.T) {
	a := &fakeAPI{conv: domain.Conversation{ID: "conv-1", Participants: []domain.Participant{{ID: "self"}, {ID: "peer"}}}}
	s, conn, updates := newTestSession(t, a)
	s.Open(context.Background())
	waitState(t, updates, func(st State) bool { return st.Ready })

	conn.deliver(t, ws.EventNewMessage, msg("m1", "peer"))

	st := waitState(t, updates, func(st State) bool { return len(st.Messages) == 1 })
	assert.True(t, st.FollowTail, "a new tail is followed")
	assert.True(t, st.Messages[0].SeenBy.Has("self"))
	assert.Equal(t, 2, conn.countEmitted(ws.EventMarkMessagesSeen), "once on entry, once per inbound message")
}

func TestSession_DuplicateDeliveryDoesNotGrowLog(t *testing.T) {
	a := &fakeAPI{msgs: []domain.Message{msg("1", "peer"), msg("2", "peer")}}
	s, conn, updates := newTestSession(t, a)
	s.Open(context.Background())
	waitState(t, updates, func(st State) bool { return st.Ready })

	conn.deliver(t, ws.EventNewMessage, msg("2", "peer", "u9"))

	st := waitState(t, updates, func(st State) bool { return st.Messages[1].SeenBy.Has("u9") })
	assert.Len(t, st.Messages, 2)
	assert.False(t, st.FollowTail, "tail id unchanged, view holds position")
}

func TestSession_ForeignConversationEventsAreDropped(t *testing.T) {
	a := &fakeAPI{}
	s, conn, updates := newTestSession(t, a)
	s.Open(context.Background())
	waitState(t, updates, func(st State) bool { return st.Ready })

	foreign := msg("x", "peer")
	foreign.ConversationID = "conv-other"
	conn.deliver(t, ws.EventNewMessage, foreign)
	conn.deliver(t, ws.EventTyping, ws.TypingPayload{ConversationID: "conv-other"})

	st := s.State()
	assert.Empty(t, st.Messages)
	assert.False(t, st.PartnerTyping)
	assert.Equal(t, 1, conn.countEmitted(ws.EventMarkMessagesSeen), "no receipt for a foreign message")
}

func TestSession_RemoteTypingLastEventWins(t *testing.T) {
	a := &fakeAPI{}
	s, conn, updates := newTestSession(t, a)
	s.Open(context.Background())
	waitState(t, updates, func(st State) bool { return st.Ready })

	conn.deliver(t, ws.EventTyping, ws.TypingPayload{ConversationID: "conv-1", UserID: "peer"})
	st := waitState(t, updates, func(st State) bool { return st.PartnerTyping })
	assert.True(t, st.PartnerTyping)

	conn.deliver(t, ws.EventStopTyping, ws.TypingPayload{ConversationID: "conv-1", UserID: "peer"})
	assert.False(t, s.State().PartnerTyping)
}

func TestSession_RemoteSeenUnionsWithoutScroll(t *testing.T) {
	a := &fakeAPI{msgs: []domain.Message{msg("1", "self")}}
	s, conn, updates := newTestSession(t, a)
	s.Open(context.Background())
	waitState(t, updates, func(st State) bool { return st.Ready })

	conn.deliver(t, ws.EventMessagesSeen, ws.SeenPayload{ConversationID: "conv-1", SeenBy: "peer"})

	st := waitState(t, updates, func(st State) bool { return st.Messages[0].SeenBy.Has("peer") })
	assert.False(t, st.FollowTail, "receipt updates must not move the scroll position")

	// re-delivery changes nothing, so no further update is published
	conn.deliver(t, ws.EventMessagesSeen, ws.SeenPayload{ConversationID: "conv-1", SeenBy: "peer"})
	assert.Equal(t, 1, s.State().Messages[0].SeenBy.Len())
}

func TestSession_PresenceUpdatesOnlyForPartner(t *testing.T) {
	a := &fakeAPI{conv: domain.Conversation{ID: "conv-1", Participants: []domain.Participant{{ID: "self"}, {ID: "peer"}}}}
	s, conn, updates := newTestSession(t, a)
	s.Open(context.Background())
	waitState(t, updates, func(st State) bool { return st.Ready && st.PartnerKnown })

	conn.deliver(t, ws.EventUserOnline, ws.PresencePayload{UserID: "peer"})
	st := waitState(t, updates, func(st State) bool { return st.PartnerOnline })
	assert.True(t, st.PartnerOnline)

	conn.deliver(t, ws.EventUserOffline, ws.PresencePayload{UserID: "peer"})
	assert.False(t, s.State().PartnerOnline)
}

func TestSession_ProgressiveLoading(t *testing.T) {
	gate := make(chan struct{})
	a := &fakeAPI{
		msgs:       []domain.Message{msg("1", "peer")},
		conv:       domain.Conversation{ID: "conv-1", Participants: []domain.Participant{{ID: "self"}, {ID: "peer"}}},
		detailGate: gate,
	}
	s, _, updates := newTestSession(t, a)
	s.Open(context.Background())

	// messages resolve first: render progressively, not yet ready
	st := waitState(t, updates, func(st State) bool { return len(st.Messages) == 1 })
	assert.False(t, st.Ready)

	close(gate)
	st = waitState(t, updates, func(st State) bool { return st.Ready })
	assert.True(t, st.PartnerKnown)
}

func TestSession_CloseDetachesEverything(t *testing.T) {
	a := &fakeAPI{}
	s, conn, updates := newTestSession(t, a)
	s.Open(context.Background())
	waitState(t, updates, func(st State) bool { return st.Ready })

	s.InputChanged() // arm the outbound typing flag
	s.Close()

	assert.Equal(t, 0, conn.handlerCount(), "all subscriptions detached")
	assert.Equal(t, 1, conn.countEmitted(ws.EventLeaveConversation))
	assert.Equal(t, 1, conn.countEmitted(ws.EventStopTyping), "armed typing settles on close")

	// a late event for the closed session mutates nothing
	conn.deliver(t, ws.EventNewMessage, msg("late", "peer"))
	assert.Empty(t, s.State().Messages)
	assert.ErrorIs(t, s.Send(context.Background(), "hello"), domain.ErrSessionClosed)
}

func TestSession_SwitchIsolation(t *testing.T) {
	conn := newFakeConn()
	presence := NewPresence()

	a1 := &fakeAPI{}
	s1 := NewSession("conv-A", "self", a1, conn, presence, time.Minute)
	upd1 := make(chan State, 64)
	s1.OnUpdate(func(st State) { upd1 <- st })
	s1.Open(context.Background())
	waitState(t, upd1, func(st State) bool { return st.Ready })
	s1.Close()

	a2 := &fakeAPI{}
	s2 := NewSession("conv-B", "self", a2, conn, presence, time.Minute)
	upd2 := make(chan State, 64)
	s2.OnUpdate(func(st State) { upd2 <- st })
	s2.Open(context.Background())
	waitState(t, upd2, func(st State) bool { return st.Ready })
	defer s2.Close()

	// an event scoped to A, delivered after the switch
	late := msg("a1", "peer")
	late.ConversationID = "conv-A"
	conn.deliver(t, ws.EventNewMessage, late)

	assert.Empty(t, s1.State().Messages, "closed session is not resurrected")
	assert.Empty(t, s2.State().Messages, "the new session never sees A's event")
}

func TestSession_RejoinOnReconnect(t *testing.T) {
	a := &fakeAPI{}
	s, conn, updates := newTestSession(t, a)
	s.Open(context.Background())
	waitState(t, updates, func(st State) bool { return st.Ready })

	conn.reconnect()

	assert.Equal(t, 2, conn.countEmitted(ws.EventJoinConversation), "room re-joined after reconnect")
	assert.Equal(t, 2, conn.countEmitted(ws.EventMarkMessagesSeen))
}

func TestSession_SendForceClearsTyping(t *testing.T) {
	a := &fakeAPI{}
	s, conn, updates := newTestSession(t, a)
	s.Open(context.Background())
	waitState(t, updates, func(st State) bool { return st.Ready })

	s.InputChanged()
	require.Equal(t, 1, conn.countEmitted(ws.EventTyping))

	require.NoError(t, s.Send(context.Background(), "hello"))
	assert.Equal(t, 1, conn.countEmitted(ws.EventStopTyping))
	assert.Equal(t, []string{"hello"}, a.sent)
}
