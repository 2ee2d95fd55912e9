package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/wavenet-im/chat-client/internal/domain"
	"github.com/wavenet-im/chat-client/internal/transport/ws"
)

// Conn is the connection handle the session depends on. It is passed in
// explicitly so tests can substitute a double and hold several isolated
// sessions against fake streams.
type Conn interface {
	Emitter
	Subscribe(event string, h ws.Handler) func()
	OnConnect(fn func()) func()
	Connected() bool
}

// API is the REST surface the session needs.
type API interface {
	Messages(ctx context.Context, conversationID string) ([]domain.Message, error)
	ConversationDetail(ctx context.Context, conversationID string) (domain.Conversation, error)
	SendMessage(ctx context.Context, conversationID, senderID, content string) (domain.Message, error)
}

// State is the single object the presentation layer renders. Every field is
// a copy; mutating it does not touch the session.
type State struct {
	ConversationID string
	Ready          bool // both snapshot halves have resolved at least once
	Messages       []domain.Message
	Partner        domain.Participant
	PartnerKnown   bool
	PartnerOnline  bool
	PartnerTyping  bool
	FollowTail     bool // scroll-anchor decision for this update
}

// Session binds one active conversation: it joins the room, requests the
// REST snapshot, routes the live events into the presence tracker, typing
// coordinator and message log, and publishes the merged view. Exactly one
// session is active at a time; Close tears everything down synchronously so
// no event leaks into a replacement session.
type Session struct {
	conversationID string
	selfID         string
	api            API
	conn           Conn
	presence       *Presence
	typing         *TypingCoordinator
	log            *MessageLog

	mu           sync.Mutex
	closed       bool
	opened       bool
	partner      domain.Participant
	partnerKnown bool
	remoteTyping bool
	msgsLoaded   bool
	detailLoaded bool
	anchor       Anchor
	unsubs       []func()

	onUpdate func(State)
	onError  func(error)
}

func NewSession(conversationID, selfID string, a API, c Conn, p *Presence, typingTimeout time.Duration) *Session {
	return &Session{
		conversationID: conversationID,
		selfID:         selfID,
		api:            a,
		conn:           c,
		presence:       p,
		typing:         NewTypingCoordinator(c, conversationID, typingTimeout),
		log:            NewMessageLog(),
	}
}

// OnUpdate sets the state callback. Must be set before Open; updates are
// delivered serially.
func (s *Session) OnUpdate(fn func(State)) { s.onUpdate = fn }

// OnError sets the callback for non-fatal failures (snapshot fetch, send).
func (s *Session) OnError(fn func(error)) { s.onError = fn }

// Open joins the live room and issues the snapshot fetch concurrently.
// Either half may resolve first; the view populates progressively and turns
// Ready once both have resolved.
func (s *Session) Open(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.opened {
		s.mu.Unlock()
		return
	}
	s.opened = true
	s.unsubs = []func(){
		s.conn.Subscribe(ws.EventNewMessage, s.handleNewMessage),
		s.conn.Subscribe(ws.EventUserOnline, s.presenceHandler(true)),
		s.conn.Subscribe(ws.EventUserOffline, s.presenceHandler(false)),
		s.conn.Subscribe(ws.EventTyping, s.typingHandler(true)),
		s.conn.Subscribe(ws.EventStopTyping, s.typingHandler(false)),
		s.conn.Subscribe(ws.EventMessagesSeen, s.handleMessagesSeen),
		s.conn.OnConnect(s.rejoin),
	}
	s.mu.Unlock()

	s.joinAndAnnounce()

	go s.fetchMessages(ctx)
	go s.fetchDetail(ctx)
}

// joinAndAnnounce enters the room and signals "I have seen this
// conversation" for the local identity. Re-run on every reconnect: the
// server keeps no client state across connections.
func (s *Session) joinAndAnnounce() {
	if err := s.conn.Emit(ws.EventJoinConversation, ws.RoomPayload{ConversationID: s.conversationID}); err != nil {
		slog.Warn("join conversation failed", "conversation", s.conversationID, "err", err)
	}
	s.emitSeen()
}

func (s *Session) rejoin() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.joinAndAnnounce()
}

func (s *Session) emitSeen() {
	err := s.conn.Emit(ws.EventMarkMessagesSeen, ws.MarkSeenPayload{
		ConversationID: s.conversationID,
		UserID:         s.selfID,
	})
	if err != nil {
		slog.Debug("mark seen emit failed", "conversation", s.conversationID, "err", err)
	}
}

// Send creates a message over REST and force-clears the typing signal. The
// message itself arrives back through the live stream; on error the caller
// keeps the input for retry.
func (s *Session) Send(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.mu.Unlock()

	s.typing.ForceStop()
	if _, err := s.api.SendMessage(ctx, s.conversationID, s.selfID, content); err != nil {
		s.reportError(err)
		return err
	}
	return nil
}

// InputChanged forwards a local input change to the typing coordinator.
func (s *Session) InputChanged() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.typing.InputChanged()
	}
}

// State returns the current merged view.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(false)
}

// Close detaches every live subscription, settles the typing signal, and
// leaves the room. It is synchronous: once it returns, no handler can
// mutate this session, and a new session may open.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	if s.conn.Connected() {
		s.typing.ForceStop()
		if err := s.conn.Emit(ws.EventLeaveConversation, ws.RoomPayload{ConversationID: s.conversationID}); err != nil {
			slog.Debug("leave conversation failed", "conversation", s.conversationID, "err", err)
		}
	} else {
		s.typing.Cancel()
	}
}

// --- snapshot ---

func (s *Session) fetchMessages(ctx context.Context) {
	msgs, err := s.api.Messages(ctx, s.conversationID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.msgsLoaded = true
	follow := false
	if err == nil {
		s.log.Initialize(msgs)
		s.log.MarkSeenBy(s.selfID)
		if tail, ok := s.log.Tail(); ok {
			follow = s.anchor.Observe(tail.ID)
		}
	}
	st := s.stateLocked(follow)
	s.mu.Unlock()

	if err != nil {
		slog.Warn("message snapshot failed", "conversation", s.conversationID, "err", err)
		s.reportError(err)
	}
	s.publish(st)
}

func (s *Session) fetchDetail(ctx context.Context) {
	conv, err := s.api.ConversationDetail(ctx, s.conversationID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.detailLoaded = true
	if err == nil {
		if partner, ok := conv.OtherParticipant(s.selfID); ok {
			s.partner = partner
			s.partnerKnown = true
		}
		s.presence.ApplySnapshot(conv.Participants)
	}
	st := s.stateLocked(false)
	s.mu.Unlock()

	if err != nil {
		slog.Warn("conversation detail failed", "conversation", s.conversationID, "err", err)
		s.reportError(err)
	}
	s.publish(st)
}

// --- live event handlers ---

func (s *Session) handleNewMessage(raw json.RawMessage) {
	var m domain.Message
	if err := ws.DecodePayload(raw, &m); err != nil || m.ConversationID != s.conversationID {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	appended := s.log.Append(m)
	inbound := appended && m.SenderID != s.selfID
	if inbound {
		s.log.MarkSeenBy(s.selfID)
	}
	follow := false
	if tail, ok := s.log.Tail(); ok {
		follow = s.anchor.Observe(tail.ID)
	}
	st := s.stateLocked(follow)
	s.mu.Unlock()

	if inbound {
		s.emitSeen()
	}
	s.publish(st)
}

func (s *Session) presenceHandler(online bool) ws.Handler {
	return func(raw json.RawMessage) {
		var p ws.PresencePayload
		if err := ws.DecodePayload(raw, &p); err != nil || p.UserID == "" {
			return
		}
		if online {
			s.presence.MarkOnline(p.UserID)
		} else {
			s.presence.MarkOffline(p.UserID)
		}

		s.mu.Lock()
		if s.closed || !s.partnerKnown || s.partner.ID != p.UserID {
			s.mu.Unlock()
			return
		}
		st := s.stateLocked(false)
		s.mu.Unlock()
		s.publish(st)
	}
}

func (s *Session) typingHandler(on bool) ws.Handler {
	return func(raw json.RawMessage) {
		var p ws.TypingPayload
		if err := ws.DecodePayload(raw, &p); err != nil || p.ConversationID != s.conversationID {
			return
		}

		s.mu.Lock()
		if s.closed || s.remoteTyping == on {
			s.mu.Unlock()
			return
		}
		s.remoteTyping = on
		st := s.stateLocked(false)
		s.mu.Unlock()
		s.publish(st)
	}
}

func (s *Session) handleMessagesSeen(raw json.RawMessage) {
	var p ws.SeenPayload
	if err := ws.DecodePayload(raw, &p); err != nil || p.ConversationID != s.conversationID {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := s.log.MarkSeenByRemote(p.SeenBy)
	if !changed {
		s.mu.Unlock()
		return
	}
	st := s.stateLocked(false)
	s.mu.Unlock()
	s.publish(st)
}

// --- view ---

func (s *Session) stateLocked(follow bool) State {
	return State{
		ConversationID: s.conversationID,
		Ready:          s.msgsLoaded && s.detailLoaded,
		Messages:       s.log.Messages(),
		Partner:        s.partner,
		PartnerKnown:   s.partnerKnown,
		PartnerOnline:  s.partnerKnown && s.presence.IsOnline(s.partner.ID),
		PartnerTyping:  s.remoteTyping,
		FollowTail:     follow,
	}
}

func (s *Session) publish(st State) {
	if s.onUpdate != nil {
		s.onUpdate(st)
	}
}

func (s *Session) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
