// Package devserver is an in-memory double of the WaveNet backend: the full
// REST surface plus the live event stream, for local development and
// integration tests.
package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/wavenet-im/chat-client/internal/domain"
	"github.com/wavenet-im/chat-client/internal/transport/ws"
)

type Server struct {
	store    *Store
	hub      *hub
	upgrader websocket.Upgrader
}

func New(store *Store) *Server {
	return &Server{
		store: store,
		hub:   newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/ws", s.HandleWS)

	r.Route("/conversations", func(cr chi.Router) {
		cr.Post("/", s.CreateConversation)
		cr.Get("/detail/{id}", s.ConversationDetail)
		cr.Get("/{userId}", s.ListConversations)
	})
	r.Get("/messages/{id}", s.ListMessages)
	r.Post("/messages", s.CreateMessage)
	r.Get("/users/search", s.SearchUsers)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrMessageTooLong):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// GET /conversations/{userId}
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	writeJSON(w, http.StatusOK, s.store.ConversationsFor(userID))
}

// GET /conversations/detail/{id}
func (s *Server) ConversationDetail(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Detail(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// POST /conversations
func (s *Server) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID   string `json:"senderId"`
		ReceiverID string `json:"receiverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	conv, err := s.store.EnsureConversation(req.SenderID, req.ReceiverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// GET /messages/{id}
func (s *Server) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.Messages(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// POST /messages — creates the message and broadcasts it to the room.
func (s *Server) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
		SenderID       string `json:"senderId"`
		Content        string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	msg, err := s.store.AppendMessage(req.ConversationID, req.SenderID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	s.hub.broadcastRoom(msg.ConversationID, envelope(ws.EventNewMessage, msg), nil)
	writeJSON(w, http.StatusCreated, msg)
}

// GET /users/search?q=&exclude=
func (s *Server) SearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.store.SearchUsers(q.Get("q"), q.Get("exclude")))
}

// GET /ws — the live stream endpoint.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newConn(sock)
	s.hub.add(c)
	s.readLoop(c)
	s.hub.remove(c)

	if c.userID != "" {
		s.store.SetOnline(c.userID, false)
		s.hub.broadcastAll(envelope(ws.EventUserOffline, ws.PresencePayload{UserID: c.userID}), c)
	}
	_ = c.close()
}

func (s *Server) readLoop(c *conn) {
	c.sock.SetReadLimit(1 << 20)

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.handleEvent(c, env)
	}
}

func (s *Server) handleEvent(c *conn, env ws.Envelope) {
	switch env.Event {
	case ws.EventSetup:
		var p ws.SetupPayload
		if ws.DecodePayload(env.Payload, &p) != nil || p.UserID == "" {
			return
		}
		c.userID = p.UserID
		s.store.EnsureUser(p.UserID)
		s.store.SetOnline(p.UserID, true)
		s.hub.broadcastAll(envelope(ws.EventUserOnline, ws.PresencePayload{UserID: p.UserID}), c)

	case ws.EventJoinConversation:
		var p ws.RoomPayload
		if ws.DecodePayload(env.Payload, &p) != nil || p.ConversationID == "" {
			return
		}
		s.hub.join(p.ConversationID, c)

	case ws.EventLeaveConversation:
		var p ws.RoomPayload
		if ws.DecodePayload(env.Payload, &p) != nil || p.ConversationID == "" {
			return
		}
		s.hub.leave(p.ConversationID, c)

	case ws.EventTyping, ws.EventStopTyping:
		var p ws.RoomPayload
		if ws.DecodePayload(env.Payload, &p) != nil || p.ConversationID == "" {
			return
		}
		relay := ws.TypingPayload{ConversationID: p.ConversationID, UserID: c.userID}
		s.hub.broadcastRoom(p.ConversationID, envelope(env.Event, relay), c)

	case ws.EventMarkMessagesSeen:
		var p ws.MarkSeenPayload
		if ws.DecodePayload(env.Payload, &p) != nil || p.ConversationID == "" || p.UserID == "" {
			return
		}
		if s.store.MarkSeen(p.ConversationID, p.UserID) {
			seen := ws.SeenPayload{ConversationID: p.ConversationID, SeenBy: p.UserID}
			s.hub.broadcastRoom(p.ConversationID, envelope(ws.EventMessagesSeen, seen), nil)
		}

	default:
		// unknown event kinds are dropped
	}
}

func envelope(event string, payload any) ws.Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("envelope marshal failed", "event", event, "err", err)
		return ws.Envelope{Event: event}
	}
	return ws.Envelope{Event: event, Payload: raw}
}

// Serve runs the devserver until the listener fails.
func (s *Server) Serve(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  0, // ws connections are long-lived
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}
