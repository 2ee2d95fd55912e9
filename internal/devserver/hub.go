package devserver

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wavenet-im/chat-client/internal/transport/ws"
)

type conn struct {
	sock   *websocket.Conn
	userID string // set by the setup event

	sendMu chan struct{}
	closed chan struct{}
}

func newConn(sock *websocket.Conn) *conn {
	return &conn{
		sock:   sock,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *conn) send(env ws.Envelope) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.sock.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.sock.WriteJSON(env)
}

func (c *conn) close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return c.sock.Close()
}

// hub tracks connections and their conversation-room memberships. Joining a
// room does not leave previous ones; membership ends on an explicit leave or
// on disconnect.
type hub struct {
	mu        sync.RWMutex
	conns     map[*conn]struct{}
	rooms     map[string]map[*conn]struct{} // conversation id -> members
	connRooms map[*conn]map[string]struct{}
}

func newHub() *hub {
	return &hub{
		conns:     make(map[*conn]struct{}),
		rooms:     make(map[string]map[*conn]struct{}),
		connRooms: make(map[*conn]map[string]struct{}),
	}
}

func (h *hub) add(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.connRooms[c] = make(map[string]struct{})
	h.mu.Unlock()
}

func (h *hub) remove(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	for roomID := range h.connRooms[c] {
		h.leaveLocked(roomID, c)
	}
	delete(h.connRooms, c)
	h.mu.Unlock()
}

func (h *hub) join(roomID string, c *conn) {
	h.mu.Lock()
	room := h.rooms[roomID]
	if room == nil {
		room = make(map[*conn]struct{})
		h.rooms[roomID] = room
	}
	room[c] = struct{}{}
	if memberships := h.connRooms[c]; memberships != nil {
		memberships[roomID] = struct{}{}
	}
	h.mu.Unlock()
}

func (h *hub) leave(roomID string, c *conn) {
	h.mu.Lock()
	h.leaveLocked(roomID, c)
	if memberships := h.connRooms[c]; memberships != nil {
		delete(memberships, roomID)
	}
	h.mu.Unlock()
}

func (h *hub) leaveLocked(roomID string, c *conn) {
	if room := h.rooms[roomID]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// broadcastRoom sends to every member of the room, best-effort. except, when
// non-nil, is skipped.
func (h *hub) broadcastRoom(roomID string, env ws.Envelope, except *conn) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		if c == except {
			continue
		}
		_ = c.send(env)
	}
}

// broadcastAll sends to every connection, best-effort; used for presence.
func (h *hub) broadcastAll(env ws.Envelope, except *conn) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if c == except {
			continue
		}
		_ = c.send(env)
	}
}
