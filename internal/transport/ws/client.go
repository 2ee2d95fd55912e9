package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait        = 5 * time.Second
	reconnectMinWait = 500 * time.Millisecond
	reconnectMaxWait = 15 * time.Second
)

var (
	ErrNotConnected = errors.New("ws: not connected")
	ErrClosed       = errors.New("ws: client closed")
)

// Handler receives the raw payload of one inbound event. Handlers for a
// single client are invoked serially, in delivery order; a handler runs to
// completion before the next event is dispatched.
type Handler func(payload json.RawMessage)

// Client owns one persistent connection for a signed-in identity. It emits
// outbound events fire-and-forget, dispatches inbound events to subscribers,
// and redials with capped backoff when the connection drops. Establishing a
// connection announces presence (setup) for the identity; the server holds
// no reconnection memory, so subscribers that need room membership must
// re-join from an OnConnect hook.
type Client struct {
	url    string
	userID string
	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	closed     bool
	nextID     int
	handlers   map[string]map[int]Handler
	connectFns map[int]func()
	done       chan struct{}
}

func NewClient(url, userID string) *Client {
	return &Client{
		url:        url,
		userID:     userID,
		dialer:     websocket.DefaultDialer,
		handlers:   make(map[string]map[int]Handler),
		connectFns: make(map[int]func()),
		done:       make(chan struct{}),
	}
}

// Dial establishes the connection and starts the read loop. It blocks only
// for the first dial; reconnects are handled internally.
func (c *Client) Dial(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.attach(conn)
	go c.run(conn)
	return nil
}

// Emit sends one event. There is no acknowledgement and no buffering while
// disconnected: callers must be safe to resend on reconnect.
func (c *Client) Emit(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(Envelope{Event: event, Payload: raw})
}

// Subscribe registers a handler for an event kind and returns its
// unsubscribe capability. Unsubscribing is idempotent.
func (c *Client) Subscribe(event string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	hs := c.handlers[event]
	if hs == nil {
		hs = make(map[int]Handler)
		c.handlers[event] = hs
	}
	hs[id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if hs, ok := c.handlers[event]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(c.handlers, event)
			}
		}
	}
}

// OnConnect registers a hook invoked after every successful (re)connect,
// once setup has been announced. Returns the unsubscribe capability.
func (c *Client) OnConnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.connectFns[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.connectFns, id)
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	fns := make([]func(), 0, len(c.connectFns))
	for _, fn := range c.connectFns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	// presence announcement comes before any reconciliation hooks
	if err := c.Emit(EventSetup, SetupPayload{UserID: c.userID}); err != nil {
		slog.Warn("ws setup announce failed", "user", c.userID, "err", err)
	}
	for _, fn := range fns {
		fn()
	}
}

func (c *Client) run(conn *websocket.Conn) {
	for {
		c.readLoop(conn)

		c.mu.Lock()
		c.connected = false
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		next, ok := c.redial()
		if !ok {
			return
		}
		conn = next
		c.attach(conn)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	c.mu.Lock()
	hs := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(env.Payload)
	}
}

// redial reconnects with capped backoff. Returns false once the client is
// closed.
func (c *Client) redial() (*websocket.Conn, bool) {
	wait := reconnectMinWait
	for {
		select {
		case <-c.done:
			return nil, false
		case <-time.After(wait):
		}

		conn, _, err := c.dialer.Dial(c.url, nil)
		if err == nil {
			return conn, true
		}
		slog.Debug("ws redial failed", "err", err, "next_wait", wait)
		wait *= 2
		if wait > reconnectMaxWait {
			wait = reconnectMaxWait
		}
	}
}
