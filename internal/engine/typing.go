package engine

import (
	"sync"
	"time"

	"github.com/wavenet-im/chat-client/internal/transport/ws"
)

// Emitter is the outbound half of the connection handle that the typing
// coordinator needs.
type Emitter interface {
	Emit(event string, payload any) error
}

// TypingCoordinator owns the outbound typing signal of one conversation.
// The signal is leading-edge debounced: the first input change emits
// "typing" once, every further change only re-arms the timer, and
// "stopTyping" is emitted exactly once per armed deadline unless renewed.
// The timer is an owned slot so cancellation on conversation switch is
// guaranteed, never a leaked emission into the next room.
type TypingCoordinator struct {
	emitter        Emitter
	conversationID string
	timeout        time.Duration

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
	gen    int
}

func NewTypingCoordinator(emitter Emitter, conversationID string, timeout time.Duration) *TypingCoordinator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &TypingCoordinator{
		emitter:        emitter,
		conversationID: conversationID,
		timeout:        timeout,
	}
}

// InputChanged records one local input change. Emits "typing" only on the
// leading edge of a burst; every call re-arms the expiry timer.
func (t *TypingCoordinator) InputChanged() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.typing {
		t.typing = true
		_ = t.emitter.Emit(ws.EventTyping, ws.RoomPayload{ConversationID: t.conversationID})
	}
	t.armLocked()
}

// ForceStop clears the flag and emits "stopTyping" if it was set. Called on
// message send and on session close, even if the timer already expired.
func (t *TypingCoordinator) ForceStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
	if t.typing {
		t.typing = false
		_ = t.emitter.Emit(ws.EventStopTyping, ws.RoomPayload{ConversationID: t.conversationID})
	}
}

// Cancel clears the flag and timer without emitting anything. Used when the
// connection is already gone and an emission could not be delivered anyway.
func (t *TypingCoordinator) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
	t.typing = false
}

func (t *TypingCoordinator) armLocked() {
	t.stopTimerLocked()
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.timeout, func() { t.expire(gen) })
}

func (t *TypingCoordinator) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *TypingCoordinator) expire(gen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// a re-arm or cancel between firing and locking invalidates this expiry
	if gen != t.gen || !t.typing {
		return
	}
	t.typing = false
	t.timer = nil
	_ = t.emitter.Emit(ws.EventStopTyping, ws.RoomPayload{ConversationID: t.conversationID})
}
