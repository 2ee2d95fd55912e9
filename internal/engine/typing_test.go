package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavenet-im/chat-client/internal/transport/ws"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) Emit(event string, payload any) error {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
	return nil
}

func (e *recordingEmitter) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	copy(out, e.events)
	return out
}

func count(events []string, kind string) int {
	n := 0
	for _, e := range events {
		if e == kind {
			n++
		}
	}
	return n
}

func TestTyping_LeadingEdgeDebounce(t *testing.T) {
	em := &recordingEmitter{}
	tc := NewTypingCoordinator(em, "conv-1", 60*time.Millisecond)

	// three input changes inside one burst
	tc.InputChanged()
	time.Sleep(15 * time.Millisecond)
	tc.InputChanged()
	time.Sleep(15 * time.Millisecond)
	tc.InputChanged()

	// burst still open: one typing, no stop yet
	events := em.snapshot()
	require.Equal(t, 1, count(events, ws.EventTyping))
	require.Equal(t, 0, count(events, ws.EventStopTyping))

	// let the re-armed timer expire
	time.Sleep(150 * time.Millisecond)
	events = em.snapshot()
	assert.Equal(t, 1, count(events, ws.EventTyping))
	assert.Equal(t, 1, count(events, ws.EventStopTyping))
	assert.Equal(t, []string{ws.EventTyping, ws.EventStopTyping}, events)
}

func TestTyping_RearmExtendsDeadline(t *testing.T) {
	em := &recordingEmitter{}
	tc := NewTypingCoordinator(em, "conv-1", 50*time.Millisecond)

	tc.InputChanged()
	time.Sleep(35 * time.Millisecond)
	tc.InputChanged() // re-arms; original deadline (t=50ms) must not fire
	time.Sleep(35 * time.Millisecond)

	assert.Equal(t, 0, count(em.snapshot(), ws.EventStopTyping))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, count(em.snapshot(), ws.EventStopTyping))
}

func TestTyping_ForceStopOnSend(t *testing.T) {
	em := &recordingEmitter{}
	tc := NewTypingCoordinator(em, "conv-1", time.Minute)

	tc.InputChanged()
	tc.ForceStop()

	events := em.snapshot()
	assert.Equal(t, []string{ws.EventTyping, ws.EventStopTyping}, events)

	// force-stop when already cleared emits nothing more
	tc.ForceStop()
	assert.Len(t, em.snapshot(), 2)
}

func TestTyping_NewBurstAfterStop(t *testing.T) {
	em := &recordingEmitter{}
	tc := NewTypingCoordinator(em, "conv-1", time.Minute)

	tc.InputChanged()
	tc.ForceStop()
	tc.InputChanged()

	events := em.snapshot()
	assert.Equal(t, 2, count(events, ws.EventTyping), "a new burst re-emits typing")
}

func TestTyping_CancelEmitsNothing(t *testing.T) {
	em := &recordingEmitter{}
	tc := NewTypingCoordinator(em, "conv-1", 30*time.Millisecond)

	tc.InputChanged()
	tc.Cancel()

	time.Sleep(80 * time.Millisecond)
	events := em.snapshot()
	assert.Equal(t, 0, count(events, ws.EventStopTyping), "cancelled timer must not leak an emission")
	assert.Equal(t, 1, count(events, ws.EventTyping))
}
