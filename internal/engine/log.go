package engine

import (
	"sync"

	"github.com/wavenet-im/chat-client/internal/domain"
)

// MessageLog is the ordered, deduplicated message sequence of the active
// conversation. Initialization replaces it wholesale from a snapshot;
// live messages append at the tail. A duplicate id never lengthens the log,
// it only unions seen-by, and seen-by never shrinks.
type MessageLog struct {
	mu    sync.RWMutex
	order []domain.Message
	index map[string]int // id -> position in order
}

func NewMessageLog() *MessageLog {
	return &MessageLog{index: make(map[string]int)}
}

// Initialize replaces the log with the snapshot, preserving snapshot order.
// Used once per conversation activation.
func (l *MessageLog) Initialize(msgs []domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.order = make([]domain.Message, 0, len(msgs))
	l.index = make(map[string]int, len(msgs))
	for _, m := range msgs {
		if pos, ok := l.index[m.ID]; ok {
			// a snapshot should not repeat ids; merge if it does
			seen := l.order[pos].SeenBy
			seen.Union(m.SeenBy)
			l.order[pos].SeenBy = seen
			continue
		}
		m.SeenBy = m.SeenBy.Clone()
		l.index[m.ID] = len(l.order)
		l.order = append(l.order, m)
	}
}

// Append inserts at the tail if the id is new and reports whether it did.
// Re-delivery of a known id unions seen-by and leaves the entry otherwise
// unchanged.
func (l *MessageLog) Append(m domain.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos, ok := l.index[m.ID]; ok {
		seen := l.order[pos].SeenBy
		seen.Union(m.SeenBy)
		l.order[pos].SeenBy = seen
		return false
	}
	m.SeenBy = m.SeenBy.Clone()
	l.index[m.ID] = len(l.order)
	l.order = append(l.order, m)
	return true
}

// MarkSeenBy unions participantID into the seen-by set of every message the
// participant did not send: the local "I have now seen up through here"
// signal. Reports whether anything changed.
func (l *MessageLog) MarkSeenBy(participantID string) bool {
	return l.markSeen(participantID)
}

// MarkSeenByRemote is the symmetric union applied when the server reports
// the peer has seen messages.
func (l *MessageLog) MarkSeenByRemote(participantID string) bool {
	return l.markSeen(participantID)
}

func (l *MessageLog) markSeen(participantID string) bool {
	if participantID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := false
	for i := range l.order {
		if l.order[i].SenderID == participantID {
			continue
		}
		seen := l.order[i].SeenBy
		if seen.Add(participantID) {
			l.order[i].SeenBy = seen
			changed = true
		}
	}
	return changed
}

// Messages returns a copy of the log in visible order.
func (l *MessageLog) Messages() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Message, len(l.order))
	copy(out, l.order)
	for i := range out {
		out[i].SeenBy = out[i].SeenBy.Clone()
	}
	return out
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Tail returns the newest entry, if any.
func (l *MessageLog) Tail() (domain.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.order) == 0 {
		return domain.Message{}, false
	}
	m := l.order[len(l.order)-1]
	m.SeenBy = m.SeenBy.Clone()
	return m, true
}
