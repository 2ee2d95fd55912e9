// Package engine is the realtime conversation sync engine: it merges the
// REST snapshot with the live push stream into one coherent view per open
// conversation.
package engine

import (
	"sync"

	"github.com/wavenet-im/chat-client/internal/domain"
)

// Presence maps participant id to online state. It is advisory and
// eventually consistent: unknown participants read as offline, repeated
// signals are no-ops, and a brief stale "offline" after reconnect is fine.
type Presence struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func NewPresence() *Presence {
	return &Presence{online: make(map[string]struct{})}
}

func (p *Presence) MarkOnline(participantID string) {
	if participantID == "" {
		return
	}
	p.mu.Lock()
	p.online[participantID] = struct{}{}
	p.mu.Unlock()
}

func (p *Presence) MarkOffline(participantID string) {
	p.mu.Lock()
	delete(p.online, participantID)
	p.mu.Unlock()
}

func (p *Presence) IsOnline(participantID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[participantID]
	return ok
}

// ApplySnapshot folds the online flags of a snapshot's participants in.
// Snapshot data may lag the stream, so it only ever upgrades to online; a
// snapshot cannot force someone offline past a fresher live signal.
func (p *Presence) ApplySnapshot(participants []domain.Participant) {
	p.mu.Lock()
	for _, part := range participants {
		if part.Online && part.ID != "" {
			p.online[part.ID] = struct{}{}
		}
	}
	p.mu.Unlock()
}
