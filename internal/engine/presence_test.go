package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wavenet-im/chat-client/internal/domain"
)

func TestPresence_DefaultsOffline(t *testing.T) {
	p := NewPresence()
	assert.False(t, p.IsOnline("nobody"))
}

func TestPresence_Idempotent(t *testing.T) {
	p := NewPresence()
	p.MarkOnline("u1")
	p.MarkOnline("u1")
	assert.True(t, p.IsOnline("u1"))

	p.MarkOffline("u1")
	p.MarkOffline("u1")
	assert.False(t, p.IsOnline("u1"))

	// offline for an unknown id must not panic or register anything
	p.MarkOffline("u2")
	assert.False(t, p.IsOnline("u2"))
}

func TestPresence_SnapshotOnlyUpgrades(t *testing.T) {
	p := NewPresence()
	p.MarkOnline("u1")

	// stale snapshot says u1 is offline and u2 is online
	p.ApplySnapshot([]domain.Participant{
		{ID: "u1", Online: false},
		{ID: "u2", Online: true},
	})

	assert.True(t, p.IsOnline("u1"), "snapshot cannot downgrade a live signal")
	assert.True(t, p.IsOnline("u2"))
}
