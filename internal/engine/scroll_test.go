package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFollowTail(t *testing.T) {
	assert.True(t, FollowTail("", "m1"), "first tail is followed")
	assert.True(t, FollowTail("m1", "m2"), "new tail is followed")
	assert.False(t, FollowTail("m2", "m2"), "seen-by-only mutation holds position")
	assert.False(t, FollowTail("m2", ""), "empty log never scrolls")
}

func TestAnchor_FollowsEachNewTailOnce(t *testing.T) {
	var a Anchor

	assert.True(t, a.Observe("m1"))
	assert.False(t, a.Observe("m1"), "receipt update on the same tail")
	assert.True(t, a.Observe("m2"))
	assert.False(t, a.Observe("m2"))
}

func TestAnchor_FreshAnchorSnapsToTail(t *testing.T) {
	var a Anchor
	a.Observe("m1")

	// conversation switch: a new anchor always follows its first tail
	fresh := Anchor{}
	assert.True(t, fresh.Observe("m1"))
}
