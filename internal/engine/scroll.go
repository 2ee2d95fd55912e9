package engine

// FollowTail decides whether the view should jump to the newest message
// after a log mutation. It is a pure function of the previous and new tail
// ids: any new tail (local send or remote arrival) is followed exactly once,
// while mutations that keep the tail id (seen-by unions) never move the
// view.
func FollowTail(prevTailID, newTailID string) bool {
	return newTailID != "" && newTailID != prevTailID
}

// Anchor carries the previous tail id across observations. A fresh Anchor,
// as created on conversation switch, follows its first tail (snap to
// newest).
type Anchor struct {
	prevTailID string
}

// Observe records the current tail and reports whether to follow it.
func (a *Anchor) Observe(tailID string) bool {
	follow := FollowTail(a.prevTailID, tailID)
	a.prevTailID = tailID
	return follow
}
