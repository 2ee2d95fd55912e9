package domain

import "time"

// Conversation is a two-party channel. The live-event room for a
// conversation is scoped by its ID.
type Conversation struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// OtherParticipant resolves the peer of selfID in a two-party conversation.
func (c Conversation) OtherParticipant(selfID string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return Participant{}, false
}
