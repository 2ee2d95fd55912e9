package domain

import "time"

// Message is immutable once created except for SeenBy, which only grows.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	SeenBy         IDSet     `json:"seenBy,omitempty"`
}
