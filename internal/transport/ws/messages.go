package ws

import "encoding/json"

// Event kinds carried over the live stream. The set is closed: the
// dispatcher drops anything it does not recognize.
const (
	EventSetup             = "setup"             // out: announce presence for an identity
	EventJoinConversation  = "joinConversation"  // out: enter a conversation room
	EventLeaveConversation = "leaveConversation" // out: leave a conversation room
	EventNewMessage        = "newMessage"        // in:  message broadcast to the room
	EventUserOnline        = "userOnline"        // in:  presence change
	EventUserOffline       = "userOffline"       // in:  presence change
	EventTyping            = "typing"            // out+in: typing indicator
	EventStopTyping        = "stopTyping"        // out+in: typing indicator cleared
	EventMarkMessagesSeen  = "markMessagesSeen"  // out: receipt request
	EventMessagesSeen      = "messagesSeen"      // in:  receipt broadcast
)

type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SetupPayload struct {
	UserID string `json:"userId"`
}

type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
}

type MarkSeenPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type SeenPayload struct {
	ConversationID string `json:"conversationId"`
	SeenBy         string `json:"seenBy"`
}

// DecodePayload unmarshals an envelope payload. An absent payload decodes as
// the zero value.
func DecodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
