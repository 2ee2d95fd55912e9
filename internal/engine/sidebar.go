package engine

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/wavenet-im/chat-client/internal/domain"
)

// SidebarAPI is the REST surface the conversation list needs.
type SidebarAPI interface {
	Conversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	CreateConversation(ctx context.Context, senderID, receiverID string) (string, error)
	SearchUsers(ctx context.Context, query, excludeID string) ([]domain.Participant, error)
}

// Entry is one sidebar row: a conversation resolved to its other
// participant.
type Entry struct {
	ConversationID string
	Partner        domain.Participant
	LastMessage    *domain.Message
	Online         bool
}

// Sidebar lists the local user's conversations and starts new ones. It is
// plain request/response glue; the sync engine proper lives in Session.
type Sidebar struct {
	api      SidebarAPI
	selfID   string
	presence *Presence
}

func NewSidebar(a SidebarAPI, selfID string, p *Presence) *Sidebar {
	return &Sidebar{api: a, selfID: selfID, presence: p}
}

// Refresh fetches the conversation summaries and resolves each to a row.
// Conversations whose peer cannot be resolved are skipped.
func (s *Sidebar) Refresh(ctx context.Context) ([]Entry, error) {
	convs, err := s.api.Conversations(ctx, s.selfID)
	if err != nil {
		return nil, fmt.Errorf("refresh sidebar: %w", err)
	}

	return lo.FilterMap(convs, func(c domain.Conversation, _ int) (Entry, bool) {
		partner, ok := c.OtherParticipant(s.selfID)
		if !ok {
			return Entry{}, false
		}
		s.presence.ApplySnapshot(c.Participants)
		return Entry{
			ConversationID: c.ID,
			Partner:        partner,
			LastMessage:    c.LastMessage,
			Online:         s.presence.IsOnline(partner.ID),
		}, true
	}), nil
}

// Search finds participant candidates for starting a conversation, always
// excluding the local identity.
func (s *Sidebar) Search(ctx context.Context, query string) ([]domain.Participant, error) {
	return s.api.SearchUsers(ctx, query, s.selfID)
}

// StartConversation creates or looks up the conversation with the given
// user and returns the id to select.
func (s *Sidebar) StartConversation(ctx context.Context, otherUserID string) (string, error) {
	id, err := s.api.CreateConversation(ctx, s.selfID, otherUserID)
	if err != nil {
		return "", fmt.Errorf("start conversation: %w", err)
	}
	return id, nil
}
