package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/wavenet-im/chat-client/internal/domain"
)

const maxMessageLen = 4000

type conversationRecord struct {
	id           string
	participants [2]string
	createdAt    time.Time
}

// Store is the in-memory state behind the devserver: users, conversations,
// messages, presence flags. Conversations between a pair of users are
// deduplicated, message order is append order, seen-by unions are monotonic.
type Store struct {
	mu            sync.RWMutex
	users         map[string]domain.Participant
	conversations map[string]*conversationRecord
	byPair        map[string]string // sorted "a|b" -> conversation id
	messages      map[string][]domain.Message
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]domain.Participant),
		conversations: make(map[string]*conversationRecord),
		byPair:        make(map[string]string),
		messages:      make(map[string][]domain.Message),
	}
}

func (s *Store) AddUser(p domain.Participant) {
	s.mu.Lock()
	s.users[p.ID] = p
	s.mu.Unlock()
}

// EnsureUser registers a bare record for an identity first seen over the
// live stream, so dev clients work without pre-seeding.
func (s *Store) EnsureUser(userID string) {
	s.mu.Lock()
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = domain.Participant{ID: userID, Username: userID}
	}
	s.mu.Unlock()
}

func (s *Store) SetOnline(userID string, online bool) {
	s.mu.Lock()
	if u, ok := s.users[userID]; ok {
		u.Online = online
		s.users[userID] = u
	}
	s.mu.Unlock()
}

func (s *Store) SearchUsers(query, excludeID string) []domain.Participant {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()
	users := lo.Filter(lo.Values(s.users), func(u domain.Participant, _ int) bool {
		if u.ID == excludeID {
			return false
		}
		return query == "" ||
			strings.Contains(strings.ToLower(u.Username), query) ||
			strings.Contains(strings.ToLower(u.Email), query)
	})
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// EnsureConversation creates or looks up the conversation between two users.
func (s *Store) EnsureConversation(senderID, receiverID string) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[senderID]; !ok {
		return domain.Conversation{}, domain.ErrUserNotFound
	}
	if _, ok := s.users[receiverID]; !ok {
		return domain.Conversation{}, domain.ErrUserNotFound
	}

	key := pairKey(senderID, receiverID)
	if id, ok := s.byPair[key]; ok {
		return s.assembleLocked(s.conversations[id]), nil
	}

	rec := &conversationRecord{
		id:           uuid.NewString(),
		participants: [2]string{senderID, receiverID},
		createdAt:    time.Now(),
	}
	s.conversations[rec.id] = rec
	s.byPair[key] = rec.id
	return s.assembleLocked(rec), nil
}

// ConversationsFor lists a user's conversations, newest activity first.
func (s *Store) ConversationsFor(userID string) []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Conversation, 0)
	for _, rec := range s.conversations {
		if rec.participants[0] != userID && rec.participants[1] != userID {
			continue
		}
		out = append(out, s.assembleLocked(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return lastActivity(out[i]).After(lastActivity(out[j]))
	})
	return out
}

func (s *Store) Detail(conversationID string) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.conversations[conversationID]
	if !ok {
		return domain.Conversation{}, domain.ErrConversationNotFound
	}
	return s.assembleLocked(rec), nil
}

func (s *Store) Messages(conversationID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, domain.ErrConversationNotFound
	}
	msgs := s.messages[conversationID]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		out[i].SeenBy = out[i].SeenBy.Clone()
	}
	return out, nil
}

func (s *Store) AppendMessage(conversationID, senderID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > maxMessageLen {
		return domain.Message{}, domain.ErrMessageTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return domain.Message{}, domain.ErrConversationNotFound
	}
	m := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().Truncate(time.Millisecond),
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	return m, nil
}

// MarkSeen unions userID into the seen-by set of every message in the
// conversation that userID did not send. Reports whether anything changed.
func (s *Store) MarkSeen(conversationID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID == userID {
			continue
		}
		seen := msgs[i].SeenBy
		if seen.Add(userID) {
			msgs[i].SeenBy = seen
			changed = true
		}
	}
	return changed
}

func (s *Store) assembleLocked(rec *conversationRecord) domain.Conversation {
	conv := domain.Conversation{
		ID:        rec.id,
		CreatedAt: rec.createdAt,
	}
	for _, id := range rec.participants {
		if u, ok := s.users[id]; ok {
			conv.Participants = append(conv.Participants, u)
		}
	}
	if msgs := s.messages[rec.id]; len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		last.SeenBy = last.SeenBy.Clone()
		conv.LastMessage = &last
	}
	return conv
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func lastActivity(c domain.Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	return c.CreatedAt
}
