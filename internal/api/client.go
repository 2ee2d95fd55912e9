// Package api is the typed client for the WaveNet REST surface: history and
// participant snapshots, message creation, conversation lookup, user search.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wavenet-im/chat-client/internal/domain"
)

const maxMessageLen = 4000

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Conversations lists the sidebar summaries for a user, newest activity
// first, each with its participants and embedded last message.
func (c *Client) Conversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	if err := c.get(ctx, "/conversations/"+url.PathEscape(userID), &out); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

// ConversationDetail fetches the full snapshot including the participant
// list.
func (c *Client) ConversationDetail(ctx context.Context, conversationID string) (domain.Conversation, error) {
	var out domain.Conversation
	if err := c.get(ctx, "/conversations/detail/"+url.PathEscape(conversationID), &out); err != nil {
		return domain.Conversation{}, fmt.Errorf("conversation detail: %w", err)
	}
	return out, nil
}

// Messages fetches the ordered history, oldest first.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var out []domain.Message
	if err := c.get(ctx, "/messages/"+url.PathEscape(conversationID), &out); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

// SendMessage creates a message. Validation failures are reported locally so
// the caller keeps the input for retry.
func (c *Client) SendMessage(ctx context.Context, conversationID, senderID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > maxMessageLen {
		return domain.Message{}, domain.ErrMessageTooLong
	}

	req := SendMessageRequest{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	var out domain.Message
	if err := c.post(ctx, "/messages", req, &out); err != nil {
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}
	return out, nil
}

// CreateConversation creates or looks up the conversation between two users
// and returns its identifier.
func (c *Client) CreateConversation(ctx context.Context, senderID, receiverID string) (string, error) {
	req := CreateConversationRequest{SenderID: senderID, ReceiverID: receiverID}
	var out domain.Conversation
	if err := c.post(ctx, "/conversations", req, &out); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return out.ID, nil
}

// SearchUsers finds participant candidates by name or email, excluding the
// given identity (the searcher).
func (c *Client) SearchUsers(ctx context.Context, query, excludeID string) ([]domain.Participant, error) {
	q := url.Values{}
	q.Set("q", query)
	if excludeID != "" {
		q.Set("exclude", excludeID)
	}
	var out []domain.Participant
	if err := c.get(ctx, "/users/search?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, dst)
}

func (c *Client) post(ctx context.Context, path string, body, dst any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dst)
}

func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e ErrorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return fmt.Errorf("server: %s (status %d)", e.Error, resp.StatusCode)
	}
	return fmt.Errorf("server: status %d", resp.StatusCode)
}
