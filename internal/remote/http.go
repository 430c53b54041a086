// Package remote implements the Remote Conversation Repository: CRUD plus
// append-only message creation against the authenticated conversation
// service. Identifiers and timestamps are server-assigned.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andrewblevins/space-sub000/internal/space"
)

// Client talks JSON over HTTP to the conversation service. Every request
// carries the bearer credential from the TokenSource, read at call time so
// sign-in and sign-out mid-session take effect immediately.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  space.TokenSource
	logger  space.Logger
}

var _ space.RemoteRepository = (*Client)(nil)

// NewClient creates a Client for the service rooted at baseURL.
func NewClient(baseURL string, tokens space.TokenSource, logger space.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		logger:  logger,
	}
}

// conversationPayload is the service's wire form of a conversation.
type conversationPayload struct {
	ID           string           `json:"id"`
	Title        string           `json:"title,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	Messages     []messagePayload `json:"messages,omitempty"`
	MessageCount int              `json:"message_count"`
}

// messagePayload is the service's wire form of a message.
type messagePayload struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (c *Client) Create(ctx context.Context, title string, metadata map[string]any) (*space.Session, error) {
	body := map[string]any{}
	if title != "" {
		body["title"] = title
	}
	if metadata != nil {
		body["metadata"] = metadata
	}

	var payload conversationPayload
	if err := c.do(ctx, "create", http.MethodPost, "/api/conversations", body, &payload); err != nil {
		return nil, err
	}
	return payload.toSession(), nil
}

func (c *Client) Load(ctx context.Context, id string) (*space.Session, error) {
	var payload conversationPayload
	if err := c.do(ctx, "load", http.MethodGet, "/api/conversations/"+id, nil, &payload); err != nil {
		return nil, err
	}
	return payload.toSession(), nil
}

func (c *Client) Update(ctx context.Context, id string, fields space.ConversationUpdate) error {
	body := map[string]any{}
	if fields.Title != nil {
		body["title"] = *fields.Title
	}
	if fields.Metadata != nil {
		body["metadata"] = fields.Metadata
	}
	if len(body) == 0 {
		return nil
	}
	return c.do(ctx, "update", http.MethodPatch, "/api/conversations/"+id, body, nil)
}

func (c *Client) AppendMessage(ctx context.Context, id string, msg space.Message, metadata map[string]any) (*space.Message, error) {
	merged := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		merged[k] = v
	}
	if _, ok := merged["tags"]; !ok && len(msg.Tags) > 0 {
		merged["tags"] = msg.Tags
	}

	body := map[string]any{
		"type":    string(msg.Type),
		"content": msg.Content,
	}
	if len(merged) > 0 {
		body["metadata"] = merged
	}

	var payload messagePayload
	if err := c.do(ctx, "append_message", http.MethodPost, "/api/conversations/"+id+"/messages", body, &payload); err != nil {
		return nil, err
	}
	appended := payload.toMessage()
	return &appended, nil
}

func (c *Client) List(ctx context.Context) ([]*space.Session, error) {
	var payloads []conversationPayload
	if err := c.do(ctx, "list", http.MethodGet, "/api/conversations", nil, &payloads); err != nil {
		return nil, err
	}

	// The service returns conversations sorted by recency already; keep
	// its order.
	sessions := make([]*space.Session, 0, len(payloads))
	for i := range payloads {
		sessions = append(sessions, payloads[i].toSession())
	}
	return sessions, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, "/api/conversations/"+id, nil, nil)
}

// do performs one authenticated request. A missing credential fails before
// any network traffic with ErrAuthRequired.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	token, ok := c.tokens.Token()
	if !ok {
		return fmt.Errorf("remote %s: %w", op, space.ErrAuthRequired)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote %s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("remote %s: building request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &space.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkStatus(op, resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &space.RemoteError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}

func (c *Client) checkStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("remote %s: %w", op, space.ErrAuthRequired)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("remote %s: %w", op, space.ErrNotFound)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &space.RemoteError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", string(bytes.TrimSpace(detail))),
		}
	}
}

func (p *conversationPayload) toSession() *space.Session {
	sess := &space.Session{
		ID:           p.ID,
		Title:        p.Title,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		Metadata:     p.Metadata,
		MessageCount: p.MessageCount,
	}
	for _, mp := range p.Messages {
		sess.Messages = append(sess.Messages, mp.toMessage())
	}
	if sess.MessageCount == 0 {
		sess.MessageCount = len(sess.Messages)
	}
	return sess
}

func (p *messagePayload) toMessage() space.Message {
	msg := space.Message{
		Type:      space.MessageType(p.Type),
		Content:   p.Content,
		Timestamp: p.Timestamp,
		Saved:     true,
	}
	if raw, ok := p.Metadata["tags"]; ok {
		if items, ok := raw.([]any); ok {
			for _, item := range items {
				if tag, ok := item.(string); ok {
					msg.Tags = append(msg.Tags, tag)
				}
			}
		}
	}
	return msg
}
