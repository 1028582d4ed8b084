// Package rest is the JSON-over-HTTP client for the conversation/message
// API. It is the authoritative persistence path for sends and the bulk
// hydration source for the store.
package rest

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

	"go.uber.org/zap"

	"github.com/imramesh222/bms-chat/internal/auth"
	"github.com/imramesh222/bms-chat/internal/model"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response, carrying the server's detail/message field
// when one was present.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error (HTTP %d)", e.Status)
}

// Client talks to the dashboard backend with bearer authentication from the
// token supplier.
type Client struct {
	baseURL    string
	tokens     auth.TokenSource
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string, tokens auth.TokenSource, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conversations fetches the full conversation list with embedded last
// messages and participants.
func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	body, err := c.do(ctx, http.MethodGet, "/conversations", nil, nil)
	if err != nil {
		return nil, err
	}
	items, err := DecodeCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	out := make([]model.Conversation, 0, len(items))
	for _, raw := range items {
		conv, err := decodeConversation(raw)
		if err != nil {
			c.logger.Warn("skipping malformed conversation record", zap.Error(err))
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

// Messages fetches the ordered message history of one conversation.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	q := url.Values{"conversation_id": {conversationID}}
	body, err := c.do(ctx, http.MethodGet, "/messages", q, nil)
	if err != nil {
		return nil, err
	}
	items, err := DecodeCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	out := make([]model.Message, 0, len(items))
	for _, raw := range items {
		msg, err := decodeMessage(raw, conversationID)
		if err != nil {
			c.logger.Warn("skipping malformed message record", zap.Error(err))
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// CreateMessage persists a message and returns the authoritative record with
// the server-assigned ID and timestamp.
func (c *Client) CreateMessage(ctx context.Context, conversationID, content, senderID string) (model.Message, error) {
	payload := map[string]string{
		"content":      content,
		"conversation": conversationID,
		"sender":       senderID,
	}
	body, err := c.do(ctx, http.MethodPost, "/messages", nil, payload)
	if err != nil {
		return model.Message{}, err
	}
	return decodeMessage(body, conversationID)
}

// CreateConversation creates a conversation. name is required for groups.
func (c *Client) CreateConversation(ctx context.Context, participantIDs []string, isGroup bool, name string) (model.Conversation, error) {
	payload := map[string]any{
		"participant_ids": participantIDs,
		"is_group":        isGroup,
	}
	if name != "" {
		payload["name"] = name
	}
	body, err := c.do(ctx, http.MethodPost, "/conversations", nil, payload)
	if err != nil {
		return model.Conversation{}, err
	}
	return decodeConversation(body)
}

// MarkRead resets a conversation's unread counter server-side. Idempotent.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	_, err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/mark_as_read", nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Detail: errorDetail(body)}
	}
	return body, nil
}

// errorDetail extracts the server's "detail" or "message" field from an
// error body, falling back to empty.
func errorDetail(body []byte) string {
	var e struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}
