// Package client is the Go SDK of the messaging API: an HTTP client, a realtime
// websocket client and the per-conversation session state machine built on them.
package client

import (
	"bytes"
	"circles/domain"
	"circles/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// API is what a session needs from the server.
type API interface {
	ListConversations(ctx context.Context) ([]domain.ConversationSummary, error)
	FindOrCreate(ctx context.Context, participantID int64) (Conversation, error)
	ListMessages(ctx context.Context, conversationID int64, cursor *int64, limit int) (domain.MessagePage, error)
	SendMessage(ctx context.Context, conversationID int64, content, clientID string) (domain.Message, error)
	MarkRead(ctx context.Context, conversationID int64) (time.Time, error)
	SetTyping(ctx context.Context, conversationID int64, isTyping bool) error
	Search(ctx context.Context, conversationID int64, query string, limit int) ([]domain.Message, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
}

// Conversation is the answer of FindOrCreate.
type Conversation struct {
	ID           int64         `json:"id"`
	Participants []domain.User `json:"participants"`
	IsNew        bool          `json:"isNew"`
}

// APIError is a non-2xx answer. It unwraps to the matching errors sentinel.
type APIError struct {
	Status  int
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api %d: %s (%s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return errors.ErrUnauthorized
	case http.StatusForbidden:
		return errors.ErrForbidden
	case http.StatusNotFound:
		return errors.ErrNotFound
	case http.StatusBadRequest:
		return errors.ErrInvalidInput
	case http.StatusServiceUnavailable:
		return errors.ErrSearchDisabled
	default:
		return nil
	}
}

var _ API = (*HTTPClient)(nil)

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type ClientOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) { h.httpClient = c }
}

func NewHTTPClient(baseURL, token string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) BaseURL() string { return c.baseURL }
func (c *HTTPClient) Token() string   { return c.token }

func (c *HTTPClient) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	var out []domain.ConversationSummary
	err := c.doRequest(ctx, http.MethodGet, "/api/conversations", nil, nil, &out)
	return out, err
}

func (c *HTTPClient) FindOrCreate(ctx context.Context, participantID int64) (Conversation, error) {
	var out Conversation
	err := c.doRequest(ctx, http.MethodPost, "/api/conversations", nil,
		map[string]int64{"participantId": participantID}, &out)
	return out, err
}

func (c *HTTPClient) ListMessages(ctx context.Context, conversationID int64, cursor *int64, limit int) (domain.MessagePage, error) {
	query := url.Values{}
	if cursor != nil {
		query.Set("cursor", strconv.FormatInt(*cursor, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out domain.MessagePage
	err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", conversationID), query, nil, &out)
	return out, err
}

func (c *HTTPClient) SendMessage(ctx context.Context, conversationID int64, content, clientID string) (domain.Message, error) {
	var out domain.Message
	err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", conversationID), nil,
		map[string]string{"content": content, "clientId": clientID}, &out)
	return out, err
}

func (c *HTTPClient) MarkRead(ctx context.Context, conversationID int64) (time.Time, error) {
	var out struct {
		ReadAt time.Time `json:"readAt"`
	}
	err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/conversations/%d/read", conversationID), nil, nil, &out)
	return out.ReadAt, err
}

func (c *HTTPClient) SetTyping(ctx context.Context, conversationID int64, isTyping bool) error {
	return c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/conversations/%d/typing", conversationID), nil,
		map[string]bool{"isTyping": isTyping}, nil)
}

func (c *HTTPClient) Search(ctx context.Context, conversationID int64, query string, limit int) ([]domain.Message, error) {
	params := url.Values{"q": []string{query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/conversations/%d/search", conversationID), params, nil, &out)
	return out.Messages, err
}

func (c *HTTPClient) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var out domain.User
	err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d", id), nil, nil, &out)
	return out, err
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
