// Package serverchat provides a client for the chat server's REST API and
// websocket stream.
package serverchat

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

	"github.com/aswatji/serverchat/internal/models"
)

// DefaultURL is used when no base URL is given.
const DefaultURL = "http://localhost:8080"

// Client is a chat server API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for responses with status >= 400.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("serverchat error %d: %s", e.StatusCode, e.Message)
}

// do performs an HTTP request and decodes the response into out when it is
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Realtime  map[string]int         `json:"realtime,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health. A degraded server answers 503, which is
// reported as an *APIError.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListUsers returns the newest users.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser registers a user.
func (c *Client) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	var user models.User
	in := map[string]string{"name": name, "email": email}
	if err := c.do(ctx, http.MethodPost, "/api/users", in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser returns one user.
func (c *Client) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a user and everything they participate in.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(userID), nil, nil)
}

// StartChat returns the chat between two users, creating it if needed.
func (c *Client) StartChat(ctx context.Context, user1ID, user2ID string) (*models.Chat, error) {
	var chat models.Chat
	in := map[string]string{"user1_id": user1ID, "user2_id": user2ID}
	if err := c.do(ctx, http.MethodPost, "/api/chats", in, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats returns a user's chats, most recently active first.
func (c *Client) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	if err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(userID), nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetMessages returns one page of a chat's history, oldest first.
func (c *Client) GetMessages(ctx context.Context, chatID string, page, limit int) ([]models.Message, error) {
	path := fmt.Sprintf("/api/messages/%s?page=%d&limit=%d", url.PathEscape(chatID), page, limit)

	var messages []models.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage posts a message; the server broadcasts it to the chat room.
func (c *Client) SendMessage(ctx context.Context, chatID, senderID, content string) (*models.Message, error) {
	var msg models.Message
	in := map[string]string{"chat_id": chatID, "sent_by": senderID, "content": content}
	if err := c.do(ctx, http.MethodPost, "/api/messages", in, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
