package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wander-app/wander/internal/domain"
	"github.com/wander-app/wander/internal/transport"
)

// apiClient covers the request/response half of the gateway contract.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Code != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *apiClient) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	path := "/api/v1/conversations?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *apiClient) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var out struct {
		Messages []domain.Message `json:"messages"`
		HasMore  bool             `json:"has_more"`
	}
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *apiClient) SendMessage(ctx context.Context, input transport.SendMessageInput) (*domain.Message, error) {
	var msg domain.Message
	path := "/api/v1/conversations/" + url.PathEscape(input.ConversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, input, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *apiClient) MarkRead(ctx context.Context, conversationID, userID string) error {
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/read"
	body := map[string]string{"user_id": userID}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *apiClient) CreateOrGetConversation(ctx context.Context, userID, otherUserID string) (string, error) {
	var conv domain.Conversation
	body := map[string]string{"user_id": userID, "other_user_id": otherUserID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations/get-or-create", body, &conv); err != nil {
		return "", err
	}
	return conv.ID, nil
}

func (c *apiClient) CreateConversationWithInitialMessage(ctx context.Context, input transport.CreateConversationInput) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations", input, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}
