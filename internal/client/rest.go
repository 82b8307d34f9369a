package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/pkg/response"
)

// APIError is a non-2xx response decoded from the API envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// HasCode reports whether err is an APIError carrying the given code.
func HasCode(err error, code string) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == code
}

// APIClient talks to the support-chat REST surface on behalf of one
// authenticated user.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *APIClient) CreateChat(ctx context.Context, title string) (*domain.Chat, error) {
	var chat domain.Chat
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPost, "/api/v1/chats", body, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *APIClient) MyChats(ctx context.Context) ([]domain.Chat, error) {
	var chats []domain.Chat
	if err := c.do(ctx, http.MethodGet, "/api/v1/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *APIClient) History(ctx context.Context, chatID string) ([]domain.Message, error) {
	var msgs []domain.Message
	if err := c.do(ctx, http.MethodGet, "/api/v1/chats/"+chatID+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *APIClient) AssignedChats(ctx context.Context) ([]domain.Chat, error) {
	var chats []domain.Chat
	if err := c.do(ctx, http.MethodGet, "/api/v1/librarian/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *APIClient) UnassignedChats(ctx context.Context) ([]domain.Chat, error) {
	var chats []domain.Chat
	if err := c.do(ctx, http.MethodGet, "/api/v1/librarian/chats/unassigned", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *APIClient) Claim(ctx context.Context, chatID string) (*domain.Chat, error) {
	var chat domain.Chat
	if err := c.do(ctx, http.MethodPost, "/api/v1/librarian/chats/"+chatID+"/assign", nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *APIClient) CloseChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	var chat domain.Chat
	if err := c.do(ctx, http.MethodPost, "/api/v1/librarian/chats/"+chatID+"/close", nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env response.Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && env.Data != nil {
		raw, err := json.Marshal(env.Data)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, out)
	}
	return nil
}
