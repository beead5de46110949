// Package client talks to a taskgate gateway: REST calls for the task API
// and a WebSocket stream for real-time events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/taskgate/internal/domain"
)

const maxResponseSize = 4 << 20

var ErrNotLoggedIn = errors.New("client: not logged in")

// APIError is a non-2xx gateway response.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("client: %d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("client: %d %s", e.Status, e.Title)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client is a REST client for the /api/v1 surface.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a client for the gateway at baseURL. A nil httpClient gets a
// 30s timeout client.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("client.New: invalid base URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// SetToken sets the bearer token used for every protected call.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the gateway root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

type session struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

// Login authenticates and keeps the issued token.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, error) {
	var out session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", false, body, &out); err != nil {
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	c.SetToken(out.AccessToken)
	return out.User, nil
}

// CreateTask creates a task in status (empty means TODO).
func (c *Client) CreateTask(ctx context.Context, title, description string, status domain.TaskStatus) (*domain.Task, error) {
	body := map[string]any{"title": title}
	if description != "" {
		body["description"] = description
	}
	if status != "" {
		body["status"] = status
	}
	var out domain.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", true, body, &out); err != nil {
		return nil, fmt.Errorf("client.CreateTask: %w", err)
	}
	return &out, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	var out []*domain.Task
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks", true, nil, &out); err != nil {
		return nil, fmt.Errorf("client.ListTasks: %w", err)
	}
	return out, nil
}

func (c *Client) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) (*domain.Task, error) {
	return c.patchTask(ctx, "client.UpdateTaskStatus", "/api/v1/tasks/"+id.String()+"/status", map[string]any{"status": status})
}

func (c *Client) UpdateTaskOrder(ctx context.Context, id uuid.UUID, order int) (*domain.Task, error) {
	return c.patchTask(ctx, "client.UpdateTaskOrder", "/api/v1/tasks/"+id.String()+"/order", map[string]any{"newOrder": order})
}

func (c *Client) UpdateTaskActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Task, error) {
	return c.patchTask(ctx, "client.UpdateTaskActive", "/api/v1/tasks/"+id.String()+"/active", map[string]any{"isActive": active})
}

func (c *Client) RemoveTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	var out domain.Task
	if err := c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+id.String(), true, nil, &out); err != nil {
		return nil, fmt.Errorf("client.RemoveTask: %w", err)
	}
	return &out, nil
}

func (c *Client) patchTask(ctx context.Context, op, path string, body any) (*domain.Task, error) {
	var out domain.Task
	if err := c.do(ctx, http.MethodPatch, path, true, body, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &out, nil
}

// do sends one JSON request. On 2xx the body is decoded into out; anything
// else becomes an *APIError.
func (c *Client) do(ctx context.Context, method, path string, authed bool, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		token := c.Token()
		if token == "" {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		apiErr.Status = resp.StatusCode
		if apiErr.Title == "" {
			apiErr.Title = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
