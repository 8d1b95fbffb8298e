package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client provides typed access to the taskdeck API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:8080"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// FieldError mirrors the API's field-level validation messages.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
	Fields  []FieldError
}

func (e APIError) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return fmt.Sprintf("api request failed (%d): %s", e.Status, strings.Join(parts, "; "))
	}
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// envelope is the uniform response wrapper emitted by the API.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  []FieldError    `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return APIError{Status: resp.StatusCode, Message: env.Message, Fields: env.Errors}
	}
	if v == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// User reflects API user payloads.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Bio       string    `json:"bio"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task reflects API task payloads.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Tasks    []Task `json:"tasks"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	Pages    int    `json:"pages"`
	PageSize int    `json:"page_size"`
}

// TaskStats aggregates tasks by status and priority.
type TaskStats struct {
	Status struct {
		Todo       int `json:"todo"`
		InProgress int `json:"in-progress"`
		Done       int `json:"done"`
		Total      int `json:"total"`
	} `json:"status"`
	Priority struct {
		Low    int `json:"low"`
		Medium int `json:"medium"`
		High   int `json:"high"`
	} `json:"priority"`
}

// AuthResponse carries the token and user returned by register and login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResponse, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, "", &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Me returns the identity resolved from the token.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, token, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context, token string) (User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/users/profile", nil, token, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// UpdateProfile applies a partial profile update; nil fields stay unchanged.
func (c *Client) UpdateProfile(ctx context.Context, token string, name, bio *string) (User, error) {
	body := map[string]any{}
	if name != nil {
		body["name"] = *name
	}
	if bio != nil {
		body["bio"] = *bio
	}
	var u User
	if err := c.do(ctx, http.MethodPut, "/users/profile", body, token, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// ChangePassword replaces the account password.
func (c *Client) ChangePassword(ctx context.Context, token, current, next string) error {
	body := map[string]string{"currentPassword": current, "newPassword": next}
	return c.do(ctx, http.MethodPut, "/users/password", body, token, nil)
}

// ListOptions narrows and pages a task listing.
type ListOptions struct {
	Status   string
	Priority string
	Search   string
	Page     int
	Limit    int
	SortBy   string
	Order    string
}

func (o ListOptions) query() string {
	values := url.Values{}
	if o.Status != "" {
		values.Set("status", o.Status)
	}
	if o.Priority != "" {
		values.Set("priority", o.Priority)
	}
	if o.Search != "" {
		values.Set("search", o.Search)
	}
	if o.Page > 0 {
		values.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		values.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.SortBy != "" {
		values.Set("sortBy", o.SortBy)
	}
	if o.Order != "" {
		values.Set("order", o.Order)
	}
	if encoded := values.Encode(); encoded != "" {
		return "?" + encoded
	}
	return ""
}

// ListTasks returns a page of the caller's tasks.
func (c *Client) ListTasks(ctx context.Context, token string, opts ListOptions) (TaskPage, error) {
	var page TaskPage
	if err := c.do(ctx, http.MethodGet, "/tasks"+opts.query(), nil, token, &page); err != nil {
		return TaskPage{}, err
	}
	return page, nil
}

// CreateTaskInput is the task creation payload.
type CreateTaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	DueDate     string   `json:"dueDate,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// CreateTask creates a task owned by the caller.
func (c *Client) CreateTask(ctx context.Context, token string, in CreateTaskInput) (Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodPost, "/tasks", in, token, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// GetTask fetches a single task by id.
func (c *Client) GetTask(ctx context.Context, token, id string) (Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, token, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// UpdateTaskInput is a partial task update; nil fields stay unchanged.
type UpdateTaskInput struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, token, id string, in UpdateTaskInput) (Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), in, token, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// DeleteTask permanently removes a task.
func (c *Client) DeleteTask(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, token, nil)
}

// Stats returns the caller's task aggregation.
func (c *Client) Stats(ctx context.Context, token string) (TaskStats, error) {
	var stats TaskStats
	if err := c.do(ctx, http.MethodGet, "/tasks/stats/summary", nil, token, &stats); err != nil {
		return TaskStats{}, err
	}
	return stats, nil
}

// TaskEvent is one entry from the live task-change stream.
type TaskEvent struct {
	Type string `json:"type"`
	Task Task   `json:"task"`
}

// WatchTasks subscribes to the caller's task-change stream, invoking fn for
// every event until the context is cancelled or the connection drops.
func (c *Client) WatchTasks(ctx context.Context, token string, fn func(TaskEvent)) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws/tasks"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return APIError{Status: resp.StatusCode, Message: "authentication required"}
		}
		return fmt.Errorf("dial task stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read task stream: %w", err)
		}
		var event TaskEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		fn(event)
	}
}
