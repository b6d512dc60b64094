// Package client is a small Go wrapper around the todo HTTP API.
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

	"github.com/todo-1m/tasklist/internal/app/todos"
)

const defaultTimeout = 10 * time.Second

// APIError is returned for transport failures and non-2xx responses.
type APIError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: status=%d: %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s: status=%d", e.Op, e.Status)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    httpClient,
	}
}

func (c *Client) List(ctx context.Context) ([]todos.Todo, error) {
	var out []todos.Todo
	if err := c.do(ctx, "failed to fetch todos", http.MethodGet, "/api/todos", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []todos.Todo{}
	}
	return out, nil
}

func (c *Client) Add(ctx context.Context, text string) (todos.Todo, error) {
	var out todos.Todo
	err := c.do(ctx, "failed to add todo", http.MethodPost, "/api/todos", map[string]string{"text": text}, &out)
	return out, err
}

func (c *Client) Toggle(ctx context.Context, id int64) (todos.Todo, error) {
	var out todos.Todo
	err := c.do(ctx, "failed to toggle todo", http.MethodPatch, todoPath(id), nil, &out)
	return out, err
}

// Update renames a todo. The id travels in the query string.
func (c *Client) Update(ctx context.Context, id int64, text string) (todos.Todo, error) {
	var out todos.Todo
	path := "/api/todos?id=" + url.QueryEscape(strconv.FormatInt(id, 10))
	err := c.do(ctx, "failed to update todo", http.MethodPut, path, map[string]string{"text": text}, &out)
	return out, err
}

func (c *Client) Reorder(ctx context.Context, items []todos.Todo) ([]todos.Todo, error) {
	if items == nil {
		items = []todos.Todo{}
	}
	var out []todos.Todo
	payload := map[string][]todos.Todo{"todos": items}
	if err := c.do(ctx, "failed to reorder todos", http.MethodPut, "/api/todos/reorder", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, "failed to delete todo", http.MethodDelete, todoPath(id), nil, nil)
}

func (c *Client) ClearAll(ctx context.Context) error {
	return c.do(ctx, "failed to clear todos", http.MethodDelete, "/api/todos", nil, nil)
}

func todoPath(id int64) string {
	return "/api/todos/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, op, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &APIError{Op: op, Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(responseBody)}
	}
	if out != nil && len(bytes.TrimSpace(responseBody)) > 0 {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return &APIError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return truncate(strings.TrimSpace(string(body)), 240)
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}
