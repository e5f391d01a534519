// Package client talks to a running mirad over its HTTP API.
package client

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

	"github.com/aivoicefromthevoid/mira/catalog"
	"github.com/aivoicefromthevoid/mira/memory"
	"github.com/aivoicefromthevoid/mira/usage"
)

const (
	// DefaultAddress is where mirad listens by default.
	DefaultAddress = "http://localhost:8080"

	defaultTimeout = 60 * time.Second
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	Detail  string
	Hint    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("mirad returned %d: %s", e.Status, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Client is the main client for interacting with the mirad daemon.
type Client struct {
	baseURL  string
	adminKey string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAdminKey sets the bearer key sent to admin endpoints.
func WithAdminKey(key string) Option {
	return func(c *Client) { c.adminKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// Connect returns a client for the daemon at address. The address can be:
//   - A full URL (e.g., "https://mira.example.com")
//   - A host and port (e.g., "localhost:8080"), treated as plain HTTP
func Connect(address string, opts ...Option) (*Client, error) {
	if address == "" {
		address = DefaultAddress
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid daemon address %q", address)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ChatReply is the answer of the chat endpoint. Status is "paused" when the
// usage gate denied the call.
type ChatReply struct {
	Success   bool            `json:"success"`
	Response  string          `json:"response,omitempty"`
	Model     string          `json:"model,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Status    string          `json:"status,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Message   string          `json:"message,omitempty"`
	Usage     *usage.Snapshot `json:"usage,omitempty"`
}

// Chat sends one message to Mira.
func (c *Client) Chat(ctx context.Context, message, chatContext, model string) (*ChatReply, error) {
	body := map[string]string{"message": message, "context": chatContext, "model": model}
	var reply ChatReply
	if err := c.do(ctx, http.MethodPost, "/api/openrouter", nil, body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Usage returns today's usage statistics.
func (c *Client) Usage(ctx context.Context) (usage.Snapshot, error) {
	var out struct {
		Stats usage.Snapshot `json:"stats"`
	}
	err := c.do(ctx, http.MethodGet, "/api/usage-tracker", nil, nil, &out)
	return out.Stats, err
}

// Memories queries stored memories. query takes the memory-center filter
// parameters (tag, type, search, limit, offset, order_by, ...).
func (c *Client) Memories(ctx context.Context, query url.Values) (memory.Page, error) {
	var page memory.Page
	err := c.do(ctx, http.MethodGet, "/api/memory-center", query, nil, &page)
	return page, err
}

// Memory returns one memory by id.
func (c *Client) Memory(ctx context.Context, id string) (memory.Record, error) {
	var out struct {
		Memory memory.Record `json:"memory"`
	}
	err := c.do(ctx, http.MethodGet, "/api/memory-center", url.Values{"id": {id}}, nil, &out)
	return out.Memory, err
}

// AddMemory stores a memory. duplicate reports that an existing memory was
// boosted instead.
func (c *Client) AddMemory(ctx context.Context, in memory.Input) (rec memory.Record, duplicate bool, err error) {
	var out struct {
		Memory    memory.Record `json:"memory"`
		Duplicate bool          `json:"duplicate"`
	}
	err = c.do(ctx, http.MethodPost, "/api/memory-center", nil, in, &out)
	return out.Memory, out.Duplicate, err
}

// DeleteMemory archives a memory, or removes it when archive is false.
func (c *Client) DeleteMemory(ctx context.Context, id string, archive bool) error {
	q := url.Values{"id": {id}, "archive": {fmt.Sprint(archive)}}
	return c.do(ctx, http.MethodDelete, "/api/memory-center", q, nil, nil)
}

// MemoryHistory returns the commit messages of the memories document, oldest
// first.
func (c *Client) MemoryHistory(ctx context.Context) ([]string, error) {
	var out struct {
		History []string `json:"history"`
	}
	err := c.do(ctx, http.MethodGet, "/api/memory-history", nil, nil, &out)
	return out.History, err
}

// Migrate imports the legacy memory index on the server. Requires the admin key.
func (c *Client) Migrate(ctx context.Context) (memory.ImportResult, error) {
	var out struct {
		Result memory.ImportResult `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, "/api/admin-migrate", nil, nil, &out)
	return out.Result, err
}

// FreeModels lists the free models of the catalog.
func (c *Client) FreeModels(ctx context.Context) ([]catalog.Model, error) {
	var out struct {
		Models []catalog.Model `json:"models"`
	}
	err := c.do(ctx, http.MethodGet, "/api/model-selector", url.Values{"action": {"list"}}, nil, &out)
	return out.Models, err
}

// SelectModel asks the server for the best free model.
func (c *Client) SelectModel(ctx context.Context) (catalog.Model, error) {
	var out struct {
		Model catalog.Model `json:"model"`
	}
	err := c.do(ctx, http.MethodGet, "/api/model-selector", url.Values{"action": {"select"}}, nil, &out)
	return out.Model, err
}

// ModelStats summarizes the catalog.
func (c *Client) ModelStats(ctx context.Context) (catalog.Stats, error) {
	var out struct {
		Stats catalog.Stats `json:"stats"`
	}
	err := c.do(ctx, http.MethodGet, "/api/model-selector", url.Values{"action": {"stats"}}, nil, &out)
	return out.Stats, err
}

// Health checks that the daemon is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach mirad at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb struct {
			Error   string `json:"error"`
			Message string `json:"message"`
			Hint    string `json:"hint"`
		}
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			apiErr.Message, apiErr.Detail, apiErr.Hint = eb.Error, eb.Message, eb.Hint
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
