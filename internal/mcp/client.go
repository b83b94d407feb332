package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devricklin/mention-dispatch/internal/api"
	"github.com/devricklin/mention-dispatch/internal/service"
)

// Client is the HTTP client for the dispatch bot's local API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetStatus gets the dispatch loop status
func (c *Client) GetStatus(ctx context.Context) (*service.Status, error) {
	var status service.Status
	if err := c.get(ctx, "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetRecentMessages gets the newest room messages
func (c *Client) GetRecentMessages(ctx context.Context, limit int) ([]api.Message, error) {
	var result struct {
		Messages []api.Message `json:"messages"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/messages?limit=%d", limit), &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// SendMessage posts a message to the room
func (c *Client) SendMessage(ctx context.Context, text, inReplyTo string) (string, error) {
	var resp api.SendResponse
	if err := c.post(ctx, "/api/messages", api.SendRequest{Text: text, InReplyTo: inReplyTo}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetDispatches gets the newest journaled reply attempts
func (c *Client) GetDispatches(ctx context.Context, limit int) ([]api.Dispatch, error) {
	var result struct {
		Dispatches []api.Dispatch `json:"dispatches"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/dispatches?limit=%d", limit), &result); err != nil {
		return nil, err
	}
	return result.Dispatches, nil
}

// ============ HTTP Helpers ============

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", req.Method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
