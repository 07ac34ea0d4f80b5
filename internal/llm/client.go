package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client wraps the queue for one priority class
type Client struct {
	manager  *Manager
	priority Priority
	timeout  time.Duration
	headers  map[string]string
}

// NewClient creates a new queue client
func NewClient(manager *Manager, priority Priority, timeout time.Duration) *Client {
	return &Client{
		manager:  manager,
		priority: priority,
		timeout:  timeout,
	}
}

// WithAPIKey returns a copy of the client that sends a bearer token
func (c *Client) WithAPIKey(key string) *Client {
	cp := *c
	if key != "" {
		cp.headers = map[string]string{"Authorization": "Bearer " + key}
	}
	return &cp
}

// WithPriority returns a copy of the client submitting at another priority
func (c *Client) WithPriority(p Priority) *Client {
	cp := *c
	cp.priority = p
	return &cp
}

// Call submits a request and waits for the response body
func (c *Client) Call(ctx context.Context, url string, payload map[string]interface{}) ([]byte, error) {
	respCh := make(chan *Response, 1)
	errCh := make(chan error, 1)

	priority := c.priority
	if p, ok := PriorityFrom(ctx); ok {
		priority = p
	}
	req := &Request{
		ID:         fmt.Sprintf("%s_%d", priority, time.Now().UnixNano()),
		Priority:   priority,
		Context:    ctx,
		URL:        url,
		Headers:    c.headers,
		Payload:    payload,
		ResponseCh: respCh,
		ErrorCh:    errCh,
		SubmitTime: time.Now(),
		Timeout:    c.timeout,
	}

	if err := c.manager.Submit(req); err != nil {
		return nil, fmt.Errorf("failed to submit: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("LLM returned status %d: %s", resp.StatusCode, truncate(string(resp.Body), 200))
		}
		return resp.Body, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
