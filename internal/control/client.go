package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to the control server of a running observer.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a control client for baseURL, e.g. http://127.0.0.1:51426
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ConfigUpdated sends the "configuration updated" message and returns the
// observer's acknowledgement.
func (c *Client) ConfigUpdated(ctx context.Context) (string, error) {
	var ack ackResponse
	if err := c.do(ctx, http.MethodPost, "/api/config-updated", &ack); err != nil {
		return "", err
	}
	return ack.Status, nil
}

// Status returns the observer's last delivery outcome.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var status StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("observer not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var ack ackResponse
		if json.NewDecoder(resp.Body).Decode(&ack) == nil && ack.Error != "" {
			return fmt.Errorf("observer returned %d: %s", resp.StatusCode, ack.Error)
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
