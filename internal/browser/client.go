package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kazuph/browser-observer/internal/event"
)

// Client talks to the DevTools HTTP endpoints of a running browser
type Client struct {
	baseURL string
	logger  *slog.Logger
	client  *http.Client
}

// NewClient creates a DevTools client for baseURL, e.g. http://127.0.0.1:9222
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the DevTools endpoint
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Version retrieves browser version info, including the browser websocket URL
func (c *Client) Version(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.getJSON(ctx, "/json/version", &v); err != nil {
		return nil, err
	}
	if v.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("browser did not report a websocket debugger URL")
	}
	return &v, nil
}

// ListTargets retrieves all targets. Page targets come most recently
// activated first.
func (c *Client) ListTargets(ctx context.Context) ([]Target, error) {
	var targets []Target
	if err := c.getJSON(ctx, "/json/list", &targets); err != nil {
		return nil, err
	}
	c.logger.Debug("Loaded targets", "count", len(targets))
	return targets, nil
}

// Tabs returns a snapshot of every open tab
func (c *Client) Tabs(ctx context.Context) ([]event.Tab, error) {
	targets, err := c.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	tabs := make([]event.Tab, 0, len(targets))
	for _, t := range targets {
		if t.IsTab() {
			tabs = append(tabs, t.Tab())
		}
	}
	return tabs, nil
}

// Tab returns the current snapshot of tab id
func (c *Client) Tab(ctx context.Context, id string) (event.Tab, error) {
	tabs, err := c.Tabs(ctx)
	if err != nil {
		return event.Tab{}, err
	}
	for _, tab := range tabs {
		if tab.ID == id {
			return tab, nil
		}
	}
	return event.Tab{}, fmt.Errorf("no tab with id %s: %w", id, ErrTabNotFound)
}

// ActiveTab returns the most recently activated tab, or nil if none is open
func (c *Client) ActiveTab(ctx context.Context) (*event.Tab, error) {
	tabs, err := c.Tabs(ctx)
	if err != nil {
		return nil, err
	}
	if len(tabs) == 0 {
		return nil, nil
	}
	return &tabs[0], nil
}

func (c *Client) getJSON(ctx context.Context, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code from %s: %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
