// Package mcp exposes the observer's control surface as an MCP server over
// stdio.
package mcp

import (
	"context"
	"fmt"
	"time"

	mcp_golang "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport"
	"github.com/metoro-io/mcp-golang/transport/stdio"

	"github.com/kazuph/browser-observer/internal/config"
	"github.com/kazuph/browser-observer/internal/control"
	"github.com/kazuph/browser-observer/internal/event"
	"github.com/kazuph/browser-observer/internal/format"
)

const configResourceURI = "relay://config"

// TabLister lists the browser's open tabs.
type TabLister interface {
	Tabs(ctx context.Context) ([]event.Tab, error)
}

// StatusReader asks the running observer for its last delivery outcome.
type StatusReader interface {
	Status(ctx context.Context) (*control.StatusResponse, error)
}

// ObserverServer implements the MCP server for the browser observer
type ObserverServer struct {
	server  *mcp_golang.Server
	surface *control.Surface
	tabs    TabLister
	status  StatusReader
	timeout time.Duration
}

// NewObserverServer creates a new MCP server on stdin/stdout
func NewObserverServer(surface *control.Surface, tabs TabLister, status StatusReader, timeout time.Duration) *ObserverServer {
	return newObserverServer(stdio.NewStdioServerTransport(), surface, tabs, status, timeout)
}

func newObserverServer(t transport.Transport, surface *control.Surface, tabs TabLister, status StatusReader, timeout time.Duration) *ObserverServer {
	return &ObserverServer{
		server:  mcp_golang.NewServer(t),
		surface: surface,
		tabs:    tabs,
		status:  status,
		timeout: timeout,
	}
}

// Start registers tools and resources, then serves until ctx is done.
// Requests are read in the background.
func (s *ObserverServer) Start(ctx context.Context) error {
	if err := s.registerTools(); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		return fmt.Errorf("failed to register resources: %w", err)
	}
	if err := s.server.Serve(); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	<-ctx.Done()
	return nil
}

func (s *ObserverServer) registerTools() error {
	err := s.server.RegisterTool("get_relay_config", "Show the saved relay URL and token", s.getRelayConfig)
	if err != nil {
		return fmt.Errorf("failed to register get_relay_config: %w", err)
	}

	err = s.server.RegisterTool("set_relay_config", "Save the relay URL and token and tell the running observer to reload", s.setRelayConfig)
	if err != nil {
		return fmt.Errorf("failed to register set_relay_config: %w", err)
	}

	err = s.server.RegisterTool("relay_status", "Report the outcome of the observer's last delivery", s.relayStatus)
	if err != nil {
		return fmt.Errorf("failed to register relay_status: %w", err)
	}

	err = s.server.RegisterTool("list_tabs", "List the browser's open tabs", s.listTabs)
	if err != nil {
		return fmt.Errorf("failed to register list_tabs: %w", err)
	}

	return nil
}

func (s *ObserverServer) registerResources() error {
	err := s.server.RegisterResource(configResourceURI, "relay_config", "Saved relay configuration", format.DefaultFormatter().MimeType(), s.getConfigResource)
	if err != nil {
		return fmt.Errorf("failed to register relay_config resource: %w", err)
	}
	return nil
}

// GetRelayConfigArgs represents arguments for get_relay_config
type GetRelayConfigArgs struct {
	Format string `json:"format" jsonschema:"description=Output format: json or yaml (default: json)"`
}

// SetRelayConfigArgs represents arguments for set_relay_config
type SetRelayConfigArgs struct {
	RelayURL   string `json:"relayUrl" jsonschema:"required,description=Absolute URL that receives event records"`
	RelayToken string `json:"relayToken" jsonschema:"description=Bearer token sent with each record (optional)"`
}

// RelayStatusArgs represents arguments for relay_status
type RelayStatusArgs struct {
	Format string `json:"format" jsonschema:"description=Output format: json or yaml (default: json)"`
}

// ListTabsArgs represents arguments for list_tabs
type ListTabsArgs struct {
	Format string `json:"format" jsonschema:"description=Output format: json or yaml (default: json)"`
}

func (s *ObserverServer) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func formatter(name string) (*format.Formatter, error) {
	if name == "" {
		return format.DefaultFormatter(), nil
	}
	f, err := format.ParseFormat(name)
	if err != nil {
		return nil, err
	}
	return format.NewFormatter(f), nil
}

func render(formatName string, v any) (string, error) {
	f, err := formatter(formatName)
	if err != nil {
		return "", err
	}
	return f.Format(v)
}

func textResponse(text string) *mcp_golang.ToolResponse {
	return mcp_golang.NewToolResponse(mcp_golang.NewTextContent(text))
}

func (s *ObserverServer) getRelayConfig(args GetRelayConfigArgs) (*mcp_golang.ToolResponse, error) {
	ctx, cancel := s.withTimeout()
	defer cancel()

	current := s.surface.Config(ctx)
	out, err := render(args.Format, current)
	if err != nil {
		return nil, err
	}
	return textResponse(fmt.Sprintf("Status: %s\n\n%s", control.Describe(current), out)), nil
}

func (s *ObserverServer) setRelayConfig(args SetRelayConfigArgs) (*mcp_golang.ToolResponse, error) {
	ctx, cancel := s.withTimeout()
	defer cancel()

	result, err := s.surface.Update(ctx, config.Relay{URL: args.RelayURL, Token: args.RelayToken})
	if err != nil {
		return nil, err
	}
	text := result.Status
	if result.Ack != "" {
		text += " Observer: " + result.Ack
	} else if result.NotifyError != "" {
		text += " Observer was not notified: " + result.NotifyError
	}
	return textResponse(text), nil
}

func (s *ObserverServer) relayStatus(args RelayStatusArgs) (*mcp_golang.ToolResponse, error) {
	ctx, cancel := s.withTimeout()
	defer cancel()

	status, err := s.status.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read observer status: %w", err)
	}
	out, err := render(args.Format, status)
	if err != nil {
		return nil, err
	}
	return textResponse(fmt.Sprintf("%s\n\n%s", status.Message, out)), nil
}

func (s *ObserverServer) listTabs(args ListTabsArgs) (*mcp_golang.ToolResponse, error) {
	ctx, cancel := s.withTimeout()
	defer cancel()

	tabs, err := s.tabs.Tabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}
	out, err := render(args.Format, tabs)
	if err != nil {
		return nil, err
	}
	return textResponse(fmt.Sprintf("%d open tabs:\n\n%s", len(tabs), out)), nil
}

func (s *ObserverServer) getConfigResource() (*mcp_golang.ResourceResponse, error) {
	ctx, cancel := s.withTimeout()
	defer cancel()

	formatter := format.DefaultFormatter()
	out, err := formatter.Format(s.surface.Config(ctx))
	if err != nil {
		return nil, err
	}
	resource := mcp_golang.NewTextEmbeddedResource(configResourceURI, out, formatter.MimeType())
	return mcp_golang.NewResourceResponse(resource), nil
}
