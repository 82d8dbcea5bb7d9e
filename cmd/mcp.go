package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kazuph/browser-observer/internal/browser"
	"github.com/kazuph/browser-observer/internal/config"
	"github.com/kazuph/browser-observer/internal/control"
	"github.com/kazuph/browser-observer/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start a Model Context Protocol server on stdio that exposes the relay
configuration and status to AI assistants.

The server exposes tools for:
- get_relay_config: Show the saved relay URL and token
- set_relay_config: Save the relay URL and token
- relay_status: Report the last delivery outcome of the running observer
- list_tabs: List the browser's open tabs

Configure in Claude Desktop's claude_desktop_config.json:
{
  "mcpServers": {
    "browser-observer": {
      "command": "/path/to/browser-observer",
      "args": ["mcp"]
    }
  }
}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		settings, err := config.LoadSettings(cmd.Flags())
		if err != nil {
			return err
		}
		// stdout carries the protocol
		level := slog.LevelWarn
		if settings.Debug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		fmt.Fprintln(os.Stderr, "Starting MCP server for browser-observer...")

		controlClient := control.NewClient(settings.ControlURL(), settings.Timeout)
		surface := control.NewSurface(config.NewFileStore(settings.ConfigDir, logger), controlClient, logger)
		tabs := browser.NewClient(settings.DevToolsURL, settings.Timeout, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := mcp.NewObserverServer(surface, tabs, controlClient, settings.Timeout)
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MCP server: %w", err)
		}
		return nil
	},
}
