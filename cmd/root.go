package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kazuph/browser-observer/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "browser-observer",
	Short: "Relay browser tab and window activity to an HTTP endpoint",
	Long: `browser-observer watches a Chromium-based browser through its remote
debugging port and relays tab and window activity to a configured HTTP
endpoint as JSON event records.

This tool supports:
- Capturing tab activation, updates, creation, removal and window closing
- Configuring the relay URL and bearer token (web page, CLI or MCP)
- Reporting the outcome of the last delivery
- A reference collector that stores received records in SQLite

Start the browser with --remote-debugging-port=9222, then run:
  browser-observer config set https://relay.example/events --token secret
  browser-observer run`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaults := config.DefaultSettings()
	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("config-dir", defaults.ConfigDir, "Directory holding relay.yaml")
	flags.String("devtools-url", defaults.DevToolsURL, "Browser remote debugging endpoint")
	flags.String("control-addr", defaults.ControlAddr, "Address of the observer's control server")
	flags.Duration("timeout", defaults.Timeout, "Network timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tabsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(mcpCmd)
}

// loadSettings resolves settings for cmd and returns them with a logger at
// the matching level.
func loadSettings(cmd *cobra.Command) (*config.Settings, *slog.Logger, error) {
	_ = godotenv.Load() // optional .env with BROWSER_OBSERVER_* overrides
	settings, err := config.LoadSettings(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	return settings, newLogger(settings.Debug), nil
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
