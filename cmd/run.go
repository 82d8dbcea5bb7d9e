package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kazuph/browser-observer/internal/browser"
	"github.com/kazuph/browser-observer/internal/capture"
	"github.com/kazuph/browser-observer/internal/config"
	"github.com/kazuph/browser-observer/internal/control"
	"github.com/kazuph/browser-observer/internal/event"
	"github.com/kazuph/browser-observer/internal/relay"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Observe the browser and relay events",
	Long: `Connect to the browser's remote debugging endpoint and relay tab and
window events to the configured relay URL.

The observer also serves a settings page and control API on --control-addr.
Changes saved through the page, "config set" or the MCP server take effect
without a restart. Events are dropped (with a warning) while no relay URL is
configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := config.NewFileStore(settings.ConfigDir, logger)
		reason := event.ReasonStartup
		if _, err := os.Stat(store.Path()); errors.Is(err, os.ErrNotExist) {
			reason = event.ReasonInstall
		}

		dispatcher := relay.NewDispatcher(store, relay.Options{Timeout: settings.Timeout, Logger: logger})
		if err := store.Watch(ctx, dispatcher.Apply); err != nil {
			logger.Warn("Config file watch unavailable, relying on config-updated messages", "error", err)
		}

		surface := control.NewSurface(store, dispatcher, logger)
		server := control.NewServer(surface, dispatcher, dispatcher, settings.ControlAddr, settings.Debug, logger)
		serverErrs := make(chan error, 1)
		go func() {
			err := server.Start(ctx)
			if err != nil {
				logger.Error("Control server failed", "address", settings.ControlAddr, "error", err)
			}
			serverErrs <- err
		}()

		client := browser.NewClient(settings.DevToolsURL, settings.Timeout, logger)
		source := browser.NewSource(client, settings.PollInterval, settings.SettleDelay, reason, logger)
		if err := source.Start(ctx); err != nil {
			stop()
			<-serverErrs
			return fmt.Errorf("failed to connect to browser: %w", err)
		}
		defer source.Close()

		fmt.Printf("Observing %s, settings at %s\n", settings.DevToolsURL, settings.ControlURL())

		capturer := capture.New(client, dispatcher, settings.SettleDelay, logger)
		capturer.Run(ctx, source.Notifications())

		stop()
		dispatcher.Wait()
		if err := <-serverErrs; err != nil {
			return fmt.Errorf("control server: %w", err)
		}
		logger.Info("Observer stopped")
		return nil
	},
}

func init() {
	defaults := config.DefaultSettings()
	runCmd.Flags().Duration("settle-delay", defaults.SettleDelay, "Wait before counting tabs after a tab event")
	runCmd.Flags().Duration("poll-interval", defaults.PollInterval, "Interval between active tab checks")
}
