package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kazuph/browser-observer/internal/collector"
	"github.com/kazuph/browser-observer/internal/platform"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a reference relay endpoint",
	Long: `Run a relay endpoint that stores received event records in SQLite.

Point the observer at it with:
  browser-observer config set http://127.0.0.1:8787/events --token <token>

Records can be read back with GET /events?limit=N.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")
		dbPath, _ := cmd.Flags().GetString("db")
		token, _ := cmd.Flags().GetString("token")

		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := collector.NewDatabase(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("Collector database", "path", dbPath)
		return collector.NewServer(db, addr, token, logger).Start(ctx)
	},
}

func init() {
	collectCmd.Flags().String("addr", "127.0.0.1:8787", "Listen address")
	collectCmd.Flags().String("db", filepath.Join(platform.DataDir(), "collector.db"), "SQLite database path")
	collectCmd.Flags().String("token", "", "Require this bearer token on /events")
}
