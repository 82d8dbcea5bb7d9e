package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kazuph/browser-observer/internal/browser"
)

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List the browser's open tabs",
	Long: `List the open tabs of the browser at --devtools-url. The active tab is
listed first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		formatter, err := outputFormatter(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), settings.Timeout)
		defer cancel()
		tabs, err := browser.NewClient(settings.DevToolsURL, settings.Timeout, logger).Tabs(ctx)
		if err != nil {
			return fmt.Errorf("failed to load tabs: %w", err)
		}
		out, err := formatter.Format(tabs)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	tabsCmd.Flags().StringP("format", "f", "json", "Output format (json, yaml)")
}
