package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kazuph/browser-observer/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outcome of the observer's last delivery",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, _, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		formatter, err := outputFormatter(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), settings.Timeout)
		defer cancel()
		status, err := control.NewClient(settings.ControlURL(), settings.Timeout).Status(ctx)
		if err != nil {
			return err
		}
		out, err := formatter.Format(status)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\n%s\n", status.Message, out)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringP("format", "f", "yaml", "Output format (json, yaml)")
}
