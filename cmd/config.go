package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kazuph/browser-observer/internal/config"
	"github.com/kazuph/browser-observer/internal/control"
	"github.com/kazuph/browser-observer/internal/format"
	"github.com/kazuph/browser-observer/internal/platform"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the relay configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved relay URL and token",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		formatter, err := outputFormatter(cmd)
		if err != nil {
			return err
		}

		surface := control.NewSurface(config.NewFileStore(settings.ConfigDir, logger), nil, logger)
		current := surface.Config(cmd.Context())
		out, err := formatter.Format(current)
		if err != nil {
			return err
		}
		fmt.Printf("Status: %s\n\n%s\n", control.Describe(current), out)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <relay-url>",
	Short: "Save the relay URL and token",
	Long: `Save the relay URL and optional bearer token, then tell a running observer
to reload its configuration. The configuration is saved even if no observer
is running.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		token, _ := cmd.Flags().GetString("token")

		notifier := control.NewClient(settings.ControlURL(), settings.Timeout)
		surface := control.NewSurface(config.NewFileStore(settings.ConfigDir, logger), notifier, logger)

		ctx, cancel := context.WithTimeout(cmd.Context(), settings.Timeout)
		defer cancel()
		result, err := surface.Update(ctx, config.Relay{URL: args[0], Token: token})
		if err != nil {
			return err
		}
		fmt.Println(result.Status)
		if result.Ack != "" {
			fmt.Printf("Observer: %s\n", result.Ack)
		} else if result.NotifyError != "" {
			fmt.Println("Observer not running; the configuration applies when it starts.")
		}
		return nil
	},
}

var configOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the settings page of the running observer",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, _, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		fmt.Printf("Opening %s\n", settings.ControlURL())
		return platform.OpenInBrowser(settings.ControlURL())
	},
}

func outputFormatter(cmd *cobra.Command) (*format.Formatter, error) {
	name, _ := cmd.Flags().GetString("format")
	f, err := format.ParseFormat(name)
	if err != nil {
		return nil, err
	}
	return format.NewFormatter(f), nil
}

func init() {
	configShowCmd.Flags().StringP("format", "f", "yaml", "Output format (json, yaml)")
	configSetCmd.Flags().String("token", "", "Bearer token sent with each record")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configOpenCmd)
}
