package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kazuph/browser-observer/internal/browser"
	"github.com/kazuph/browser-observer/internal/config"
	"github.com/kazuph/browser-observer/internal/control"
	platformpkg "github.com/kazuph/browser-observer/internal/platform"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the environment",
	Long: `Check that the observer can run.

This command verifies:
- A Chrome or Chromium binary is installed
- The browser's remote debugging endpoint is reachable
- A relay URL is configured`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), settings.Timeout)
		defer cancel()

		fmt.Println("Checking environment...")
		fmt.Println()

		hasErrors := false

		fmt.Print("Browser binary: ")
		if err := platformpkg.CheckChromeAvailable(); err != nil {
			fmt.Printf("❌ %v\n", err)
			hasErrors = true
		} else {
			fmt.Printf("✅ %s\n", platformpkg.FindChromePath())
		}

		fmt.Print("DevTools endpoint: ")
		version, err := browser.NewClient(settings.DevToolsURL, settings.Timeout, logger).Version(ctx)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			hasErrors = true
		} else {
			fmt.Printf("✅ %s at %s\n", version.Browser, settings.DevToolsURL)
		}

		fmt.Print("Relay configuration: ")
		relayConfig := config.NewFileStore(settings.ConfigDir, logger).Load(ctx)
		if !relayConfig.Configured() {
			fmt.Println("❌ Not Configured")
			hasErrors = true
		} else {
			fmt.Printf("✅ %s\n", control.Describe(relayConfig))
		}

		fmt.Println()
		if hasErrors {
			fmt.Println("❌ Some checks failed.")
			fmt.Println()
			fmt.Println("To fix:")
			fmt.Println("  Start the browser with: --remote-debugging-port=9222")
			fmt.Println("  Configure the relay:    browser-observer config set <relay-url> --token <token>")
			return fmt.Errorf("environment check failed")
		}
		fmt.Println("✅ All checks passed!")
		return nil
	},
}
