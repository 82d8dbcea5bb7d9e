package cmd

import (
	"testing"
	"time"

	"github.com/kazuph/browser-observer/internal/config"
)

func TestRunFlagsReachSettings(t *testing.T) {
	t.Setenv("BROWSER_OBSERVER_CONFIG_DIR", t.TempDir())

	flags := runCmd.Flags()
	if err := flags.Parse([]string{"--settle-delay", "0s", "--poll-interval", "2s"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	t.Cleanup(func() {
		defaults := config.DefaultSettings()
		flags.Set("settle-delay", defaults.SettleDelay.String())
		flags.Set("poll-interval", defaults.PollInterval.String())
		flags.Lookup("settle-delay").Changed = false
		flags.Lookup("poll-interval").Changed = false
	})

	settings, err := config.LoadSettings(flags)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.SettleDelay != 0 {
		t.Errorf("SettleDelay = %v, want 0", settings.SettleDelay)
	}
	if settings.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", settings.PollInterval)
	}
}
