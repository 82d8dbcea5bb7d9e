package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kazuph/browser-observer/internal/platform"
)

// EnvPrefix prefixes every environment override, e.g. BROWSER_OBSERVER_DEVTOOLS_URL.
const EnvPrefix = "BROWSER_OBSERVER"

// Settings holds process settings. They are resolved from defaults, then
// the environment, then command-line flags.
type Settings struct {
	// DevToolsURL is the browser's remote debugging HTTP endpoint.
	DevToolsURL string `mapstructure:"devtools-url"`
	// ControlAddr is where the control server listens.
	ControlAddr string `mapstructure:"control-addr"`
	// SettleDelay is how long tab created/removed captures wait for the
	// browser's tab list to settle before counting.
	SettleDelay time.Duration `mapstructure:"settle-delay"`
	// PollInterval is how often the active tab is sampled.
	PollInterval time.Duration `mapstructure:"poll-interval"`
	// Timeout bounds every HTTP request the process makes.
	Timeout time.Duration `mapstructure:"timeout"`
	// ConfigDir holds relay.yaml.
	ConfigDir string `mapstructure:"config-dir"`
	Debug     bool   `mapstructure:"debug"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		DevToolsURL:  "http://127.0.0.1:9222",
		ControlAddr:  "127.0.0.1:51426",
		SettleDelay:  100 * time.Millisecond,
		PollInterval: time.Second,
		Timeout:      10 * time.Second,
		ConfigDir:    platform.ConfigDir(),
	}
}

// LoadSettings resolves Settings. flags may be nil; flags that were not set
// on the command line do not override the environment.
func LoadSettings(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	defaults := DefaultSettings()
	v.SetDefault("devtools-url", defaults.DevToolsURL)
	v.SetDefault("control-addr", defaults.ControlAddr)
	v.SetDefault("settle-delay", defaults.SettleDelay)
	v.SetDefault("poll-interval", defaults.PollInterval)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("config-dir", defaults.ConfigDir)
	v.SetDefault("debug", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if !isSettingKey(f.Name) || !f.Changed {
				return
			}
			if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func isSettingKey(name string) bool {
	switch name {
	case "devtools-url", "control-addr", "settle-delay", "poll-interval", "timeout", "config-dir", "debug":
		return true
	}
	return false
}

// Validate checks the settings for values the process cannot run with.
func (s *Settings) Validate() error {
	u, err := url.Parse(s.DevToolsURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("config: devtools-url must be an absolute URL, got %q", s.DevToolsURL)
	}
	if s.ControlAddr == "" {
		return errors.New("config: control-addr must be set")
	}
	if s.SettleDelay < 0 {
		return errors.New("config: settle-delay must not be negative")
	}
	if s.PollInterval <= 0 {
		return errors.New("config: poll-interval must be positive")
	}
	if s.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if s.ConfigDir == "" {
		return errors.New("config: config-dir must be set")
	}
	return nil
}

// ControlURL returns the base URL of the control server.
func (s *Settings) ControlURL() string {
	return "http://" + s.ControlAddr
}
