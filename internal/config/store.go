package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// RelayFileName is the file the relay configuration is persisted in.
const RelayFileName = "relay.yaml"

var (
	ErrRelayURLRequired = errors.New("Relay URL is required")
	ErrInvalidRelayURL  = errors.New("Invalid Relay URL format")
)

// ValidationError is returned by Save for input that must be corrected by
// the user. Err is one of the sentinel errors above.
type ValidationError struct {
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %q", e.Err, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Relay is the persisted relay configuration. Empty strings mean unset.
type Relay struct {
	URL   string `yaml:"relayUrl" json:"relayUrl"`
	Token string `yaml:"relayToken" json:"relayToken"`
}

// Configured reports whether a relay URL is set.
func (r Relay) Configured() bool {
	return r.URL != ""
}

// Change describes an external update of the persisted relay configuration.
type Change struct {
	Relay        Relay
	URLChanged   bool
	TokenChanged bool
}

// Store persists the relay configuration and reports changes to it.
type Store interface {
	Load(ctx context.Context) Relay
	Save(ctx context.Context, relay Relay) error
	Watch(ctx context.Context, fn func(Change)) error
}

// ValidateRelayURL checks that raw is a non-empty absolute URL.
func ValidateRelayURL(raw string) error {
	if raw == "" {
		return &ValidationError{Err: ErrRelayURLRequired}
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ValidationError{Value: raw, Err: ErrInvalidRelayURL}
	}
	return nil
}

// FileStore keeps the relay configuration in a YAML file.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	lastSeen Relay
}

// NewFileStore creates a store backed by dir/relay.yaml.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   filepath.Join(dir, RelayFileName),
		logger: logger,
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the persisted configuration. A missing file yields the zero
// value; any read or parse failure is logged and also yields the zero value.
func (s *FileStore) Load(ctx context.Context) Relay {
	relay, err := s.read()
	if err != nil {
		s.logger.Error("Error loading configuration", "path", s.path, "error", err)
		return Relay{}
	}
	if relay.Configured() {
		s.logger.Debug("Configuration loaded", "relay_url", relay.URL, "token_provided", relay.Token != "")
	} else {
		s.logger.Debug("Configuration loaded, relay URL not set")
	}
	return relay
}

func (s *FileStore) read() (Relay, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Relay{}, nil
		}
		return Relay{}, fmt.Errorf("failed to read config file: %w", err)
	}
	var relay Relay
	if err := yaml.Unmarshal(data, &relay); err != nil {
		return Relay{}, fmt.Errorf("config file is invalid YAML: %w", err)
	}
	return relay, nil
}

// Save validates and persists relay. Invalid input leaves the file as is.
// The write goes through a temp file and rename so readers never observe
// one field without the other.
func (s *FileStore) Save(ctx context.Context, relay Relay) error {
	relay.URL = strings.TrimSpace(relay.URL)
	relay.Token = strings.TrimSpace(relay.Token)
	if err := ValidateRelayURL(relay.URL); err != nil {
		return err
	}

	data, err := yaml.Marshal(relay)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".relay-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set config file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	s.logger.Info("Configuration saved", "relay_url", relay.URL, "token_provided", relay.Token != "")
	return nil
}

// Watch calls fn, on its own goroutine, whenever the persisted file changes
// in a way that alters either field. It returns once the watch is set up;
// watching stops when ctx is done.
func (s *FileStore) Watch(ctx context.Context, fn func(Change)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	current, _ := s.read()
	s.mu.Lock()
	s.lastSeen = current
	s.mu.Unlock()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
					continue
				}
				if change, ok := s.diff(); ok {
					go fn(change)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Config watcher error", "error", err)
			}
		}
	}()
	return nil
}

// diff re-reads the file and compares it to the last value seen by Watch.
func (s *FileStore) diff() (Change, bool) {
	relay, err := s.read()
	if err != nil {
		s.logger.Warn("Ignoring unreadable config change", "error", err)
		return Change{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	change := Change{
		Relay:        relay,
		URLChanged:   relay.URL != s.lastSeen.URL,
		TokenChanged: relay.Token != s.lastSeen.Token,
	}
	if !change.URLChanged && !change.TokenChanged {
		return Change{}, false
	}
	s.lastSeen = relay
	if change.URLChanged {
		s.logger.Info("Relay URL configuration changed", "relay_url", relay.URL)
	}
	if change.TokenChanged {
		s.logger.Info("Relay Token configuration changed")
	}
	return change, true
}
