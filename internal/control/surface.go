// Package control is the inbound control channel of the observer: reading
// and updating the relay configuration, and telling the running observer
// to reload it.
package control

import (
	"context"
	"log/slog"

	"github.com/kazuph/browser-observer/internal/config"
)

// Notifier delivers the "configuration updated" message to the running
// observer and returns its acknowledgement.
type Notifier interface {
	ConfigUpdated(ctx context.Context) (string, error)
}

// UpdateResult reports a successful configuration update. Ack is empty
// when the observer could not be notified; NotifyError then says why.
type UpdateResult struct {
	Status      string `json:"status" yaml:"status"`
	Ack         string `json:"ack,omitempty" yaml:"ack,omitempty"`
	NotifyError string `json:"notifyError,omitempty" yaml:"notifyError,omitempty"`
}

// Surface reads and writes the relay configuration on behalf of a user.
type Surface struct {
	store    config.Store
	notifier Notifier
	logger   *slog.Logger
}

// NewSurface creates a Surface. notifier may be nil when there is no
// running observer to tell.
func NewSurface(store config.Store, notifier Notifier, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{store: store, notifier: notifier, logger: logger}
}

// Config returns the persisted relay configuration.
func (s *Surface) Config(ctx context.Context) config.Relay {
	return s.store.Load(ctx)
}

// Update validates and saves relay, then signals the observer to drop its
// cached configuration. Only a validation or storage failure is an error;
// the configuration is saved even if the observer cannot be reached.
func (s *Surface) Update(ctx context.Context, relay config.Relay) (UpdateResult, error) {
	if err := s.store.Save(ctx, relay); err != nil {
		return UpdateResult{}, err
	}
	result := UpdateResult{Status: "Saved!"}
	if s.notifier == nil {
		return result, nil
	}

	ack, err := s.notifier.ConfigUpdated(ctx)
	if err != nil {
		s.logger.Warn("Could not send config update message", "error", err)
		result.NotifyError = err.Error()
		return result, nil
	}
	s.logger.Debug("Observer notified of config update", "ack", ack)
	result.Ack = ack
	return result, nil
}

// Describe returns the short configuration status shown to users.
func Describe(relay config.Relay) string {
	if relay.URL != "" && relay.Token != "" {
		return "Configured"
	}
	if relay.URL != "" {
		return "Configured (no token)"
	}
	return "Not Configured"
}
