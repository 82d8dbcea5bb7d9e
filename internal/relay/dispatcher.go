// Package relay delivers Event Records to the configured relay endpoint.
//
// Delivery is best effort: one attempt per record, no retry, no queue, and
// no ordering between records. Callers of Send must not assume that a
// record was delivered, or that records arrive in the order they were sent.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kazuph/browser-observer/internal/config"
	"github.com/kazuph/browser-observer/internal/event"
)

// Loader supplies the relay configuration. It must not fail: an unreadable
// configuration is reported as the zero Relay.
type Loader interface {
	Load(ctx context.Context) config.Relay
}

// Options configures a Dispatcher.
type Options struct {
	// Client performs deliveries. Defaults to a client with Timeout.
	Client *http.Client
	// Timeout is used when Client is nil.
	Timeout time.Duration
	Logger  *slog.Logger
	// Now stamps records. Defaults to time.Now.
	Now func() time.Time
}

// Dispatcher holds the cached relay configuration and delivers records.
type Dispatcher struct {
	loader Loader
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	relay config.Relay

	reloads  singleflight.Group
	inflight sync.WaitGroup
	status   statusTracker
}

// NewDispatcher creates a dispatcher with an empty cache. The first Send
// loads the configuration.
func NewDispatcher(loader Loader, opts Options) *Dispatcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		loader: loader,
		client: client,
		logger: logger,
		now:    now,
	}
}

// Send builds a record stamped now and delivers it on its own goroutine.
// It never blocks on the network and never reports failure.
func (d *Dispatcher) Send(eventType event.Type, data any) {
	rec := event.NewRecord(eventType, d.now(), data)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.Deliver(context.Background(), rec)
	}()
}

// Wait blocks until every delivery started by Send has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Deliver makes the single delivery attempt for rec and reports how it went.
// Failures are logged, never returned.
func (d *Dispatcher) Deliver(ctx context.Context, rec event.Record) Outcome {
	relay := d.Current()
	if relay.URL == "" {
		d.logger.Debug("Relay URL is not cached, loading configuration")
		relay = d.Reload(ctx)
	}
	if relay.URL == "" {
		d.logger.Warn("Cannot send event: Relay URL is not configured", "event_type", rec.Type())
		return d.status.record(Outcome{State: StateUnconfigured, At: d.now()})
	}

	body, err := json.Marshal(rec)
	if err != nil {
		d.logger.Error("Failed to encode event", "event_type", rec.Type(), "error", err)
		return d.status.record(Outcome{State: StateFailed, At: d.now(), Error: err.Error()})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, relay.URL, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("Failed to create relay request", "relay_url", relay.URL, "error", err)
		return d.status.record(Outcome{State: StateFailed, At: d.now(), Error: err.Error()})
	}
	req.Header.Set("Content-Type", "application/json")
	if relay.Token != "" {
		req.Header.Set("Authorization", "Bearer "+relay.Token)
	}

	d.logger.Debug("Sending event", "relay_url", relay.URL, "event_type", rec.Type())
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("Network error or server unreachable", "relay_url", relay.URL, "event_type", rec.Type(), "error", err)
		return d.status.record(Outcome{State: StateFailed, At: d.now(), Error: err.Error()})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Error("Error sending event", "event_type", rec.Type(), "status", resp.StatusCode, "reason", http.StatusText(resp.StatusCode))
		state := StateFailed
		if resp.StatusCode == http.StatusUnauthorized {
			state = StateUnauthorized
		}
		return d.status.record(Outcome{
			State: state,
			Code:  resp.StatusCode,
			At:    d.now(),
			Error: fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		})
	}

	d.logger.Debug("Event sent successfully", "event_type", rec.Type(), "status", resp.StatusCode)
	return d.status.record(Outcome{State: StateOK, Code: resp.StatusCode, At: d.now()})
}

// Current returns the cached configuration without loading.
func (d *Dispatcher) Current() config.Relay {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.relay
}

// Invalidate drops the cached configuration; the next delivery reloads it.
func (d *Dispatcher) Invalidate() {
	d.mu.Lock()
	d.relay = config.Relay{}
	d.mu.Unlock()
}

// Reload loads the configuration into the cache and returns it. Concurrent
// callers share one load.
func (d *Dispatcher) Reload(ctx context.Context) config.Relay {
	v, _, _ := d.reloads.Do("relay", func() (any, error) {
		relay := d.loader.Load(ctx)
		d.mu.Lock()
		d.relay = relay
		d.mu.Unlock()
		if relay.Configured() {
			d.logger.Info("Configuration loaded", "relay_url", relay.URL, "token_provided", relay.Token != "")
		} else {
			d.logger.Info("Configuration loaded, relay URL not set")
		}
		return relay, nil
	})
	return v.(config.Relay)
}

// Apply updates the cache from a change notification. The notification
// carries the whole persisted configuration, so the cache takes all of it,
// even if it was never loaded.
func (d *Dispatcher) Apply(change config.Change) {
	if !change.URLChanged && !change.TokenChanged {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relay = change.Relay
}

// ConfigUpdated handles the inbound "configuration updated" message by
// dropping the cache and reloading it.
func (d *Dispatcher) ConfigUpdated(ctx context.Context) (string, error) {
	d.Invalidate()
	d.Reload(ctx)
	return "Config reloaded", nil
}

// Status returns the outcome of the most recent delivery attempt.
func (d *Dispatcher) Status() Outcome {
	return d.status.last()
}
