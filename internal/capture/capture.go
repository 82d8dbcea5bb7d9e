// Package capture turns browser notifications into Event Records.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kazuph/browser-observer/internal/event"
)

// Browser answers questions about current tab state.
type Browser interface {
	Tab(ctx context.Context, id string) (event.Tab, error)
	Tabs(ctx context.Context) ([]event.Tab, error)
	ActiveTab(ctx context.Context) (*event.Tab, error)
}

// Sender hands a record's type and payload to the dispatcher.
type Sender interface {
	Send(eventType event.Type, data any)
}

// Capturer applies the capture policy to each notification.
type Capturer struct {
	browser Browser
	sender  Sender
	settle  time.Duration
	logger  *slog.Logger

	pending sync.WaitGroup
}

// New creates a Capturer. settle is the delay before counting tabs after a
// tab is created or removed.
func New(browser Browser, sender Sender, settle time.Duration, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{
		browser: browser,
		sender:  sender,
		settle:  settle,
		logger:  logger,
	}
}

// Run handles notifications one at a time until the channel is closed or
// ctx is done, then waits for delayed captures still pending.
func (c *Capturer) Run(ctx context.Context, notifications <-chan event.Notification) {
	defer c.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			c.Handle(ctx, n)
		}
	}
}

// Wait blocks until every delayed capture has run.
func (c *Capturer) Wait() {
	c.pending.Wait()
}

// Handle captures a single notification. It never panics past its
// boundary: failures are logged and turned into degraded records.
func (c *Capturer) Handle(ctx context.Context, n event.Notification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Capture panicked", "notification", n, "panic", r)
		}
	}()

	switch n := n.(type) {
	case event.TabActivatedNotification:
		c.tabActivated(ctx, n)
	case event.TabUpdatedNotification:
		c.tabUpdated(ctx, n)
	case event.TabCreatedNotification:
		c.tabCreated(ctx, n)
	case event.TabRemovedNotification:
		c.tabRemoved(ctx, n)
	case event.StartupNotification:
		c.startup(ctx, n)
	default:
		c.logger.Warn("Ignoring unknown notification", "type", n)
	}
}

func (c *Capturer) tabActivated(ctx context.Context, n event.TabActivatedNotification) {
	c.logger.Debug("Tab activated", "tab_id", n.TabID)
	tab, err := c.browser.Tab(ctx, n.TabID)
	if err != nil {
		// The tab can disappear right after activation.
		c.logger.Warn("Error getting activated tab details", "tab_id", n.TabID, "error", err)
		c.sender.Send(event.TabActivatedError, event.ActivationErrorData{
			Error:     err.Error(),
			TotalTabs: c.count(ctx),
		})
		return
	}
	c.sender.Send(event.TabActivated, event.ActiveTabData{
		ActiveTab: tab,
		TotalTabs: c.count(ctx),
	})
}

func (c *Capturer) tabUpdated(ctx context.Context, n event.TabUpdatedNotification) {
	if !n.Active || n.Changes.Empty() {
		return
	}
	c.logger.Debug("Active tab updated", "tab_id", n.TabID)
	c.sender.Send(event.TabUpdated, event.TabUpdatedData{
		ActiveTab: n.Tab,
		TotalTabs: c.count(ctx),
		Changes:   n.Changes,
	})
}

func (c *Capturer) tabCreated(ctx context.Context, n event.TabCreatedNotification) {
	c.logger.Debug("Tab created", "tab_id", n.Tab.ID)
	c.afterSettle(func() {
		c.sender.Send(event.TabCreated, event.TabCreatedData{
			NewTabID:  n.Tab.ID,
			TotalTabs: c.count(ctx),
		})
	})
}

func (c *Capturer) tabRemoved(ctx context.Context, n event.TabRemovedNotification) {
	c.logger.Debug("Tab removed", "tab_id", n.TabID, "window_closing", n.WindowClosing)
	if n.WindowClosing {
		c.logger.Debug("Window is closing, not sending tab removed count event", "tab_id", n.TabID)
		c.sender.Send(event.WindowClosing, event.WindowClosingData{RemovedTabID: n.TabID})
		return
	}
	c.afterSettle(func() {
		c.sender.Send(event.TabRemoved, event.TabRemovedData{
			RemovedTabID: n.TabID,
			TotalTabs:    c.count(ctx),
		})
	})
}

func (c *Capturer) startup(ctx context.Context, n event.StartupNotification) {
	c.logger.Info("Capturing initial state", "reason", n.Reason)
	data := event.InitialStateData{TotalTabs: c.count(ctx)}
	active, err := c.browser.ActiveTab(ctx)
	if err != nil {
		c.logger.Warn("Error getting active tab for initial state", "error", err)
	} else {
		data.ActiveTab = active
	}
	c.sender.Send(event.InitialState, data)
}

// count returns the total tab count, or nil when the browser cannot be
// queried.
func (c *Capturer) count(ctx context.Context) *int {
	tabs, err := c.browser.Tabs(ctx)
	if err != nil {
		c.logger.Warn("Error counting tabs", "error", err)
		return nil
	}
	return event.Count(len(tabs))
}

func (c *Capturer) afterSettle(fn func()) {
	c.pending.Add(1)
	time.AfterFunc(c.settle, func() {
		defer c.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Delayed capture panicked", "panic", r)
			}
		}()
		fn()
	})
}
