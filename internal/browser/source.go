package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kazuph/browser-observer/internal/event"
)

const (
	notificationBuffer = 64
	callTimeout        = 5 * time.Second
)

type trackedTab struct {
	tab      event.Tab
	windowID int
}

// Source watches a browser over the DevTools protocol and produces tab
// lifecycle notifications.
//
// Tabs are page targets. Creation, title/URL changes and destruction come
// from target discovery on the browser websocket; the active tab is the
// front page target of /json/list, sampled every poll interval.
//
// Removals are held for the settle delay per window, since a closing
// window destroys its tabs one by one. After the delay the window is
// closing when none of its tabs remain or the browser no longer knows it,
// and every removal held for it is reported as window-closing.
type Source struct {
	client   *Client
	interval time.Duration
	settle   time.Duration
	reason   event.StartupReason
	logger   *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan message

	mu       sync.Mutex
	tabs     map[string]*trackedTab
	activeID string
	removals map[int][]string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	out    chan event.Notification
}

// NewSource creates a source reading from client. settle is how long
// removals wait before deciding whether their window is closing. reason is
// reported in the Startup notification.
func NewSource(client *Client, pollInterval, settle time.Duration, reason event.StartupReason, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Source{
		client:   client,
		interval: pollInterval,
		settle:   settle,
		reason:   reason,
		logger:   logger,
		pending:  make(map[int64]chan message),
		tabs:     make(map[string]*trackedTab),
		removals: make(map[int][]string),
	}
}

// Start connects to the browser and begins producing notifications. The
// source runs until ctx is done, Close is called, or the browser goes away;
// the notification channel is closed then.
func (s *Source) Start(ctx context.Context) error {
	version, err := s.client.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach DevTools at %s: %w", s.client.BaseURL(), err)
	}
	targets, err := s.client.ListTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load targets: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, version.WebSocketDebuggerURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to browser websocket: %w", err)
	}
	s.logger.Info("Connected to browser", "browser", version.Browser, "devtools", s.client.BaseURL())

	s.conn = conn
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.out = make(chan event.Notification, notificationBuffer)

	s.mu.Lock()
	for _, t := range targets {
		if !t.IsTab() {
			continue
		}
		if s.activeID == "" {
			s.activeID = t.ID
		}
		s.tabs[t.ID] = &trackedTab{tab: t.Tab()}
	}
	seeded := make([]string, 0, len(s.tabs))
	for id := range s.tabs {
		seeded = append(seeded, id)
	}
	s.mu.Unlock()

	s.out <- event.StartupNotification{Reason: s.reason}

	s.wg.Add(3)
	go s.readLoop()
	go s.pollLoop()
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		s.conn.Close()
	}()

	if _, err := s.call(ctx, "Target.setDiscoverTargets", map[string]any{"discover": true}); err != nil {
		s.Close()
		return fmt.Errorf("failed to enable target discovery: %w", err)
	}
	for _, id := range seeded {
		s.resolveWindow(id)
	}

	go func() {
		s.wg.Wait()
		close(s.out)
	}()
	return nil
}

// Notifications returns the channel notifications are delivered on.
func (s *Source) Notifications() <-chan event.Notification {
	return s.out
}

// Close disconnects from the browser.
func (s *Source) Close() error {
	if s.cancel == nil {
		return ErrNotStarted
	}
	s.cancel()
	return nil
}

func (s *Source) emit(n event.Notification) {
	select {
	case s.out <- n:
	case <-s.ctx.Done():
	}
}

// call sends a protocol command and waits for its response.
func (s *Source) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s params: %w", method, err)
	}
	id := s.nextID.Add(1)
	reply := make(chan message, 1)

	s.pendingMu.Lock()
	s.pending[id] = reply
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	s.writeMu.Lock()
	err = s.conn.WriteJSON(message{ID: id, Method: method, Params: raw})
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case msg := <-reply:
		if msg.Error != nil {
			return nil, fmt.Errorf("%s failed: %w", method, msg.Error)
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, fmt.Errorf("%s: connection closed", method)
	}
}

func (s *Source) readLoop() {
	defer s.wg.Done()
	defer s.cancel()
	for {
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("Browser connection lost", "error", err)
			}
			return
		}
		if msg.ID != 0 {
			s.pendingMu.Lock()
			reply, ok := s.pending[msg.ID]
			s.pendingMu.Unlock()
			if ok {
				reply <- msg
			}
			continue
		}
		s.handleEvent(msg)
	}
}

func (s *Source) handleEvent(msg message) {
	switch msg.Method {
	case "Target.targetCreated":
		var p targetInfoParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			s.logger.Warn("Malformed targetCreated", "error", err)
			return
		}
		s.targetCreated(p.TargetInfo)
	case "Target.targetInfoChanged":
		var p targetInfoParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			s.logger.Warn("Malformed targetInfoChanged", "error", err)
			return
		}
		s.targetInfoChanged(p.TargetInfo)
	case "Target.targetDestroyed":
		var p targetDestroyedParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			s.logger.Warn("Malformed targetDestroyed", "error", err)
			return
		}
		s.targetDestroyed(p.TargetID)
	}
}

func (s *Source) targetCreated(info targetInfo) {
	if info.Type != "page" {
		return
	}
	s.mu.Lock()
	if _, known := s.tabs[info.TargetID]; known {
		s.mu.Unlock()
		return
	}
	tab := info.tab()
	s.tabs[info.TargetID] = &trackedTab{tab: tab}
	s.mu.Unlock()

	s.emit(event.TabCreatedNotification{Tab: tab})
	s.resolveWindow(info.TargetID)
}

func (s *Source) targetInfoChanged(info targetInfo) {
	if info.Type != "page" {
		return
	}
	s.mu.Lock()
	tracked, ok := s.tabs[info.TargetID]
	if !ok {
		s.mu.Unlock()
		return
	}
	var changes event.TabChanges
	if info.Title != tracked.tab.Title {
		title := info.Title
		changes.Title = &title
	}
	if info.URL != tracked.tab.URL {
		u := info.URL
		changes.URL = &u
	}
	tracked.tab = info.tab()
	active := info.TargetID == s.activeID
	s.mu.Unlock()

	if changes.Empty() {
		return
	}
	s.emit(event.TabUpdatedNotification{
		TabID:   info.TargetID,
		Changes: changes,
		Tab:     info.tab(),
		Active:  active,
	})
}

func (s *Source) targetDestroyed(id string) {
	s.mu.Lock()
	tracked, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.tabs, id)
	if s.activeID == id {
		s.activeID = ""
	}
	windowID := tracked.windowID
	if windowID == 0 {
		s.mu.Unlock()
		s.emit(event.TabRemovedNotification{TabID: id})
		return
	}
	held, waiting := s.removals[windowID]
	s.removals[windowID] = append(held, id)
	s.mu.Unlock()

	if !waiting {
		s.wg.Add(1)
		go s.settleRemovals(windowID)
	}
}

// settleRemovals reports the removals held for windowID once the window
// has had time to finish closing.
func (s *Source) settleRemovals(windowID int) {
	defer s.wg.Done()
	timer := time.NewTimer(s.settle)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return
	case <-timer.C:
	}

	s.mu.Lock()
	ids := s.removals[windowID]
	delete(s.removals, windowID)
	remaining := false
	for _, other := range s.tabs {
		if other.windowID == windowID {
			remaining = true
			break
		}
	}
	s.mu.Unlock()

	closing := !remaining || !s.windowExists(windowID)
	for _, id := range ids {
		s.emit(event.TabRemovedNotification{
			TabID:         id,
			WindowID:      windowID,
			WindowClosing: closing,
		})
	}
}

// windowExists asks the browser whether windowID is still open. Unknown
// answers count as open.
func (s *Source) windowExists(windowID int) bool {
	ctx, cancel := context.WithTimeout(s.ctx, callTimeout)
	defer cancel()
	_, err := s.call(ctx, "Browser.getWindowBounds", map[string]any{"windowId": windowID})
	if err == nil {
		return true
	}
	var perr *protocolError
	if errors.As(err, &perr) {
		s.logger.Debug("Window is gone", "window_id", windowID, "error", err)
		return false
	}
	return true
}

// resolveWindow looks up the window of a tab in the background.
func (s *Source) resolveWindow(id string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, callTimeout)
		defer cancel()
		raw, err := s.call(ctx, "Browser.getWindowForTarget", map[string]any{"targetId": id})
		if err != nil {
			s.logger.Debug("Could not resolve window for tab", "tab_id", id, "error", err)
			return
		}
		var result windowForTargetResult
		if err := json.Unmarshal(raw, &result); err != nil {
			s.logger.Debug("Malformed getWindowForTarget result", "tab_id", id, "error", err)
			return
		}
		s.mu.Lock()
		if tracked, ok := s.tabs[id]; ok {
			tracked.windowID = result.WindowID
		}
		s.mu.Unlock()
	}()
}

func (s *Source) pollLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.pollActive()
		}
	}
}

func (s *Source) pollActive() {
	ctx, cancel := context.WithTimeout(s.ctx, callTimeout)
	defer cancel()
	targets, err := s.client.ListTargets(ctx)
	if err != nil {
		s.logger.Debug("Active tab poll failed", "error", err)
		return
	}
	front := ""
	for _, t := range targets {
		if t.IsTab() {
			front = t.ID
			break
		}
	}

	s.mu.Lock()
	changed := front != "" && front != s.activeID
	if changed {
		s.activeID = front
	}
	s.mu.Unlock()

	if changed {
		s.emit(event.TabActivatedNotification{TabID: front})
	}
}

func (s *Source) windowOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tracked, ok := s.tabs[id]; ok {
		return tracked.windowID
	}
	return 0
}
