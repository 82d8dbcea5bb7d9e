package browser

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kazuph/browser-observer/internal/event"
)

// fakeDevTools serves the DevTools HTTP endpoints and a browser websocket.
type fakeDevTools struct {
	t      *testing.T
	server *httptest.Server

	mu      sync.Mutex
	targets []Target
	windows map[string]int
	closed  map[int]bool
	conn    *websocket.Conn
	writeMu sync.Mutex
	ready   chan struct{}
}

func newFakeDevTools(t *testing.T, targets []Target, windows map[string]int) *fakeDevTools {
	t.Helper()
	f := &fakeDevTools{t: t, targets: targets, windows: windows, closed: make(map[int]bool), ready: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Version{
			Browser:              "HeadlessChrome/120.0",
			WebSocketDebuggerURL: "ws://" + r.Host + "/devtools/browser/fake",
		})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.targets)
	})
	mux.HandleFunc("/devtools/browser/fake", f.serveWS)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDevTools) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		var result any = map[string]any{}
		var protoErr *protocolError
		switch msg.Method {
		case "Browser.getWindowBounds":
			var p struct {
				WindowID int `json:"windowId"`
			}
			json.Unmarshal(msg.Params, &p)
			f.mu.Lock()
			if f.closed[p.WindowID] {
				protoErr = &protocolError{Code: -32000, Message: "Browser window not found"}
			}
			f.mu.Unlock()
		case "Browser.getWindowForTarget":
			var p struct {
				TargetID string `json:"targetId"`
			}
			json.Unmarshal(msg.Params, &p)
			f.mu.Lock()
			result = windowForTargetResult{WindowID: f.windows[p.TargetID]}
			f.mu.Unlock()
		}
		if protoErr != nil {
			f.write(message{ID: msg.ID, Error: protoErr})
			continue
		}
		raw, _ := json.Marshal(result)
		f.write(message{ID: msg.ID, Result: raw})
		if msg.Method == "Target.setDiscoverTargets" {
			select {
			case <-f.ready:
			default:
				close(f.ready)
			}
		}
	}
}

func (f *fakeDevTools) write(msg message) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		f.t.Errorf("write: %v", err)
	}
}

func (f *fakeDevTools) push(method string, params any) {
	raw, _ := json.Marshal(params)
	f.write(message{Method: method, Params: raw})
}

func (f *fakeDevTools) closeWindow(windowID int) {
	f.mu.Lock()
	f.closed[windowID] = true
	f.mu.Unlock()
}

func (f *fakeDevTools) setTargets(targets []Target) {
	f.mu.Lock()
	f.targets = targets
	f.mu.Unlock()
}

func next(t *testing.T, ch <-chan event.Notification) event.Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatal("notification channel closed")
		}
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startSource(t *testing.T, f *fakeDevTools, poll time.Duration) *Source {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(f.server.URL, 2*time.Second, logger)
	source := NewSource(client, poll, 50*time.Millisecond, event.ReasonStartup, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := source.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-f.ready
	return source
}

func TestSource_Lifecycle(t *testing.T) {
	f := newFakeDevTools(t,
		[]Target{
			{ID: "A", Type: "page", Title: "Alpha", URL: "https://a.example/"},
			{ID: "B", Type: "page", Title: "Beta", URL: "https://b.example/"},
			{ID: "SW", Type: "service_worker", URL: "https://a.example/sw.js"},
		},
		map[string]int{"A": 1, "B": 1, "C": 2},
	)
	source := startSource(t, f, time.Hour)
	ch := source.Notifications()

	if n, ok := next(t, ch).(event.StartupNotification); !ok || n.Reason != event.ReasonStartup {
		t.Fatalf("first notification = %#v, want startup", n)
	}
	waitFor(t, func() bool { return source.windowOf("A") == 1 && source.windowOf("B") == 1 })

	// Discovery replays known targets; they must not be reported again.
	f.push("Target.targetCreated", targetInfoParams{TargetInfo: targetInfo{TargetID: "A", Type: "page", Title: "Alpha", URL: "https://a.example/"}})
	f.push("Target.targetCreated", targetInfoParams{TargetInfo: targetInfo{TargetID: "C", Type: "page", Title: "", URL: "about:blank"}})
	created, ok := next(t, ch).(event.TabCreatedNotification)
	if !ok || created.Tab.ID != "C" {
		t.Fatalf("got %#v, want TabCreated C", created)
	}
	waitFor(t, func() bool { return source.windowOf("C") == 2 })

	f.push("Target.targetInfoChanged", targetInfoParams{TargetInfo: targetInfo{TargetID: "A", Type: "page", Title: "Alpha 2", URL: "https://a.example/"}})
	updated, ok := next(t, ch).(event.TabUpdatedNotification)
	if !ok || updated.TabID != "A" {
		t.Fatalf("got %#v, want TabUpdated A", updated)
	}
	if !updated.Active {
		t.Error("A is the front tab and should be active")
	}
	if updated.Changes.Title == nil || *updated.Changes.Title != "Alpha 2" || updated.Changes.URL != nil {
		t.Errorf("changes = %+v, want only the title", updated.Changes)
	}

	f.push("Target.targetDestroyed", targetDestroyedParams{TargetID: "C"})
	removed, ok := next(t, ch).(event.TabRemovedNotification)
	if !ok || removed.TabID != "C" {
		t.Fatalf("got %#v, want TabRemoved C", removed)
	}
	if !removed.WindowClosing || removed.WindowID != 2 {
		t.Errorf("removed = %+v, want window 2 closing", removed)
	}

	f.push("Target.targetDestroyed", targetDestroyedParams{TargetID: "B"})
	removed, ok = next(t, ch).(event.TabRemovedNotification)
	if !ok || removed.TabID != "B" {
		t.Fatalf("got %#v, want TabRemoved B", removed)
	}
	if removed.WindowClosing {
		t.Error("B shares window 1 with A; window should not be closing")
	}
}

func TestSource_ClosingWindowReportsEveryTab(t *testing.T) {
	f := newFakeDevTools(t,
		[]Target{
			{ID: "A", Type: "page", Title: "Alpha", URL: "https://a.example/"},
			{ID: "B", Type: "page", Title: "Beta", URL: "https://b.example/"},
			{ID: "C", Type: "page", Title: "Gamma", URL: "https://c.example/"},
		},
		map[string]int{"A": 1, "B": 1, "C": 2},
	)
	source := startSource(t, f, time.Hour)
	ch := source.Notifications()
	next(t, ch) // startup
	waitFor(t, func() bool { return source.windowOf("A") == 1 && source.windowOf("B") == 1 && source.windowOf("C") == 2 })

	f.closeWindow(1)
	f.push("Target.targetDestroyed", targetDestroyedParams{TargetID: "A"})
	f.push("Target.targetDestroyed", targetDestroyedParams{TargetID: "B"})

	for _, want := range []string{"A", "B"} {
		removed, ok := next(t, ch).(event.TabRemovedNotification)
		if !ok || removed.TabID != want {
			t.Fatalf("got %#v, want TabRemoved %s", removed, want)
		}
		if !removed.WindowClosing || removed.WindowID != 1 {
			t.Errorf("removed = %+v, want window 1 closing", removed)
		}
	}
}

func TestSource_GoneWindowIsClosingWhileTabsRemain(t *testing.T) {
	f := newFakeDevTools(t,
		[]Target{
			{ID: "A", Type: "page", Title: "Alpha", URL: "https://a.example/"},
			{ID: "B", Type: "page", Title: "Beta", URL: "https://b.example/"},
		},
		map[string]int{"A": 1, "B": 1},
	)
	source := startSource(t, f, time.Hour)
	ch := source.Notifications()
	next(t, ch) // startup
	waitFor(t, func() bool { return source.windowOf("A") == 1 && source.windowOf("B") == 1 })

	// B's destruction has not arrived yet, but the browser no longer has the window.
	f.closeWindow(1)
	f.push("Target.targetDestroyed", targetDestroyedParams{TargetID: "A"})

	removed, ok := next(t, ch).(event.TabRemovedNotification)
	if !ok || removed.TabID != "A" {
		t.Fatalf("got %#v, want TabRemoved A", removed)
	}
	if !removed.WindowClosing {
		t.Errorf("removed = %+v, want window closing", removed)
	}
}

func TestSource_PollReportsActivation(t *testing.T) {
	f := newFakeDevTools(t,
		[]Target{
			{ID: "A", Type: "page", Title: "Alpha", URL: "https://a.example/"},
			{ID: "B", Type: "page", Title: "Beta", URL: "https://b.example/"},
		},
		map[string]int{"A": 1, "B": 1},
	)
	source := startSource(t, f, 20*time.Millisecond)
	ch := source.Notifications()
	next(t, ch) // startup

	f.setTargets([]Target{
		{ID: "B", Type: "page", Title: "Beta", URL: "https://b.example/"},
		{ID: "A", Type: "page", Title: "Alpha", URL: "https://a.example/"},
	})

	activated, ok := next(t, ch).(event.TabActivatedNotification)
	if !ok || activated.TabID != "B" {
		t.Fatalf("got %#v, want TabActivated B", activated)
	}
}

func TestSource_ClosesChannelOnShutdown(t *testing.T) {
	f := newFakeDevTools(t, nil, nil)
	source := startSource(t, f, time.Hour)
	ch := source.Notifications()
	next(t, ch) // startup

	if err := source.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected notification after close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after Close")
	}
}

func TestSource_StartFailsWithoutBrowser(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	source := NewSource(NewClient(server.URL, time.Second, nil), time.Second, 0, event.ReasonStartup, nil)
	err := source.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to reach DevTools") {
		t.Fatalf("Start error = %v, want DevTools reach failure", err)
	}
	if source.Close() != ErrNotStarted {
		t.Error("Close before a successful Start should report ErrNotStarted")
	}
}
