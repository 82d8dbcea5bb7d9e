package collector

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kazuph/browser-observer/internal/config"
	"github.com/kazuph/browser-observer/internal/event"
	"github.com/kazuph/browser-observer/internal/relay"
)

func setupTestServer(t *testing.T, token string) *Server {
	t.Helper()
	return NewServer(setupTestDB(t), "127.0.0.1:0", token, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func serve(server *Server, method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealthz(t *testing.T) {
	server := setupTestServer(t, "")

	w := serve(server, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestHandleEventsSuccess(t *testing.T) {
	server := setupTestServer(t, "secret")

	body := `{"observer":"browser","event_type":"tab_created","timestamp":"2025-01-02T03:04:05.000Z","data":{"newTabId":7,"totalTabs":3}}`
	w := serve(server, http.MethodPost, "/events", body, "secret")
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", w.Code, w.Body.String())
	}

	w = serve(server, http.MethodGet, "/events?limit=5", "", "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /events = %d", w.Code)
	}
	var events []StoredEvent
	if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "tab_created" || events[0].Observer != "browser" {
		t.Errorf("events = %+v", events)
	}
}

func TestHandleEventsAuth(t *testing.T) {
	server := setupTestServer(t, "secret")

	body := `{"event_type":"tab_created","data":{}}`
	if w := serve(server, http.MethodPost, "/events", body, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := serve(server, http.MethodPost, "/events", body, "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestHandleEventsBadRequests(t *testing.T) {
	server := setupTestServer(t, "")

	for _, body := range []string{`{invalid`, `{"data":{}}`, `{"event_type":"tab_exploded","data":{}}`} {
		if w := serve(server, http.MethodPost, "/events", body, ""); w.Code != http.StatusBadRequest {
			t.Errorf("POST %s = %d, want 400", body, w.Code)
		}
	}
	for _, limit := range []string{"0", "abc", "5000"} {
		if w := serve(server, http.MethodGet, "/events?limit="+limit, "", ""); w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s = %d, want 400", limit, w.Code)
		}
	}
	if w := serve(server, http.MethodDelete, "/events", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE = %d, want 405", w.Code)
	}
}

func TestHandleEventsEmptyList(t *testing.T) {
	server := setupTestServer(t, "")

	w := serve(server, http.MethodGet, "/events", "", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}

type fixedLoader config.Relay

func (l fixedLoader) Load(context.Context) config.Relay { return config.Relay(l) }

func TestDispatcherDeliversToCollector(t *testing.T) {
	server := setupTestServer(t, "abc")
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	dispatcher := relay.NewDispatcher(fixedLoader{URL: ts.URL + "/events", Token: "abc"}, relay.Options{Timeout: 2 * time.Second})
	outcome := dispatcher.Deliver(context.Background(), event.NewRecord(event.TabRemoved, time.Now(), event.TabRemovedData{RemovedTabID: "9", TotalTabs: event.Count(2)}))
	if outcome.State != relay.StateOK || outcome.Code != http.StatusNoContent {
		t.Fatalf("outcome = %+v", outcome)
	}

	w := serve(server, http.MethodGet, "/events/counts", "", "abc")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /events/counts = %d", w.Code)
	}
	var counts map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	if counts[string(event.TabRemoved)] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestCountEvents(t *testing.T) {
	server := setupTestServer(t, "abc")

	if w := serve(server, http.MethodGet, "/events/counts", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	w := serve(server, http.MethodGet, "/events/counts", "", "abc")
	if strings.TrimSpace(w.Body.String()) != "{}" {
		t.Errorf("empty counts = %q, want {}", w.Body.String())
	}

	for _, typ := range []string{"tab_created", "tab_created", "window_closing"} {
		body := `{"observer":"browser","event_type":"` + typ + `","timestamp":"2025-01-02T03:04:05.000Z","data":{}}`
		if w := serve(server, http.MethodPost, "/events", body, "abc"); w.Code != http.StatusNoContent {
			t.Fatalf("POST %s = %d", typ, w.Code)
		}
	}

	w = serve(server, http.MethodGet, "/events/counts", "", "abc")
	var counts map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	if counts["tab_created"] != 2 || counts["window_closing"] != 1 || len(counts) != 2 {
		t.Errorf("counts = %v", counts)
	}
}
