package browser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newListServer(t *testing.T, targets []Target) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/list" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(targets)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_TabsFiltersPages(t *testing.T) {
	server := newListServer(t, []Target{
		{ID: "A", Type: "page", Title: "Alpha", URL: "https://a.example/"},
		{ID: "W", Type: "worker", URL: "https://a.example/w.js"},
		{ID: "B", Type: "page", Title: "Beta", URL: "https://b.example/"},
	})
	client := NewClient(server.URL+"/", time.Second, nil)

	tabs, err := client.Tabs(context.Background())
	if err != nil {
		t.Fatalf("Tabs: %v", err)
	}
	if len(tabs) != 2 || tabs[0].ID != "A" || tabs[1].ID != "B" {
		t.Errorf("tabs = %+v, want A and B", tabs)
	}

	active, err := client.ActiveTab(context.Background())
	if err != nil {
		t.Fatalf("ActiveTab: %v", err)
	}
	if active == nil || active.ID != "A" {
		t.Errorf("active = %+v, want A", active)
	}
}

func TestClient_TabNotFound(t *testing.T) {
	server := newListServer(t, []Target{{ID: "A", Type: "page"}})
	client := NewClient(server.URL, time.Second, nil)

	_, err := client.Tab(context.Background(), "Z")
	if !errors.Is(err, ErrTabNotFound) {
		t.Errorf("Tab error = %v, want ErrTabNotFound", err)
	}
	tab, err := client.Tab(context.Background(), "A")
	if err != nil || tab.ID != "A" {
		t.Errorf("Tab(A) = %+v, %v", tab, err)
	}
}

func TestClient_ActiveTabNoneOpen(t *testing.T) {
	server := newListServer(t, nil)
	client := NewClient(server.URL, time.Second, nil)

	active, err := client.ActiveTab(context.Background())
	if err != nil {
		t.Fatalf("ActiveTab: %v", err)
	}
	if active != nil {
		t.Errorf("active = %+v, want nil", active)
	}
}

func TestClient_VersionRequiresWebSocketURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Browser":"Chrome/120"}`))
	}))
	defer server.Close()

	if _, err := NewClient(server.URL, time.Second, nil).Version(context.Background()); err == nil {
		t.Error("Version without webSocketDebuggerUrl: want error")
	}
}

func TestClient_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := NewClient(server.URL, time.Second, nil).Tabs(context.Background()); err == nil {
		t.Error("Tabs on 503: want error")
	}
}
