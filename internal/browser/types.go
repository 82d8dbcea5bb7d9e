package browser

import (
	"encoding/json"
	"errors"

	"github.com/kazuph/browser-observer/internal/event"
)

var (
	// ErrTabNotFound is returned when a tab id is not among the open tabs.
	ErrTabNotFound = errors.New("tab not found")
	// ErrNotStarted is returned by Source methods used before Start.
	ErrNotStarted = errors.New("source not started")
)

// Target represents a DevTools debuggable target, as listed by /json/list
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type,omitempty"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

// IsTab reports whether the target is a browser tab
func (t Target) IsTab() bool {
	return t.Type == "page"
}

// Tab converts the target to a tab snapshot
func (t Target) Tab() event.Tab {
	return event.Tab{ID: t.ID, Title: t.Title, URL: t.URL}
}

// Version is the response of /json/version
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// message is a DevTools protocol frame: a command, a response, or an event
type message struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *protocolError  `json:"error,omitempty"`
}

type protocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *protocolError) Error() string {
	return e.Message
}

// targetInfo is Target.TargetInfo in the protocol
type targetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	URL      string `json:"url"`
}

func (t targetInfo) tab() event.Tab {
	return event.Tab{ID: t.TargetID, Title: t.Title, URL: t.URL}
}

type targetInfoParams struct {
	TargetInfo targetInfo `json:"targetInfo"`
}

type targetDestroyedParams struct {
	TargetID string `json:"targetId"`
}

type windowForTargetResult struct {
	WindowID int `json:"windowId"`
}
