package event

// Observer tags every record produced by this process.
const Observer = "browser"

// Type identifies the kind of an Event Record on the wire.
type Type string

const (
	TabActivated      Type = "tab_activated"
	TabActivatedError Type = "tab_activated_error"
	TabUpdated        Type = "tab_updated"
	TabCreated        Type = "tab_created"
	TabRemoved        Type = "tab_removed"
	WindowClosing     Type = "window_closing"
	InitialState      Type = "initial_state"
)

// Types lists every known event type in wire order.
var Types = []Type{
	TabActivated,
	TabUpdated,
	TabCreated,
	TabRemoved,
	WindowClosing,
	InitialState,
	TabActivatedError,
}

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Tab is a point-in-time snapshot of a browser tab. It may be stale.
type Tab struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// TabChanges holds the fields of a tab that changed in an update.
// Nil means unchanged.
type TabChanges struct {
	Title *string `json:"title,omitempty"`
	URL   *string `json:"url,omitempty"`
}

// Empty reports whether neither title nor URL changed.
func (c TabChanges) Empty() bool {
	return c.Title == nil && c.URL == nil
}

// ActiveTabData is the payload of tab_activated.
type ActiveTabData struct {
	ActiveTab Tab  `json:"activeTab"`
	TotalTabs *int `json:"totalTabs"`
}

// ActivationErrorData is the payload of tab_activated_error.
type ActivationErrorData struct {
	Error     string `json:"error"`
	TotalTabs *int   `json:"totalTabs"`
}

// TabUpdatedData is the payload of tab_updated.
type TabUpdatedData struct {
	ActiveTab Tab        `json:"activeTab"`
	TotalTabs *int       `json:"totalTabs"`
	Changes   TabChanges `json:"changes"`
}

// TabCreatedData is the payload of tab_created.
type TabCreatedData struct {
	NewTabID  string `json:"newTabId"`
	TotalTabs *int   `json:"totalTabs"`
}

// TabRemovedData is the payload of tab_removed.
type TabRemovedData struct {
	RemovedTabID string `json:"removedTabId"`
	TotalTabs    *int   `json:"totalTabs"`
}

// WindowClosingData is the payload of window_closing. It carries no count
// because tab queries during window teardown are unreliable.
type WindowClosingData struct {
	RemovedTabID string `json:"removedTabId"`
}

// InitialStateData is the payload of initial_state.
type InitialStateData struct {
	TotalTabs *int `json:"totalTabs"`
	ActiveTab *Tab `json:"activeTab"`
}

// Count returns a pointer to n, for the optional totalTabs fields.
func Count(n int) *int {
	return &n
}
