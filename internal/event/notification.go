package event

// Notification is a raw browser lifecycle notification. The concrete
// variants below are the only implementations; consumers switch on type.
type Notification interface {
	notification()
}

// TabActivatedNotification reports that the active tab changed.
type TabActivatedNotification struct {
	TabID string
}

// TabUpdatedNotification reports a change to a tab's title or URL.
// Active is whether the tab was the active tab when the change was seen.
type TabUpdatedNotification struct {
	TabID   string
	Changes TabChanges
	Tab     Tab
	Active  bool
}

// TabCreatedNotification reports a newly opened tab.
type TabCreatedNotification struct {
	Tab Tab
}

// TabRemovedNotification reports a closed tab. WindowClosing is set when
// the tab went away together with its window.
type TabRemovedNotification struct {
	TabID         string
	WindowID      int
	WindowClosing bool
}

// StartupReason says why a Startup notification was produced.
type StartupReason string

const (
	ReasonInstall StartupReason = "install"
	ReasonStartup StartupReason = "startup"
)

// StartupNotification is produced once when the observer attaches.
type StartupNotification struct {
	Reason StartupReason
}

func (TabActivatedNotification) notification() {}
func (TabUpdatedNotification) notification()   {}
func (TabCreatedNotification) notification()   {}
func (TabRemovedNotification) notification()   {}
func (StartupNotification) notification()      {}
