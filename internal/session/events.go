package session

// Event kinds published through a Notifier.
const (
	EventOpened  = "document.opened"
	EventClosed  = "document.closed"
	EventRenamed = "document.renamed"
	EventChanged = "document.changed"
	EventActive  = "document.active"
	EventMode    = "mode.changed"
	EventFolder  = "folder.opened"
	EventStatus  = "status"
)

// Auto-save status messages.
const (
	StatusSaving = "Saving..."
	StatusSaved  = "Saved"
	StatusFailed = "Save failed"
)

// Notifier receives session events. Implementations must not call back into
// the session synchronously.
type Notifier interface {
	Notify(kind string, data any)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind string, data any)

func (f NotifierFunc) Notify(kind string, data any) { f(kind, data) }

type nopNotifier struct{}

func (nopNotifier) Notify(string, any) {}

// DocEvent is the payload of document events.
type DocEvent struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// RenameEvent is the payload of document.renamed.
type RenameEvent struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Title string `json:"title"`
}

// Status is the payload of status events.
type Status struct {
	Message string `json:"message"`
	Error   bool   `json:"error,omitempty"`
}
