package models

// Live stream event names
const (
	EventMessage     = "message"
	EventGuarded     = "guarded"
	EventCancellable = "cancellable"
)

// Event is one item pushed to a session's live stream. Name is optional.
type Event struct {
	Name string `json:"event,omitempty"`
	Data string `json:"data"`
}

// DemoRequest triggers a demo action. Original is echoed back when the action completes.
type DemoRequest struct {
	Original string `json:"original" binding:"max=200"`
}
