package vmm

// Event represents a manager lifecycle event.
// Minimal and stable: name + device and optional fields via key/values.
type Event struct {
	Name   string
	Device int
	Fields map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish is called with the manager lock held
// and must not call back into the Manager.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
