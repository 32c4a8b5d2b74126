package events

// Event represents a bridge lifecycle event.
// Minimal and stable: name + optional fields via key/values.
type Event struct {
	Name   string
	Fields map[string]any
}

// Publisher receives events from the supervisor, the live connection and the
// switch workflow. Implementations should be lightweight and non-blocking;
// Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Noop returns a publisher that discards all events.
func Noop() Publisher { return noopPublisher{} }
