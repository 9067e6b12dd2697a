package schema

import "time"

// Event defines the behavior for an event received from a feed.
type Event interface {
	EventID() string
	EventType() string
	Metadata() map[string]any
	Domain() string
	Time() time.Time
}
