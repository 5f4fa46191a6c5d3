package notify

import (
	"time"

	"signal-core/internal/events"
)

// Bus republishes notifications on the event bus for websocket clients.
type Bus struct {
	Bus *events.Bus
}

func (b Bus) Notify(text string) {
	b.Bus.Publish(events.EventNotification, events.Lifecycle{Message: text, Time: time.Now()})
}
