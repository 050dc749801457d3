package eventbus

import "time"

// Event represents an application event published to the bus. Payload is
// one of the typed *Payload structs declared by the package that owns the
// event type (tsp.ToolServerStatusChangedPayload,
// scheduler.SweepFinishedPayload, ...), not a bare string map: listeners type-assert
// on the concrete payload type they expect for the event types they care
// about.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Listener is a function that handles an event.
type Listener func(Event)
