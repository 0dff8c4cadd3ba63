package sim

// Severity classifies a spawned event for the explanation and output layers.
type Severity string

const (
	// SeverityNormal is informational.
	SeverityNormal Severity = "normal"

	// SeverityWarning signals a condition operators should notice.
	SeverityWarning Severity = "warning"

	// SeverityCritical signals a condition requiring immediate response.
	SeverityCritical Severity = "critical"
)

// Event is a tick-scoped signal spawned by a SPAWN_EVENT action.
// Spawning the same event type again in a tick overwrites the prior payload.
type Event struct {
	// ID is unique per spawn.
	ID string `json:"id"`

	// SourceRule is the id of the rule whose action spawned the event.
	SourceRule string `json:"source_rule"`

	// Timestamp is the tick at spawn.
	Timestamp int `json:"timestamp"`

	// EventType is the bus key; conditions read it as events.{EventType}.
	EventType string `json:"event_type"`

	// Payload is an opaque mapping carried for the output layer.
	Payload map[string]Value `json:"payload,omitempty"`

	// Severity is normal, warning, or critical.
	Severity Severity `json:"severity"`
}

// EventBus holds the events spawned during the current tick, keyed by event
// type. Conditions observe an event the instant it is spawned; the engine
// clears the bus at the start of each tick unless configured for
// cross-tick persistence.
//
// INVARIANT: at most one event per event type at any moment. A re-spawn of
// the same type within a tick overwrites.
type EventBus struct {
	events map[string]*Event
	order  []string // event types in first-spawn order, for deterministic iteration
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{events: make(map[string]*Event)}
}

// Spawn inserts or overwrites the event under its EventType.
func (b *EventBus) Spawn(ev *Event) {
	if _, exists := b.events[ev.EventType]; !exists {
		b.order = append(b.order, ev.EventType)
	}
	b.events[ev.EventType] = ev
}

// Get returns the event for the given type, or nil if none is active.
func (b *EventBus) Get(eventType string) *Event {
	return b.events[eventType]
}

// Active returns the current events in first-spawn order.
func (b *EventBus) Active() []*Event {
	out := make([]*Event, 0, len(b.events))
	for _, t := range b.order {
		out = append(out, b.events[t])
	}
	return out
}

// Len returns the number of active events.
func (b *EventBus) Len() int {
	return len(b.events)
}

// Clear drops all events. Called by the engine at tick start.
func (b *EventBus) Clear() {
	b.events = make(map[string]*Event)
	b.order = nil
}

// Clone returns a deep copy of the bus. Payload values are immutable once
// spawned, so the Event structs themselves are copied shallowly per field
// with a fresh payload map.
func (b *EventBus) Clone() *EventBus {
	c := NewEventBus()
	for _, t := range b.order {
		ev := b.events[t]
		cp := *ev
		if ev.Payload != nil {
			cp.Payload = make(map[string]Value, len(ev.Payload))
			for k, v := range ev.Payload {
				cp.Payload[k] = v
			}
		}
		c.Spawn(&cp)
	}
	return c
}
