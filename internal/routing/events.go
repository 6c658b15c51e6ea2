package routing

import "netlab/pkg/wire"

// EventKind distinguishes routing-plane notifications: the engine
// raises these so the routing daemon can feed its control-plane
// metrics without the engine importing them.
type EventKind int

const (
	EventNeighborUp EventKind = iota
	EventNeighborDown
	EventTableRebuilt
)

// Event carries the address involved, or the zero Addr for
// EventTableRebuilt (which affects the whole table, not one neighbor).
type Event struct {
	Kind EventKind
	Node wire.Addr
}

// EventHandler reacts to a routing event.
type EventHandler func(Event)

// EventManager is a minimal pub-sub dispatcher, one handler slice per
// kind, invoked synchronously on the engine's own loop — there is no
// goroutine here, matching the single-threaded cooperative model the
// rest of the control plane runs under.
type EventManager struct {
	handlers map[EventKind][]EventHandler
}

// NewEventManager returns an empty dispatcher.
func NewEventManager() *EventManager {
	return &EventManager{handlers: make(map[EventKind][]EventHandler)}
}

// On registers handler for kind.
func (m *EventManager) On(kind EventKind, handler EventHandler) {
	m.handlers[kind] = append(m.handlers[kind], handler)
}

// Fire dispatches event to every handler registered for its kind.
func (m *EventManager) Fire(event Event) {
	for _, h := range m.handlers[event.Kind] {
		h(event)
	}
}
