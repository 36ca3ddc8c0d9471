package event

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
)

type handler struct {
	id uint64
	fn func(Event)
}

// Bus dispatches events synchronously to the handlers registered for their kind.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Kind][]handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]handler)}
}

// Subscription identifies one registered handler.
type Subscription struct {
	bus  *Bus
	kind Kind
	id   uint64
}

// Unsubscribe removes the handler. Calling it more than once is a no-op.
func (s Subscription) Unsubscribe() {
	if s.bus == nil {
		return
	}
	s.bus.remove(s.kind, s.id)
}

// Subscribe registers fn for events of type E. Handlers run in subscription order on the
// publishing goroutine.
//
// Parameters:
//   - b: the bus to subscribe on
//   - fn: the typed handler
//
// Returns:
//   - Subscription: handle used to unsubscribe
func Subscribe[E Event](b *Bus, fn func(E)) Subscription {
	var zero E
	kind := zero.Kind()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], handler{id: id, fn: func(e Event) {
		fn(e.(E))
	}})
	return Subscription{bus: b, kind: kind, id: id}
}

// Publish delivers e to every handler subscribed to its kind. Handlers may subscribe or
// unsubscribe while being called; the change applies from the next Publish.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	hs := b.handlers[e.Kind()]
	b.mu.RUnlock()

	common.Logger().Debug("event", "kind", e.Kind(), "handlers", len(hs))
	for _, h := range hs {
		h.fn(e)
	}
}

// Count returns the number of handlers subscribed to kind.
func (b *Bus) Count(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

func (b *Bus) remove(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[kind]
	for i, h := range hs {
		if h.id == id {
			// copy so a Publish iterating the old slice is unaffected
			next := make([]handler, 0, len(hs)-1)
			next = append(next, hs[:i]...)
			b.handlers[kind] = append(next, hs[i+1:]...)
			return
		}
	}
}
