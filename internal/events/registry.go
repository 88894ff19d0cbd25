package events

import (
	"log/slog"
	"reflect"
	"sync"
)

// Listener receives events for the kinds it was registered under.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a plain function. Every ListenerFunc registration
// is distinct; a subscriber that needs Off must register a comparable
// value, typically a pointer receiver.
type ListenerFunc func(Event)

func (f ListenerFunc) HandleEvent(e Event) { f(e) }

// Registry is an ordered fan-out table: listeners are invoked in
// registration order, against a snapshot of the list taken when Emit
// starts. On/Off during a dispatch only affect future emits.
type Registry struct {
	mu     sync.RWMutex
	subs   map[Kind][]Listener
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		subs:   make(map[Kind][]Listener),
		logger: logger,
	}
}

// sameListener reports whether two listeners are the same registration.
// Identity is interface equality, which holds for pointer-receiver
// subscribers. Incomparable types (ListenerFunc included) are never the
// same registration.
func sameListener(a, b Listener) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// On appends l to the list for kind. Registering the same listener twice
// under one kind keeps a single entry.
func (r *Registry) On(kind Kind, l Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.subs[kind] {
		if sameListener(existing, l) {
			return
		}
	}
	r.subs[kind] = append(r.subs[kind], l)
}

// Off removes l from the list for kind. Removing a listener that is not
// registered is a no-op.
func (r *Registry) Off(kind Kind, l Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.subs[kind]
	for i, existing := range list {
		if sameListener(existing, l) {
			r.subs[kind] = append(append([]Listener{}, list[:i]...), list[i+1:]...)
			return
		}
	}
}

// Emit delivers e to every listener registered for its kind, in
// registration order. The listener list is snapshotted up front, so a
// listener unsubscribing a peer mid-dispatch does not rob the peer of the
// current delivery.
func (r *Registry) Emit(e Event) {
	r.mu.RLock()
	list := r.subs[e.Kind()]
	snapshot := make([]Listener, len(list))
	copy(snapshot, list)
	r.mu.RUnlock()

	if len(snapshot) > 0 {
		r.logger.Debug("emit", "kind", e.Kind().String(), "listeners", len(snapshot))
	}
	for _, l := range snapshot {
		l.HandleEvent(e)
	}
}
