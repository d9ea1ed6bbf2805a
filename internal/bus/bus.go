// Package bus implements the typed event bus that sequences every
// mutation in a simulation run. Dispatch is depth-first and strictly
// ordered: system-tier listeners run in registration order and may
// consume the event; user-tier listeners always run afterwards.
package bus

// Listener handles an event. A system-tier listener that returns true
// consumes the event and stops further system-tier dispatch. The
// return value of user-tier listeners is ignored.
type Listener func(Event) bool

// Bus is a two-tier publish/subscribe dispatcher. It performs no error
// containment: a panicking listener propagates to the publisher.
// Listeners must not subscribe or unsubscribe during dispatch.
type Bus struct {
	system map[Kind][]Listener
	user   map[Kind][]Listener
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		system: make(map[Kind][]Listener),
		user:   make(map[Kind][]Listener),
	}
}

// Subscribe appends a system-tier listener for the kind.
func (b *Bus) Subscribe(k Kind, l Listener) {
	b.system[k] = append(b.system[k], l)
}

// Prepend inserts a system-tier listener ahead of the existing ones.
// Load-bearing for ordering: the ledger's last-price refresh is
// prepended on BAR so prices are fresh before any other listener runs.
func (b *Bus) Prepend(k Kind, l Listener) {
	b.system[k] = append([]Listener{l}, b.system[k]...)
}

// SubscribeUser appends a user-tier listener for the kind. User
// listeners run after every system listener and cannot be
// short-circuited.
func (b *Bus) SubscribeUser(k Kind, l Listener) {
	b.user[k] = append(b.user[k], l)
}

// Publish dispatches the event to system listeners in order, stopping
// early when one consumes it, then unconditionally to user listeners.
func (b *Bus) Publish(ev Event) {
	for _, l := range b.system[ev.Kind()] {
		if l(ev) {
			break
		}
	}
	for _, l := range b.user[ev.Kind()] {
		l(ev)
	}
}
