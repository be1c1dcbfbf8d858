package lcoll

import "slices"

// Event names a collection notification.
type Event string

const (
	// EventAdd fires with the record that became known to a collection.
	EventAdd = Event("add")

	// EventRemove fires with the record that was removed from a collection.
	EventRemove = Event("remove")
)

type subscription[T any] struct {
	fn   func(rec *T)
	once bool
	dead bool
}

// emitter invokes handlers synchronously in subscription order. Handlers may
// subscribe, cancel or emit while being called; each emit works on a snapshot
// of the handler list taken when it starts.
type emitter[T any] struct {
	subs map[Event][]*subscription[T]
}

func (e *emitter[T]) on(ev Event, fn func(rec *T), once bool) func() {
	if fn == nil {
		panic("nil handler")
	}
	if e.subs == nil {
		e.subs = make(map[Event][]*subscription[T])
	}
	sub := &subscription[T]{fn: fn, once: once}
	e.subs[ev] = append(e.subs[ev], sub)
	return func() {
		e.cancel(ev, sub)
	}
}

func (e *emitter[T]) cancel(ev Event, sub *subscription[T]) {
	sub.dead = true
	subs := e.subs[ev]
	if i := slices.Index(subs, sub); i >= 0 {
		e.subs[ev] = slices.Delete(slices.Clone(subs), i, i+1)
	}
}

func (e *emitter[T]) emit(ev Event, rec *T) {
	subs := e.subs[ev]
	for _, sub := range subs {
		if sub.dead {
			continue
		}
		if sub.once {
			e.cancel(ev, sub)
		}
		sub.fn(rec)
	}
}

func (e *emitter[T]) count(ev Event) int {
	return len(e.subs[ev])
}
