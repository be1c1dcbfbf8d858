package lcoll

import (
	"testing"
)

func TestEmitter(t *testing.T) {
	var e emitter[Thing]
	var log []string
	rec := &Thing{ID: "t1"}

	e.on(EventAdd, func(r *Thing) { log = append(log, "a1:"+r.ID) }, false)
	e.on(EventAdd, func(r *Thing) { log = append(log, "a2:"+r.ID) }, false)
	e.on(EventRemove, func(r *Thing) { log = append(log, "r:"+r.ID) }, false)

	e.emit(EventAdd, rec)
	deepEqual(t, log, []string{"a1:t1", "a2:t1"})

	log = nil
	e.emit(EventRemove, rec)
	e.emit(Event("other"), rec)
	deepEqual(t, log, []string{"r:t1"})
}

func TestEmitter_once(t *testing.T) {
	var e emitter[Thing]
	var n int
	e.on(EventAdd, func(*Thing) { n++ }, true)
	e.emit(EventAdd, nil)
	e.emit(EventAdd, nil)
	deepEqual(t, n, 1)
	deepEqual(t, e.count(EventAdd), 0)
}

func TestEmitter_cancel(t *testing.T) {
	var e emitter[Thing]
	var n int
	cancel := e.on(EventAdd, func(*Thing) { n++ }, false)
	e.emit(EventAdd, nil)
	cancel()
	cancel()
	e.emit(EventAdd, nil)
	deepEqual(t, n, 1)
	deepEqual(t, e.count(EventAdd), 0)
}

func TestEmitter_reentrant(t *testing.T) {
	var e emitter[Thing]
	var log []string

	var cancelLater func()
	e.on(EventAdd, func(r *Thing) {
		log = append(log, "first")
		// subscribed during emit: not called this round
		e.on(EventAdd, func(*Thing) { log = append(log, "late") }, false)
		// cancelled during emit: skipped this round
		cancelLater()
		if r.ID == "outer" {
			e.emit(EventRemove, r)
		}
	}, true)
	cancelLater = e.on(EventAdd, func(*Thing) { log = append(log, "cancelled") }, false)
	e.on(EventRemove, func(*Thing) { log = append(log, "nested") }, false)

	e.emit(EventAdd, &Thing{ID: "outer"})
	deepEqual(t, log, []string{"first", "nested"})

	log = nil
	e.emit(EventAdd, &Thing{ID: "again"})
	deepEqual(t, log, []string{"late"})
}

func TestEmitter_nilHandler(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	var e emitter[Thing]
	e.on(EventAdd, nil, false)
}
