package lcoll

import (
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"testing"
)

type (
	Thing struct {
		ID   string   `msgpack:"id"`
		Name string   `msgpack:"name"`
		Tags []string `msgpack:"tags,omitempty"`
	}

	Counter struct {
		ID    int64 `msgpack:"id"`
		Count int   `msgpack:"count"`
	}

	Note struct {
		Key    string `msgpack:"key"`
		Body   string `msgpack:"body"`
		Merges int    `msgpack:"merges"`
	}
)

func (n *Note) Merge(data Data) error {
	if k, ok := data["key"].(string); ok {
		n.Key = k
	}
	if b, ok := data["body"].(string); ok {
		n.Body = b
	}
	n.Merges++
	return nil
}

var (
	things   = DefineModel[Thing]("things", "id")
	counters = DefineModel[Counter]("counters", "id")
	notes    = DefineModel[Note]("notes", "key")
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ok(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func isnonnil[T any](t testing.TB, a *T) {
	if a == nil {
		t.Helper()
		t.Fatalf("** got nil %T, wanted non-nil", a)
	}
}

type logWriter struct {
	t testing.TB
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func testLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func testOptions(t testing.TB) Options {
	return Options{Logger: testLogger(t), Verbose: true}
}

func setup[T any](t testing.TB, model *Model[T]) (*Registry[T], Store) {
	t.Helper()
	store := NewMemStore()
	t.Cleanup(func() { store.Close() })
	return must(NewRegistry(store, model, testOptions(t))), store
}

func setupColl[T any](t testing.TB, model *Model[T]) *Collection[T] {
	t.Helper()
	r, _ := setup(t, model)
	return r.Root()
}

// recorder collects add/remove notifications.
type recorder[T any] struct {
	adds    []*T
	removes []*T
}

func record[T any](c Notifiable[T]) *recorder[T] {
	rec := &recorder[T]{}
	c.On(EventAdd, func(r *T) { rec.adds = append(rec.adds, r) })
	c.On(EventRemove, func(r *T) { rec.removes = append(rec.removes, r) })
	return rec
}

// checkConsistency verifies that the index, its persisted copy and the
// store agree: an id is indexed iff a record is stored under it.
func checkConsistency[T any](t testing.TB, c *Collection[T]) {
	t.Helper()
	all := must(c.Namespace().GetAll())

	for _, id := range c.IDs() {
		raw, found := all[id]
		if !found {
			t.Errorf("** %s: indexed id %q has no store entry", c, id)
			continue
		}
		kind, _, err := DecodeEntry(raw)
		if err != nil || kind != KindRecord {
			t.Errorf("** %s: indexed id %q holds %v (err = %v), wanted a record", c, id, kind, err)
		}
	}
	for key, raw := range all {
		if key == IndexKey {
			continue
		}
		kind, _, err := DecodeEntry(raw)
		if err == nil && kind == KindRecord && !c.Has(key) {
			t.Errorf("** %s: stored record %q is not indexed", c, key)
		}
	}

	raw := must(c.index.ns.Get(c.index.key))
	var persisted []string
	if raw != nil {
		kind, data, err := DecodeEntry(raw)
		ok(t, err)
		if kind != KindCollection {
			t.Fatalf("** %s: persisted index is %v", c, kind)
		}
		persisted = must(decodeIDs(data))
	}
	if len(persisted) != 0 || c.Len() != 0 {
		deepEqual(t, persisted, c.IDs())
	}
	if !slices.Equal(c.index.ids(), c.IDs()) {
		t.Errorf("** %s: positional view out of sync", c)
	}
}
