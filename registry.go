package lcoll

import (
	"context"
	"iter"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry is the identity map of the collections of one model. Its own
// namespace doubles as the model's root collection: it holds root records,
// the root key index, and one id list per named collection. The records of a
// named collection live in a namespace of their own, "<model>/<id>".
//
// Obtaining the same collection id twice yields the same *Collection.
type Registry[T any] struct {
	store Store
	model *Model[T]
	ns    Namespace
	opt   Options
	stats Stats
	root  *Collection[T]

	mu          sync.Mutex
	collections map[string]*Collection[T]
}

func NewRegistry[T any](store Store, model *Model[T], opt Options) (*Registry[T], error) {
	name := opt.Namespace
	if name == "" {
		name = model.Name()
	}
	ns, err := store.Namespace(name)
	if err != nil {
		return nil, err
	}
	r := &Registry[T]{
		store:       store,
		model:       model,
		ns:          ns,
		opt:         opt,
		collections: make(map[string]*Collection[T]),
	}
	r.root, err = newCollection("", model, ns, ns, IndexKey, &r.stats, opt)
	if err != nil {
		return nil, err
	}
	r.root.beforeReset = r.dropAll
	return r, nil
}

type registryKey struct {
	store Store
	model any
}

var (
	registriesMu sync.Mutex
	registries   = make(map[registryKey]any)
)

// For returns the process-wide registry of model in store, creating it on
// first use. opt only matters for that first call.
func For[T any](store Store, model *Model[T], opt Options) (*Registry[T], error) {
	registriesMu.Lock()
	defer registriesMu.Unlock()

	k := registryKey{store, model}
	if r, ok := registries[k]; ok {
		return r.(*Registry[T]), nil
	}
	r, err := NewRegistry(store, model, opt)
	if err != nil {
		return nil, err
	}
	registries[k] = r
	return r, nil
}

// ResetRegistries forgets every registry returned by For. Meant for tests.
func ResetRegistries() {
	registriesMu.Lock()
	defer registriesMu.Unlock()
	clear(registries)
}

func (r *Registry[T]) Model() *Model[T]     { return r.model }
func (r *Registry[T]) Namespace() Namespace { return r.ns }
func (r *Registry[T]) Stats() *Stats        { return &r.stats }
func (r *Registry[T]) Root() *Collection[T] { return r.root }

// Obtain returns the named collection with the given id. A collection
// persisted earlier is reopened from its stored id list. If there is none
// and create is true, an empty collection is created and persisted right
// away. Otherwise, or if id holds a record, Obtain returns nil, nil.
func (r *Registry[T]) Obtain(id any, create bool) (*Collection[T], error) {
	key, err := KeyString(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if coll := r.collections[key]; coll != nil {
		return coll, nil
	}

	raw, err := r.ns.Get(key)
	if err != nil {
		return nil, collErrf(r.ns, key, err, "get")
	}
	kind, err := peekKind(raw)
	if err != nil {
		return nil, collErrf(r.ns, key, err, "")
	}
	switch kind {
	case KindCollection:
		return r.open(key)
	case KindRecord:
		if r.opt.Verbose {
			r.root.logger.LogAttrs(context.Background(), slog.LevelDebug, "lcoll: not a collection", slog.String("ns", r.ns.Name()), slog.String("key", key))
		}
		return nil, nil
	}
	if !create {
		return nil, nil
	}

	coll, err := r.open(key)
	if err != nil {
		return nil, err
	}
	err = coll.index.flush()
	if err != nil {
		delete(r.collections, key)
		return nil, err
	}
	if r.opt.Verbose {
		r.root.logger.LogAttrs(context.Background(), slog.LevelDebug, "lcoll: CREATE", slog.String("ns", r.ns.Name()), slog.String("key", key))
	}
	return coll, nil
}

// open must be called with r.mu held.
func (r *Registry[T]) open(key string) (*Collection[T], error) {
	sub, err := r.store.Namespace(r.ns.Name() + "/" + key)
	if err != nil {
		return nil, err
	}
	coll, err := newCollection(key, r.model, sub, r.ns, key, &r.stats, r.opt)
	if err != nil {
		return nil, err
	}
	r.collections[key] = coll
	return coll, nil
}

// Create makes a new named collection with a random UUID id.
func (r *Registry[T]) Create() (*Collection[T], error) {
	return r.Obtain(uuid.NewString(), true)
}

// Drop resets the named collection with the given id and deletes it. It
// reports whether there was such a collection.
func (r *Registry[T]) Drop(id any) (bool, error) {
	coll, err := r.Obtain(id, false)
	if err != nil || coll == nil {
		return false, err
	}
	err = coll.Reset()
	if err != nil {
		return false, err
	}
	err = r.ns.Remove(coll.id)
	if err != nil {
		return false, collErrf(r.ns, coll.id, err, "remove")
	}

	r.mu.Lock()
	delete(r.collections, coll.id)
	r.mu.Unlock()
	return true, nil
}

// Collections returns the ids of all persisted named collections, sorted.
func (r *Registry[T]) Collections() ([]string, error) {
	all, err := r.ns.GetAll()
	if err != nil {
		return nil, collErrf(r.ns, "", err, "get all")
	}
	var ids []string
	for key, raw := range all {
		if key == IndexKey {
			continue
		}
		kind, err := peekKind(raw)
		if err != nil {
			r.root.logger.LogAttrs(context.Background(), slog.LevelWarn, "lcoll: skipping corrupted entry", slog.String("ns", r.ns.Name()), slog.String("key", key), slog.Any("err", err))
			continue
		}
		if kind == KindCollection {
			ids = append(ids, key)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Registry[T]) dropAll() error {
	ids, err := r.Collections()
	if err != nil {
		return err
	}
	for _, id := range ids {
		_, err := r.Drop(id)
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset drops every named collection and wipes the model namespace.
func (r *Registry[T]) Reset() error {
	return r.root.Reset()
}

func (r *Registry[T]) Set(items ...any) ([]*T, error) {
	return r.root.Set(items...)
}

func (r *Registry[T]) SetRecords(recs ...*T) ([]*T, error) {
	return r.root.SetRecords(recs...)
}

func (r *Registry[T]) SetData(data ...Data) ([]*T, error) {
	return r.root.SetData(data...)
}

func (r *Registry[T]) ObtainRecord(id any, create bool) (*T, error) {
	return r.root.Obtain(id, create)
}

func (r *Registry[T]) Remove(idOrRecord any) (*T, error) {
	return r.root.Remove(idOrRecord)
}

func (r *Registry[T]) Clear() error {
	return r.root.Clear()
}

func (r *Registry[T]) Len() int {
	return r.root.Len()
}

func (r *Registry[T]) All() iter.Seq2[*T, error] {
	return r.root.All()
}

func (r *Registry[T]) On(ev Event, fn func(rec *T)) func() {
	return r.root.On(ev, fn)
}

func (r *Registry[T]) Once(ev Event, fn func(rec *T)) func() {
	return r.root.Once(ev, fn)
}
