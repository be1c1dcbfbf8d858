package lcoll

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

type Options struct {
	// Namespace overrides the model name as the root namespace name.
	Namespace string

	Logger  *slog.Logger
	Verbose bool
}

func (opt Options) logger() *slog.Logger {
	if opt.Logger == nil {
		return slog.Default()
	}
	return opt.Logger
}

// Notifiable is implemented by types that publish record notifications.
type Notifiable[T any] interface {
	On(ev Event, fn func(rec *T)) (cancel func())
	Once(ev Event, fn func(rec *T)) (cancel func())
	Emit(ev Event, rec *T)
}

// Indexable is implemented by types that keep an ordered index of ids.
type Indexable interface {
	Len() int
	Has(id any) bool
	IDs() []string
}

// Iterable is implemented by types that can enumerate their records.
type Iterable[T any] interface {
	All() iter.Seq2[*T, error]
}

var (
	_ Notifiable[any] = (*Collection[any])(nil)
	_ Indexable       = (*Collection[any])(nil)
	_ Iterable[any]   = (*Collection[any])(nil)
)

// Collection is an identity-mapped set of records of a single model, backed
// by a namespace of a Store.
//
// Every id goes through Unknown → Resident (cached, indexed, persisted) →
// Removed; a removed id may come back via Set or Obtain with create, as
// a fresh record.
//
// A Collection is not safe for concurrent use. Handlers may call back into
// the collection that notified them.
type Collection[T any] struct {
	id     string
	model  *Model[T]
	ns     Namespace
	cache  *recordCache[T]
	index  *keyIndex
	events emitter[T]
	stats  *Stats

	logger  *slog.Logger
	verbose bool

	beforeReset func() error
}

// NewCollection opens the root collection of the model in store. Prefer
// Registry, which also preserves identity of the collection itself.
func NewCollection[T any](store Store, model *Model[T], opt Options) (*Collection[T], error) {
	name := opt.Namespace
	if name == "" {
		name = model.Name()
	}
	ns, err := store.Namespace(name)
	if err != nil {
		return nil, err
	}
	return newCollection("", model, ns, ns, IndexKey, new(Stats), opt)
}

func newCollection[T any](id string, model *Model[T], ns, indexNS Namespace, indexKey string, stats *Stats, opt Options) (*Collection[T], error) {
	index, err := loadKeyIndex(indexNS, indexKey)
	if err != nil {
		return nil, err
	}
	logger := opt.logger()
	return &Collection[T]{
		id:      id,
		model:   model,
		ns:      ns,
		cache:   newRecordCache(model, ns, stats, logger, opt.Verbose),
		index:   index,
		stats:   stats,
		logger:  logger,
		verbose: opt.Verbose,
	}, nil
}

// ID returns the id this collection is persisted under, or "" for a root
// collection.
func (c *Collection[T]) ID() string           { return c.id }
func (c *Collection[T]) Model() *Model[T]     { return c.model }
func (c *Collection[T]) Namespace() Namespace { return c.ns }
func (c *Collection[T]) Stats() *Stats        { return c.stats }
func (c *Collection[T]) String() string       { return c.ns.Name() }

func (c *Collection[T]) On(ev Event, fn func(rec *T)) func() {
	return c.events.on(ev, fn, false)
}

func (c *Collection[T]) Once(ev Event, fn func(rec *T)) func() {
	return c.events.on(ev, fn, true)
}

func (c *Collection[T]) Emit(ev Event, rec *T) {
	c.events.emit(ev, rec)
}

// Len returns the number of indexed ids.
func (c *Collection[T]) Len() int {
	return c.index.len()
}

func (c *Collection[T]) Has(id any) bool {
	key, err := c.model.keyFor(id)
	if err != nil {
		return false
	}
	return c.index.contains(key)
}

// IDs returns a copy of the indexed ids in insertion order.
func (c *Collection[T]) IDs() []string {
	return slices.Clone(c.index.ids())
}

// Set stores records and plain data. Each item may be a *T, a Data value or
// a slice of either; the results come back as a flat slice in input order.
//
// A *T is authoritative: it replaces whatever instance and stored form the id
// had. Data is merged into the existing record if there is one, and creates
// a new record otherwise. EventAdd fires only for ids new to the index.
//
// On error, the records processed so far are returned along with it.
func (c *Collection[T]) Set(items ...any) ([]*T, error) {
	result := make([]*T, 0, len(items))
	var err error
	for _, item := range items {
		result, err = c.setItem(result, item)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (c *Collection[T]) SetRecords(recs ...*T) ([]*T, error) {
	result := make([]*T, 0, len(recs))
	for _, rec := range recs {
		r, err := c.setRecord(rec)
		if err != nil {
			return result, err
		}
		result = append(result, r)
	}
	return result, nil
}

func (c *Collection[T]) SetData(data ...Data) ([]*T, error) {
	result := make([]*T, 0, len(data))
	for _, d := range data {
		r, err := c.setData(d)
		if err != nil {
			return result, err
		}
		result = append(result, r)
	}
	return result, nil
}

func (c *Collection[T]) setItem(result []*T, item any) ([]*T, error) {
	switch v := item.(type) {
	case *T:
		rec, err := c.setRecord(v)
		if err != nil {
			return result, err
		}
		return append(result, rec), nil
	case Data:
		rec, err := c.setData(v)
		if err != nil {
			return result, err
		}
		return append(result, rec), nil
	case []*T:
		for _, rec := range v {
			r, err := c.setRecord(rec)
			if err != nil {
				return result, err
			}
			result = append(result, r)
		}
		return result, nil
	case []Data:
		for _, d := range v {
			r, err := c.setData(d)
			if err != nil {
				return result, err
			}
			result = append(result, r)
		}
		return result, nil
	case []any:
		var err error
		for _, elem := range v {
			result, err = c.setItem(result, elem)
			if err != nil {
				return result, err
			}
		}
		return result, nil
	default:
		return result, fmt.Errorf("%s: %w: %T", c.ns.Name(), ErrUnsupportedInput, item)
	}
}

func (c *Collection[T]) setRecord(rec *T) (*T, error) {
	if rec == nil {
		return nil, fmt.Errorf("%s: %w: nil record", c.ns.Name(), ErrUnsupportedInput)
	}
	key := c.model.Key(rec)
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("%s: %w", c.ns.Name(), err)
	}
	if c.cache.peek(key) == nil {
		if err := c.ensureWritable(key); err != nil {
			return nil, err
		}
	}

	err := c.cache.put(key, rec)
	if err != nil {
		return nil, err
	}
	added, err := c.index.add(key)
	if err != nil {
		return nil, err
	}
	if added {
		c.added(key, rec)
	}
	return rec, nil
}

func (c *Collection[T]) setData(data Data) (*T, error) {
	if data == nil {
		return nil, fmt.Errorf("%s: %w: nil data", c.ns.Name(), ErrUnsupportedInput)
	}

	if c.model.hasKey(data) {
		key, err := c.model.keyFor(data[c.model.pk])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.ns.Name(), err)
		}
		rec, kind, err := c.cache.lookup(key)
		if err != nil {
			return nil, err
		}
		if kind == KindCollection {
			return nil, collErrf(c.ns, key, ErrKindMismatch, "cannot store a record over a collection")
		}
		if rec != nil {
			if err := c.model.Merge(rec, data); err != nil {
				return nil, collErrf(c.ns, key, err, "")
			}
			if err := c.cache.persist(key, rec); err != nil {
				return nil, err
			}
			if _, err := c.index.add(key); err != nil {
				return nil, err
			}
			return rec, nil
		}
	}

	rec, err := c.model.New(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.ns.Name(), err)
	}
	key := c.model.Key(rec)
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("%s: %w", c.ns.Name(), err)
	}
	return rec, c.create(key, rec)
}

// create installs a record the collection did not have before.
func (c *Collection[T]) create(key string, rec *T) error {
	err := c.cache.put(key, rec)
	if err != nil {
		return err
	}
	added, err := c.index.add(key)
	if err != nil {
		return err
	}
	if added {
		c.added(key, rec)
	}
	return nil
}

func (c *Collection[T]) added(key string, rec *T) {
	c.stats.Adds.Add(1)
	if c.verbose {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "lcoll: ADD", slog.String("ns", c.ns.Name()), slog.String("key", key))
	}
	c.events.emit(EventAdd, rec)
}

// ensureWritable fails if key holds a collection. Undecodable entries may be
// overwritten.
func (c *Collection[T]) ensureWritable(key string) error {
	raw, err := c.ns.Get(key)
	if err != nil {
		return collErrf(c.ns, key, err, "get")
	}
	kind, err := peekKind(raw)
	if err != nil {
		c.logger.LogAttrs(context.Background(), slog.LevelWarn, "lcoll: overwriting corrupted entry", slog.String("ns", c.ns.Name()), slog.String("key", key), slog.Any("err", err))
		return nil
	}
	if kind == KindCollection {
		return collErrf(c.ns, key, ErrKindMismatch, "cannot store a record over a collection")
	}
	return nil
}

// Obtain returns the record with the given id, loading it from the store if
// it is not resident. Loading does not touch the index.
//
// If nothing is stored under id and create is true, an empty record with
// that id is created, indexed and announced via EventAdd. Otherwise Obtain
// returns nil, nil, which is also the result when id holds a collection.
func (c *Collection[T]) Obtain(id any, create bool) (*T, error) {
	key, err := c.model.keyFor(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.ns.Name(), err)
	}

	rec, kind, err := c.cache.lookup(key)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	if kind == 0 && c.index.contains(key) {
		if err := c.heal(key); err != nil {
			return nil, err
		}
	}
	if !create || kind != 0 {
		return nil, nil
	}

	rec = new(T)
	err = c.model.SetKey(rec, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.ns.Name(), err)
	}
	err = c.create(key, rec)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// At returns the record at the given index position, or nil if pos is out of
// range.
func (c *Collection[T]) At(pos int) (*T, error) {
	id, ok := c.index.at(pos)
	if !ok {
		return nil, nil
	}
	return c.Obtain(id, false)
}

// Remove deletes a record given its id or the record itself, and fires
// EventRemove with the removed instance. If there is no such record, Remove
// returns nil, nil and does nothing.
func (c *Collection[T]) Remove(idOrRecord any) (*T, error) {
	var key string
	if r, ok := idOrRecord.(*T); ok {
		if r == nil {
			return nil, fmt.Errorf("%s: %w: nil record", c.ns.Name(), ErrUnsupportedInput)
		}
		key = c.model.Key(r)
	} else {
		var err error
		key, err = c.model.keyFor(idOrRecord)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.ns.Name(), err)
		}
	}

	rec, kind, err := c.cache.lookup(key)
	if err != nil {
		var de *DataError
		if errors.As(err, &de) {
			return nil, c.purge(key, err)
		}
		return nil, err
	}
	if rec == nil {
		if kind == 0 && c.index.contains(key) {
			return nil, c.heal(key)
		}
		return nil, nil
	}

	c.cache.delete(key)
	err = c.ns.Remove(key)
	if err != nil {
		return nil, collErrf(c.ns, key, err, "remove")
	}
	_, err = c.index.remove(key)
	if err != nil {
		return nil, err
	}

	c.stats.Removes.Add(1)
	if c.verbose {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "lcoll: REMOVE", slog.String("ns", c.ns.Name()), slog.String("key", key))
	}
	c.events.emit(EventRemove, rec)
	return rec, nil
}

// heal drops an index entry that has nothing stored behind it.
func (c *Collection[T]) heal(key string) error {
	c.logger.LogAttrs(context.Background(), slog.LevelWarn, "lcoll: dropping stale index entry", slog.String("ns", c.ns.Name()), slog.String("key", key))
	_, err := c.index.remove(key)
	return err
}

// purge deletes an entry that cannot be decoded.
func (c *Collection[T]) purge(key string, cause error) error {
	c.logger.LogAttrs(context.Background(), slog.LevelWarn, "lcoll: removing corrupted entry", slog.String("ns", c.ns.Name()), slog.String("key", key), slog.Any("err", cause))
	c.cache.delete(key)
	err := c.ns.Remove(key)
	if err != nil {
		return collErrf(c.ns, key, err, "remove")
	}
	_, err = c.index.remove(key)
	return err
}

// Clear removes every indexed and every resident record, firing EventRemove
// for each. Keys of the namespace that the collection does not track are left
// alone; see Reset.
func (c *Collection[T]) Clear() error {
	ids := slices.Clone(c.index.ids())
	for _, id := range c.cache.residentIDs() {
		if !c.index.contains(id) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		_, err := c.Remove(id)
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the collection and then wipes its whole namespace, including
// keys the collection does not track.
func (c *Collection[T]) Reset() error {
	if c.beforeReset != nil {
		if err := c.beforeReset(); err != nil {
			return err
		}
	}
	err := c.Clear()
	if err != nil {
		return err
	}
	err = c.ns.Clear()
	if err != nil {
		return collErrf(c.ns, "", err, "clear")
	}
	clear(c.cache.items)
	return c.index.reset()
}

// All iterates over the records in index order. Each step re-reads the
// index, so records added or removed during iteration may be seen or skipped.
func (c *Collection[T]) All() iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for i := 0; i < c.index.len(); i++ {
			id, ok := c.index.at(i)
			if !ok {
				return
			}
			rec, err := c.Obtain(id, false)
			if err != nil {
				yield(nil, err)
				return
			}
			if rec == nil {
				// a healed entry shifts the next id into position i
				if next, ok := c.index.at(i); ok && next != id {
					i--
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// MarshalMsgpack encodes the collection as its list of ids.
func (c *Collection[T]) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal(c.IDs())
}
