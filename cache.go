package lcoll

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// recordCache maps ids to live record instances, hydrating misses from the
// namespace. At most one instance per id is resident at any time.
type recordCache[T any] struct {
	model *Model[T]
	ns    Namespace
	items map[string]*T
	stats *Stats

	logger  *slog.Logger
	verbose bool
}

func newRecordCache[T any](model *Model[T], ns Namespace, stats *Stats, logger *slog.Logger, verbose bool) *recordCache[T] {
	return &recordCache[T]{
		model:   model,
		ns:      ns,
		items:   make(map[string]*T),
		stats:   stats,
		logger:  logger,
		verbose: verbose,
	}
}

// peek returns the resident instance without touching the store.
func (c *recordCache[T]) peek(id string) *T {
	return c.items[id]
}

func (c *recordCache[T]) get(id string) (*T, error) {
	rec, _, err := c.lookup(id)
	return rec, err
}

// lookup returns the resident instance, or hydrates it from the store.
// kind reports what the store holds under id when nothing could be returned
// (0 if nothing, KindCollection if the id belongs to a collection).
func (c *recordCache[T]) lookup(id string) (*T, Kind, error) {
	if rec := c.items[id]; rec != nil {
		c.stats.Hits.Add(1)
		return rec, KindRecord, nil
	}
	c.stats.Misses.Add(1)

	raw, err := c.ns.Get(id)
	if err != nil {
		return nil, 0, collErrf(c.ns, id, err, "get")
	}
	if raw == nil {
		return nil, 0, nil
	}
	kind, data, err := DecodeEntry(raw)
	if err != nil {
		return nil, 0, collErrf(c.ns, id, err, "")
	}
	if kind != KindRecord {
		return nil, kind, nil
	}
	rec, err := c.model.decode(data)
	if err != nil {
		return nil, 0, collErrf(c.ns, id, err, "")
	}

	c.items[id] = rec
	c.stats.Hydrations.Add(1)
	if c.verbose {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "lcoll: HYDRATE", slog.String("ns", c.ns.Name()), slog.String("key", id))
	}
	return rec, KindRecord, nil
}

// put writes rec to the store and installs it as the resident instance.
func (c *recordCache[T]) put(id string, rec *T) error {
	if err := c.persist(id, rec); err != nil {
		return err
	}
	c.items[id] = rec
	return nil
}

// persist writes rec to the store without touching the resident instance.
func (c *recordCache[T]) persist(id string, rec *T) error {
	raw, err := c.model.encode(rec)
	if err != nil {
		return collErrf(c.ns, id, err, "encoding")
	}
	err = c.ns.Set(id, raw)
	if err != nil {
		return collErrf(c.ns, id, err, "set")
	}
	c.stats.Writes.Add(1)
	if c.verbose {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "lcoll: SET", slog.String("ns", c.ns.Name()), slog.String("key", id))
	}
	return nil
}

// delete evicts the resident instance, leaving the store alone.
func (c *recordCache[T]) delete(id string) *T {
	rec := c.items[id]
	if rec != nil {
		delete(c.items, id)
	}
	return rec
}

func (c *recordCache[T]) residentIDs() []string {
	return slices.Sorted(maps.Keys(c.items))
}

func (c *recordCache[T]) len() int {
	return len(c.items)
}
