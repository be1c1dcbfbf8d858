package lcoll

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// keyIndex is the ordered, duplicate-free list of ids known to a collection.
// It is loaded once and written through to its sink entry on every mutation.
type keyIndex struct {
	keys *orderedmap.OrderedMap[string, struct{}]
	ns   Namespace
	key  string

	// positional view for at(), rebuilt lazily after mutations
	order []string
	stale bool
}

func loadKeyIndex(ns Namespace, key string) (*keyIndex, error) {
	ki := &keyIndex{
		keys:  orderedmap.New[string, struct{}](),
		ns:    ns,
		key:   key,
		stale: true,
	}
	raw, err := ns.Get(key)
	if err != nil {
		return nil, collErrf(ns, key, err, "loading index")
	}
	if raw == nil {
		return ki, nil
	}
	kind, data, err := DecodeEntry(raw)
	if err != nil {
		return nil, collErrf(ns, key, err, "loading index")
	}
	if kind != KindCollection {
		return nil, collErrf(ns, key, ErrKindMismatch, "loading index: found %v", kind)
	}
	ids, err := decodeIDs(data)
	if err != nil {
		return nil, collErrf(ns, key, err, "loading index")
	}
	for _, id := range ids {
		ki.keys.Set(id, struct{}{})
	}
	return ki, nil
}

// add appends id unless it is already present. It reports whether id was added.
func (ki *keyIndex) add(id string) (bool, error) {
	if _, present := ki.keys.Set(id, struct{}{}); present {
		return false, nil
	}
	ki.stale = true
	return true, ki.flush()
}

// remove drops id if present. It reports whether id was removed.
func (ki *keyIndex) remove(id string) (bool, error) {
	if _, present := ki.keys.Delete(id); !present {
		return false, nil
	}
	ki.stale = true
	return true, ki.flush()
}

// reset empties the index and persists the empty list.
func (ki *keyIndex) reset() error {
	ki.keys = orderedmap.New[string, struct{}]()
	ki.stale = true
	return ki.flush()
}

func (ki *keyIndex) contains(id string) bool {
	_, found := ki.keys.Get(id)
	return found
}

func (ki *keyIndex) len() int {
	return ki.keys.Len()
}

func (ki *keyIndex) at(pos int) (string, bool) {
	order := ki.ids()
	if pos < 0 || pos >= len(order) {
		return "", false
	}
	return order[pos], true
}

// ids returns the ids in insertion order. The result must not be modified.
func (ki *keyIndex) ids() []string {
	if ki.stale {
		order := make([]string, 0, ki.keys.Len())
		for pair := ki.keys.Oldest(); pair != nil; pair = pair.Next() {
			order = append(order, pair.Key)
		}
		ki.order, ki.stale = order, false
	}
	return ki.order
}

func (ki *keyIndex) flush() error {
	raw, err := encodeIDs(ki.ids())
	if err != nil {
		return collErrf(ki.ns, ki.key, err, "encoding index")
	}
	err = ki.ns.Set(ki.key, raw)
	if err != nil {
		return collErrf(ki.ns, ki.key, err, "saving index")
	}
	return nil
}
