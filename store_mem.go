package lcoll

import (
	"slices"
	"sort"
	"sync"
)

type memStore struct {
	mu     sync.Mutex
	spaces map[string]map[string][]byte
	closed bool
}

// NewMemStore returns a transient in-memory Store intended for tests.
func NewMemStore() Store {
	return &memStore{spaces: make(map[string]map[string][]byte)}
}

func (s *memStore) Namespace(name string) (Namespace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if s.spaces[name] == nil {
		s.spaces[name] = make(map[string][]byte)
	}
	return &memNamespace{s: s, name: name}, nil
}

func (s *memStore) Namespaces() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	var names []string
	for name, m := range s.spaces {
		if len(m) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.spaces = nil
	return nil
}

type memNamespace struct {
	s    *memStore
	name string
}

func (ns *memNamespace) Name() string { return ns.name }

// space must be called with s.mu held.
func (ns *memNamespace) space() (map[string][]byte, error) {
	if ns.s.closed {
		return nil, ErrStoreClosed
	}
	m := ns.s.spaces[ns.name]
	if m == nil {
		// cleared by another handle
		m = make(map[string][]byte)
		ns.s.spaces[ns.name] = m
	}
	return m, nil
}

func (ns *memNamespace) Get(key string) ([]byte, error) {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()
	m, err := ns.space()
	if err != nil {
		return nil, err
	}
	return slices.Clone(m[key]), nil
}

func (ns *memNamespace) Set(key string, value []byte) error {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()
	m, err := ns.space()
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	m[key] = slices.Clone(value)
	return nil
}

func (ns *memNamespace) Remove(key string) error {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()
	m, err := ns.space()
	if err != nil {
		return err
	}
	delete(m, key)
	return nil
}

func (ns *memNamespace) Clear() error {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()
	if ns.s.closed {
		return ErrStoreClosed
	}
	ns.s.spaces[ns.name] = make(map[string][]byte)
	return nil
}

func (ns *memNamespace) GetAll() (map[string][]byte, error) {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()
	m, err := ns.space()
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(m))
	for k, v := range m {
		result[k] = slices.Clone(v)
	}
	return result, nil
}
