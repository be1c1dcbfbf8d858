package lcoll

// Store is a durable key-value store split into namespaces (Bolt buckets,
// Badger key prefixes, or plain maps for tests).
type Store interface {
	// Namespace opens a namespace, creating it if needed.
	Namespace(name string) (Namespace, error)

	// Namespaces lists the names of all non-empty namespaces, sorted.
	Namespaces() ([]string, error)

	// Close closes the store.
	Close() error
}

// Namespace is a flat string-keyed map of opaque values. All operations are
// synchronous and durable on return.
type Namespace interface {
	Name() string

	// Get returns nil if the key does not exist.
	Get(key string) ([]byte, error)

	// Set stores a value, overwriting the existing one.
	Set(key string, value []byte) error

	// Remove deletes a key. Removing a missing key is not an error.
	Remove(key string) error

	// Clear deletes every key of the namespace.
	Clear() error

	// GetAll returns a copy of every key-value pair.
	GetAll() (map[string][]byte, error)
}
