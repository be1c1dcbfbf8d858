package lcoll

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const badgerNamespaceSep = "\x00"

type BadgerOptions struct {
	Path     string
	InMemory bool
	ReadOnly bool
	Logger   *slog.Logger
}

// BadgerStore keeps all namespaces in a single Badger keyspace, prefixing
// every key with the namespace name and a NUL separator.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

func OpenBadger(opt BadgerOptions) (*BadgerStore, error) {
	var bopt badger.Options
	if opt.InMemory {
		bopt = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopt = badger.DefaultOptions(opt.Path).WithReadOnly(opt.ReadOnly)
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bopt = bopt.WithLogger(badgerLogger{logger})

	db, err := badger.Open(bopt)
	if err != nil {
		return nil, fmt.Errorf("lcoll: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Badger() *badger.DB {
	return s.db
}

func (s *BadgerStore) Namespace(name string) (Namespace, error) {
	if name == "" || strings.Contains(name, badgerNamespaceSep) {
		return nil, fmt.Errorf("lcoll: invalid namespace name %q", name)
	}
	if s.db.IsClosed() {
		return nil, ErrStoreClosed
	}
	return &badgerNamespace{db: s.db, name: name, prefix: []byte(name + badgerNamespaceSep)}, nil
}

func (s *BadgerStore) Namespaces() ([]string, error) {
	seen := make(map[string]bool)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			if i := bytes.IndexByte(k, 0); i > 0 {
				seen[string(k[:i])] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type badgerNamespace struct {
	db     *badger.DB
	name   string
	prefix []byte
}

func (ns *badgerNamespace) Name() string { return ns.name }

func (ns *badgerNamespace) key(key string) []byte {
	k := make([]byte, 0, len(ns.prefix)+len(key))
	k = append(k, ns.prefix...)
	return append(k, key...)
}

func (ns *badgerNamespace) Get(key string) ([]byte, error) {
	var result []byte
	err := ns.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ns.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		if result == nil {
			result = []byte{}
		}
		return err
	})
	return result, mapBadgerErr(err)
}

func (ns *badgerNamespace) Set(key string, value []byte) error {
	return mapBadgerErr(ns.db.Update(func(txn *badger.Txn) error {
		return txn.Set(ns.key(key), bytes.Clone(value))
	}))
}

func (ns *badgerNamespace) Remove(key string) error {
	return mapBadgerErr(ns.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(ns.key(key))
	}))
}

func (ns *badgerNamespace) Clear() error {
	return mapBadgerErr(ns.db.DropPrefix(ns.prefix))
}

func (ns *badgerNamespace) GetAll() (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := ns.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = ns.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if v == nil {
				v = []byte{}
			}
			result[string(item.Key()[len(ns.prefix):])] = v
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return result, nil
}

func mapBadgerErr(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrStoreClosed
	}
	return err
}

// badgerLogger routes Badger's printf-style logging into slog. Badger is
// chatty at info level, so info and debug both go to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) log(level slog.Level, format string, args ...any) {
	msg := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	l.logger.LogAttrs(context.Background(), level, "badger: "+msg)
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log(slog.LevelError, format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log(slog.LevelWarn, format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}
