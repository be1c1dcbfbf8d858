package lcoll

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

type BoltOptions struct {
	IsTesting bool
	ReadOnly  bool
	MmapSize  int
}

// BoltStore keeps each namespace in its own top-level Bolt bucket.
type BoltStore struct {
	bdb *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

func OpenBolt(path string, opt BoltOptions) (*BoltStore, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 64
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	mode := os.FileMode(0666)
	if opt.ReadOnly {
		bopt.ReadOnly = true
		mode = 0444
	}

	bdb, err := bbolt.Open(path, mode, bopt)
	if err != nil {
		return nil, fmt.Errorf("lcoll: %w", err)
	}
	return &BoltStore{bdb: bdb}, nil
}

func (s *BoltStore) Bolt() *bbolt.DB {
	return s.bdb
}

// Namespace returns a handle without touching the file; the bucket is
// created by the first write.
func (s *BoltStore) Namespace(name string) (Namespace, error) {
	if name == "" {
		return nil, fmt.Errorf("lcoll: empty namespace name")
	}
	err := s.bdb.View(func(*bbolt.Tx) error { return nil })
	if err != nil {
		return nil, mapBoltErr(err)
	}
	return &boltNamespace{bdb: s.bdb, name: name}, nil
}

func (s *BoltStore) Namespaces() ([]string, error) {
	var names []string
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		return btx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			if k, _ := b.Cursor().First(); k != nil {
				names = append(names, string(name))
			}
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

func (s *BoltStore) Close() error {
	return s.bdb.Close()
}

type boltNamespace struct {
	bdb  *bbolt.DB
	name string
}

func (ns *boltNamespace) Name() string { return ns.name }

func (ns *boltNamespace) bucket(btx *bbolt.Tx) (*bbolt.Bucket, error) {
	b := btx.Bucket(unsafeBytesFromString(ns.name))
	if b != nil {
		return b, nil
	}
	if !btx.Writable() {
		return nil, nil
	}
	return btx.CreateBucket([]byte(ns.name))
}

func (ns *boltNamespace) Get(key string) ([]byte, error) {
	var result []byte
	err := ns.bdb.View(func(btx *bbolt.Tx) error {
		b, err := ns.bucket(btx)
		if b == nil || err != nil {
			return err
		}
		// Bolt values are only valid for the life of the transaction
		if v := b.Get(unsafeBytesFromString(key)); v != nil {
			result = slices.Clone(v)
			if result == nil {
				result = []byte{}
			}
		}
		return nil
	})
	return result, mapBoltErr(err)
}

func (ns *boltNamespace) Set(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return mapBoltErr(ns.bdb.Update(func(btx *bbolt.Tx) error {
		b, err := ns.bucket(btx)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	}))
}

func (ns *boltNamespace) Remove(key string) error {
	return mapBoltErr(ns.bdb.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(ns.name))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	}))
}

func (ns *boltNamespace) Clear() error {
	return mapBoltErr(ns.bdb.Update(func(btx *bbolt.Tx) error {
		err := btx.DeleteBucket([]byte(ns.name))
		if err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err = btx.CreateBucket([]byte(ns.name))
		return err
	}))
}

func (ns *boltNamespace) GetAll() (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := ns.bdb.View(func(btx *bbolt.Tx) error {
		b, err := ns.bucket(btx)
		if b == nil || err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			if v == nil {
				return nil // nested bucket
			}
			result[string(k)] = append([]byte{}, v...)
			return nil
		})
	})
	if err != nil {
		return nil, mapBoltErr(err)
	}
	return result, nil
}

func mapBoltErr(err error) error {
	if err == bbolt.ErrDatabaseNotOpen {
		return ErrStoreClosed
	}
	return err
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
