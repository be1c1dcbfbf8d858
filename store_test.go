package lcoll

import (
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"
)

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	defer s.Close()
	testStore(t, s)
}

func TestBoltStore(t *testing.T) {
	s := must(OpenBolt(filepath.Join(t.TempDir(), "test.db"), BoltOptions{IsTesting: true}))
	defer s.Close()
	testStore(t, s)
}

func TestBadgerStore(t *testing.T) {
	s := must(OpenBadger(BadgerOptions{InMemory: true, Logger: slog.New(slog.DiscardHandler)}))
	defer s.Close()
	testStore(t, s)
}

func testStore(t *testing.T, s Store) {
	t.Run("missing key", func(t *testing.T) {
		ns := must(s.Namespace("a"))
		v, err := ns.Get("nope")
		ok(t, err)
		if v != nil {
			t.Fatalf("Get(nope) = %x, wanted nil", v)
		}
		ok(t, ns.Remove("nope"))
	})

	t.Run("set get overwrite remove", func(t *testing.T) {
		ns := must(s.Namespace("a"))
		ok(t, ns.Set("k", []byte("v1")))
		deepEqual(t, string(must(ns.Get("k"))), "v1")
		ok(t, ns.Set("k", []byte("v2")))
		deepEqual(t, string(must(ns.Get("k"))), "v2")
		ok(t, ns.Remove("k"))
		if v := must(ns.Get("k")); v != nil {
			t.Fatalf("Get(k) after Remove = %x, wanted nil", v)
		}
	})

	t.Run("empty value is not missing", func(t *testing.T) {
		ns := must(s.Namespace("a"))
		ok(t, ns.Set("empty", []byte{}))
		v := must(ns.Get("empty"))
		if v == nil || len(v) != 0 {
			t.Fatalf("Get(empty) = %#v, wanted empty non-nil slice", v)
		}
		ok(t, ns.Remove("empty"))
	})

	t.Run("values are copied", func(t *testing.T) {
		ns := must(s.Namespace("a"))
		buf := []byte("abc")
		ok(t, ns.Set("c", buf))
		buf[0] = 'X'
		v := must(ns.Get("c"))
		deepEqual(t, string(v), "abc")
		v[1] = 'Y'
		deepEqual(t, string(must(ns.Get("c"))), "abc")
		ok(t, ns.Remove("c"))
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		a := must(s.Namespace("iso_a"))
		b := must(s.Namespace("iso_b"))
		ok(t, a.Set("k", []byte("a")))
		ok(t, b.Set("k", []byte("b")))
		ok(t, b.Set("only_b", []byte("b")))

		deepEqual(t, string(must(a.Get("k"))), "a")
		deepEqual(t, string(must(b.Get("k"))), "b")
		if v := must(a.Get("only_b")); v != nil {
			t.Fatalf("a.Get(only_b) = %x, wanted nil", v)
		}

		all := must(b.GetAll())
		deepEqual(t, len(all), 2)
		deepEqual(t, string(all["only_b"]), "b")

		ok(t, b.Clear())
		deepEqual(t, len(must(b.GetAll())), 0)
		deepEqual(t, string(must(a.Get("k"))), "a")

		ok(t, b.Set("after", []byte("x")))
		deepEqual(t, string(must(b.Get("after"))), "x")
	})

	t.Run("namespace names", func(t *testing.T) {
		ns := must(s.Namespace("listed/sub"))
		ok(t, ns.Set("k", []byte("v")))
		must(s.Namespace("unlisted"))

		names := must(s.Namespaces())
		var found, foundEmpty bool
		for _, name := range names {
			found = found || name == "listed/sub"
			foundEmpty = foundEmpty || name == "unlisted"
		}
		if !found {
			t.Errorf("Namespaces() = %v, wanted to include listed/sub", names)
		}
		if foundEmpty {
			t.Errorf("Namespaces() = %v, wanted empty namespace excluded", names)
		}
	})

	t.Run("reserved index key", func(t *testing.T) {
		ns := must(s.Namespace("a"))
		ok(t, ns.Set(IndexKey, []byte("idx")))
		ok(t, ns.Set("keys", []byte("rec")))
		deepEqual(t, string(must(ns.Get(IndexKey))), "idx")
		deepEqual(t, string(must(ns.Get("keys"))), "rec")
	})
}

func TestMemStore_closed(t *testing.T) {
	s := NewMemStore()
	ns := must(s.Namespace("a"))
	ok(t, s.Close())

	_, err := ns.Get("k")
	if !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Get after Close: err = %v, wanted ErrStoreClosed", err)
	}
	if err := ns.Set("k", nil); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Set after Close: err = %v, wanted ErrStoreClosed", err)
	}
	if _, err := s.Namespace("b"); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Namespace after Close: err = %v, wanted ErrStoreClosed", err)
	}
}

func TestBoltStore_reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	s := must(OpenBolt(path, BoltOptions{IsTesting: true}))
	r := must(NewRegistry(s, things, Options{}))
	must(r.SetData(Data{"id": "a", "name": "Alpha"}, Data{"id": "b", "name": "Beta"}))
	coll := must(r.Obtain("favs", true))
	must(coll.SetData(Data{"id": "x", "name": "Xi"}))
	ok(t, s.Close())

	s = must(OpenBolt(path, BoltOptions{IsTesting: true}))
	defer s.Close()
	r = must(NewRegistry(s, things, Options{}))

	deepEqual(t, r.Len(), 2)
	deepEqual(t, r.Root().IDs(), []string{"a", "b"})
	deepEqual(t, must(r.ObtainRecord("b", false)), &Thing{ID: "b", Name: "Beta"})

	coll = must(r.Obtain("favs", false))
	isnonnil(t, coll)
	deepEqual(t, coll.IDs(), []string{"x"})
	deepEqual(t, must(coll.Obtain("x", false)), &Thing{ID: "x", Name: "Xi"})
	checkConsistency(t, r.Root())
	checkConsistency(t, coll)
}

func TestBoltStore_readOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.db")
	s := must(OpenBolt(path, BoltOptions{}))
	ok(t, must(s.Namespace("a")).Set("k", []byte("v")))

	// handles for unknown namespaces create nothing
	ns := must(s.Namespace("lookup_only"))
	if v := must(ns.Get("k")); v != nil {
		t.Fatalf("Get in a missing namespace = %x, wanted nil", v)
	}
	deepEqual(t, len(must(ns.GetAll())), 0)
	ok(t, ns.Remove("k"))
	ok(t, s.Bolt().View(func(btx *bbolt.Tx) error {
		if btx.Bucket([]byte("lookup_only")) != nil {
			t.Errorf("Namespace created a bucket")
		}
		return nil
	}))
	ok(t, s.Close())

	s = must(OpenBolt(path, BoltOptions{ReadOnly: true}))
	defer s.Close()
	deepEqual(t, must(s.Namespaces()), []string{"a"})
	deepEqual(t, string(must(must(s.Namespace("a")).Get("k"))), "v")
	ns = must(s.Namespace("other"))
	if v := must(ns.Get("k")); v != nil {
		t.Fatalf("Get in a missing namespace = %x, wanted nil", v)
	}
	if err := ns.Set("k", []byte("v")); err == nil {
		t.Fatalf("Set on a read-only store err = nil, wanted error")
	}
}
