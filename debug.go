package lcoll

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

type DumpFlags uint64

const (
	DumpHeader = DumpFlags(1 << iota)
	DumpRecords
	DumpCollections
	DumpIndex

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var dumpSep = strings.Repeat("=", 80)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the contents of a namespace, one entry per line, sorted by key.
func Dump(ns Namespace, f DumpFlags) (string, error) {
	all, err := ns.GetAll()
	if err != nil {
		return "", collErrf(ns, "", err, "get all")
	}
	keys := slices.Sorted(maps.Keys(all))

	var buf strings.Builder
	if f.Contains(DumpHeader) {
		fmt.Fprintln(&buf, dumpSep)
		fmt.Fprintf(&buf, "%s (%d keys)\n", ns.Name(), len(keys))
	}
	for _, key := range keys {
		dumpEntry(&buf, ns.Name(), f, key, all[key])
	}
	return buf.String(), nil
}

func dumpEntry(w *strings.Builder, prefix string, f DumpFlags, key string, raw []byte) {
	prefix = prefix + "/" + printableKey(key)
	kind, data, err := DecodeEntry(raw)
	if err != nil {
		fmt.Fprintf(w, "%s = ** ERROR: %v\n", prefix, err)
		return
	}

	switch kind {
	case KindRecord:
		if !f.Contains(DumpRecords) {
			return
		}
		var v any
		err := msgpack.Unmarshal(data, &v)
		if err != nil {
			fmt.Fprintf(w, "%s = ** ERROR: %v\n", prefix, err)
			return
		}
		j, err := json.Marshal(v)
		if err != nil {
			fmt.Fprintf(w, "%s = %v\n", prefix, v)
			return
		}
		fmt.Fprintf(w, "%s = %s\n", prefix, j)

	case KindCollection:
		what := "collection"
		if key == IndexKey {
			what = "index"
			if !f.Contains(DumpIndex) {
				return
			}
		} else if !f.Contains(DumpCollections) {
			return
		}
		ids, err := decodeIDs(data)
		if err != nil {
			fmt.Fprintf(w, "%s = ** ERROR: %v\n", prefix, err)
			return
		}
		fmt.Fprintf(w, "%s = [%s] (%s)\n", prefix, strings.Join(ids, ", "), what)
	}
}
