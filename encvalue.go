package lcoll

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind tells what an entry stores.
type Kind uint8

const (
	KindRecord     = Kind(1)
	KindCollection = Kind(2)
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindCollection:
		return "collection"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type entryFlags uint64

const (
	efVerBit0 = entryFlags(1 << iota)
	efVerBit1
	efVerBit2
	efVerBit3
	efKindBit0
	efKindBit1

	efVerMask       = (efVerBit0 | efVerBit1 | efVerBit2 | efVerBit3)
	efKindMask      = (efKindBit0 | efKindBit1)
	efKindShift     = 4
	efVer1          = efVerBit0
	efSupportedMask = (efVer1 | efKindMask)

	checksumSize    = 8
	minEntrySize    = 2 + checksumSize
	maxEntryHeader  = binary.MaxVarintLen64 * 2
	maxEntryDataLen = 1 << 30 // sanity value
)

func (ef entryFlags) ver() entryFlags {
	return ef & efVerMask
}

func (ef entryFlags) kind() Kind {
	return Kind((ef & efKindMask) >> efKindShift)
}

func encodeEntry(kind Kind, data []byte) []byte {
	flags := efVer1 | (entryFlags(kind)<<efKindShift)&efKindMask
	buf := make([]byte, 0, maxEntryHeader+len(data)+checksumSize)
	buf = binary.AppendUvarint(buf, uint64(flags))
	buf = binary.AppendUvarint(buf, uint64(len(data)))
	buf = append(buf, data...)
	buf = binary.BigEndian.AppendUint64(buf, xxhash.Sum64(data))
	return buf
}

// DecodeEntry splits a raw stored value into its kind and payload, verifying
// the checksum. The payload aliases raw.
func DecodeEntry(raw []byte) (Kind, []byte, error) {
	orig := raw
	if len(raw) < minEntrySize {
		return 0, nil, dataErrf(orig, 0, nil, "invalid entry: at least %d bytes required", minEntrySize)
	}

	v, n := binary.Uvarint(raw)
	if n <= 0 {
		return 0, nil, dataErrf(orig, 0, nil, "invalid entry: bad flags")
	}
	if (v &^ uint64(efSupportedMask)) != 0 {
		return 0, nil, dataErrf(orig, 0, nil, "invalid entry: unsupported flags %x", v)
	}
	flags, raw := entryFlags(v), raw[n:]
	if flags.ver() != efVer1 {
		return 0, nil, dataErrf(orig, 0, nil, "invalid entry: unsupported version %d", flags.ver())
	}
	kind := flags.kind()
	if kind != KindRecord && kind != KindCollection {
		return 0, nil, dataErrf(orig, 0, nil, "invalid entry: unknown %v", kind)
	}

	size, n := binary.Uvarint(raw)
	if n <= 0 || size > maxEntryDataLen {
		return 0, nil, dataErrf(orig, len(orig)-len(raw), nil, "invalid entry: bad data size")
	}
	raw = raw[n:]
	if uint64(len(raw)) != size+checksumSize {
		return 0, nil, dataErrf(orig, len(orig)-len(raw), nil, "invalid entry: got %d bytes for data+checksum, expected %d bytes", len(raw), size+checksumSize)
	}

	data, sum := raw[:size], binary.BigEndian.Uint64(raw[size:])
	if actual := xxhash.Sum64(data); actual != sum {
		return 0, nil, dataErrf(orig, len(orig)-len(raw), nil, "invalid entry: checksum %016x, expected %016x", actual, sum)
	}
	return kind, data, nil
}

func encodeIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := msgpack.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return encodeEntry(KindCollection, data), nil
}

func decodeIDs(data []byte) ([]string, error) {
	var ids []string
	err := msgpack.Unmarshal(data, &ids)
	if err != nil {
		return nil, dataErrf(data, 0, err, "invalid id list")
	}
	return ids, nil
}

// peekKind returns the kind of a raw entry, or 0 for a missing one.
func peekKind(raw []byte) (Kind, error) {
	if raw == nil {
		return 0, nil
	}
	kind, _, err := DecodeEntry(raw)
	return kind, err
}
