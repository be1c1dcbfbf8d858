package lcoll

import (
	"fmt"
	"maps"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Data is the plain, untyped form of a record, e.g. as decoded from JSON.
type Data = map[string]any

// Merger is implemented by records that merge plain data into themselves.
// Records that don't implement it are merged via a msgpack round trip, which
// leaves fields absent from the data untouched.
type Merger interface {
	Merge(data Data) error
}

// Model describes a record type: a pointer to a struct with a string or
// integer primary key field.
type Model[T any] struct {
	name     string
	pk       string
	rowType  reflect.Type
	keyField reflect.StructField
}

// DefineModel describes record type T stored under the given namespace name.
// primaryKey is the data field name of the key; it matches the msgpack tag of
// a struct field, or the field name itself if the field has no tag.
func DefineModel[T any](name, primaryKey string) *Model[T] {
	if name == "" {
		panic("model name required")
	}
	if primaryKey == "" {
		panic(fmt.Errorf("model %s: primary key field name required", name))
	}
	rt := reflect.TypeFor[T]()
	if rt.Kind() != reflect.Struct {
		panic(fmt.Errorf("model %s: %v not a struct", name, rt))
	}
	keyField, ok := findDataField(rt, primaryKey)
	if !ok {
		panic(fmt.Errorf("model %s: %v has no field for primary key %q", name, rt, primaryKey))
	}
	if !keyField.IsExported() {
		panic(fmt.Errorf("model %s: key field %v.%s must be exported", name, rt, keyField.Name))
	}
	switch keyField.Type.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		panic(fmt.Errorf("model %s: key field %v.%s has unsupported type %v", name, rt, keyField.Name, keyField.Type))
	}
	return &Model[T]{
		name:     name,
		pk:       primaryKey,
		rowType:  rt,
		keyField: keyField,
	}
}

func findDataField(rt reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("msgpack"), ",")
		if tag == "-" {
			continue
		}
		if tag == name || (tag == "" && f.Name == name) {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func (m *Model[T]) Name() string       { return m.name }
func (m *Model[T]) PrimaryKey() string { return m.pk }
func (m *Model[T]) String() string     { return m.name }

func (m *Model[T]) keyValue(rec *T) reflect.Value {
	return reflect.ValueOf(rec).Elem().FieldByIndex(m.keyField.Index)
}

// Key returns the primary key of rec as a store key, or "" if it is unset.
func (m *Model[T]) Key(rec *T) string {
	kv := m.keyValue(rec)
	switch kv.Kind() {
	case reflect.String:
		return kv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(kv.Int(), 10)
	default:
		return strconv.FormatUint(kv.Uint(), 10)
	}
}

// SetKey assigns the primary key of rec. id may be of any type accepted by
// KeyString, as long as it fits the key field.
func (m *Model[T]) SetKey(rec *T, id any) error {
	key, err := KeyString(id)
	if err != nil {
		return err
	}
	kv := m.keyValue(rec)
	switch kv.Kind() {
	case reflect.String:
		kv.SetString(key)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(key, 10, kv.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: %q does not fit %v", ErrInvalidKey, key, kv.Type())
		}
		kv.SetInt(v)
	default:
		v, err := strconv.ParseUint(key, 10, kv.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: %q does not fit %v", ErrInvalidKey, key, kv.Type())
		}
		kv.SetUint(v)
	}
	return nil
}

// keyFor converts an id to the store key of the record it names. Integer
// keys are normalized, so "007" and 7 both become "7".
func (m *Model[T]) keyFor(id any) (string, error) {
	key, err := KeyString(id)
	if err != nil {
		return "", err
	}
	switch k := m.keyField.Type.Kind(); k {
	case reflect.String:
		return key, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(key, 10, m.keyField.Type.Bits())
		if err != nil {
			return "", fmt.Errorf("%w: %q does not fit %v", ErrInvalidKey, key, m.keyField.Type)
		}
		return strconv.FormatInt(v, 10), nil
	default:
		v, err := strconv.ParseUint(key, 10, m.keyField.Type.Bits())
		if err != nil {
			return "", fmt.Errorf("%w: %q does not fit %v", ErrInvalidKey, key, m.keyField.Type)
		}
		return strconv.FormatUint(v, 10), nil
	}
}

// New constructs a record from plain data. A string key missing from the data
// is filled with a random UUID.
func (m *Model[T]) New(data Data) (*T, error) {
	rec := new(T)
	if err := m.Merge(rec, data); err != nil {
		return nil, err
	}
	if m.Key(rec) == "" || !m.hasKey(data) {
		if m.keyField.Type.Kind() != reflect.String {
			return nil, fmt.Errorf("%s: %w %q", m.name, ErrMissingKey, m.pk)
		}
		m.keyValue(rec).SetString(uuid.NewString())
	}
	return rec, nil
}

func (m *Model[T]) hasKey(data Data) bool {
	v, ok := data[m.pk]
	return ok && v != nil && v != ""
}

// Merge applies plain data to a live record.
func (m *Model[T]) Merge(rec *T, data Data) error {
	if mr, ok := any(rec).(Merger); ok {
		return mr.Merge(data)
	}

	id, hasID := data[m.pk]
	if hasID && id != nil {
		// the key may arrive as a float or a string regardless of the field type
		data = maps.Clone(data)
		delete(data, m.pk)
	}

	raw, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("%s: encoding data: %w", m.name, err)
	}
	// rec stays untouched on failure, including slices the copy shares with it
	err = msgpack.Unmarshal(raw, new(T))
	if err != nil {
		return fmt.Errorf("%s: merging data: %w", m.name, err)
	}
	v := *rec
	err = msgpack.Unmarshal(raw, &v)
	if err != nil {
		return fmt.Errorf("%s: merging data: %w", m.name, err)
	}
	if hasID && id != nil {
		if err := m.SetKey(&v, id); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
	}
	*rec = v
	return nil
}

func (m *Model[T]) encode(rec *T) ([]byte, error) {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return encodeEntry(KindRecord, data), nil
}

func (m *Model[T]) decode(data []byte) (*T, error) {
	rec := new(T)
	err := msgpack.Unmarshal(data, rec)
	if err != nil {
		return nil, dataErrf(data, 0, err, "invalid %s record", m.name)
	}
	return rec, nil
}
