package lcoll

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// IndexKey is the store key under which a root collection persists its key
// index. Legal ids never start with a NUL byte, so no record or collection id
// can collide with it.
const IndexKey = "\x00keys"

// KeyString converts an id to the canonical string key used by the store.
// Strings, integers, integral floats (as decoded from JSON) and fmt.Stringer
// values are accepted.
func KeyString(id any) (string, error) {
	var s string
	switch v := id.(type) {
	case string:
		s = v
	case int:
		s = strconv.FormatInt(int64(v), 10)
	case int8:
		s = strconv.FormatInt(int64(v), 10)
	case int16:
		s = strconv.FormatInt(int64(v), 10)
	case int32:
		s = strconv.FormatInt(int64(v), 10)
	case int64:
		s = strconv.FormatInt(v, 10)
	case uint:
		s = strconv.FormatUint(uint64(v), 10)
	case uint8:
		s = strconv.FormatUint(uint64(v), 10)
	case uint16:
		s = strconv.FormatUint(uint64(v), 10)
	case uint32:
		s = strconv.FormatUint(uint64(v), 10)
	case uint64:
		s = strconv.FormatUint(v, 10)
	case float32:
		return floatKey(float64(v))
	case float64:
		return floatKey(v)
	case fmt.Stringer:
		s = v.String()
	default:
		rv := reflect.ValueOf(id)
		switch rv.Kind() {
		case reflect.String:
			s = rv.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			s = strconv.FormatInt(rv.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			s = strconv.FormatUint(rv.Uint(), 10)
		default:
			return "", fmt.Errorf("%w: unsupported id type %T", ErrInvalidKey, id)
		}
	}
	if err := validateKey(s); err != nil {
		return "", err
	}
	return s, nil
}

func floatKey(f float64) (string, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > 1<<53 {
		return "", fmt.Errorf("%w: non-integral number %v", ErrInvalidKey, f)
	}
	return strconv.FormatInt(int64(f), 10), nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if key[0] == 0 {
		return fmt.Errorf("%w: %q", ErrReservedKey, key)
	}
	return nil
}

func printableKey(key string) string {
	if key == IndexKey {
		return "<index>"
	}
	if strings.IndexFunc(key, func(r rune) bool { return r < 0x20 }) >= 0 {
		return strconv.Quote(key)
	}
	return key
}
