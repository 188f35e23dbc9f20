package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// Row is a single record: column name to value.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Key is the canonical form of a primary-key (or key-like) value.
type Key string

// KeyOf canonicalizes v into a Key. Integral numbers and plain base-10 integer
// strings share one representation, so 7, int64(7), 7.0, "7" and " 7 " all
// yield "7". Any other string is an opaque key and is kept verbatim: "007",
// "7.0" and "1e3" are distinct from 7.
// Returns false for nil, booleans, blank strings and unsupported types.
func KeyOf(v any) (Key, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case Key:
		return x, x != ""
	case string:
		return keyOfString(x)
	case json.Number:
		return keyOfNumber(string(x))
	case int:
		return Key(strconv.FormatInt(int64(x), 10)), true
	case int8:
		return Key(strconv.FormatInt(int64(x), 10)), true
	case int16:
		return Key(strconv.FormatInt(int64(x), 10)), true
	case int32:
		return Key(strconv.FormatInt(int64(x), 10)), true
	case int64:
		return Key(strconv.FormatInt(x, 10)), true
	case uint:
		return Key(strconv.FormatUint(uint64(x), 10)), true
	case uint8:
		return Key(strconv.FormatUint(uint64(x), 10)), true
	case uint16:
		return Key(strconv.FormatUint(uint64(x), 10)), true
	case uint32:
		return Key(strconv.FormatUint(uint64(x), 10)), true
	case uint64:
		return Key(strconv.FormatUint(x, 10)), true
	case float32:
		return keyOfFloat(float64(x))
	case float64:
		return keyOfFloat(x)
	case bool:
		return "", false
	case fmt.Stringer:
		return keyOfString(x.String())
	}
	return "", false
}

// MustKey is KeyOf for values known to be valid keys, such as literals in
// tests and examples. It panics otherwise.
func MustKey(v any) Key {
	k, ok := KeyOf(v)
	if !ok {
		panic(fmt.Sprintf("canopy: %v (%T) is not a valid key", v, v))
	}
	return k
}

// keyOfString canonicalizes a string only when it round-trips as a base-10
// integer.
func keyOfString(s string) (Key, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", false
	}
	if n, err := strconv.ParseInt(t, 10, 64); err == nil {
		if c := strconv.FormatInt(n, 10); c == t {
			return Key(c), true
		}
	}
	return Key(s), true
}

// keyOfNumber canonicalizes a decoded number literal, which is numeric by
// type rather than by content.
func keyOfNumber(s string) (Key, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Key(strconv.FormatInt(n, 10)), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	return keyOfFloat(f)
}

func keyOfFloat(f float64) (Key, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return Key(strconv.FormatInt(int64(f), 10)), true
	}
	return Key(strconv.FormatFloat(f, 'g', -1, 64)), true
}

// Truthy interprets a stored flag value. Booleans are returned as-is, numbers
// are true when non-zero and strings are parsed with strconv.ParseBool (with
// numeric strings following the number rule). Anything else is false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		s := strings.TrimSpace(x)
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0
		}
		return false
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case float32:
		return x != 0
	case float64:
		return x != 0
	}
	if k, ok := KeyOf(v); ok {
		return k != "0"
	}
	return false
}

// equalValues compares two column values under key coercion, falling back to
// boolean equality for flags.
func equalValues(a, b any) bool {
	ka, okA := KeyOf(a)
	kb, okB := KeyOf(b)
	if okA && okB {
		return ka == kb
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return false
}
