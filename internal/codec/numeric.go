package codec

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// toFloat converts any numeric representation (including numeric strings)
// to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toInt converts v to int64. Floats must be integral.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// AsInt converts a raw datapoint value to int64. Integral floats, decimal
// strings and json.Number are accepted; fractional values are not.
func AsInt(v any) (int64, bool) {
	return toInt(v)
}

// normaliseRaw maps Go integer kinds and integral floats to int64 and other
// floats to float64 so values compare equal regardless of where they were
// decoded (JSON yields float64, YAML yields int).
func normaliseRaw(v any) any {
	switch n := v.(type) {
	case int, int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		if i, ok := toInt(n); ok {
			return i
		}
		f, _ := toFloat(n)
		return f
	case float32:
		return normaliseRaw(float64(n))
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

// rawKey returns a comparison key for a raw value. Integral floats and
// integers share a key so 1, int64(1) and 1.0 are the same raw value.
func rawKey(v any) string {
	switch n := normaliseRaw(v).(type) {
	case bool:
		return strconv.FormatBool(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	case string:
		return n
	default:
		return ""
	}
}

// Equal reports whether two raw values are the same datapoint value.
// Numbers compare by value across Go types; bools and strings never equal numbers.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	class := rawClass(a)
	if class != rawClass(b) {
		return false
	}
	if class == "" {
		return reflect.DeepEqual(a, b)
	}
	return rawKey(a) == rawKey(b)
}

// rawClass groups raw values into bool, number and string classes.
func rawClass(v any) string {
	switch normaliseRaw(v).(type) {
	case bool:
		return "bool"
	case int64, float64:
		return "number"
	case string:
		return "string"
	default:
		return ""
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
