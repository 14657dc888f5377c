package codec

import (
	"fmt"
	"math"
)

// Scale is a linear transform: raw = round(value * Factor), value = raw / Factor.
//
// Min and Max bound the abstract value (inclusive) and are checked before
// rounding. A zero Factor is treated as 1.
type Scale struct {
	Factor float64
	Min    *float64
	Max    *float64
}

// Kind implements Transform.
func (s Scale) Kind() Kind { return KindScale }

func (s Scale) factor() float64 {
	if s.Factor == 0 {
		return 1
	}
	return s.Factor
}

// Encode implements Transform.
//
// Returns:
//   - any: the rounded raw value as int64
//   - error: *ValidationError if the value is not numeric or out of range
func (s Scale) Encode(value, _ any) (any, error) {
	v, ok := toFloat(value)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &ValidationError{Value: value, Min: s.Min, Max: s.Max, Reason: "not a number"}
	}
	if (s.Min != nil && v < *s.Min) || (s.Max != nil && v > *s.Max) {
		return nil, &ValidationError{Value: value, Min: s.Min, Max: s.Max}
	}
	return int64(math.Round(v * s.factor())), nil
}

// Decode implements Transform.
func (s Scale) Decode(raw any) (any, error) {
	v, ok := toFloat(raw)
	if !ok {
		return Unknown, decodeError("scale: %v (%T) is not numeric", raw, raw)
	}
	return v / s.factor(), nil
}

// String describes the transform for logs.
func (s Scale) String() string {
	return fmt.Sprintf("scale(x%s)", formatFloat(s.factor()))
}
