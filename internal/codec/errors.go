package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for value transforms.
var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("codec: validation failed")

	// ErrDecode is returned when a raw datapoint value cannot be interpreted.
	// Readers surface it as Unknown rather than failing.
	ErrDecode = errors.New("codec: cannot decode raw value")

	// ErrNoBase is returned when a transform that packs into a shared
	// datapoint has no current raw value to pack into.
	ErrNoBase = errors.New("codec: current raw value unknown")

	// ErrInvalidSpec is returned when a transform definition is inconsistent.
	ErrInvalidSpec = errors.New("codec: invalid transform spec")
)

// ValidationError reports an abstract value outside a transform's legal domain.
//
// It is returned before any network activity. Min/Max carry the numeric
// range, Allowed the legal enum labels.
type ValidationError struct {
	Property string
	Value    any
	Min      *float64
	Max      *float64
	Allowed  []string
	Reason   string
}

// Error implements error.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("codec: invalid value ")
	fmt.Fprintf(&b, "%v", e.Value)
	if e.Property != "" {
		fmt.Fprintf(&b, " for %s", e.Property)
	}
	switch {
	case e.Min != nil && e.Max != nil:
		fmt.Fprintf(&b, ": must be between %s and %s", formatFloat(*e.Min), formatFloat(*e.Max))
	case e.Min != nil:
		fmt.Fprintf(&b, ": must be at least %s", formatFloat(*e.Min))
	case e.Max != nil:
		fmt.Fprintf(&b, ": must be at most %s", formatFloat(*e.Max))
	case len(e.Allowed) > 0:
		fmt.Fprintf(&b, ": must be one of [%s]", strings.Join(e.Allowed, ", "))
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrValidation) true for any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func decodeError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}
