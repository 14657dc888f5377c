package codec

import "fmt"

// maxBitFieldBits is the widest raw integer a bitfield may address.
const maxBitFieldBits = 63

// BitField addresses Width bits starting at bit Offset of a raw integer.
//
// Width 1 fields are exposed as bool. Encoding reads the current raw
// integer, clears the target bits and ORs in the new field, so bits owned
// by other properties are preserved.
type BitField struct {
	Offset uint
	Width  uint
}

// NewBitField validates and creates a bitfield transform.
func NewBitField(offset, width uint) (BitField, error) {
	if width == 0 {
		return BitField{}, fmt.Errorf("%w: bitfield width must be at least 1", ErrInvalidSpec)
	}
	if offset+width > maxBitFieldBits {
		return BitField{}, fmt.Errorf("%w: bitfield offset %d + width %d exceeds %d bits",
			ErrInvalidSpec, offset, width, maxBitFieldBits)
	}
	return BitField{Offset: offset, Width: width}, nil
}

// Kind implements Transform.
func (b BitField) Kind() Kind { return KindBitField }

// Mask returns the raw-integer mask covered by the field.
func (b BitField) Mask() int64 {
	return b.fieldMax() << b.Offset
}

// Overlaps reports whether two fields share any bit.
func (b BitField) Overlaps(other BitField) bool {
	return b.Mask()&other.Mask() != 0
}

func (b BitField) fieldMax() int64 {
	return int64(1)<<b.Width - 1
}

// Encode implements Transform.
//
// Parameters:
//   - value: bool for 1-bit fields, otherwise an integer in [0, 2^Width-1]
//   - current: the raw integer to pack into
//
// Returns:
//   - any: the new raw integer (int64)
//   - error: *ValidationError for an out-of-range value, ErrNoBase if
//     current is nil, ErrDecode if current is not an integer
func (b BitField) Encode(value, current any) (any, error) {
	var field int64
	switch v := value.(type) {
	case bool:
		if b.Width != 1 {
			return nil, &ValidationError{Value: value, Reason: fmt.Sprintf("%d-bit field needs an integer", b.Width)}
		}
		if v {
			field = 1
		}
	default:
		n, ok := toInt(value)
		if !ok {
			return nil, &ValidationError{Value: value, Reason: "not an integer"}
		}
		if n < 0 || n > b.fieldMax() {
			lo, hi := 0.0, float64(b.fieldMax())
			return nil, &ValidationError{Value: value, Min: &lo, Max: &hi}
		}
		field = n
	}

	if current == nil {
		return nil, fmt.Errorf("%w: bitfield at bit %d needs the other bits", ErrNoBase, b.Offset)
	}
	base, ok := toInt(current)
	if !ok {
		return nil, decodeError("bitfield: current raw value %v (%T) is not an integer", current, current)
	}

	return (base &^ b.Mask()) | (field << b.Offset), nil
}

// Decode implements Transform.
func (b BitField) Decode(raw any) (any, error) {
	n, ok := toInt(raw)
	if !ok {
		return Unknown, decodeError("bitfield: %v (%T) is not an integer", raw, raw)
	}
	field := (n >> b.Offset) & b.fieldMax()
	if b.Width == 1 {
		return field == 1, nil
	}
	return field, nil
}
