package codec

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BlobEncoding is the textual encoding of a composite blob.
type BlobEncoding string

// Supported blob encodings.
const (
	// EncodingHex: each field is Width hex digits.
	EncodingHex BlobEncoding = "hex"

	// EncodingDecimal: each field is Width decimal digits.
	EncodingDecimal BlobEncoding = "decimal"

	// EncodingBase64: the string is standard base64; each field is Width
	// bytes of the decoded buffer, big-endian unsigned.
	EncodingBase64 BlobEncoding = "base64"
)

// Maximum field widths that still fit an int64.
const (
	maxHexDigits     = 15
	maxDecimalDigits = 18
	maxBase64Bytes   = 7
)

// BlobField is one fixed-width sub-field of a composite blob.
type BlobField struct {
	Name  string `yaml:"name" json:"name"`
	Width int    `yaml:"width" json:"width"`
}

// Blob packs several fixed-width unsigned fields into one string datapoint.
//
// Decoded values are map[string]int64 keyed by field name. Blobs of the
// wrong length or with non-numeric content decode to Unknown.
type Blob struct {
	encoding BlobEncoding
	fields   []BlobField
	total    int
}

// NewBlob validates and creates a composite blob transform.
func NewBlob(encoding BlobEncoding, fields []BlobField) (*Blob, error) {
	var maxWidth int
	switch encoding {
	case EncodingHex:
		maxWidth = maxHexDigits
	case EncodingDecimal:
		maxWidth = maxDecimalDigits
	case EncodingBase64:
		maxWidth = maxBase64Bytes
	default:
		return nil, fmt.Errorf("%w: unknown blob encoding %q", ErrInvalidSpec, encoding)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: blob needs at least one field", ErrInvalidSpec)
	}

	b := &Blob{encoding: encoding, fields: make([]BlobField, len(fields))}
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: blob field %d has no name", ErrInvalidSpec, i)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: duplicate blob field %q", ErrInvalidSpec, f.Name)
		}
		if f.Width < 1 || f.Width > maxWidth {
			return nil, fmt.Errorf("%w: blob field %q width %d outside 1..%d for %s",
				ErrInvalidSpec, f.Name, f.Width, maxWidth, encoding)
		}
		seen[f.Name] = true
		b.fields[i] = f
		b.total += f.Width
	}
	return b, nil
}

// Kind implements Transform.
func (b *Blob) Kind() Kind { return KindBlob }

// Fields returns the declared fields in order.
func (b *Blob) Fields() []BlobField {
	return append([]BlobField(nil), b.fields...)
}

func (b *Blob) fieldMax(width int) int64 {
	switch b.encoding {
	case EncodingHex:
		return int64(1)<<(4*width) - 1
	case EncodingDecimal:
		return int64(math.Pow10(width)) - 1
	default:
		return int64(1)<<(8*width) - 1
	}
}

// Decode implements Transform.
func (b *Blob) Decode(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return Unknown, decodeError("blob: %v (%T) is not a string", raw, raw)
	}

	if b.encoding == EncodingBase64 {
		return b.decodeBinary(s)
	}

	if len(s) != b.total {
		return Unknown, decodeError("blob: length %d, want %d", len(s), b.total)
	}

	base := 16
	if b.encoding == EncodingDecimal {
		base = 10
	}

	out := make(map[string]int64, len(b.fields))
	off := 0
	for _, f := range b.fields {
		chunk := s[off : off+f.Width]
		n, err := strconv.ParseUint(chunk, base, 63)
		if err != nil {
			return Unknown, decodeError("blob: field %q: %q is not %s", f.Name, chunk, b.encoding)
		}
		out[f.Name] = int64(n)
		off += f.Width
	}
	return out, nil
}

func (b *Blob) decodeBinary(s string) (any, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Unknown, decodeError("blob: invalid base64: %v", err)
	}
	if len(buf) != b.total {
		return Unknown, decodeError("blob: %d bytes, want %d", len(buf), b.total)
	}

	out := make(map[string]int64, len(b.fields))
	off := 0
	for _, f := range b.fields {
		var n int64
		for _, c := range buf[off : off+f.Width] {
			n = n<<8 | int64(c)
		}
		out[f.Name] = n
		off += f.Width
	}
	return out, nil
}

// Encode implements Transform.
//
// value is a map of field name to unsigned integer. Fields missing from
// value keep their value from current; if current is nil or does not
// decode, every field must be supplied or ErrNoBase is returned.
func (b *Blob) Encode(value, current any) (any, error) {
	updates, err := fieldMap(value)
	if err != nil {
		return nil, err
	}

	values := make(map[string]int64, len(b.fields))
	haveBase := false
	if current != nil {
		if decoded, err := b.Decode(current); err == nil {
			if m, ok := decoded.(map[string]int64); ok {
				values, haveBase = m, true
			}
		}
	}

	known := make(map[string]BlobField, len(b.fields))
	for _, f := range b.fields {
		known[f.Name] = f
	}
	for name, v := range updates {
		f, ok := known[name]
		if !ok {
			return nil, &ValidationError{Value: value, Reason: fmt.Sprintf("unknown blob field %q", name)}
		}
		n, ok := toInt(v)
		if !ok {
			return nil, &ValidationError{Value: v, Reason: fmt.Sprintf("blob field %q needs an integer", name)}
		}
		if n < 0 || n > b.fieldMax(f.Width) {
			lo, hi := 0.0, float64(b.fieldMax(f.Width))
			return nil, &ValidationError{Property: name, Value: v, Min: &lo, Max: &hi}
		}
		values[name] = n
	}

	if !haveBase {
		for _, f := range b.fields {
			if _, ok := updates[f.Name]; !ok {
				return nil, fmt.Errorf("%w: blob field %q not supplied", ErrNoBase, f.Name)
			}
		}
	}

	if b.encoding == EncodingBase64 {
		buf := make([]byte, 0, b.total)
		for _, f := range b.fields {
			n := values[f.Name]
			for i := f.Width - 1; i >= 0; i-- {
				buf = append(buf, byte(n>>(8*i)))
			}
		}
		return base64.StdEncoding.EncodeToString(buf), nil
	}

	var sb strings.Builder
	sb.Grow(b.total)
	for _, f := range b.fields {
		if b.encoding == EncodingHex {
			fmt.Fprintf(&sb, "%0*x", f.Width, values[f.Name])
		} else {
			fmt.Fprintf(&sb, "%0*d", f.Width, values[f.Name])
		}
	}
	return sb.String(), nil
}

// fieldMap accepts the map shapes produced by JSON, YAML and Go callers.
func fieldMap(value any) (map[string]any, error) {
	switch m := value.(type) {
	case map[string]any:
		return m, nil
	case map[string]int64:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	case map[string]int:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	default:
		return nil, &ValidationError{Value: value, Reason: "blob value must be a map of field name to integer"}
	}
}
