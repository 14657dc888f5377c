package codec

// Sentinel is a marker value returned in place of a decoded property value.
type Sentinel string

// Unknown is returned when a value is absent, stale or undecodable.
const Unknown Sentinel = "unknown"

// Kind identifies the transform variant.
type Kind string

// Transform kinds.
const (
	KindPassthrough Kind = "passthrough"
	KindScale       Kind = "scale"
	KindEnum        Kind = "enum"
	KindBitField    Kind = "bitfield"
	KindBlob        Kind = "blob"
)

// Transform converts between an abstract property value and a raw datapoint value.
//
// Implementations are stateless and safe for concurrent use.
type Transform interface {
	// Kind returns the transform variant.
	Kind() Kind

	// Encode converts an abstract value to its raw form. current is the raw
	// value the device currently holds (nil if unknown); transforms that
	// pack into a shared datapoint preserve the parts they do not own.
	// Domain violations return a *ValidationError.
	Encode(value, current any) (any, error)

	// Decode converts a raw value to its abstract form. On failure it
	// returns Unknown and an error wrapping ErrDecode.
	Decode(raw any) (any, error)
}

// Passthrough hands values through unchanged apart from number normalisation.
type Passthrough struct{}

// Kind implements Transform.
func (Passthrough) Kind() Kind { return KindPassthrough }

// Encode implements Transform.
func (Passthrough) Encode(value, _ any) (any, error) {
	if value == nil {
		return nil, &ValidationError{Value: value, Reason: "value is required"}
	}
	return normaliseRaw(value), nil
}

// Decode implements Transform.
func (Passthrough) Decode(raw any) (any, error) {
	if raw == nil {
		return Unknown, decodeError("nil raw value")
	}
	return normaliseRaw(raw), nil
}
