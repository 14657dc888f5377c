// Package codec converts between abstract property values and raw
// datapoint values.
//
// A Transform is one of:
//
//   - Scale: raw = round(value * factor), with an optional [min, max] on the value
//   - Enum: label <-> raw lookup; unknown raw values decode to Unknown
//   - BitField: Width bits at Offset of a raw integer; other bits are preserved
//   - Blob: fixed-width fields concatenated into a hex, decimal or base64 string
//   - Passthrough: no conversion
//
// Transforms are built once from a Spec when profiles load and are stateless
// afterwards.
//
// Encoding failures return *ValidationError (matching ErrValidation) and
// happen before anything is sent to a device. Decoding failures return
// Unknown together with an error wrapping ErrDecode; readers log the error
// and show Unknown.
package codec
