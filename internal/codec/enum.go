package codec

import (
	"fmt"
	"slices"
	"sort"
)

// Enum maps abstract labels to raw values.
//
// The reverse table is keyed by raw type and value, so 1 and "1" are
// distinct raw values. When several labels share a raw value the
// alphabetically first label wins. A raw value of the wrong type still
// decodes if exactly one label matches it textually. Raw values missing
// from the table decode to Unknown without an error.
type Enum struct {
	values  map[string]any
	reverse map[string]string
	loose   map[string]string
	labels  []string
}

// enumKey identifies a raw value by class and value.
func enumKey(raw any) string {
	return rawClass(raw) + ":" + rawKey(raw)
}

// NewEnum creates an enum transform from a label -> raw table.
func NewEnum(values map[string]any) (*Enum, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: enum needs at least one value", ErrInvalidSpec)
	}

	e := &Enum{
		values:  make(map[string]any, len(values)),
		reverse: make(map[string]string, len(values)),
		loose:   make(map[string]string, len(values)),
		labels:  make([]string, 0, len(values)),
	}
	for label := range values {
		e.labels = append(e.labels, label)
	}
	sort.Strings(e.labels)

	ambiguous := make(map[string]bool)
	for _, label := range e.labels {
		raw := normaliseRaw(values[label])
		if rawClass(raw) == "" {
			return nil, fmt.Errorf("%w: enum value for %q must be bool, number or string", ErrInvalidSpec, label)
		}
		e.values[label] = raw
		key := enumKey(raw)
		if _, exists := e.reverse[key]; exists {
			continue
		}
		e.reverse[key] = label

		text := rawKey(raw)
		if _, exists := e.loose[text]; exists {
			ambiguous[text] = true
		} else {
			e.loose[text] = label
		}
	}
	for text := range ambiguous {
		delete(e.loose, text)
	}
	return e, nil
}

// Kind implements Transform.
func (e *Enum) Kind() Kind { return KindEnum }

// Labels returns the legal labels in sorted order.
func (e *Enum) Labels() []string {
	return slices.Clone(e.labels)
}

// Encode implements Transform.
func (e *Enum) Encode(value, _ any) (any, error) {
	label, ok := value.(string)
	if !ok {
		label = fmt.Sprint(value)
	}
	raw, ok := e.values[label]
	if !ok {
		return nil, &ValidationError{Value: value, Allowed: e.Labels()}
	}
	return raw, nil
}

// Decode implements Transform.
func (e *Enum) Decode(raw any) (any, error) {
	if raw == nil || rawClass(raw) == "" {
		return Unknown, nil
	}
	if label, ok := e.reverse[enumKey(raw)]; ok {
		return label, nil
	}
	if label, ok := e.loose[rawKey(raw)]; ok {
		return label, nil
	}
	return Unknown, nil
}
