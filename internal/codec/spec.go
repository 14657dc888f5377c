package codec

import "fmt"

// Spec is the declarative form of a Transform as it appears in profile
// documents. Type selects the variant; only that variant's fields are read.
//
//	transform:
//	  type: scale
//	  scale: 10
//	  min: 5
//	  max: 35
type Spec struct {
	Type Kind `yaml:"type" json:"type,omitempty"`

	// scale
	Scale float64  `yaml:"scale,omitempty" json:"scale,omitempty"`
	Min   *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max   *float64 `yaml:"max,omitempty" json:"max,omitempty"`

	// enum: label -> raw value
	Values map[string]any `yaml:"values,omitempty" json:"values,omitempty"`

	// bitfield
	Offset uint `yaml:"offset,omitempty" json:"offset,omitempty"`
	Width  uint `yaml:"width,omitempty" json:"width,omitempty"`

	// blob
	Encoding BlobEncoding `yaml:"encoding,omitempty" json:"encoding,omitempty"`
	Fields   []BlobField  `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Build validates the spec and returns the Transform it describes.
// A nil spec or an empty Type yields Passthrough.
func (s *Spec) Build() (Transform, error) {
	if s == nil {
		return Passthrough{}, nil
	}

	switch s.Type {
	case "", KindPassthrough:
		return Passthrough{}, nil

	case KindScale:
		if s.Scale < 0 {
			return nil, fmt.Errorf("%w: scale must be positive, got %v", ErrInvalidSpec, s.Scale)
		}
		if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
			return nil, fmt.Errorf("%w: min %v greater than max %v", ErrInvalidSpec, *s.Min, *s.Max)
		}
		return Scale{Factor: s.Scale, Min: s.Min, Max: s.Max}, nil

	case KindEnum:
		e, err := NewEnum(s.Values)
		if err != nil {
			return nil, err
		}
		return e, nil

	case KindBitField:
		b, err := NewBitField(s.Offset, s.Width)
		if err != nil {
			return nil, err
		}
		return b, nil

	case KindBlob:
		b, err := NewBlob(s.Encoding, s.Fields)
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("%w: unknown transform type %q", ErrInvalidSpec, s.Type)
	}
}
