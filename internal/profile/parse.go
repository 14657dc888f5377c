package profile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/localtuya-core/internal/codec"
)

// Parse decodes and validates one profile document.
//
// The document is first checked against the embedded JSON Schema, then
// decoded into a Profile whose transforms are built and whose bindings are
// cross-checked.
//
// Parameters:
//   - data: YAML document
//   - defaultID: ID used when the document has none (usually the file name)
//
// Returns:
//   - *Profile: immutable, ready-to-use profile
//   - error: wrapping ErrInvalidProfile
func Parse(data []byte, defaultID string) (*Profile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %w", ErrInvalidProfile, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidProfile)
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decoding profile: %w", ErrInvalidProfile, err)
	}
	if p.ID == "" {
		p.ID = defaultID
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: profile has no id", ErrInvalidProfile)
	}

	if err := p.build(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProfile, p.ID, err)
	}
	return &p, nil
}

// build derives the lookup tables and checks cross-references.
func (p *Profile) build() error {
	p.declared = make(map[string]DatapointType, len(p.Datapoints))
	p.bindings = make(map[string]Binding, len(p.Datapoints))
	p.redirects = make(map[string]Redirect, len(p.Redirects))

	var errs []string
	bitfields := make(map[string][]codec.BitField)
	exclusive := make(map[string]bool) // dp bound by a non-bitfield property

	for _, dp := range p.Datapoints {
		tr, err := dp.Transform.Build()
		if err != nil {
			errs = append(errs, fmt.Sprintf("datapoint %s (%s): %v", dp.ID, dp.Property, err))
			continue
		}
		if err := checkTransformType(dp.Type, tr.Kind()); err != nil {
			errs = append(errs, fmt.Sprintf("datapoint %s (%s): %v", dp.ID, dp.Property, err))
			continue
		}

		if _, dup := p.bindings[dp.Property]; dup {
			errs = append(errs, fmt.Sprintf("property %q is bound more than once", dp.Property))
			continue
		}

		if prev, seen := p.declared[dp.ID]; seen {
			bf, isBitField := tr.(codec.BitField)
			switch {
			case prev != dp.Type:
				errs = append(errs, fmt.Sprintf("datapoint %s declared as both %s and %s", dp.ID, prev, dp.Type))
				continue
			case !isBitField || exclusive[dp.ID]:
				errs = append(errs, fmt.Sprintf("datapoint %s backs more than one property", dp.ID))
				continue
			case overlapsAny(bf, bitfields[dp.ID]):
				errs = append(errs, fmt.Sprintf("datapoint %s: bitfield for %s overlaps another property", dp.ID, dp.Property))
				continue
			}
		}

		p.declared[dp.ID] = dp.Type
		if bf, ok := tr.(codec.BitField); ok {
			bitfields[dp.ID] = append(bitfields[dp.ID], bf)
		} else {
			exclusive[dp.ID] = true
		}

		p.bindings[dp.Property] = Binding{
			Property:  dp.Property,
			Datapoint: dp.ID,
			Type:      dp.Type,
			Readonly:  dp.Readonly,
			Transform: tr,
		}
	}

	for _, r := range p.Redirects {
		if err := p.addRedirect(r); err != nil {
			errs = append(errs, err.Error())
		}
	}

	for _, c := range append([]Capability{p.Primary}, p.Secondary...) {
		for _, name := range c.Properties {
			if !p.exposes(name) {
				errs = append(errs, fmt.Sprintf("capability %s references unknown property %q", c.Entity, name))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (p *Profile) addRedirect(r Redirect) error {
	if _, bound := p.bindings[r.Property]; bound {
		return fmt.Errorf("redirect %q shadows a bound property", r.Property)
	}
	if _, dup := p.redirects[r.Property]; dup {
		return fmt.Errorf("redirect %q declared more than once", r.Property)
	}
	if _, ok := p.bindings[r.Selector]; !ok {
		return fmt.Errorf("redirect %q: selector %q is not a bound property", r.Property, r.Selector)
	}
	for label, target := range r.Targets {
		if _, ok := p.bindings[target]; !ok {
			return fmt.Errorf("redirect %q: target %q for %q is not a bound property", r.Property, target, label)
		}
	}

	if r.Default == "" {
		labels := make([]string, 0, len(r.Targets))
		for label := range r.Targets {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		r.Default = r.Targets[labels[0]]
	}
	if _, ok := p.bindings[r.Default]; !ok {
		return fmt.Errorf("redirect %q: default %q is not a bound property", r.Property, r.Default)
	}

	p.redirects[r.Property] = r
	return nil
}

func (p *Profile) exposes(name string) bool {
	if _, ok := p.bindings[name]; ok {
		return true
	}
	_, ok := p.redirects[name]
	return ok
}

// checkTransformType rejects transforms that cannot operate on the raw type.
func checkTransformType(t DatapointType, k codec.Kind) error {
	switch k {
	case codec.KindScale, codec.KindBitField:
		if t != TypeInteger {
			return fmt.Errorf("%s transform needs an integer datapoint, not %s", k, t)
		}
	case codec.KindBlob:
		if t != TypeString && t != TypeBlob {
			return fmt.Errorf("blob transform needs a string or blob datapoint, not %s", t)
		}
	}
	return nil
}

func overlapsAny(bf codec.BitField, others []codec.BitField) bool {
	for _, o := range others {
		if bf.Overlaps(o) {
			return true
		}
	}
	return false
}

func unknownProperty(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownProperty, name)
}

// labelOf converts a selector value to a redirect target key.
func labelOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
