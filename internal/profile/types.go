package profile

import (
	"slices"
	"sort"
	"strings"

	"github.com/nerrad567/localtuya-core/internal/codec"
)

// DatapointType is the raw type a profile expects for a datapoint.
type DatapointType string

// Raw datapoint types.
const (
	TypeBoolean DatapointType = "boolean"
	TypeInteger DatapointType = "integer"
	TypeString  DatapointType = "string"
	TypeBlob    DatapointType = "blob"
)

// Compatible reports whether an observed raw value has the expected type.
func (t DatapointType) Compatible(raw any) bool {
	switch t {
	case TypeBoolean:
		_, ok := raw.(bool)
		return ok
	case TypeInteger:
		_, ok := codec.AsInt(raw)
		return ok
	case TypeString, TypeBlob:
		_, ok := raw.(string)
		return ok
	default:
		return false
	}
}

// Capability binds a set of properties to a front-end entity kind
// (climate, switch, lock, ...).
type Capability struct {
	Entity     string   `yaml:"entity" json:"entity"`
	Name       string   `yaml:"name,omitempty" json:"name,omitempty"`
	Properties []string `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// Datapoint declares one raw datapoint and the property it backs.
type Datapoint struct {
	ID        string        `yaml:"id" json:"id"`
	Type      DatapointType `yaml:"type" json:"type"`
	Property  string        `yaml:"property" json:"property"`
	Readonly  bool          `yaml:"readonly,omitempty" json:"readonly,omitempty"`
	Transform *codec.Spec   `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// Redirect exposes Property through one of several bound properties,
// chosen by the current value of the Selector property.
//
//	redirects:
//	  - property: target_temperature
//	    selector: temperature_unit
//	    targets: {celsius: target_temperature_c, fahrenheit: target_temperature_f}
//	    default: target_temperature_c
type Redirect struct {
	Property string            `yaml:"property" json:"property"`
	Selector string            `yaml:"selector" json:"selector"`
	Targets  map[string]string `yaml:"targets" json:"targets"`
	Default  string            `yaml:"default,omitempty" json:"default,omitempty"`
}

// Binding is a resolved property: the datapoint that backs it and the
// transform between the two.
type Binding struct {
	Property  string
	Datapoint string
	Type      DatapointType
	Readonly  bool
	Transform codec.Transform
}

// Profile is an immutable, validated device description.
//
// Profiles are created by Parse and never modified afterwards, so they are
// safe to share between goroutines.
type Profile struct {
	ID         string       `yaml:"id" json:"id"`
	Name       string       `yaml:"name" json:"name"`
	LegacyType string       `yaml:"legacy_type,omitempty" json:"legacy_type,omitempty"`
	Primary    Capability   `yaml:"primary" json:"primary"`
	Secondary  []Capability `yaml:"secondary,omitempty" json:"secondary,omitempty"`
	Datapoints []Datapoint  `yaml:"datapoints" json:"datapoints"`
	Redirects  []Redirect   `yaml:"redirects,omitempty" json:"redirects,omitempty"`

	declared  map[string]DatapointType
	bindings  map[string]Binding
	redirects map[string]Redirect
}

// Declared returns the declared datapoint ids and their expected types.
func (p *Profile) Declared() map[string]DatapointType {
	out := make(map[string]DatapointType, len(p.declared))
	for id, t := range p.declared {
		out[id] = t
	}
	return out
}

// DeclaredCount returns the number of distinct declared datapoints.
func (p *Profile) DeclaredCount() int {
	return len(p.declared)
}

// Properties returns every property name the profile exposes, sorted.
func (p *Profile) Properties() []string {
	names := make([]string, 0, len(p.bindings)+len(p.redirects))
	for name := range p.bindings {
		names = append(names, name)
	}
	for name := range p.redirects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Binding returns the direct binding for a property.
func (p *Profile) Binding(property string) (Binding, bool) {
	b, ok := p.bindings[property]
	return b, ok
}

// BindingsFor returns every binding backed by a datapoint id.
// More than one is returned only for datapoints split into bitfields.
func (p *Profile) BindingsFor(dp string) []Binding {
	var out []Binding
	for _, b := range p.bindings {
		if b.Datapoint == dp {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b Binding) int { return strings.Compare(a.Property, b.Property) })
	return out
}

// Resolve returns the binding that currently backs property.
//
// For redirected properties, selector is called with the selector property
// name and must return its current abstract value (or codec.Unknown); the
// matching target is used, falling back to the redirect's default.
//
// Returns:
//   - Binding: the binding to read or write
//   - error: ErrUnknownProperty if the property is not exposed or the
//     redirect cannot be resolved
func (p *Profile) Resolve(property string, selector func(name string) any) (Binding, error) {
	if b, ok := p.bindings[property]; ok {
		return b, nil
	}

	r, ok := p.redirects[property]
	if !ok {
		return Binding{}, unknownProperty(property)
	}

	target := r.Default
	if selector != nil {
		if v := selector(r.Selector); v != nil && v != codec.Unknown {
			if t, ok := r.Targets[labelOf(v)]; ok {
				target = t
			}
		}
	}

	b, ok := p.bindings[target]
	if !ok {
		return Binding{}, unknownProperty(property)
	}
	b.Property = property
	return b, nil
}

// DisplayName expands {key} placeholders in the profile name.
//
//	name: "{device_name} heater"
func (p *Profile) DisplayName(vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(p.Name, "{") {
		return p.Name
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(p.Name)
}
