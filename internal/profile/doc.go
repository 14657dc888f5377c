// Package profile loads declarative device profiles and matches observed
// datapoints against them.
//
// A profile document (YAML) declares the datapoints a product exposes, the
// raw type of each, the property name it backs and an optional transform:
//
//	name: "{device_name} heater"
//	primary:
//	  entity: climate
//	  properties: [power, target_temperature]
//	datapoints:
//	  - id: "1"
//	    type: boolean
//	    property: power
//	  - id: "2"
//	    type: integer
//	    property: target_temperature
//	    transform: {type: scale, scale: 1, min: 5, max: 35}
//
// Documents are validated against an embedded JSON Schema before they are
// decoded, then cross-checked: every property is bound once, and a
// datapoint backs more than one property only when each binding is a
// non-overlapping bitfield.
//
// # Matching
//
// Catalog.FindCandidates scores every profile against a raw datapoint map:
// the percentage of declared datapoints that are present with a compatible
// type. Profiles declaring nothing are skipped. BestMatch only accepts a
// 100% score.
package profile
