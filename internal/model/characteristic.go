// Package model holds the data extracted from analysed source code: branching
// characteristics, the methods that own them and the behavior bank their
// values point at.
package model

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// CharacteristicType is the shape of a branching decision.
type CharacteristicType string

const (
	TypeBoolean    CharacteristicType = "boolean"
	TypePresence   CharacteristicType = "presence"
	TypeEnum       CharacteristicType = "enum"
	TypeRange      CharacteristicType = "range"
	TypeSequential CharacteristicType = "sequential"
)

// Valid reports whether t is one of the known characteristic types.
func (t CharacteristicType) Valid() bool {
	switch t {
	case TypeBoolean, TypePresence, TypeEnum, TypeRange, TypeSequential:
		return true
	}
	return false
}

// SourceKind tells whether a branch reads the unit's own state or the result
// of an external collaborator.
type SourceKind string

const (
	SourceInternal SourceKind = "internal"
	SourceExternal SourceKind = "external"
)

// Source locates where the branched-on value comes from.
type Source struct {
	Kind   SourceKind `yaml:"kind,omitempty" validate:"omitempty,oneof=internal external"`
	Class  string     `yaml:"class,omitempty"`
	Method string     `yaml:"method,omitempty"`
}

// Scalar keeps a YAML scalar as its literal text, so `true`, `nil` and
// `1..10` survive a load/save cycle without type coercion.
type Scalar string

// UnmarshalYAML accepts any scalar node.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return &yaml.TypeError{Errors: []string{"characteristic value must be a scalar, got " + kindName(node.Kind)}}
	}
	*s = Scalar(node.Value)
	return nil
}

// MarshalYAML writes the scalar back untagged.
func (s Scalar) MarshalYAML() (interface{}, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: string(s)}, nil
}

func (s Scalar) String() string { return string(s) }

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}

// Polarity classifies boolean/presence values.
type Polarity int

const (
	PolarityNeutral Polarity = iota
	PolarityPositive
	PolarityNegative
)

var (
	positiveValues = map[string]bool{"true": true, "present": true, "yes": true, "exists": true, "some": true}
	negativeValues = map[string]bool{"false": true, "nil": true, "null": true, "absent": true, "blank": true, "none": true, "no": true, "~": true, "": true}
)

// Value is one possible outcome of a characteristic.
type Value struct {
	Value       Scalar `yaml:"value"`
	Description string `yaml:"description,omitempty"`
	Terminal    bool   `yaml:"terminal"`
	BehaviorID  string `yaml:"behavior_id,omitempty"`
}

// IsLeaf reports whether the value ends its branch. A value is a leaf iff it
// resolves to a behavior.
func (v Value) IsLeaf() bool {
	return v.BehaviorID != ""
}

// Polarity returns the value's polarity. Only boolean and presence
// characteristics have polar values.
func (v Value) Polarity(t CharacteristicType) Polarity {
	if t != TypeBoolean && t != TypePresence {
		return PolarityNeutral
	}
	key := strings.ToLower(strings.TrimSpace(string(v.Value)))
	switch {
	case positiveValues[key]:
		return PolarityPositive
	case negativeValues[key]:
		return PolarityNegative
	}
	return PolarityNeutral
}

// Characteristic is a single branching decision extracted from source.
// It is never mutated after extraction; re-extraction replaces the set.
type Characteristic struct {
	Name       string             `yaml:"name" validate:"required"`
	Type       CharacteristicType `yaml:"type" validate:"required,oneof=boolean presence enum range sequential"`
	Values     []Value            `yaml:"values" validate:"required,min=1,dive"`
	Level      int                `yaml:"level" validate:"gte=1"`
	DependsOn  string             `yaml:"depends_on,omitempty"`
	WhenParent []Scalar           `yaml:"when_parent,omitempty"`
	Source     Source             `yaml:"source,omitempty"`
}

// IsRoot reports whether c starts a branch at the top of the method.
func (c Characteristic) IsRoot() bool {
	return c.DependsOn == ""
}

// AppliesUnder reports whether c is evaluated when its parent took value v.
// An empty when_parent list applies under every parent value.
func (c Characteristic) AppliesUnder(v Scalar) bool {
	if len(c.WhenParent) == 0 {
		return true
	}
	for _, w := range c.WhenParent {
		if w == v {
			return true
		}
	}
	return false
}

// HasValue reports whether v is one of c's values.
func (c Characteristic) HasValue(v Scalar) bool {
	for _, cv := range c.Values {
		if cv.Value == v {
			return true
		}
	}
	return false
}

// Humanize turns a snake_case identifier into words.
func Humanize(name string) string {
	name = strings.TrimSuffix(name, "?")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.Join(strings.Fields(name), " ")
}
