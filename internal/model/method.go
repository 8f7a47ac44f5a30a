package model

import "fmt"

// MethodMode describes why a method is in the pipeline.
type MethodMode string

const (
	ModeNew       MethodMode = "new"
	ModeModified  MethodMode = "modified"
	ModeUnchanged MethodMode = "unchanged"
)

// MethodType distinguishes instance methods from class methods.
type MethodType string

const (
	MethodInstance MethodType = "instance"
	MethodClass    MethodType = "class"
)

// SideEffect references a side-effect behavior a method's success flow
// triggers.
type SideEffect struct {
	BehaviorID string `yaml:"behavior_id" validate:"required"`
}

// Isolation lists the collaborators a test must isolate.
type Isolation struct {
	DB           bool `yaml:"db"`
	ExternalHTTP bool `yaml:"external_http"`
	Queue        bool `yaml:"queue"`
}

// TestConfig carries test-level choices made by the analyzer.
type TestConfig struct {
	TestLevel  string    `yaml:"test_level,omitempty" validate:"omitempty,oneof=unit integration request"`
	Isolation  Isolation `yaml:"isolation"`
	Confidence string    `yaml:"confidence,omitempty" validate:"omitempty,oneof=high medium low"`
}

// Method is one analysed method or function.
type Method struct {
	Name            string           `yaml:"name" validate:"required"`
	Type            MethodType       `yaml:"type,omitempty" validate:"omitempty,oneof=instance class"`
	MethodMode      MethodMode       `yaml:"method_mode" validate:"required,oneof=new modified unchanged"`
	Selected        *bool            `yaml:"selected,omitempty"`
	LineStart       int              `yaml:"line_start,omitempty"`
	LineEnd         int              `yaml:"line_end,omitempty"`
	Characteristics []Characteristic `yaml:"characteristics,omitempty" validate:"dive"`
	SideEffects     []SideEffect     `yaml:"side_effects,omitempty" validate:"dive"`
	Dependencies    []string         `yaml:"dependencies,omitempty"`
	TestConfig      TestConfig       `yaml:"test_config,omitempty"`
}

// IsSelected reports whether the method takes part in generation.
// Methods are selected unless explicitly deselected.
func (m Method) IsSelected() bool {
	return m.Selected == nil || *m.Selected
}

// Descriptor is the RSpec-style name of the method's group: `#name` for
// instance methods and `.name` for class methods.
func (m Method) Descriptor() string {
	if m.Type == MethodClass {
		return "." + m.Name
	}
	return "#" + m.Name
}

// Characteristic looks a characteristic up by name.
func (m Method) Characteristic(name string) (Characteristic, bool) {
	for _, c := range m.Characteristics {
		if c.Name == name {
			return c, true
		}
	}
	return Characteristic{}, false
}

// Roots returns the root characteristics in caller order.
func (m Method) Roots() []Characteristic {
	var roots []Characteristic
	for _, c := range m.Characteristics {
		if c.IsRoot() {
			roots = append(roots, c)
		}
	}
	return roots
}

// Children returns the characteristics evaluated when parent took value v,
// in input order.
func (m Method) Children(parent string, v Scalar) []Characteristic {
	var out []Characteristic
	for _, c := range m.Characteristics {
		if c.DependsOn == parent && c.AppliesUnder(v) {
			out = append(out, c)
		}
	}
	return out
}

// IntegrityError reports a broken invariant in extracted characteristics.
type IntegrityError struct {
	Method         string
	Characteristic string
	Reason         string
}

func (e *IntegrityError) Error() string {
	if e.Characteristic == "" {
		return fmt.Sprintf("method %s: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("method %s: characteristic %q: %s", e.Method, e.Characteristic, e.Reason)
}

// CheckIntegrity verifies the structural invariants of the method's
// characteristics. Because a child's level is always its parent's level
// plus one, a passing set cannot contain a depends_on cycle.
func (m Method) CheckIntegrity() []error {
	var errs []error
	fail := func(c, format string, args ...any) {
		errs = append(errs, &IntegrityError{Method: m.Name, Characteristic: c, Reason: fmt.Sprintf(format, args...)})
	}

	byName := make(map[string]Characteristic, len(m.Characteristics))
	for _, c := range m.Characteristics {
		if _, dup := byName[c.Name]; dup {
			fail(c.Name, "duplicate name; disambiguate with a domain prefix")
			continue
		}
		byName[c.Name] = c
	}

	for _, c := range m.Characteristics {
		if !c.Type.Valid() {
			fail(c.Name, "unknown type %q", c.Type)
		}
		if len(c.Values) == 0 {
			fail(c.Name, "has no values")
		}
		if (c.Type == TypeBoolean || c.Type == TypePresence) && len(c.Values) != 2 {
			fail(c.Name, "%s characteristic needs exactly 2 values, found %d", c.Type, len(c.Values))
		}
		seen := make(map[Scalar]bool, len(c.Values))
		for _, v := range c.Values {
			if seen[v.Value] {
				fail(c.Name, "duplicate value %q", v.Value)
			}
			seen[v.Value] = true
		}

		if c.IsRoot() {
			if c.Level != 1 {
				fail(c.Name, "root characteristic must have level 1, found %d", c.Level)
			}
			if len(c.WhenParent) > 0 {
				fail(c.Name, "when_parent set without depends_on")
			}
			continue
		}
		parent, ok := byName[c.DependsOn]
		if !ok {
			fail(c.Name, "depends_on %q does not name a characteristic of this method", c.DependsOn)
			continue
		}
		if c.Level != parent.Level+1 {
			fail(c.Name, "level must be %d (parent %q is level %d), found %d", parent.Level+1, parent.Name, parent.Level, c.Level)
		}
		for _, w := range c.WhenParent {
			if !parent.HasValue(w) {
				fail(c.Name, "when_parent value %q is not a value of %q", w, parent.Name)
			}
		}
	}
	return errs
}
