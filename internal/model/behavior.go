package model

import (
	"fmt"
	"strings"
	"unicode"
)

// BehaviorType classifies an outcome.
type BehaviorType string

const (
	BehaviorTerminal   BehaviorType = "terminal"
	BehaviorSuccess    BehaviorType = "success"
	BehaviorSideEffect BehaviorType = "side_effect"
)

// Behavior is a named, deduplicated outcome description.
type Behavior struct {
	ID          string       `yaml:"id" validate:"required"`
	Description string       `yaml:"description" validate:"required"`
	Type        BehaviorType `yaml:"type" validate:"required,oneof=terminal success side_effect"`
	Subtype     string       `yaml:"subtype,omitempty"`
	Enabled     *bool        `yaml:"enabled,omitempty"`
	UsedBy      int          `yaml:"used_by,omitempty"`
}

// IsEnabled reports whether a test case should be generated for b.
// Behaviors are enabled unless explicitly disabled.
func (b Behavior) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// BehaviorBank is the flat, id-keyed registry of a unit's behaviors. It owns
// every description; characteristic values and side-effect lists only hold
// ids.
type BehaviorBank struct {
	byID   map[string]*Behavior
	byText map[string]string
	order  []string
}

// NewBehaviorBank builds a bank from persisted behaviors. Duplicate ids and
// the same description registered under two ids are rejected.
func NewBehaviorBank(behaviors []Behavior) (*BehaviorBank, error) {
	bank := &BehaviorBank{
		byID:   make(map[string]*Behavior, len(behaviors)),
		byText: make(map[string]string, len(behaviors)),
	}
	for _, b := range behaviors {
		if b.ID == "" {
			return nil, fmt.Errorf("behavior %q has no id", b.Description)
		}
		if _, dup := bank.byID[b.ID]; dup {
			return nil, fmt.Errorf("duplicate behavior id %q", b.ID)
		}
		key := normalizeText(b.Description)
		if other, dup := bank.byText[key]; dup {
			return nil, fmt.Errorf("behaviors %q and %q share the description %q; merge them into one id", other, b.ID, b.Description)
		}
		b := b
		bank.byID[b.ID] = &b
		bank.byText[key] = b.ID
		bank.order = append(bank.order, b.ID)
	}
	return bank, nil
}

// Len returns the number of behaviors.
func (bank *BehaviorBank) Len() int {
	return len(bank.order)
}

// Get looks a behavior up by id.
func (bank *BehaviorBank) Get(id string) (Behavior, bool) {
	b, ok := bank.byID[id]
	if !ok {
		return Behavior{}, false
	}
	return *b, true
}

// Lookup returns the id already registered for description, if any.
func (bank *BehaviorBank) Lookup(description string) (string, bool) {
	id, ok := bank.byText[normalizeText(description)]
	return id, ok
}

// Intern returns the id for description, registering a new behavior when the
// text is not known yet. Equal descriptions (ignoring case and spacing)
// always resolve to the same id.
func (bank *BehaviorBank) Intern(description string, typ BehaviorType, subtype string) string {
	if id, ok := bank.Lookup(description); ok {
		return id
	}
	base := slugify(description)
	if base == "" {
		base = string(typ)
	}
	id := base
	for n := 2; bank.byID[id] != nil; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	b := &Behavior{ID: id, Description: strings.TrimSpace(description), Type: typ, Subtype: subtype}
	bank.byID[id] = b
	bank.byText[normalizeText(description)] = id
	bank.order = append(bank.order, id)
	return id
}

// CountUsage recomputes used_by from the references held by methods.
func (bank *BehaviorBank) CountUsage(methods []Method) {
	for _, b := range bank.byID {
		b.UsedBy = 0
	}
	for _, m := range methods {
		for _, c := range m.Characteristics {
			for _, v := range c.Values {
				if b, ok := bank.byID[v.BehaviorID]; ok {
					b.UsedBy++
				}
			}
		}
		for _, se := range m.SideEffects {
			if b, ok := bank.byID[se.BehaviorID]; ok {
				b.UsedBy++
			}
		}
	}
}

// Behaviors returns the bank's contents in registration order.
func (bank *BehaviorBank) Behaviors() []Behavior {
	out := make([]Behavior, 0, len(bank.order))
	for _, id := range bank.order {
		out = append(out, *bank.byID[id])
	}
	return out
}

// Unresolved returns the behavior ids referenced by m that the bank does not
// know.
func (bank *BehaviorBank) Unresolved(m Method) []string {
	var missing []string
	seen := make(map[string]bool)
	check := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		if _, ok := bank.byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	for _, c := range m.Characteristics {
		for _, v := range c.Values {
			check(v.BehaviorID)
		}
	}
	for _, se := range m.SideEffects {
		check(se.BehaviorID)
	}
	return missing
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func slugify(s string) string {
	var sb strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && sb.Len() > 0 {
			sb.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}
