package model

import (
	"regexp"
	"strings"
)

// BranchFacts are the observations about one branching point that decide its
// characteristic type. Branches counts the ways the analysed code branches,
// also when the branched-on value comes from an external collaborator: the
// collaborator's own complexity is tested elsewhere.
type BranchFacts struct {
	Branches int
	NilCheck bool
	Numeric  bool
	Ordered  bool
}

type typeRule struct {
	name   string
	match  func(BranchFacts) bool
	result CharacteristicType
}

// typeRules are evaluated in order; the first match wins.
var typeRules = []typeRule{
	{"nil check", func(f BranchFacts) bool { return f.NilCheck }, TypePresence},
	{"numeric threshold", func(f BranchFacts) bool { return f.Numeric }, TypeRange},
	{"ordered states", func(f BranchFacts) bool { return f.Ordered && f.Branches >= 3 }, TypeSequential},
	{"two-way branch", func(f BranchFacts) bool { return f.Branches <= 2 }, TypeBoolean},
	{"multi-way branch", func(BranchFacts) bool { return true }, TypeEnum},
}

// ClassifyType maps branch facts to a characteristic type.
func ClassifyType(f BranchFacts) CharacteristicType {
	for _, r := range typeRules {
		if r.match(f) {
			return r.result
		}
	}
	return TypeEnum
}

var rangeValueRe = regexp.MustCompile(`^\s*(?:[<>]=?\s*-?\d|-?\d+(?:\.\d+)?\s*(?:\.\.\.?|-)\s*-?\d|-?\d+(?:\.\d+)?\s*\+?\s*$)`)

// FactsFromValues infers branch facts from an already-extracted
// characteristic. It is used to cross-check a recorded type.
func FactsFromValues(c Characteristic) BranchFacts {
	f := BranchFacts{Branches: len(c.Values)}
	numeric := len(c.Values) > 0
	for _, v := range c.Values {
		key := strings.ToLower(strings.TrimSpace(string(v.Value)))
		if key == "nil" || key == "null" || key == "present" || key == "absent" {
			f.NilCheck = true
		}
		if !rangeValueRe.MatchString(key) {
			numeric = false
		}
	}
	f.Numeric = numeric
	f.Ordered = c.Type == TypeSequential
	return f
}

// TypeConsistent reports whether c's recorded type agrees with the type its
// values suggest. A 2-value range and a boolean are interchangeable, as are
// an enum and a range or sequence with three or more values.
func TypeConsistent(c Characteristic) bool {
	suggested := ClassifyType(FactsFromValues(c))
	if suggested == c.Type {
		return true
	}
	switch c.Type {
	case TypeRange:
		return true
	case TypeEnum, TypeSequential:
		return suggested == TypeEnum || suggested == TypeSequential
	case TypeBoolean:
		return suggested == TypeRange && len(c.Values) == 2
	}
	return false
}

// SetupKind is how a test puts the unit into a characteristic's state.
type SetupKind string

const (
	SetupStub      SetupKind = "stub"
	SetupAssignNil SetupKind = "assign_nil"
	SetupState     SetupKind = "state"
	SetupAttribute SetupKind = "attribute"
)

type setupRule struct {
	match  func(Characteristic) bool
	result SetupKind
}

var setupRules = []setupRule{
	{func(c Characteristic) bool { return c.Source.Kind == SourceExternal }, SetupStub},
	{func(c Characteristic) bool { return c.Type == TypePresence }, SetupAssignNil},
	{func(c Characteristic) bool { return c.Type == TypeSequential }, SetupState},
	{func(Characteristic) bool { return true }, SetupAttribute},
}

// ClassifySetup picks the setup style for a characteristic.
func ClassifySetup(c Characteristic) SetupKind {
	for _, r := range setupRules {
		if r.match(c) {
			return r.result
		}
	}
	return SetupAttribute
}

// Verdict is a terminal-state classifier's answer.
type Verdict int

const (
	VerdictUnsure Verdict = iota
	VerdictTerminal
	VerdictNonTerminal
)

func (v Verdict) String() string {
	switch v {
	case VerdictTerminal:
		return "terminal"
	case VerdictNonTerminal:
		return "non-terminal"
	default:
		return "unsure"
	}
}

// TerminalClassifier decides whether a characteristic value is a terminal
// state. The heuristic is domain dependent, so callers can plug their own;
// VerdictUnsure must be resolved by an explicit decision.
type TerminalClassifier interface {
	Classify(c Characteristic, v Value) Verdict
}

// DefaultTerminalKeywords mark error or end-of-flow states.
var DefaultTerminalKeywords = []string{
	"not_", "insufficient", "invalid", "expired", "denied", "forbidden",
	"unauthorized", "unauthenticated", "missing", "blocked", "locked", "failed",
	"completed", "cancelled", "canceled", "archived", "deleted", "suspended",
	"rejected", "exceeded",
}

// DefaultSuccessKeywords mark states the flow continues from.
var DefaultSuccessKeywords = []string{
	"valid", "active", "authenticated", "authorized", "sufficient", "enabled",
	"pending", "present", "allowed", "approved",
}

// KeywordClassifier matches value and description text against keyword
// lists. Terminal keywords are checked first.
type KeywordClassifier struct {
	Terminal []string
	Success  []string
}

// NewKeywordClassifier returns a classifier with the default keyword lists,
// replaced by the given lists when they are non-empty.
func NewKeywordClassifier(terminal, success []string) *KeywordClassifier {
	k := &KeywordClassifier{Terminal: DefaultTerminalKeywords, Success: DefaultSuccessKeywords}
	if len(terminal) > 0 {
		k.Terminal = terminal
	}
	if len(success) > 0 {
		k.Success = success
	}
	return k
}

// Classify implements TerminalClassifier.
func (k *KeywordClassifier) Classify(c Characteristic, v Value) Verdict {
	text := classifierText(v)
	if v.Polarity(c.Type) == PolarityNegative && strings.TrimSpace(v.Description) == "" {
		// A bare false/nil says nothing about the outcome on its own.
		return VerdictUnsure
	}
	for _, kw := range k.Terminal {
		if matchesKeyword(text, kw) {
			return VerdictTerminal
		}
	}
	for _, kw := range k.Success {
		if matchesKeyword(text, kw) {
			return VerdictNonTerminal
		}
	}
	return VerdictUnsure
}

func classifierText(v Value) string {
	return strings.ToLower(strings.Join(strings.Fields(string(v.Value)+" "+v.Description), "_"))
}

// matchesKeyword matches kw at a word start so that "valid" does not match
// "invalid". Keywords ending in "_" are prefixes.
func matchesKeyword(text, kw string) bool {
	kw = strings.ToLower(kw)
	for i := 0; i+len(kw) <= len(text); i++ {
		if text[i:i+len(kw)] != kw {
			continue
		}
		if i == 0 || text[i-1] == '_' {
			return true
		}
	}
	return false
}
