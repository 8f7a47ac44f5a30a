package structure

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kastheco/specwave/internal/model"
)

// Word is the connective that opens a context description.
type Word string

const (
	WordWhen    Word = "when"
	WordWith    Word = "with"
	WordBut     Word = "but"
	WordWithout Word = "without"
	WordAnd     Word = "and"
)

// OrderValues returns c's values in generation order: non-terminal values
// first, terminal values last, and for boolean/presence characteristics the
// positive value before the negative one. Enum, range and sequential values
// keep their input order within each partition.
func OrderValues(c model.Characteristic) []model.Value {
	out := append([]model.Value(nil), c.Values...)
	polar := c.Type == model.TypeBoolean || c.Type == model.TypePresence
	rank := func(v model.Value) int {
		r := 0
		if v.Terminal {
			r += 10
		}
		if polar {
			switch v.Polarity(c.Type) {
			case model.PolarityNeutral:
				r++
			case model.PolarityNegative:
				r += 2
			}
		}
		return r
	}
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}

// effectiveType folds ranges into the boolean or enum shape they read as.
func effectiveType(c model.Characteristic) model.CharacteristicType {
	if c.Type != model.TypeRange {
		return c.Type
	}
	if len(c.Values) == 2 {
		return model.TypeBoolean
	}
	return model.TypeEnum
}

// ContextWord picks the connective for the value at position (in generation
// order) of characteristic c:
//
//	level 1                                 when
//	boolean/presence/2-value range, first   with
//	boolean/presence/2-value range, other   but, or without for absence
//	enum/sequential/3+-value range          and
func ContextWord(c model.Characteristic, v model.Value, position int) Word {
	if c.Level <= 1 {
		return WordWhen
	}
	switch effectiveType(c) {
	case model.TypeBoolean, model.TypePresence:
		if position == 0 {
			return WordWith
		}
		if denotesAbsence(c, v) {
			return WordWithout
		}
		return WordBut
	default:
		return WordAnd
	}
}

var absencePrefixes = []string{"no ", "without ", "missing ", "absent "}

func denotesAbsence(c model.Characteristic, v model.Value) bool {
	if c.Type == model.TypePresence && v.Polarity(c.Type) == model.PolarityNegative {
		return true
	}
	_, ok := trimAbsencePrefix(v.Description)
	return ok
}

func trimAbsencePrefix(desc string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(desc))
	for _, p := range absencePrefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(strings.TrimSpace(desc)[len(p):]), true
		}
	}
	return desc, false
}

var negationRe = regexp.MustCompile(`(?i)\bnot\b`)

// Phrase builds the text that follows the context word. Explicit negation is
// rendered as the token NOT. Without a description the phrase falls back to
// the humanised characteristic name.
func Phrase(c model.Characteristic, v model.Value, word Word) string {
	name := model.Humanize(c.Name)
	desc := strings.TrimSpace(v.Description)

	if desc == "" {
		switch c.Type {
		case model.TypeBoolean:
			if v.Polarity(c.Type) == model.PolarityNegative {
				return "NOT " + name
			}
			if v.Polarity(c.Type) == model.PolarityPositive {
				return name
			}
		case model.TypePresence:
			switch {
			case word == WordWithout:
				return name
			case v.Polarity(c.Type) == model.PolarityNegative:
				return name + " is NOT present"
			case word == WordWhen:
				return name + " is present"
			default:
				return name
			}
		}
		return name + " is " + string(v.Value)
	}

	if word == WordWithout {
		desc, _ = trimAbsencePrefix(desc)
	}
	return negationRe.ReplaceAllString(desc, "NOT")
}
