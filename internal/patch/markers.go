package patch

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultPrefix namespaces marker comments.
const DefaultPrefix = "specwave"

const (
	kindBegin = "method_begin"
	kindEnd   = "method_end"
)

// BeginMarker renders the comment that opens a block.
func BeginMarker(d Dialect, prefix, methodID, descriptor string) string {
	m := fmt.Sprintf("%s %s:%s method_id=%q", d.Comment(), prefix, kindBegin, methodID)
	if descriptor != "" {
		m += fmt.Sprintf(" descriptor=%q", descriptor)
	}
	return m
}

// EndMarker renders the comment that closes a block.
func EndMarker(d Dialect, prefix, methodID string) string {
	return fmt.Sprintf("%s %s:%s method_id=%q", d.Comment(), prefix, kindEnd, methodID)
}

type marker struct {
	kind       string
	methodID   string
	descriptor string
}

var attrRe = regexp.MustCompile(`^\s*([a-z_]+)="([^"]*)"`)

type scanner struct {
	dialect Dialect
	lead    *regexp.Regexp
}

func newScanner(d Dialect, prefix string) *scanner {
	return &scanner{
		dialect: d,
		lead:    regexp.MustCompile(`^\s*` + regexp.QuoteMeta(d.Comment()) + `\s*` + regexp.QuoteMeta(prefix) + `:(\S*)(.*)$`),
	}
}

// parseMarker returns the marker on line, if any. Lines that carry the
// prefix but do not parse are errors.
func (s *scanner) parseMarker(line string, lineNo int) (marker, bool, error) {
	m := s.lead.FindStringSubmatch(line)
	if m == nil {
		return marker{}, false, nil
	}
	const expected = `method_begin method_id="..." [descriptor="..."] or method_end method_id="..."`
	mk := marker{kind: m[1]}
	if mk.kind != kindBegin && mk.kind != kindEnd {
		return marker{}, false, &MarkerParseError{Line: lineNo, Found: strings.TrimSpace(line), Expected: expected}
	}
	rest := m[2]
	for strings.TrimSpace(rest) != "" {
		a := attrRe.FindStringSubmatch(rest)
		if a == nil {
			return marker{}, false, &MarkerParseError{Line: lineNo, Found: strings.TrimSpace(line), Expected: expected}
		}
		switch a[1] {
		case "method_id":
			mk.methodID = a[2]
		case "descriptor":
			mk.descriptor = a[2]
		}
		rest = rest[len(a[0]):]
	}
	if mk.methodID == "" {
		return marker{}, false, &MarkerParseError{Line: lineNo, Found: strings.TrimSpace(line), Expected: "a non-empty method_id attribute"}
	}
	return mk, true, nil
}

// block is a located marker pair. Begin and End are the marker lines (-1
// when the block was found by its header only). Open and Close bound the
// enclosing group when Grouped, else they equal Begin and End.
type block struct {
	ID         string
	Descriptor string
	Begin, End int
	Open       int
	Close      int
	Grouped    bool
}

// inner is the inclusive range replaced by a replace action.
func (b block) inner() (int, int) {
	if b.Grouped {
		return b.Open + 1, b.Close - 1
	}
	return b.Begin, b.End
}

// scan discovers every block in lines, top to bottom.
func (s *scanner) scan(lines []string) ([]block, error) {
	var blocks []block
	seen := make(map[string]int)
	var open *block

	for i, line := range lines {
		mk, ok, err := s.parseMarker(line, i+1)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		switch mk.kind {
		case kindBegin:
			if open != nil {
				return nil, &BlockParseError{MethodID: open.ID, Line: i + 1,
					Expected: fmt.Sprintf("method_end for %q", open.ID), Found: fmt.Sprintf("method_begin for %q", mk.methodID)}
			}
			if prev, dup := seen[mk.methodID]; dup {
				return nil, &BlockParseError{MethodID: mk.methodID, Line: i + 1,
					Expected: "a unique method_id", Found: fmt.Sprintf("a second block (first at line %d)", prev)}
			}
			seen[mk.methodID] = i + 1
			open = &block{ID: mk.methodID, Descriptor: mk.descriptor, Begin: i}
		case kindEnd:
			if open == nil {
				return nil, &BlockParseError{MethodID: mk.methodID, Line: i + 1,
					Expected: "method_begin before method_end", Found: "an unmatched method_end"}
			}
			if mk.methodID != open.ID {
				return nil, &BlockParseError{MethodID: open.ID, Line: i + 1,
					Expected: fmt.Sprintf("method_end for %q", open.ID), Found: fmt.Sprintf("method_end for %q", mk.methodID)}
			}
			open.End = i
			b, err := s.widen(lines, *open)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
			open = nil
		}
	}
	if open != nil {
		return nil, &BlockParseError{MethodID: open.ID, Line: open.Begin + 1,
			Expected: fmt.Sprintf("method_end for %q", open.ID), Found: "end of input"}
	}
	return blocks, nil
}

// widen extends a marker pair to the enclosing group whose header matches
// the descriptor: the nearest header above the begin marker at a shallower
// indentation.
func (s *scanner) widen(lines []string, b block) (block, error) {
	b.Open, b.Close = b.Begin, b.End
	if b.Descriptor == "" {
		return b, nil
	}
	ind := indentOf(lines[b.Begin])
	for j := b.Begin - 1; j >= 0; j-- {
		if blank(lines[j]) || indentOf(lines[j]) >= ind {
			continue
		}
		name, ok := s.dialect.Header(lines[j])
		if !ok {
			continue
		}
		if name != b.Descriptor {
			break
		}
		end := findEnd(s.dialect, lines, j)
		if end < 0 || end < b.End {
			return block{}, &BlockParseError{MethodID: b.ID, Line: j + 1,
				Expected: fmt.Sprintf("a closing line for group %q after the method_end marker", name), Found: "none"}
		}
		b.Open, b.Close, b.Grouped = j, end, true
		return b, nil
	}
	return block{}, &BlockParseError{MethodID: b.ID, Line: b.Begin + 1,
		Expected: fmt.Sprintf("an enclosing group named %q around the markers", b.Descriptor), Found: "no such group"}
}

// lookup finds the target block for src: by marker first, then by a group
// header that matches the descriptor.
func (s *scanner) lookup(lines []string, blocks []block, src block) (block, bool, error) {
	for _, b := range blocks {
		if b.ID == src.ID {
			return b, true, nil
		}
	}
	if src.Descriptor == "" {
		return block{}, false, nil
	}

	claimed := make(map[int]bool, len(blocks))
	for _, b := range blocks {
		if b.Grouped {
			claimed[b.Open] = true
		}
	}
	var matches []int
	for i, line := range lines {
		if name, ok := s.dialect.Header(line); ok && name == src.Descriptor && !claimed[i] {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		return block{}, false, nil
	case 1:
	default:
		return block{}, false, &BlockParseError{MethodID: src.ID, Line: matches[1] + 1,
			Expected: fmt.Sprintf("at most one group named %q", src.Descriptor), Found: fmt.Sprintf("%d groups", len(matches))}
	}
	open := matches[0]
	end := findEnd(s.dialect, lines, open)
	if end < 0 {
		return block{}, false, &BlockParseError{MethodID: src.ID, Line: open + 1,
			Expected: fmt.Sprintf("a closing line for group %q", src.Descriptor), Found: "none"}
	}
	return block{ID: src.ID, Descriptor: src.Descriptor, Begin: -1, End: -1, Open: open, Close: end, Grouped: true}, true, nil
}
