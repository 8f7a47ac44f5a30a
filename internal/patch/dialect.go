package patch

import (
	"regexp"
	"strings"
)

// Dialect describes the grouping syntax of the target language.
type Dialect interface {
	// Header reports whether line opens a named group and returns the name.
	Header(line string) (string, bool)
	// IsEnd reports whether line closes a group.
	IsEnd(line string) bool
	// Comment is the line-comment token markers are written behind.
	Comment() string
	// IndentUnit is one level of indentation.
	IndentUnit() string
}

// RSpec is the dialect of Ruby spec files.
var RSpec Dialect = rspecDialect{}

type rspecDialect struct{}

var rspecHeaderRe = regexp.MustCompile(`^\s*(?:RSpec\.)?(?:describe|context|feature|shared_examples|shared_context)\s*\(?\s*(.+?)\s*\)?\s+do(?:\s*\|[^|]*\|)?\s*(?:#.*)?$`)

func (rspecDialect) Header(line string) (string, bool) {
	m := rspecHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	arg := m[1]
	if q := arg[0]; q == '\'' || q == '"' {
		if end := strings.IndexByte(arg[1:], q); end >= 0 {
			return arg[1 : 1+end], true
		}
		return "", false
	}
	name, _, _ := strings.Cut(arg, ",")
	return strings.TrimSpace(name), true
}

func (rspecDialect) IsEnd(line string) bool {
	return strings.TrimSpace(line) == "end"
}

func (rspecDialect) Comment() string    { return "#" }
func (rspecDialect) IndentUnit() string { return "  " }

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

func blank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// findEnd returns the index of the line closing the group opened at open,
// or -1.
func findEnd(d Dialect, lines []string, open int) int {
	ind := indentOf(lines[open])
	for j := open + 1; j < len(lines); j++ {
		if blank(lines[j]) {
			continue
		}
		li := indentOf(lines[j])
		if li == ind && d.IsEnd(lines[j]) {
			return j
		}
		if li < ind {
			return -1
		}
	}
	return -1
}

// reindent shifts every non-blank line by delta columns. Blank lines are
// emptied.
func reindent(lines []string, delta int) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		switch {
		case blank(l):
			out[i] = ""
		case delta > 0:
			out[i] = strings.Repeat(" ", delta) + l
		case delta < 0:
			cut := -delta
			if ind := indentOf(l); ind < cut {
				cut = ind
			}
			out[i] = l[cut:]
		default:
			out[i] = l
		}
	}
	return out
}
