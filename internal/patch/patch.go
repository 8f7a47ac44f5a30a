// Package patch splices marker-delimited blocks of generated text into an
// existing file without touching anything outside the blocks it owns.
//
// A block is a method_begin/method_end comment pair carrying a method_id and
// an optional descriptor. When a descriptor is present the block is widened
// to the enclosing group whose header names that descriptor, and a replace
// swaps only the group's inner lines so the target's own header and closing
// line survive.
package patch

import (
	"fmt"
	"strings"
)

// Mode selects what Apply does with each source block.
type Mode string

const (
	ModeInsert  Mode = "insert"
	ModeReplace Mode = "replace"
	ModeUpsert  Mode = "upsert"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeInsert, ModeReplace, ModeUpsert:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want insert, replace or upsert)", s)
}

// ConflictPolicy decides what an insert does when the target already has the
// block.
type ConflictPolicy string

const (
	// ConflictAbort stops the apply with a *ConflictError.
	ConflictAbort     ConflictPolicy = "error"
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictSkip      ConflictPolicy = "skip"
)

// ParseConflictPolicy validates a policy name.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(s)); p {
	case ConflictAbort, ConflictOverwrite, ConflictSkip:
		return p, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q (want error, overwrite or skip)", s)
}

// Options configures Apply. Zero fields take their defaults: upsert, error,
// every block, the default prefix and the RSpec dialect.
type Options struct {
	Mode     Mode
	Conflict ConflictPolicy
	Only     []string
	Prefix   string
	Dialect  Dialect
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeUpsert
	}
	if o.Conflict == "" {
		o.Conflict = ConflictAbort
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Dialect == nil {
		o.Dialect = RSpec
	}
	return o
}

// Action is what happened to one block.
type Action string

const (
	ActionInserted Action = "inserted"
	ActionReplaced Action = "replaced"
	ActionSkipped  Action = "skipped"
)

// Entry reports one block. Line is the 1-based line of the block's first
// line in the result.
type Entry struct {
	MethodID string `yaml:"method_id" json:"method_id"`
	Action   Action `yaml:"action" json:"action"`
	Line     int    `yaml:"line" json:"line"`
}

// Report describes an Apply call.
type Report struct {
	Entries []Entry `yaml:"entries" json:"entries"`
	Changed bool    `yaml:"changed" json:"changed"`
}

// Count returns how many entries took action a.
func (r Report) Count(a Action) int {
	n := 0
	for _, e := range r.Entries {
		if e.Action == a {
			n++
		}
	}
	return n
}

// Blocks lists the method ids of the blocks in text, in order.
func Blocks(text string, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	blocks, err := newScanner(opts.Dialect, opts.Prefix).scan(splitLines(text))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}
	return ids, nil
}

// Apply applies the blocks found in source to target. The operation is
// all-or-nothing: on any error the original target is returned unchanged.
// Applying the same source twice with ModeUpsert leaves the second result
// identical to the first.
func Apply(target, source string, opts Options) (string, Report, error) {
	opts = opts.withDefaults()
	s := newScanner(opts.Dialect, opts.Prefix)

	src := splitLines(source)
	srcBlocks, err := s.scan(src)
	if err != nil {
		return target, Report{}, fmt.Errorf("source: %w", err)
	}
	srcBlocks, err = selectBlocks(srcBlocks, opts.Only)
	if err != nil {
		return target, Report{}, err
	}

	buf := splitLines(target)
	var rep Report
	for _, sb := range srcBlocks {
		blocks, err := s.scan(buf)
		if err != nil {
			return target, Report{}, fmt.Errorf("target: %w", err)
		}
		existing, found, err := s.lookup(buf, blocks, sb)
		if err != nil {
			return target, Report{}, fmt.Errorf("target: %w", err)
		}

		action, err := decide(opts, sb, existing, found)
		if err != nil {
			return target, Report{}, err
		}
		switch action {
		case ActionInserted:
			buf, err = s.insert(buf, blocks, src, sb)
			if err != nil {
				return target, Report{}, err
			}
		case ActionReplaced:
			buf = s.replace(buf, existing, src, sb)
		}
		rep.Entries = append(rep.Entries, Entry{MethodID: sb.ID, Action: action})
	}

	final, err := s.scan(buf)
	if err != nil {
		return target, Report{}, fmt.Errorf("result: %w", err)
	}
	for i := range rep.Entries {
		sb := srcBlocks[i]
		if b, ok, _ := s.lookup(buf, final, sb); ok {
			rep.Entries[i].Line = b.Open + 1
		}
	}

	out := strings.Join(buf, "\n")
	rep.Changed = out != target
	return out, rep, nil
}

func selectBlocks(blocks []block, only []string) ([]block, error) {
	if len(only) == 0 {
		return blocks, nil
	}
	byID := make(map[string]block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}
	want := make(map[string]bool, len(only))
	for _, id := range only {
		if _, ok := byID[id]; !ok {
			return nil, &ApplyError{MethodID: id, Expected: "a block with this method_id in the source", Found: "none",
				Action: "drop it from the id list or regenerate the source blocks"}
		}
		want[id] = true
	}
	var out []block
	for _, b := range blocks {
		if want[b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}

func decide(opts Options, sb, existing block, found bool) (Action, error) {
	switch opts.Mode {
	case ModeReplace:
		if !found {
			return "", &ApplyError{MethodID: sb.ID, Expected: "an existing block to replace", Found: "none (missing target block)",
				Action: "re-run with mode insert or upsert"}
		}
		return ActionReplaced, nil
	case ModeUpsert:
		if found {
			return ActionReplaced, nil
		}
		return ActionInserted, nil
	case ModeInsert:
		if !found {
			return ActionInserted, nil
		}
		switch opts.Conflict {
		case ConflictOverwrite:
			return ActionReplaced, nil
		case ConflictSkip:
			return ActionSkipped, nil
		default:
			return "", &ConflictError{MethodID: sb.ID, Line: existing.Open + 1}
		}
	}
	return "", fmt.Errorf("unknown mode %q", opts.Mode)
}

// replace swaps the inner lines of existing for the matching lines of the
// source block, re-indented to the target's depth. A bare marker pair in the
// target takes the whole source group when the source block is grouped.
func (s *scanner) replace(buf []string, existing block, src []string, sb block) []string {
	unit := len(s.dialect.IndentUnit())

	var payload []string
	var srcRef, dstRef int
	from, to := existing.inner()
	switch {
	case existing.Grouped && sb.Grouped:
		payload = src[sb.Open+1 : sb.Close]
		srcRef = indentOf(src[sb.Open]) + unit
		dstRef = indentOf(buf[existing.Open]) + unit
	case sb.Grouped:
		payload = src[sb.Open : sb.Close+1]
		srcRef = indentOf(src[sb.Open])
		dstRef = indentOf(buf[existing.Begin])
		from, to = existing.Begin, existing.End
	default:
		payload = src[sb.Begin : sb.End+1]
		srcRef = indentOf(src[sb.Begin])
		if existing.Grouped {
			dstRef = indentOf(buf[existing.Open]) + unit
		} else {
			dstRef = indentOf(buf[existing.Begin])
		}
	}

	out := make([]string, 0, len(buf)-(to-from+1)+len(payload))
	out = append(out, buf[:from]...)
	out = append(out, reindent(payload, dstRef-srcRef)...)
	out = append(out, buf[to+1:]...)
	return out
}

// insert places the whole source block: after the last block already in the
// target, else before the end of the top-level group, else before the last
// closing line.
func (s *scanner) insert(buf []string, blocks []block, src []string, sb block) ([]string, error) {
	unit := len(s.dialect.IndentUnit())
	lines := src[sb.Open : sb.Close+1]
	srcIndent := indentOf(src[sb.Open])

	if len(blocks) > 0 {
		last := blocks[len(blocks)-1]
		at := last.Close + 1
		ind := indentOf(buf[last.Open])
		return splice(buf, at, append([]string{""}, reindent(lines, ind-srcIndent)...)), nil
	}

	end := s.topLevelEnd(buf)
	if end < 0 {
		end = s.lastEnd(buf)
	}
	if end < 0 {
		return nil, &ApplyError{MethodID: sb.ID, Expected: "an existing block, a top-level group or a closing line to insert before",
			Found: "none", Action: "add the enclosing group to the target file and re-run"}
	}
	ind := indentOf(buf[end]) + unit
	ins := reindent(lines, ind-srcIndent)
	if prev := end - 1; prev >= 0 && !blank(buf[prev]) {
		if _, isHeader := s.dialect.Header(buf[prev]); !isHeader {
			ins = append([]string{""}, ins...)
		}
	}
	return splice(buf, end, ins), nil
}

func (s *scanner) topLevelEnd(buf []string) int {
	for i, l := range buf {
		if blank(l) || indentOf(l) != 0 {
			continue
		}
		if _, ok := s.dialect.Header(l); ok {
			return findEnd(s.dialect, buf, i)
		}
	}
	return -1
}

func (s *scanner) lastEnd(buf []string) int {
	for i := len(buf) - 1; i >= 0; i-- {
		if s.dialect.IsEnd(buf[i]) {
			return i
		}
	}
	return -1
}

func splice(buf []string, at int, ins []string) []string {
	out := make([]string, 0, len(buf)+len(ins))
	out = append(out, buf[:at]...)
	out = append(out, ins...)
	out = append(out, buf[at:]...)
	return out
}

func splitLines(text string) []string {
	return strings.Split(text, "\n")
}
