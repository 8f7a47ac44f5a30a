// Package render turns context trees into marker-delimited RSpec text and
// into plain outlines for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/kastheco/specwave/internal/model"
	"github.com/kastheco/specwave/internal/patch"
	"github.com/kastheco/specwave/internal/structure"
)

// Options configures RSpec rendering.
type Options struct {
	// Prefix namespaces the block markers; empty means patch.DefaultPrefix.
	Prefix string
}

func (o Options) prefix() string {
	if o.Prefix == "" {
		return patch.DefaultPrefix
	}
	return o.Prefix
}

const indentUnit = "  "

type writer struct {
	sb    strings.Builder
	depth int
}

func (w *writer) line(format string, args ...any) {
	if format == "" {
		w.sb.WriteString("\n")
		return
	}
	w.sb.WriteString(strings.Repeat(indentUnit, w.depth))
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteString("\n")
}

func (w *writer) open(format string, args ...any) {
	w.line(format+" do", args...)
	w.depth++
}

func (w *writer) close() {
	w.depth--
	w.line("end")
}

// MethodID is the block id for a tree: the method name, prefixed with
// "self." for class methods so both kinds of a name can coexist.
func MethodID(tree *structure.Tree) string {
	if strings.HasPrefix(tree.Descriptor, ".") {
		return "self." + tree.Method
	}
	return tree.Method
}

// MethodIDFor is the block id m's tree renders with.
func MethodIDFor(m model.Method) string {
	if m.Type == model.MethodClass {
		return "self." + m.Name
	}
	return m.Name
}

// Method renders one method's block: a describe group named by the method
// descriptor holding the markers, shared examples and nested contexts. Every
// example body is a pending placeholder.
func Method(tree *structure.Tree, opts Options) string {
	w := &writer{}
	writeMethod(w, tree, opts)
	return w.sb.String()
}

func writeMethod(w *writer, tree *structure.Tree, opts Options) {
	id := MethodID(tree)
	w.open("describe %s", quote(tree.Descriptor))
	w.line("%s", patch.BeginMarker(patch.RSpec, opts.prefix(), id, tree.Descriptor))

	for _, s := range tree.Shared {
		w.open("shared_examples %s", quote(s.Name))
		writeExample(w, s.Example)
		w.close()
		w.line("")
	}

	if tree.Empty() {
		w.open("it %s", quote("behaves as expected"))
		w.line("pending %s", quote("no branching was extracted for "+tree.Descriptor))
		w.close()
	}
	for i, c := range tree.Contexts {
		if i > 0 {
			w.line("")
		}
		writeContext(w, c)
	}

	w.line("%s", patch.EndMarker(patch.RSpec, opts.prefix(), id))
	w.close()
}

func writeContext(w *writer, c *structure.Context) {
	w.open("context %s", quote(c.Title()))
	if s := setupComment(c); s != "" {
		w.line("# setup: %s", s)
	}
	if len(c.Examples) == 0 && len(c.Children) == 0 {
		w.line("# no behavior resolved for this branch")
	}
	for _, ex := range c.Examples {
		if ex.Include != "" {
			w.line("it_behaves_like %s", quote(ex.Include))
			continue
		}
		writeExample(w, ex)
	}
	for i, child := range c.Children {
		if i > 0 || len(c.Examples) > 0 {
			w.line("")
		}
		writeContext(w, child)
	}
	w.close()
}

func writeExample(w *writer, ex structure.Example) {
	w.open("it %s", quote(ex.Description))
	w.line("pending")
	w.close()
}

// setupComment describes how a test enters the context's state.
func setupComment(c *structure.Context) string {
	name := c.Characteristic
	switch c.Setup {
	case model.SetupStub:
		target := name
		if c.Source.Class != "" {
			target = c.Source.Class
			if c.Source.Method != "" {
				target += "#" + c.Source.Method
			}
		}
		return fmt.Sprintf("stub %s to return %s", target, c.Value)
	case model.SetupAssignNil:
		if isNilValue(c.Value) {
			return name + " = nil"
		}
		return name + " present"
	case model.SetupState:
		return fmt.Sprintf("%s in state %s", name, c.Value)
	case model.SetupAttribute:
		return fmt.Sprintf("%s = %s", name, c.Value)
	}
	return ""
}

func isNilValue(v model.Scalar) bool {
	return model.Value{Value: v}.Polarity(model.TypePresence) == model.PolarityNegative
}

// Unit renders a whole spec file for className holding one block per tree.
func Unit(className string, trees []*structure.Tree, opts Options) string {
	w := &writer{}
	w.line("require 'rails_helper'")
	w.line("")
	w.open("RSpec.describe %s", className)
	for i, t := range trees {
		if i > 0 {
			w.line("")
		}
		writeMethod(w, t, opts)
	}
	w.close()
	return w.sb.String()
}

// Blocks renders every tree as a standalone block, ready for patch.Apply.
func Blocks(trees []*structure.Tree, opts Options) string {
	parts := make([]string, len(trees))
	for i, t := range trees {
		parts[i] = Method(t, opts)
	}
	return strings.Join(parts, "\n")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
