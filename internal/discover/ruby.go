// Package discover finds the units a change touches: it lists changed files,
// parses the Ruby units they hold and works out which methods changed.
package discover

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"

	"github.com/kastheco/specwave/internal/model"
)

// ErrNoUnit is returned for sources that define no class or module.
var ErrNoUnit = errors.New("no class or module defined")

// ErrNoMethods is the skip reason for units that define no methods: there is
// nothing to generate contexts for.
var ErrNoMethods = errors.New("no methods defined")

// MethodDef is a method definition found in a source file. Lines are
// 1-indexed and inclusive.
type MethodDef struct {
	Name      string
	Type      model.MethodType
	LineStart int
	LineEnd   int
}

// Descriptor is the method's RSpec group name.
func (d MethodDef) Descriptor() string {
	return model.Method{Name: d.Name, Type: d.Type}.Descriptor()
}

// Unit is the parsed view of one source file.
type Unit struct {
	Path      string
	ClassName string
	// Kind is "class" or "module".
	Kind    string
	Methods []MethodDef
	// References are the constants the file mentions, as written, minus
	// the unit's own name.
	References []string
	// SyntaxErrors is set when the parser had to recover from errors;
	// method spans may then be incomplete.
	SyntaxErrors bool
}

// Namespace is the module nesting of the unit's class name.
func (u *Unit) Namespace() []string {
	parts := strings.Split(u.ClassName, "::")
	return parts[:len(parts)-1]
}

type definition struct {
	name string
	kind string
}

type ownedMethod struct {
	owner string
	def   MethodDef
}

type rubyWalker struct {
	src     []byte
	defs    []definition
	methods []ownedMethod
	refs    map[string]bool
}

// ParseRuby parses src and returns its unit. The unit is the first class in
// the file, or the first module when the file defines no class; only
// methods defined directly on it are kept.
func ParseRuby(ctx context.Context, path string, src []byte) (*Unit, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(ruby.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()
	root := tree.RootNode()

	w := &rubyWalker{src: src, refs: make(map[string]bool)}
	w.walk(root, nil, false)

	def, ok := w.unitDefinition()
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNoUnit)
	}

	u := &Unit{Path: path, ClassName: def.name, Kind: def.kind, SyntaxErrors: root.HasError()}
	for _, m := range w.methods {
		if m.owner == def.name {
			u.Methods = append(u.Methods, m.def)
		}
	}
	sort.SliceStable(u.Methods, func(i, j int) bool { return u.Methods[i].LineStart < u.Methods[j].LineStart })

	delete(w.refs, def.name)
	delete(w.refs, lastSegment(def.name))
	for ref := range w.refs {
		u.References = append(u.References, ref)
	}
	sort.Strings(u.References)
	return u, nil
}

func (w *rubyWalker) unitDefinition() (definition, bool) {
	for _, d := range w.defs {
		if d.kind == "class" {
			return d, true
		}
	}
	if len(w.defs) > 0 {
		return w.defs[0], true
	}
	return definition{}, false
}

func (w *rubyWalker) walk(n *sitter.Node, scope []string, singleton bool) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "class", "module":
		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			break
		}
		full := qualify(scope, nameNode.Content(w.src))
		w.defs = append(w.defs, definition{name: full, kind: n.Type()})
		inner := strings.Split(full, "::")
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.StartByte() == nameNode.StartByte() && child.EndByte() == nameNode.EndByte() {
				continue
			}
			w.walk(child, inner, false)
		}
		return
	case "singleton_class":
		w.walkChildren(n, scope, true)
		return
	case "method":
		typ := model.MethodInstance
		if singleton {
			typ = model.MethodClass
		}
		w.addMethod(n, scope, typ)
		w.walkChildren(n, scope, false)
		return
	case "singleton_method":
		w.addMethod(n, scope, model.MethodClass)
		w.walkChildren(n, scope, false)
		return
	case "scope_resolution", "constant":
		w.refs[strings.TrimPrefix(n.Content(w.src), "::")] = true
		return
	}
	w.walkChildren(n, scope, singleton)
}

func (w *rubyWalker) walkChildren(n *sitter.Node, scope []string, singleton bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), scope, singleton)
	}
}

func (w *rubyWalker) addMethod(n *sitter.Node, scope []string, typ model.MethodType) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil || len(scope) == 0 {
		return
	}
	w.methods = append(w.methods, ownedMethod{
		owner: strings.Join(scope, "::"),
		def: MethodDef{
			Name:      nameNode.Content(w.src),
			Type:      typ,
			LineStart: int(n.StartPoint().Row) + 1,
			LineEnd:   int(n.EndPoint().Row) + 1,
		},
	})
}

// qualify resolves a class or module name against the enclosing modules.
func qualify(scope []string, name string) string {
	if strings.HasPrefix(name, "::") {
		return strings.TrimPrefix(name, "::")
	}
	return strings.Join(append(append([]string{}, scope...), name), "::")
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}
