package structure

import (
	"errors"
	"fmt"

	"github.com/kastheco/specwave/internal/model"
)

// DefaultSharedExampleThreshold is the number of leaf contexts an identical
// example must appear in before it is emitted once and included elsewhere.
const DefaultSharedExampleThreshold = 3

// Options tunes generation.
type Options struct {
	// SharedExampleThreshold of zero or less disables sharing.
	SharedExampleThreshold int
}

// DefaultOptions returns the generator defaults.
func DefaultOptions() Options {
	return Options{SharedExampleThreshold: DefaultSharedExampleThreshold}
}

type generator struct {
	method model.Method
	bank   *model.BehaviorBank
	tree   *Tree
}

// Generate builds the context tree for method. Structural problems in the
// characteristics (unknown parents, level mismatches, unresolved behavior ids)
// are returned as joined *model.IntegrityError values; everything else that
// looks odd but can still be generated is reported as a tree warning.
func Generate(method model.Method, bank *model.BehaviorBank, opts Options) (*Tree, error) {
	if bank == nil {
		bank, _ = model.NewBehaviorBank(nil)
	}
	errs := method.CheckIntegrity()
	for _, id := range bank.Unresolved(method) {
		errs = append(errs, &model.IntegrityError{
			Method: method.Name,
			Reason: fmt.Sprintf("behavior_id %q is not in the behavior bank", id),
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g := &generator{
		method: method,
		bank:   bank,
		tree:   &Tree{Method: method.Name, Descriptor: method.Descriptor()},
	}
	for _, root := range method.Roots() {
		g.tree.Contexts = append(g.tree.Contexts, g.expand(root, "")...)
	}
	if opts.SharedExampleThreshold > 0 {
		g.share(opts.SharedExampleThreshold)
	}
	return g.tree, nil
}

func (g *generator) expand(c model.Characteristic, parentID string) []*Context {
	values := OrderValues(c)
	out := make([]*Context, 0, len(values))
	for i, v := range values {
		word := ContextWord(c, v, i)
		id := c.Name + "=" + string(v.Value)
		if parentID != "" {
			id = parentID + "/" + id
		}
		node := &Context{
			ID:             id,
			Word:           word,
			Phrase:         Phrase(c, v, word),
			Characteristic: c.Name,
			Value:          v.Value,
			Level:          c.Level,
			Terminal:       v.Terminal,
			Leaf:           v.IsLeaf(),
			Setup:          model.ClassifySetup(c),
			Source:         c.Source,
		}
		dependents := g.method.Children(c.Name, v.Value)

		switch {
		case v.IsLeaf():
			if len(dependents) > 0 {
				code := WarnLeafWithDependents
				if v.Terminal {
					code = WarnTerminalWithDependents
				}
				g.warn(code, id, "%d dependent characteristic(s) ignored: %s", len(dependents), names(dependents))
			}
			node.Examples = g.leafExamples(v)
		case v.Terminal:
			if len(dependents) > 0 {
				g.warn(WarnTerminalWithDependents, id, "%d dependent characteristic(s) ignored: %s", len(dependents), names(dependents))
			}
			g.warn(WarnTerminalWithoutBehavior, id, "terminal value has no behavior_id; context left empty")
		case len(dependents) == 0:
			g.warn(WarnDeadBranch, id, "value is neither a leaf nor followed by a characteristic")
		default:
			for _, child := range dependents {
				node.Children = append(node.Children, g.expand(child, id)...)
			}
		}
		out = append(out, node)
	}
	return out
}

// leafExamples emits the side effects of a successful flow followed by the
// leaf's own behavior. Disabled behaviors emit nothing.
func (g *generator) leafExamples(v model.Value) []Example {
	var out []Example
	if !v.Terminal {
		for _, se := range g.method.SideEffects {
			if ex, ok := g.example(se.BehaviorID); ok {
				out = append(out, ex)
			}
		}
	}
	if ex, ok := g.example(v.BehaviorID); ok {
		out = append(out, ex)
	}
	return out
}

func (g *generator) example(id string) (Example, bool) {
	b, ok := g.bank.Get(id)
	if !ok || !b.IsEnabled() {
		return Example{}, false
	}
	return Example{BehaviorID: b.ID, Kind: b.Type, Description: b.Description}, true
}

type exampleKey struct {
	id   string
	kind model.BehaviorType
}

// share replaces examples that appear in at least threshold distinct leaf
// contexts with includes of a single shared template. Templates are listed in
// order of first appearance.
func (g *generator) share(threshold int) {
	sites := make(map[exampleKey]int)
	var order []exampleKey
	leaves := g.tree.Leaves()
	for _, leaf := range leaves {
		seen := make(map[exampleKey]bool)
		for _, ex := range leaf.Examples {
			k := exampleKey{ex.BehaviorID, ex.Kind}
			if seen[k] {
				continue
			}
			seen[k] = true
			if sites[k] == 0 {
				order = append(order, k)
			}
			sites[k]++
		}
	}

	templates := make(map[exampleKey]string)
	for _, k := range order {
		if sites[k] < threshold {
			continue
		}
		b, _ := g.bank.Get(k.id)
		templates[k] = b.Description
		g.tree.Shared = append(g.tree.Shared, SharedExample{
			Name:    b.Description,
			Example: Example{BehaviorID: b.ID, Kind: k.kind, Description: b.Description},
			Sites:   sites[k],
		})
	}
	if len(templates) == 0 {
		return
	}
	for _, leaf := range leaves {
		for i, ex := range leaf.Examples {
			if name, ok := templates[exampleKey{ex.BehaviorID, ex.Kind}]; ok {
				leaf.Examples[i].Include = name
			}
		}
	}
}

func (g *generator) warn(code, ctx, format string, args ...any) {
	g.tree.Warnings = append(g.tree.Warnings, Warning{Code: code, Context: ctx, Message: fmt.Sprintf(format, args...)})
}

func names(cs []model.Characteristic) string {
	out := ""
	for i, c := range cs {
		if i > 0 {
			out += ", "
		}
		out += c.Name
	}
	return out
}
