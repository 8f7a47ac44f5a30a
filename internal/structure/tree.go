// Package structure turns a method's characteristics into the nested,
// ordered context tree that test blocks are rendered from.
package structure

import "github.com/kastheco/specwave/internal/model"

// Example is one expected outcome inside a leaf context. When Include is set
// the example is a reference to the shared template of that name.
type Example struct {
	BehaviorID  string             `yaml:"behavior_id" json:"behavior_id"`
	Kind        model.BehaviorType `yaml:"kind" json:"kind"`
	Description string             `yaml:"description" json:"description"`
	Include     string             `yaml:"include,omitempty" json:"include,omitempty"`
}

// Context is one node of the tree: a single value of a characteristic.
type Context struct {
	ID             string          `yaml:"id" json:"id"`
	Word           Word            `yaml:"word" json:"word"`
	Phrase         string          `yaml:"phrase" json:"phrase"`
	Characteristic string          `yaml:"characteristic" json:"characteristic"`
	Value          model.Scalar    `yaml:"value" json:"value"`
	Level          int             `yaml:"level" json:"level"`
	Terminal       bool            `yaml:"terminal,omitempty" json:"terminal,omitempty"`
	Leaf           bool            `yaml:"leaf,omitempty" json:"leaf,omitempty"`
	Setup          model.SetupKind `yaml:"setup" json:"setup"`
	Source         model.Source    `yaml:"source,omitempty" json:"source,omitempty"`
	Examples       []Example       `yaml:"examples,omitempty" json:"examples,omitempty"`
	Children       []*Context      `yaml:"children,omitempty" json:"children,omitempty"`
}

// Title is the context's description line, e.g. "when NOT authenticated".
func (c *Context) Title() string {
	return string(c.Word) + " " + c.Phrase
}

// SharedExample is an example emitted once and included from every leaf
// that expects it.
type SharedExample struct {
	Name    string  `yaml:"name" json:"name"`
	Example Example `yaml:"example" json:"example"`
	Sites   int     `yaml:"sites" json:"sites"`
}

// Warning codes.
const (
	WarnDeadBranch              = "dead_branch"
	WarnTerminalWithDependents  = "terminal_with_dependents"
	WarnLeafWithDependents      = "leaf_with_dependents"
	WarnTerminalWithoutBehavior = "terminal_without_behavior"
)

// Warning is a non-fatal finding about the method's characteristics.
type Warning struct {
	Code    string `yaml:"code" json:"code"`
	Context string `yaml:"context" json:"context"`
	Message string `yaml:"message" json:"message"`
}

func (w Warning) String() string {
	return w.Code + " at " + w.Context + ": " + w.Message
}

// Tree is the generated structure for one method.
type Tree struct {
	Method     string          `yaml:"method" json:"method"`
	Descriptor string          `yaml:"descriptor" json:"descriptor"`
	Contexts   []*Context      `yaml:"contexts" json:"contexts"`
	Shared     []SharedExample `yaml:"shared,omitempty" json:"shared,omitempty"`
	Warnings   []Warning       `yaml:"warnings,omitempty" json:"warnings,omitempty"`
}

// Empty reports whether the tree has no contexts.
func (t *Tree) Empty() bool {
	return len(t.Contexts) == 0
}

// Walk visits every context depth-first in tree order. Returning false from
// fn skips the context's children.
func (t *Tree) Walk(fn func(c *Context, depth int) bool) {
	var visit func(cs []*Context, depth int)
	visit = func(cs []*Context, depth int) {
		for _, c := range cs {
			if fn(c, depth) {
				visit(c.Children, depth+1)
			}
		}
	}
	visit(t.Contexts, 0)
}

// Leaves returns the leaf contexts in tree order.
func (t *Tree) Leaves() []*Context {
	var out []*Context
	t.Walk(func(c *Context, _ int) bool {
		if c.Leaf {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Find returns the context with the given id.
func (t *Tree) Find(id string) (*Context, bool) {
	var found *Context
	t.Walk(func(c *Context, _ int) bool {
		if c.ID == id {
			found = c
		}
		return found == nil
	})
	return found, found != nil
}

// Check is one behavior asserted in one context after includes are expanded.
type Check struct {
	ContextID  string
	BehaviorID string
	Kind       model.BehaviorType
}

// EffectiveChecks lists the checks every context performs, expanding shared
// example references. A tree with and without sharing yields the same list.
func (t *Tree) EffectiveChecks() []Check {
	shared := make(map[string]Example, len(t.Shared))
	for _, s := range t.Shared {
		shared[s.Name] = s.Example
	}
	var out []Check
	t.Walk(func(c *Context, _ int) bool {
		for _, ex := range c.Examples {
			if ex.Include != "" {
				if tmpl, ok := shared[ex.Include]; ok {
					ex = tmpl
				}
			}
			out = append(out, Check{ContextID: c.ID, BehaviorID: ex.BehaviorID, Kind: ex.Kind})
		}
		return true
	})
	return out
}
