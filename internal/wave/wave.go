// Package wave orders units of work into dependency waves: every unit in a
// wave depends only on units of earlier waves, so the members of one wave can
// be processed in parallel.
package wave

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Edge records that From depends on To.
type Edge struct {
	From string
	To   string
}

func (e Edge) String() string {
	return e.From + " -> " + e.To
}

// BrokenCycle reports a node forced into a wave before all of its
// dependencies were scheduled. Edges lists the dependencies the forced
// placement leaves unsatisfied.
type BrokenCycle struct {
	Node   string
	Reason string
	Edges  []Edge
}

// String renders the break for warning lists.
func (bc BrokenCycle) String() string {
	edges := make([]string, len(bc.Edges))
	for i, e := range bc.Edges {
		edges[i] = e.String()
	}
	return fmt.Sprintf("%s: %s (ignored: %s)", bc.Node, bc.Reason, strings.Join(edges, ", "))
}

// Schedule is the result of Compute.
type Schedule struct {
	Waves        [][]string
	BrokenCycles []BrokenCycle
	index        map[string]int
}

// Compute schedules nodes into waves with an iterative Kahn's algorithm.
//
// At each step the ready set is every remaining node whose dependencies are
// all scheduled in a prior wave. When no node is ready the remaining node with
// the fewest unresolved dependencies (ties broken by lexicographic id) is
// forced into the wave on its own and reported. Self-loops are dropped up
// front and reported. Edges touching unknown nodes are ignored. The result is
// a pure function of the node and edge sets.
func Compute(nodes []string, edges []Edge) Schedule {
	s := Schedule{index: make(map[string]int)}

	remaining := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		remaining[n] = true
	}
	if len(remaining) == 0 {
		return s
	}

	deps := make(map[string]map[string]bool, len(remaining))
	selfLoops := make(map[string]bool)
	for _, e := range edges {
		if !remaining[e.From] || !remaining[e.To] {
			continue
		}
		if e.From == e.To {
			selfLoops[e.From] = true
			continue
		}
		if deps[e.From] == nil {
			deps[e.From] = make(map[string]bool)
		}
		deps[e.From][e.To] = true
	}
	for _, n := range sortedKeys(selfLoops) {
		s.BrokenCycles = append(s.BrokenCycles, BrokenCycle{
			Node:   n,
			Reason: "self-dependency ignored",
			Edges:  []Edge{{From: n, To: n}},
		})
	}

	for len(remaining) > 0 {
		waveNum := len(s.Waves)
		var ready []string
		for n := range remaining {
			if allScheduled(deps[n], s.index, waveNum) {
				ready = append(ready, n)
			}
		}

		if len(ready) == 0 {
			forced := pickCycleBreaker(remaining, deps, s.index)
			var broken []Edge
			for _, d := range sortedKeys(deps[forced]) {
				if _, done := s.index[d]; !done {
					broken = append(broken, Edge{From: forced, To: d})
				}
			}
			s.BrokenCycles = append(s.BrokenCycles, BrokenCycle{
				Node:   forced,
				Reason: fmt.Sprintf("dependency cycle: forced into wave %d with %d unresolved dependencies", waveNum, len(broken)),
				Edges:  broken,
			})
			ready = []string{forced}
		}

		sort.Strings(ready)
		for _, n := range ready {
			s.index[n] = waveNum
			delete(remaining, n)
		}
		s.Waves = append(s.Waves, ready)
	}
	return s
}

// allScheduled reports whether every dependency sits in a wave before
// current.
func allScheduled(deps map[string]bool, index map[string]int, current int) bool {
	for d := range deps {
		w, ok := index[d]
		if !ok || w >= current {
			return false
		}
	}
	return true
}

func pickCycleBreaker(remaining map[string]bool, deps map[string]map[string]bool, index map[string]int) string {
	best := ""
	bestCount := -1
	for _, n := range sortedKeys(remaining) {
		count := 0
		for d := range deps[n] {
			if _, done := index[d]; !done {
				count++
			}
		}
		if bestCount < 0 || count < bestCount {
			best, bestCount = n, count
		}
	}
	return best
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WaveOf returns the wave a node was scheduled in.
func (s Schedule) WaveOf(node string) (int, bool) {
	w, ok := s.index[node]
	return w, ok
}

// Len returns the number of scheduled nodes.
func (s Schedule) Len() int {
	return len(s.index)
}

// IsBroken reports whether e was left unsatisfied by a cycle break.
func (s Schedule) IsBroken(e Edge) bool {
	for _, bc := range s.BrokenCycles {
		for _, be := range bc.Edges {
			if be == e {
				return true
			}
		}
	}
	return false
}

// Violations returns the edges between scheduled nodes that do not satisfy
// wave(from) > wave(to) and were not reported as broken. A correct schedule
// has none.
func (s Schedule) Violations(edges []Edge) []Edge {
	var out []Edge
	for _, e := range edges {
		from, ok1 := s.index[e.From]
		to, ok2 := s.index[e.To]
		if !ok1 || !ok2 || from > to || s.IsBroken(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// EntryPoints matches unit names that are entry points (controllers,
// handlers) so their waves can be labelled for operators.
type EntryPoints []*regexp.Regexp

// CompileEntryPoints compiles entry-point patterns.
func CompileEntryPoints(patterns []string) (EntryPoints, error) {
	out := make(EntryPoints, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("entry point pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Match reports whether name is an entry point.
func (ep EntryPoints) Match(name string) bool {
	for _, re := range ep {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Label names wave i for display. Waves holding entry points are labelled
// distinctly; this has no effect on scheduling.
func (s Schedule) Label(i int, ep EntryPoints) string {
	if i < 0 || i >= len(s.Waves) {
		return ""
	}
	label := fmt.Sprintf("wave %d", i)
	if i == 0 {
		label += " (leaves)"
	}
	for _, n := range s.Waves[i] {
		if ep.Match(n) {
			return label + " (entry points)"
		}
	}
	return label
}
