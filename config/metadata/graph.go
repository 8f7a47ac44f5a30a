package metadata

import (
	"sort"

	"github.com/kastheco/specwave/internal/wave"
)

// Graph builds the dependency graph of records. Nodes are class names; a
// record without a class name, or whose class name another record already
// claimed, is keyed by its slug. Edges only join records of the set.
func Graph(records []*Record) (nodes []string, edges []wave.Edge, index map[string]*Record) {
	sorted := make([]*Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Slug < sorted[j].Slug })

	index = make(map[string]*Record, len(sorted))
	byClass := make(map[string]string, len(sorted))
	for _, r := range sorted {
		id := r.ClassName
		if _, taken := index[id]; id == "" || taken {
			id = r.Slug
		}
		index[id] = r
		nodes = append(nodes, id)
		if r.ClassName != "" {
			if _, ok := byClass[r.ClassName]; !ok {
				byClass[r.ClassName] = id
			}
		}
	}

	for _, id := range nodes {
		for _, dep := range index[id].Dependencies {
			if to, ok := byClass[dep]; ok {
				edges = append(edges, wave.Edge{From: id, To: to})
			}
		}
	}
	return nodes, edges, index
}
