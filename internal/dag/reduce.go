package dag

import (
	"fmt"
	"maps"
	"slices"
)

// TransitiveReduction removes every edge u -> v for which another path from
// u to v exists, and returns how many edges it removed. Reachability between
// any two nodes is unchanged. The graph must be acyclic; a cycle is reported
// as an error and the graph is left untouched.
func (g *Graph) TransitiveReduction() (int, error) {
	if err := g.DetectCycles(); err != nil {
		return 0, fmt.Errorf("cannot reduce graph: %w", err)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	// Descendant sets stay valid while edges are dropped because a dropped
	// edge never changes reachability.
	memo := make(map[int]map[int]struct{}, len(g.names))
	var descendants func(n *node) map[int]struct{}
	descendants = func(n *node) map[int]struct{} {
		if d, ok := memo[n.id]; ok {
			return d
		}
		d := make(map[int]struct{})
		for id, child := range n.dependents {
			d[id] = struct{}{}
			for x := range descendants(child) {
				d[x] = struct{}{}
			}
		}
		memo[n.id] = d
		return d
	}

	removed := 0
	for _, u := range g.nodes {
		if u == nil || len(u.dependents) < 2 {
			continue
		}
		children := slices.Sorted(maps.Keys(u.dependents))
		var redundant []int
		for _, v := range children {
			for _, w := range children {
				if w == v {
					continue
				}
				if _, ok := descendants(u.dependents[w])[v]; ok {
					redundant = append(redundant, v)
					break
				}
			}
		}
		for _, v := range redundant {
			delete(u.dependents[v].deps, u.id)
			delete(u.dependents, v)
			removed++
		}
	}
	return removed, nil
}
