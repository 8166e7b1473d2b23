package dag

import (
	"fmt"
	"maps"
	"slices"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		names: make(map[string]int),
	}
}

// AddNode adds a new node with the given name and returns its id. If a node
// with the same name already exists, its id is returned and nothing changes.
func (g *Graph) AddNode(name string) int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id, ok := g.names[name]; ok {
		return id
	}

	id := len(g.nodes)
	g.nodes = append(g.nodes, &node{
		id:         id,
		name:       name,
		deps:       make(map[int]*node),
		dependents: make(map[int]*node),
	})
	g.names[name] = id
	return id
}

// ID returns the id of the live node called name.
func (g *Graph) ID(name string) (int, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	id, ok := g.names[name]
	return id, ok
}

// Name returns the name of node id, or "" if it does not exist.
func (g *Graph) Name(id int) string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	if n := g.get(id); n != nil {
		return n.name
	}
	return ""
}

// Has reports whether id refers to a live node.
func (g *Graph) Has(id int) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.get(id) != nil
}

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.names)
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID int) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %d -> %d", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode := g.get(fromID)
	if fromNode == nil {
		return fmt.Errorf("source node not found: %d", fromID)
	}
	toNode := g.get(toID)
	if toNode == nil {
		return fmt.Errorf("destination node not found: %d", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// RemoveEdge deletes the edge fromID -> toID if present.
func (g *Graph) RemoveEdge(fromID, toID int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n := g.get(fromID); n != nil {
		delete(n.dependents, toID)
	}
	if n := g.get(toID); n != nil {
		delete(n.deps, fromID)
	}
}

// HasEdge reports whether the edge fromID -> toID exists.
func (g *Graph) HasEdge(fromID, toID int) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	n := g.get(fromID)
	if n == nil {
		return false
	}
	_, ok := n.dependents[toID]
	return ok
}

// RemoveNode unlinks id from all its neighbours and tombstones its slot.
func (g *Graph) RemoveNode(id int) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n := g.get(id)
	if n == nil {
		return fmt.Errorf("node not found: %d", id)
	}
	for depID, dep := range n.deps {
		delete(dep.dependents, id)
		delete(n.deps, depID)
	}
	for childID, child := range n.dependents {
		delete(child.deps, id)
		delete(n.dependents, childID)
	}
	delete(g.names, n.name)
	g.nodes[id] = nil
	return nil
}

// Dependencies returns the ids of the nodes id depends on, in ascending
// order. Unknown ids yield nil.
func (g *Graph) Dependencies(id int) []int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	if n := g.get(id); n != nil {
		return slices.Sorted(maps.Keys(n.deps))
	}
	return nil
}

// Dependents returns the ids of the nodes that depend on id, in ascending
// order. Unknown ids yield nil.
func (g *Graph) Dependents(id int) []int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	if n := g.get(id); n != nil {
		return slices.Sorted(maps.Keys(n.dependents))
	}
	return nil
}

// Nodes returns the ids of all live nodes in ascending order.
func (g *Graph) Nodes() []int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	ids := make([]int, 0, len(g.names))
	for _, n := range g.nodes {
		if n != nil {
			ids = append(ids, n.id)
		}
	}
	return ids
}

// Edges returns every edge ordered by source then destination.
func (g *Graph) Edges() []Edge {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	var edges []Edge
	for _, n := range g.nodes {
		if n == nil {
			continue
		}
		for _, to := range slices.Sorted(maps.Keys(n.dependents)) {
			edges = append(edges, Edge{From: n.id, To: to})
		}
	}
	return edges
}

// Reachable reports whether a directed path of at least one edge leads
// from fromID to toID.
func (g *Graph) Reachable(fromID, toID int) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	start := g.get(fromID)
	if start == nil || g.get(toID) == nil {
		return false
	}
	seen := make(map[int]bool)
	stack := []*node{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for id, child := range n.dependents {
			if id == toID {
				return true
			}
			if !seen[id] {
				seen[id] = true
				stack = append(stack, child)
			}
		}
	}
	return false
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// if a cycle is found, indicating the first node involved in the detected cycle.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Use classic depth-first search with three sets of nodes:
	// permanent: nodes that have been fully visited and are not part of a cycle.
	// temporary: nodes currently in the recursion stack for the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[int]bool)
	temporary := make(map[int]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("cycle detected involving node '%s'", n.name)
		}

		temporary[n.id] = true
		for _, id := range slices.Sorted(maps.Keys(n.dependents)) {
			if err := visit(n.dependents[id]); err != nil {
				return err
			}
		}
		delete(temporary, n.id)
		permanent[n.id] = true
		return nil
	}

	for _, n := range g.nodes {
		if n != nil && !permanent[n.id] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// get returns the live node at id. Callers must hold the mutex.
func (g *Graph) get(id int) *node {
	if id < 0 || id >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}
