package dag

import "sync"

// Graph is a collection of nodes and their dependencies, representing a DAG.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects nodes and names during concurrent access.
	mutex sync.RWMutex
	// nodes is the arena. A slot is nil once its node has been removed.
	nodes []*node
	// names maps a live node's name to its id.
	names map[string]int
}

// node represents a single vertex in the graph. It is un-exported to
// enforce interaction with the graph via the public API (using int IDs),
// not by direct struct manipulation.
type node struct {
	// id is the arena index of the node.
	id int
	// name is the unique name of the node.
	name string
	// deps holds the set of nodes that this node depends on (predecessors).
	deps map[int]*node
	// dependents holds the set of nodes that depend on this node (successors).
	dependents map[int]*node
}

// Edge is a directed parent -> child pair of node ids.
type Edge struct {
	From int
	To   int
}
