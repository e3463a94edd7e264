package graph

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrCycleDetected is returned when the edges cannot be satisfied by any order.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrUnknownNode is returned when an edge names a node that was never added.
	ErrUnknownNode = errors.New("node not found")

	// ErrSelfEdge is returned when a node is declared to depend on itself.
	ErrSelfEdge = errors.New("self-referential edge not allowed")
)

// Edge declares that Node depends on DependsOn.
type Edge[K comparable] struct {
	Node      K
	DependsOn K
}

// Graph is a set of nodes and their dependencies. Nodes keep their insertion
// order so that sorting is deterministic. All operations are concurrency-safe.
type Graph[K comparable] struct {
	mutex sync.RWMutex
	order []K
	nodes map[K]*node[K]
}

type node[K comparable] struct {
	id K
	// deps holds the set of nodes this node depends on.
	deps map[K]struct{}
	// dependents lists the nodes depending on this one, in edge insertion order.
	dependents []K
}

// New creates and returns an initialized, empty Graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{
		nodes: make(map[K]*node[K]),
	}
}

// AddNode adds a node. Adding an existing node does nothing.
func (g *Graph[K]) AddNode(id K) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node[K]{id: id, deps: make(map[K]struct{})}
	g.order = append(g.order, id)
}

// AddEdge records that id depends on dependsOn. Both nodes must exist.
// Duplicate edges are ignored.
func (g *Graph[K]) AddEdge(id, dependsOn K) error {
	if id == dependsOn {
		return fmt.Errorf("%w: %v", ErrSelfEdge, id)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownNode, id)
	}
	dep, ok := g.nodes[dependsOn]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownNode, dependsOn)
	}

	if _, exists := n.deps[dependsOn]; exists {
		return nil
	}
	n.deps[dependsOn] = struct{}{}
	dep.dependents = append(dep.dependents, id)
	return nil
}

// Len returns the number of nodes.
func (g *Graph[K]) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the nodes that id depends on.
func (g *Graph[K]) Dependencies(id K) ([]K, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownNode, id)
	}
	deps := make([]K, 0, len(n.deps))
	for depID := range n.deps {
		deps = append(deps, depID)
	}
	return deps, nil
}

// TopologicalSort returns every node ordered so that each node follows all
// of its dependencies, using Kahn's algorithm. Ties are broken by insertion
// order. If the graph has a cycle it returns ErrCycleDetected and no order.
// The graph itself is never modified.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	indegree := make(map[K]int, len(g.nodes))
	queue := make([]K, 0, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.nodes[id].deps)
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]K, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		for _, dependent := range g.nodes[id].dependents {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) < len(g.nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes could not be ordered",
			ErrCycleDetected, len(g.nodes)-len(sorted), len(g.nodes))
	}
	return sorted, nil
}

// Sort builds a graph from nodes and edges and returns its topological order.
func Sort[K comparable](nodes []K, edges []Edge[K]) ([]K, error) {
	g := New[K]()
	for _, id := range nodes {
		g.AddNode(id)
	}
	for _, e := range edges {
		if err := g.AddEdge(e.Node, e.DependsOn); err != nil {
			return nil, err
		}
	}
	return g.TopologicalSort()
}
