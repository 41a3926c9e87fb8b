// Package graphstore implements the in-memory directed graph (C2): O(1)
// node/edge lookup, relation-filtered ancestor/descendant traversal, and
// import/export to graphmodel.GraphState. The node/dependents bookkeeping
// is adapted from the teacher's orchestration.WorkflowDAG
// (workflow_dag.go), generalized from a single "depends on" relation to
// typed, multi-relation edges and from an acyclic-only model to one where
// only the "contains" relation is required to stay acyclic (SPEC_FULL §9).
package graphstore

import (
	"fmt"
	"sync"

	"github.com/graphmind/graphmind/internal/graphmodel"
)

// node is the store's internal bookkeeping for one resource.
type node struct {
	resource graphmodel.Resource
	out      []graphmodel.Edge // edges where this node is the source
	in       []graphmodel.Edge // edges where this node is the target
}

// Store is an in-memory directed graph keyed by resource id. It is safe
// for concurrent use.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*node
	// edges are also kept flat, in insertion order, to make Export
	// deterministic-ish and deletion simple.
	edges []graphmodel.Edge
}

// New returns an empty Store.
func New() *Store {
	return &Store{nodes: make(map[string]*node)}
}

// ErrNotFound is returned by operations referencing an id the store does
// not hold.
var ErrNotFound = graphmodel.NewError("graphstore", "not_found", graphmodel.ErrNotFound)

// HasNode reports whether id exists in the store.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// Resource returns the resource stored under id.
func (s *Store) Resource(id string) (graphmodel.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return graphmodel.Resource{}, false
	}
	return n.resource, true
}

// AddNode inserts or replaces a resource. Replacing preserves existing
// edges touching it.
func (s *Store) AddNode(r graphmodel.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.nodes[r.ID]; ok {
		existing.resource = r
		return
	}
	s.nodes[r.ID] = &node{resource: r}
}

// RemoveNode deletes a resource and every edge touching it.
func (s *Store) RemoveNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return fmt.Errorf("graphstore: remove node %q: %w", id, graphmodel.ErrNotFound)
	}
	delete(s.nodes, id)

	filtered := s.edges[:0]
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			continue
		}
		filtered = append(filtered, e)
	}
	s.edges = filtered
	s.rebuildAdjacency()
	return nil
}

// AddEdge inserts a directed edge. Both endpoints must already exist
// (I2); self-loops are rejected.
func (s *Store) AddEdge(e graphmodel.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Source == e.Target {
		return fmt.Errorf("graphstore: self-loop on %q: %w", e.Source, graphmodel.ErrReferentialIntegrity)
	}
	src, ok := s.nodes[e.Source]
	if !ok {
		return fmt.Errorf("graphstore: edge source %q: %w", e.Source, graphmodel.ErrNotFound)
	}
	dst, ok := s.nodes[e.Target]
	if !ok {
		return fmt.Errorf("graphstore: edge target %q: %w", e.Target, graphmodel.ErrNotFound)
	}
	s.edges = append(s.edges, e)
	src.out = append(src.out, e)
	dst.in = append(dst.in, e)
	return nil
}

// HasEdge reports whether an identical edge already exists.
func (s *Store) HasEdge(e graphmodel.Edge) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.edges {
		if existing == e {
			return true
		}
	}
	return false
}

// RemoveEdge deletes the first matching edge.
func (s *Store) RemoveEdge(e graphmodel.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, existing := range s.edges {
		if existing == e {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("graphstore: remove edge %+v: %w", e, graphmodel.ErrNotFound)
	}
	s.edges = append(s.edges[:idx], s.edges[idx+1:]...)
	s.rebuildAdjacency()
	return nil
}

func (s *Store) rebuildAdjacency() {
	for _, n := range s.nodes {
		n.out = n.out[:0]
		n.in = n.in[:0]
	}
	for _, e := range s.edges {
		if src, ok := s.nodes[e.Source]; ok {
			src.out = append(src.out, e)
		}
		if dst, ok := s.nodes[e.Target]; ok {
			dst.in = append(dst.in, e)
		}
	}
}

// NeighborsOut returns the ids reachable by a single outgoing edge,
// optionally filtered to a single relation.
func (s *Store) NeighborsOut(id string, relation graphmodel.Relation) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil
	}
	var out []string
	for _, e := range n.out {
		if relation != "" && e.Relation != relation {
			continue
		}
		out = append(out, e.Target)
	}
	return out
}

// NeighborsIn returns the ids with a single incoming edge into id,
// optionally filtered to a single relation.
func (s *Store) NeighborsIn(id string, relation graphmodel.Relation) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil
	}
	var out []string
	for _, e := range n.in {
		if relation != "" && e.Relation != relation {
			continue
		}
		out = append(out, e.Source)
	}
	return out
}

// Descendants returns the BFS forward closure of id under relation (pass
// "" to traverse every relation). Per SPEC_FULL/§9, callers computing
// blast radius must pass RelationContains explicitly so that cyclic
// non-ownership relations never participate.
func (s *Store) Descendants(id string, relation graphmodel.Relation) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return nil, fmt.Errorf("graphstore: descendants of %q: %w", id, graphmodel.ErrNotFound)
	}
	visited := map[string]bool{id: true}
	queue := []string{id}
	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := s.nodes[cur]
		if n == nil {
			continue
		}
		for _, e := range n.out {
			if relation != "" && e.Relation != relation {
				continue
			}
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			order = append(order, e.Target)
			queue = append(queue, e.Target)
		}
	}
	return order, nil
}

// Ancestors returns the BFS backward closure of id under relation.
func (s *Store) Ancestors(id string, relation graphmodel.Relation) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return nil, fmt.Errorf("graphstore: ancestors of %q: %w", id, graphmodel.ErrNotFound)
	}
	visited := map[string]bool{id: true}
	queue := []string{id}
	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := s.nodes[cur]
		if n == nil {
			continue
		}
		for _, e := range n.in {
			if relation != "" && e.Relation != relation {
				continue
			}
			if visited[e.Source] {
				continue
			}
			visited[e.Source] = true
			order = append(order, e.Source)
			queue = append(queue, e.Source)
		}
	}
	return order, nil
}

// HasCycle reports whether the subgraph restricted to relation contains a
// cycle, via DFS with a recursion stack (same approach as the teacher's
// WorkflowDAG.hasCycleDFS).
func (s *Store) HasCycle(relation graphmodel.Relation) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		n := s.nodes[id]
		for _, e := range n.out {
			if relation != "" && e.Relation != relation {
				continue
			}
			if onStack[e.Target] {
				return true
			}
			if !visited[e.Target] {
				if dfs(e.Target) {
					return true
				}
			}
		}
		onStack[id] = false
		return false
	}
	for id := range s.nodes {
		if !visited[id] {
			if dfs(id) {
				return true
			}
		}
	}
	return false
}

// Export snapshots the store into a GraphState of the given phase.
func (s *Store) Export(phase graphmodel.GraphPhase) *graphmodel.GraphState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := graphmodel.NewGraphState(phase)
	g.Resources = make([]graphmodel.Resource, 0, len(s.nodes))
	for _, n := range s.nodes {
		g.Resources = append(g.Resources, n.resource)
	}
	g.Edges = append(g.Edges, s.edges...)
	return g
}

// Import replaces the store's contents with the given GraphState. Edges
// referencing a missing resource are rejected (I2).
func (s *Store) Import(g *graphmodel.GraphState) error {
	s.mu.Lock()
	s.nodes = make(map[string]*node, len(g.Resources))
	for _, r := range g.Resources {
		s.nodes[r.ID] = &node{resource: r}
	}
	s.edges = nil
	s.mu.Unlock()

	for _, e := range g.Edges {
		if err := s.AddEdge(e); err != nil {
			return err
		}
	}
	return nil
}
