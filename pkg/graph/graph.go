package graph

import (
	"container/heap"
	"sort"

	"github.com/pkg/errors"

	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
)

var (
	// ErrUnknownTemplate is returned when a selection names a template id
	// that is not part of the graph snapshot.
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrCycle is returned if ordering fails because the snapshot contains a
	// directed cycle. A store that validates every edge insertion never
	// produces such a snapshot.
	ErrCycle = errors.New("cycle in template graph")
)

// Graph is an immutable in-memory snapshot of the template prerequisite graph.
// It is loaded once per operation so that cycle checks and closure resolution
// run in memory instead of as per-edge queries.
//
// Edges are stored in the dependency direction: an edge (t, p) means template
// t requires template p. "Forward" traversal follows a template to its
// prerequisites.
type Graph struct {
	prereqs    map[int64][]int64 // template -> direct prerequisites, ascending
	dependents map[int64][]int64 // template -> direct dependents, ascending
	nodes      []int64           // all template ids, ascending
}

// New builds a snapshot from the known template ids and the full edge set.
// Edge endpoints missing from templateIDs are included as nodes.
func New(templateIDs []int64, edges []models.PrerequisiteEdge) *Graph {
	g := &Graph{
		prereqs:    make(map[int64][]int64),
		dependents: make(map[int64][]int64),
	}

	seen := make(map[int64]struct{}, len(templateIDs))
	add := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			g.nodes = append(g.nodes, id)
		}
	}
	for _, id := range templateIDs {
		add(id)
	}
	for _, e := range edges {
		add(e.TemplateID)
		add(e.PrerequisiteID)
		g.prereqs[e.TemplateID] = append(g.prereqs[e.TemplateID], e.PrerequisiteID)
		g.dependents[e.PrerequisiteID] = append(g.dependents[e.PrerequisiteID], e.TemplateID)
	}

	sort.Slice(g.nodes, func(i, j int) bool { return g.nodes[i] < g.nodes[j] })
	for id := range g.prereqs {
		sortIDs(g.prereqs[id])
	}
	for id := range g.dependents {
		sortIDs(g.dependents[id])
	}
	return g
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Has reports whether the template id is part of the snapshot.
func (g *Graph) Has(id int64) bool {
	i := sort.Search(len(g.nodes), func(i int) bool { return g.nodes[i] >= id })
	return i < len(g.nodes) && g.nodes[i] == id
}

// TemplateIDs returns all template ids in ascending order.
func (g *Graph) TemplateIDs() []int64 {
	out := make([]int64, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Prerequisites returns the direct prerequisites of a template, ascending.
func (g *Graph) Prerequisites(id int64) []int64 {
	return copyIDs(g.prereqs[id])
}

// Dependents returns the direct dependents of a template, ascending.
func (g *Graph) Dependents(id int64) []int64 {
	return copyIDs(g.dependents[id])
}

func copyIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}

// HasEdge reports whether the direct edge (templateID requires prerequisiteID)
// already exists.
func (g *Graph) HasEdge(templateID, prerequisiteID int64) bool {
	for _, p := range g.prereqs[templateID] {
		if p == prerequisiteID {
			return true
		}
	}
	return false
}

// Reaches reports whether `to` is reachable from `from` following
// prerequisite edges forward, i.e. whether `from` transitively requires `to`.
func (g *Graph) Reaches(from, to int64) bool {
	if from == to {
		return true
	}
	visited := map[int64]struct{}{from: {}}
	queue := []int64{from}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, p := range g.prereqs[curr] {
			if p == to {
				return true
			}
			if _, ok := visited[p]; !ok {
				visited[p] = struct{}{}
				queue = append(queue, p)
			}
		}
	}
	return false
}

// WouldCreateCycle reports whether inserting the edge (templateID requires
// prerequisiteID) would close a directed cycle: it does exactly when the
// prerequisite already (transitively) requires the template.
func (g *Graph) WouldCreateCycle(templateID, prerequisiteID int64) bool {
	return g.Reaches(prerequisiteID, templateID)
}

// Closure resolves the transitive prerequisite closure of the selection and
// returns it in topological order: every prerequisite appears before every
// template that requires it. Templates with no ordering constraint between
// them are emitted in ascending id order, so the result is a pure function of
// (snapshot, selection). Each template appears exactly once regardless of how
// many selection members require it.
func (g *Graph) Closure(selected []int64) ([]int64, error) {
	closure := make(map[int64]struct{}, len(selected))
	var queue []int64
	for _, id := range selected {
		if !g.Has(id) {
			return nil, errors.Wrapf(ErrUnknownTemplate, "template %d", id)
		}
		if _, ok := closure[id]; !ok {
			closure[id] = struct{}{}
			queue = append(queue, id)
		}
	}

	// Walk direct prerequisites until the work queue drains. Safe on any
	// acyclic snapshot; the visited set also terminates defective cyclic ones.
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, p := range g.prereqs[curr] {
			if _, ok := closure[p]; !ok {
				closure[p] = struct{}{}
				queue = append(queue, p)
			}
		}
	}

	return g.orderClosure(closure)
}

// orderClosure runs Kahn's algorithm over the closure subgraph with a min-heap
// ready queue for the ascending-id tie-break. Every direct prerequisite of a
// closure member is itself a member, so in-degrees need no filtering.
func (g *Graph) orderClosure(closure map[int64]struct{}) ([]int64, error) {
	indegree := make(map[int64]int, len(closure))
	ready := &int64MinHeap{}
	heap.Init(ready)
	for id := range closure {
		indegree[id] = len(g.prereqs[id])
		if indegree[id] == 0 {
			heap.Push(ready, id)
		}
	}

	order := make([]int64, 0, len(closure))
	for ready.Len() > 0 {
		curr := heap.Pop(ready).(int64)
		order = append(order, curr)
		for _, d := range g.dependents[curr] {
			if _, ok := closure[d]; !ok {
				continue
			}
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}
	if len(order) != len(closure) {
		return nil, ErrCycle
	}
	return order, nil
}

// AvailablePrerequisites lists the templates that may legally be added as
// direct prerequisites of templateID, ascending: the template itself, its
// existing direct prerequisites and any candidate that already (transitively)
// requires the template are excluded.
func (g *Graph) AvailablePrerequisites(templateID int64) []int64 {
	var out []int64
	for _, c := range g.nodes {
		if c == templateID {
			continue
		}
		if g.HasEdge(templateID, c) {
			continue
		}
		if g.Reaches(c, templateID) {
			continue
		}
		out = append(out, c)
	}
	return out
}

type int64MinHeap []int64

func (h int64MinHeap) Len() int            { return len(h) }
func (h int64MinHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h int64MinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *int64MinHeap) Push(x interface{}) { *h = append(*h, x.(int64)) }
func (h *int64MinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
