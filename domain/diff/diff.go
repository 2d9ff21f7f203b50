// Package diff computes the minimal change set between two versions of a
// project graph. It is pure: results depend only on the inputs.
package diff

import (
	"todoflow/domain/core/entities"
)

// Result partitions the ids of prev ∪ curr into added, removed, updated and
// (implicitly) unchanged items.
type Result[T any] struct {
	ToAdd    []T
	ToRemove []T
	ToUpdate []T
}

// IsEmpty reports whether nothing changed.
func (r Result[T]) IsEmpty() bool {
	return len(r.ToAdd) == 0 && len(r.ToRemove) == 0 && len(r.ToUpdate) == 0
}

// compute diffs two collections keyed by id. ToAdd and ToUpdate follow the
// order of curr, ToRemove the order of prev. If an id repeats within one
// collection only its first occurrence counts.
func compute[T any](prev, curr []T, id func(T) string, changed func(before, after T) bool) Result[T] {
	var r Result[T]

	before := make(map[string]T, len(prev))
	for _, item := range prev {
		if _, seen := before[id(item)]; !seen {
			before[id(item)] = item
		}
	}

	seen := make(map[string]struct{}, len(curr))
	for _, item := range curr {
		key := id(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		old, existed := before[key]
		switch {
		case !existed:
			r.ToAdd = append(r.ToAdd, item)
		case changed(old, item):
			r.ToUpdate = append(r.ToUpdate, item)
		}
	}

	removed := make(map[string]struct{})
	for _, item := range prev {
		key := id(item)
		if _, still := seen[key]; still {
			continue
		}
		if _, done := removed[key]; done {
			continue
		}
		removed[key] = struct{}{}
		r.ToRemove = append(r.ToRemove, item)
	}

	return r
}

func nodeID(n entities.TaskNode) string { return n.ID }
func edgeID(e entities.TaskEdge) string { return e.ID }

// nodeChanged compares the watched node fields: title, description,
// status, position and type.
func nodeChanged(a, b entities.TaskNode) bool {
	return a.Data.Title != b.Data.Title ||
		a.Data.Description != b.Data.Description ||
		a.Data.Status != b.Data.Status ||
		a.Position.X != b.Position.X ||
		a.Position.Y != b.Position.Y ||
		a.Type != b.Type
}

// edgeChanged compares structural identity only; presentation flags such as
// animated never produce an update.
func edgeChanged(a, b entities.TaskEdge) bool {
	return a.Source != b.Source || a.Target != b.Target || a.Type != b.Type
}

// Nodes diffs two node collections.
func Nodes(prev, curr []entities.TaskNode) Result[entities.TaskNode] {
	return compute(prev, curr, nodeID, nodeChanged)
}

// Edges diffs two edge collections.
func Edges(prev, curr []entities.TaskEdge) Result[entities.TaskEdge] {
	return compute(prev, curr, edgeID, edgeChanged)
}

// Graph is the combined node and edge diff of a project.
type Graph struct {
	Nodes Result[entities.TaskNode]
	Edges Result[entities.TaskEdge]
}

// Compute diffs a snapshot against the current graph.
func Compute(prevNodes []entities.TaskNode, prevEdges []entities.TaskEdge, currNodes []entities.TaskNode, currEdges []entities.TaskEdge) Graph {
	return Graph{
		Nodes: Nodes(prevNodes, currNodes),
		Edges: Edges(prevEdges, currEdges),
	}
}

// IsEmpty reports whether neither nodes nor edges changed.
func (g Graph) IsEmpty() bool {
	return g.Nodes.IsEmpty() && g.Edges.IsEmpty()
}

// Patch converts the diff to the wire patch. The patch format has no edge
// update list, so a structurally changed edge is sent as a removal plus an
// add under the same id; the server applies removals first.
func (g Graph) Patch() entities.GraphPatch {
	p := entities.GraphPatch{
		NodesToAdd:    g.Nodes.ToAdd,
		NodesToUpdate: g.Nodes.ToUpdate,
		NodesToRemove: ids(g.Nodes.ToRemove, nodeID),
		EdgesToRemove: ids(g.Edges.ToRemove, edgeID),
		EdgesToAdd:    g.Edges.ToAdd,
	}
	if len(g.Edges.ToUpdate) > 0 {
		p.EdgesToRemove = append(p.EdgesToRemove, ids(g.Edges.ToUpdate, edgeID)...)
		p.EdgesToAdd = append(append([]entities.TaskEdge(nil), p.EdgesToAdd...), g.Edges.ToUpdate...)
	}
	return p
}

func ids[T any](items []T, id func(T) string) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = id(item)
	}
	return out
}
