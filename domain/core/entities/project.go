package entities

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"todoflow/domain/events"
	pkgerrors "todoflow/pkg/errors"
)

const (
	MaxProjectNameLength = 120
	MaxNodesPerProject   = 2000
)

// Project is a named task graph owned by one user. It is the consistency
// boundary for nodes and edges.
type Project struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"-"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Version   int64      `json:"version"`
	Nodes     []TaskNode `json:"nodes"`
	Edges     []TaskEdge `json:"edges"`

	pending []events.DomainEvent
}

// GraphPatch is the partial update produced by the client's diff. Adds and
// updates carry whole objects; removals carry ids.
type GraphPatch struct {
	NodesToAdd    []TaskNode `json:"nodesToAdd,omitempty"`
	NodesToRemove []string   `json:"nodesToRemove,omitempty"`
	NodesToUpdate []TaskNode `json:"nodesToUpdate,omitempty"`
	EdgesToAdd    []TaskEdge `json:"edgesToAdd,omitempty"`
	EdgesToRemove []string   `json:"edgesToRemove,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p GraphPatch) IsEmpty() bool {
	return len(p.NodesToAdd) == 0 && len(p.NodesToRemove) == 0 && len(p.NodesToUpdate) == 0 &&
		len(p.EdgesToAdd) == 0 && len(p.EdgesToRemove) == 0
}

// NewProject creates an empty project. UpdatedAt stays nil until the first
// accepted mutation.
func NewProject(id, ownerID, name string, now time.Time) (*Project, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	p := &Project{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: now.UTC(),
		Version:   1,
		Nodes:     []TaskNode{},
		Edges:     []TaskEdge{},
	}
	p.record(events.ProjectCreated{BaseEvent: p.baseEvent(events.TypeProjectCreated, now), Name: name})
	return p, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", pkgerrors.NewValidationError("project name is required")
	}
	if len(name) > MaxProjectNameLength {
		return "", pkgerrors.NewValidationError(fmt.Sprintf("project name exceeds %d characters", MaxProjectNameLength))
	}
	return name, nil
}

// Rename changes the project's name.
func (p *Project) Rename(name string, now time.Time) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	if name == p.Name {
		return nil
	}
	old := p.Name
	p.Name = name
	p.touch(now)
	p.record(events.ProjectRenamed{BaseEvent: p.baseEvent(events.TypeProjectRenamed, now), OldName: old, NewName: name})
	return nil
}

// PatchResult reports server-side corrections made while applying a patch.
type PatchResult struct {
	CascadedEdges []string
}

// ApplyPatch applies patch atomically: on error the project is unchanged.
//
// Order: node removals, node updates, node adds, edge removals, edge adds.
// Removing and re-adding an id in one patch therefore replaces it. Edges
// left dangling by node removals are dropped and reported.
func (p *Project) ApplyPatch(patch GraphPatch, now time.Time) (PatchResult, error) {
	var result PatchResult
	if patch.IsEmpty() {
		return result, nil
	}

	nodes := slices.Clone(p.Nodes)
	edges := slices.Clone(p.Edges)

	if len(patch.NodesToRemove) > 0 {
		drop := toSet(patch.NodesToRemove)
		nodes = slices.DeleteFunc(nodes, func(n TaskNode) bool { return drop[n.ID] })
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	for _, n := range patch.NodesToUpdate {
		if err := n.Validate(); err != nil {
			return result, err
		}
		i, ok := index[n.ID]
		if !ok {
			return result, pkgerrors.NewNotFoundError(fmt.Sprintf("node %s", n.ID)).
				WithCode(pkgerrors.CodeUnknownNode)
		}
		nodes[i] = n
	}

	for _, n := range patch.NodesToAdd {
		if err := n.Validate(); err != nil {
			return result, err
		}
		if _, dup := index[n.ID]; dup {
			return result, pkgerrors.NewConflictError(fmt.Sprintf("node %s already exists", n.ID)).
				WithCode(pkgerrors.CodeDuplicateNode)
		}
		index[n.ID] = len(nodes)
		nodes = append(nodes, n)
	}
	if len(nodes) > MaxNodesPerProject {
		return result, pkgerrors.NewValidationError(fmt.Sprintf("project exceeds %d nodes", MaxNodesPerProject))
	}

	if len(patch.EdgesToRemove) > 0 {
		drop := toSet(patch.EdgesToRemove)
		edges = slices.DeleteFunc(edges, func(e TaskEdge) bool { return drop[e.ID] })
	}

	edges = slices.DeleteFunc(edges, func(e TaskEdge) bool {
		_, okSource := index[e.Source]
		_, okTarget := index[e.Target]
		if okSource && okTarget {
			return false
		}
		result.CascadedEdges = append(result.CascadedEdges, e.ID)
		return true
	})

	edgeIDs := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		edgeIDs[e.ID] = struct{}{}
	}
	for _, e := range patch.EdgesToAdd {
		if err := e.Validate(); err != nil {
			return result, err
		}
		if _, dup := edgeIDs[e.ID]; dup {
			return result, pkgerrors.NewConflictError(fmt.Sprintf("edge %s already exists", e.ID)).
				WithCode(pkgerrors.CodeDuplicateEdge)
		}
		_, okSource := index[e.Source]
		_, okTarget := index[e.Target]
		if !okSource || !okTarget {
			return result, pkgerrors.NewIntegrityError(fmt.Sprintf("edge %s references a missing node", e.ID)).
				WithCode(pkgerrors.CodeDanglingEdge).
				WithDetails(map[string]any{"edgeId": e.ID, "source": e.Source, "target": e.Target})
		}
		edgeIDs[e.ID] = struct{}{}
		edges = append(edges, e)
	}

	p.Nodes = nodes
	p.Edges = edges
	p.touch(now)
	p.record(events.ProjectPatched{
		BaseEvent:     p.baseEvent(events.TypeProjectPatched, now),
		NodesAdded:    len(patch.NodesToAdd),
		NodesUpdated:  len(patch.NodesToUpdate),
		NodesRemoved:  len(patch.NodesToRemove),
		EdgesAdded:    len(patch.EdgesToAdd),
		EdgesRemoved:  len(patch.EdgesToRemove),
		EdgesCascaded: len(result.CascadedEdges),
	})
	return result, nil
}

// Summary returns a copy without the graph, as served by the list endpoint.
func (p *Project) Summary() Project {
	return Project{
		ID:        p.ID,
		OwnerID:   p.OwnerID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Version:   p.Version,
	}
}

// Clone returns a deep copy without pending events.
func (p *Project) Clone() *Project {
	c := p.Summary()
	c.Nodes = slices.Clone(p.Nodes)
	c.Edges = slices.Clone(p.Edges)
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

// PendingEvents returns events recorded since the last MarkEventsCommitted.
func (p *Project) PendingEvents() []events.DomainEvent {
	return slices.Clone(p.pending)
}

// MarkEventsCommitted clears the pending events after publication.
func (p *Project) MarkEventsCommitted() {
	p.pending = nil
}

func (p *Project) touch(now time.Time) {
	t := now.UTC()
	p.UpdatedAt = &t
	p.Version++
}

func (p *Project) record(e events.DomainEvent) {
	p.pending = append(p.pending, e)
}

func (p *Project) baseEvent(eventType string, now time.Time) events.BaseEvent {
	return events.BaseEvent{
		AggregateID: p.ID,
		EventType:   eventType,
		OwnerID:     p.OwnerID,
		Timestamp:   now.UTC(),
		Version:     p.Version,
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
