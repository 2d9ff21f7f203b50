// Package graph holds the live node and edge collections of an open
// project and applies canvas changes to them.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"todoflow/domain/core/entities"
	"todoflow/domain/core/valueobjects"
)

var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrSelfLoop      = errors.New("cannot connect a node to itself")
	ErrAlreadyLinked = errors.New("nodes are already connected")
	ErrIDMismatch    = errors.New("replacement item has a different id")
)

// State is the user-visible graph. It is safe for concurrent use.
//
// Changes are deltas: each batch must be applied exactly once, in the order
// the canvas emitted it.
type State struct {
	mu       sync.RWMutex
	nodes    []entities.TaskNode
	edges    []entities.TaskEdge
	selected map[string]bool
	dims     map[string]Dimensions
	logger   *zap.Logger
}

// New returns an empty graph.
func New() *State {
	return NewWithLogger(nil)
}

// NewWithLogger returns an empty graph that logs the canvas changes it
// refuses.
func NewWithLogger(logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{
		selected: make(map[string]bool),
		dims:     make(map[string]Dimensions),
		logger:   logger,
	}
}

// Load replaces both collections wholesale and clears view state.
func (s *State) Load(nodes []entities.TaskNode, edges []entities.TaskEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = slices.Clone(nodes)
	s.edges = slices.Clone(edges)
	clear(s.selected)
	clear(s.dims)
}

// Nodes returns a copy of the node collection.
func (s *State) Nodes() []entities.TaskNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.nodes)
}

// Edges returns a copy of the edge collection.
func (s *State) Edges() []entities.TaskEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.edges)
}

// Snapshot returns consistent copies of both collections.
func (s *State) Snapshot() ([]entities.TaskNode, []entities.TaskEdge) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.nodes), slices.Clone(s.edges)
}

// Update replaces both collections with the result of fn, atomically with
// respect to canvas changes. View state of surviving ids is kept.
func (s *State) Update(fn func(nodes []entities.TaskNode, edges []entities.TaskEdge) ([]entities.TaskNode, []entities.TaskEdge)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes, s.edges = fn(slices.Clone(s.nodes), slices.Clone(s.edges))

	alive := make(map[string]bool, len(s.nodes)+len(s.edges))
	for _, n := range s.nodes {
		alive[n.ID] = true
	}
	for _, e := range s.edges {
		alive[e.ID] = true
	}
	for id := range s.selected {
		if !alive[id] {
			delete(s.selected, id)
		}
	}
	for id := range s.dims {
		if !alive[id] {
			delete(s.dims, id)
		}
	}
}

// IsSelected reports the canvas selection state of a node or edge.
func (s *State) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected[id]
}

// ApplyNodeChanges applies a batch of node changes and returns the new node
// collection. Changes naming unknown ids are skipped, and so are changes that
// would leave an invalid node behind. Removing a node also removes the edges
// attached to it.
func (s *State) ApplyNodeChanges(changes []NodeChange) []entities.TaskNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range changes {
		switch c.Type {
		case NodeAdd:
			if c.Item == nil || s.nodeIndex(c.Item.ID) >= 0 {
				continue
			}
			if err := c.Item.Validate(); err != nil {
				s.skip(string(c.Type), c.Item.ID, err)
				continue
			}
			s.nodes = append(s.nodes, *c.Item)
		case NodeReplace:
			i := s.nodeIndex(c.ID)
			if i < 0 || c.Item == nil {
				continue
			}
			if err := checkReplacement(c.ID, c.Item.ID, c.Item.Validate); err != nil {
				s.skip(string(c.Type), c.ID, err)
				continue
			}
			s.nodes[i] = *c.Item
		case NodeRemove:
			if i := s.nodeIndex(c.ID); i >= 0 {
				s.nodes = slices.Delete(s.nodes, i, i+1)
				s.edges = slices.DeleteFunc(s.edges, func(e entities.TaskEdge) bool {
					return e.Source == c.ID || e.Target == c.ID
				})
				delete(s.selected, c.ID)
				delete(s.dims, c.ID)
			}
		case NodePosition:
			i := s.nodeIndex(c.ID)
			if i < 0 || c.Position == nil {
				continue
			}
			if err := c.Position.Validate(); err != nil {
				s.skip(string(c.Type), c.ID, err)
				continue
			}
			s.nodes[i].Position = *c.Position
		case NodeData:
			i := s.nodeIndex(c.ID)
			if i < 0 || c.Data == nil {
				continue
			}
			n := s.nodes[i]
			applyData(&n, *c.Data)
			if err := n.Validate(); err != nil {
				s.skip(string(c.Type), c.ID, err)
				continue
			}
			s.nodes[i] = n
		case NodeSelect:
			if c.Selected != nil && s.nodeIndex(c.ID) >= 0 {
				s.selected[c.ID] = *c.Selected
			}
		case NodeDimensions:
			if c.Dimensions != nil && s.nodeIndex(c.ID) >= 0 {
				s.dims[c.ID] = *c.Dimensions
			}
		}
	}
	return slices.Clone(s.nodes)
}

// ApplyEdgeChanges applies a batch of edge changes and returns the new edge
// collection. An added or replacing edge must be valid and join two present
// nodes; otherwise it is skipped.
func (s *State) ApplyEdgeChanges(changes []EdgeChange) []entities.TaskEdge {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range changes {
		switch c.Type {
		case EdgeAdd:
			if c.Item == nil || s.edgeIndex(c.Item.ID) >= 0 {
				continue
			}
			if err := s.checkEdge(*c.Item); err != nil {
				s.skip(string(c.Type), c.Item.ID, err)
				continue
			}
			s.edges = append(s.edges, *c.Item)
		case EdgeReplace:
			i := s.edgeIndex(c.ID)
			if i < 0 || c.Item == nil {
				continue
			}
			item := *c.Item
			if err := checkReplacement(c.ID, item.ID, func() error { return s.checkEdge(item) }); err != nil {
				s.skip(string(c.Type), c.ID, err)
				continue
			}
			s.edges[i] = item
		case EdgeRemove:
			if i := s.edgeIndex(c.ID); i >= 0 {
				s.edges = slices.Delete(s.edges, i, i+1)
				delete(s.selected, c.ID)
			}
		case EdgeSelect:
			if c.Selected != nil && s.edgeIndex(c.ID) >= 0 {
				s.selected[c.ID] = *c.Selected
			}
		}
	}
	return slices.Clone(s.edges)
}

// AddNode appends a new TODO task with a random id.
func (s *State) AddNode(title string, pos valueobjects.Position) entities.TaskNode {
	n := entities.NewTaskNode(title, pos)
	s.mu.Lock()
	s.nodes = append(s.nodes, n)
	s.mu.Unlock()
	return n
}

// UpdateNodeData edits a node's content in place. An edit that would make
// the node invalid is refused and leaves it unchanged.
func (s *State) UpdateNodeData(id string, change DataChange) (entities.TaskNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.nodeIndex(id)
	if i < 0 {
		return entities.TaskNode{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	n := s.nodes[i]
	applyData(&n, change)
	if err := n.Validate(); err != nil {
		return s.nodes[i], err
	}
	s.nodes[i] = n
	return n, nil
}

// Connect appends an edge from source to target. Both nodes must exist and a
// second edge between the same pair is refused.
func (s *State) Connect(source, target string) (entities.TaskEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if source == target {
		return entities.TaskEdge{}, ErrSelfLoop
	}
	for _, id := range []string{source, target} {
		if s.nodeIndex(id) < 0 {
			return entities.TaskEdge{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
	}
	if slices.ContainsFunc(s.edges, func(e entities.TaskEdge) bool {
		return e.Source == source && e.Target == target
	}) {
		return entities.TaskEdge{}, ErrAlreadyLinked
	}

	e := entities.NewTaskEdge(source, target)
	s.edges = append(s.edges, e)
	return e, nil
}

// checkEdge validates e on its own and against the current nodes; callers
// hold mu.
func (s *State) checkEdge(e entities.TaskEdge) error {
	if err := e.Validate(); err != nil {
		return err
	}
	for _, id := range []string{e.Source, e.Target} {
		if s.nodeIndex(id) < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
	}
	return nil
}

func checkReplacement(id, itemID string, validate func() error) error {
	if id != itemID {
		return fmt.Errorf("%w: %s replaced by %s", ErrIDMismatch, id, itemID)
	}
	return validate()
}

func (s *State) skip(change, id string, err error) {
	s.logger.Warn("Skipping invalid canvas change",
		zap.String("change", change),
		zap.String("id", id),
		zap.Error(err),
	)
}

func applyData(n *entities.TaskNode, c DataChange) {
	if c.Title != nil {
		n.Data.Title = *c.Title
	}
	if c.Description != nil {
		n.Data.Description = *c.Description
	}
	if c.Status != nil {
		n.Data.Status = *c.Status
	}
}

func (s *State) nodeIndex(id string) int {
	return slices.IndexFunc(s.nodes, func(n entities.TaskNode) bool { return n.ID == id })
}

func (s *State) edgeIndex(id string) int {
	return slices.IndexFunc(s.edges, func(e entities.TaskEdge) bool { return e.ID == id })
}
