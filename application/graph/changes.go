package graph

import (
	"todoflow/domain/core/entities"
	"todoflow/domain/core/valueobjects"
)

// NodeChangeType names a canvas node mutation.
type NodeChangeType string

const (
	NodeAdd        NodeChangeType = "add"
	NodeRemove     NodeChangeType = "remove"
	NodePosition   NodeChangeType = "position"
	NodeData       NodeChangeType = "data"
	NodeSelect     NodeChangeType = "select"
	NodeDimensions NodeChangeType = "dimensions"
	NodeReplace    NodeChangeType = "replace"
)

// EdgeChangeType names a canvas edge mutation.
type EdgeChangeType string

const (
	EdgeAdd     EdgeChangeType = "add"
	EdgeRemove  EdgeChangeType = "remove"
	EdgeSelect  EdgeChangeType = "select"
	EdgeReplace EdgeChangeType = "replace"
)

// Dimensions is the rendered size the canvas reports for a node.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DataChange is a partial edit of a node's content; nil fields are kept.
type DataChange struct {
	Title       *string                  `json:"title,omitempty"`
	Description *string                  `json:"description,omitempty"`
	Status      *valueobjects.TaskStatus `json:"status,omitempty"`
}

// NodeChange is one node mutation emitted by the canvas.
type NodeChange struct {
	Type       NodeChangeType         `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Item       *entities.TaskNode     `json:"item,omitempty"`
	Position   *valueobjects.Position `json:"position,omitempty"`
	Dragging   bool                   `json:"dragging,omitempty"`
	Data       *DataChange            `json:"data,omitempty"`
	Selected   *bool                  `json:"selected,omitempty"`
	Dimensions *Dimensions            `json:"dimensions,omitempty"`
}

// EdgeChange is one edge mutation emitted by the canvas.
type EdgeChange struct {
	Type     EdgeChangeType     `json:"type"`
	ID       string             `json:"id,omitempty"`
	Item     *entities.TaskEdge `json:"item,omitempty"`
	Selected *bool              `json:"selected,omitempty"`
}

// Mutates reports whether applying c can change what gets synced.
// Selection and measurement are view state only.
func (c NodeChange) Mutates() bool {
	return c.Type != NodeSelect && c.Type != NodeDimensions
}

// Mutates reports whether applying c can change what gets synced.
func (c EdgeChange) Mutates() bool {
	return c.Type != EdgeSelect
}
