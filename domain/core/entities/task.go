package entities

import (
	"fmt"
	"strings"

	"todoflow/domain/core/valueobjects"
	pkgerrors "todoflow/pkg/errors"
)

// TaskType is the only node and edge type the board renders.
const TaskType = "task"

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
)

// TaskData is the editable content of a task node.
type TaskData struct {
	Title       string                  `json:"title" dynamodbav:"title"`
	Description string                  `json:"description" dynamodbav:"description"`
	Status      valueobjects.TaskStatus `json:"status" dynamodbav:"status"`
}

// TaskNode is one task on the board.
type TaskNode struct {
	ID       string                `json:"id" dynamodbav:"id"`
	Type     string                `json:"type" dynamodbav:"type"`
	Position valueobjects.Position `json:"position" dynamodbav:"position"`
	Data     TaskData              `json:"data" dynamodbav:"data"`
}

// NewTaskNode creates a TODO task with a fresh id.
func NewTaskNode(title string, pos valueobjects.Position) TaskNode {
	return TaskNode{
		ID:       valueobjects.NewID(),
		Type:     TaskType,
		Position: pos,
		Data:     TaskData{Title: title, Status: valueobjects.StatusTodo},
	}
}

// Validate checks the node's id, type, content and position.
func (n TaskNode) Validate() error {
	if _, err := valueobjects.ParseID(n.ID); err != nil {
		return pkgerrors.NewValidationError(fmt.Sprintf("node id %q: %v", n.ID, err))
	}
	if n.Type != TaskType {
		return pkgerrors.NewValidationError(fmt.Sprintf("node %s: unsupported type %q", n.ID, n.Type))
	}
	if len(n.Data.Title) > MaxTitleLength {
		return pkgerrors.NewValidationError(fmt.Sprintf("node %s: title exceeds %d characters", n.ID, MaxTitleLength))
	}
	if len(n.Data.Description) > MaxDescriptionLength {
		return pkgerrors.NewValidationError(fmt.Sprintf("node %s: description exceeds %d characters", n.ID, MaxDescriptionLength))
	}
	if !n.Data.Status.IsValid() {
		return pkgerrors.NewValidationError(fmt.Sprintf("node %s: unknown status %q", n.ID, n.Data.Status))
	}
	if err := n.Position.Validate(); err != nil {
		return pkgerrors.NewValidationError(fmt.Sprintf("node %s: %v", n.ID, err))
	}
	return nil
}

// TaskEdge is a directed dependency between two task nodes.
type TaskEdge struct {
	ID            string `json:"id" dynamodbav:"id"`
	Source        string `json:"source" dynamodbav:"source"`
	Target        string `json:"target" dynamodbav:"target"`
	Type          string `json:"type" dynamodbav:"type"`
	Animated      bool   `json:"animated" dynamodbav:"animated"`
	Deletable     bool   `json:"deletable" dynamodbav:"deletable"`
	Reconnectable bool   `json:"reconnectable" dynamodbav:"reconnectable"`
}

// NewTaskEdge connects source to target with the board's default flags.
func NewTaskEdge(source, target string) TaskEdge {
	return TaskEdge{
		ID:            valueobjects.NewID(),
		Source:        source,
		Target:        target,
		Type:          TaskType,
		Deletable:     true,
		Reconnectable: true,
	}
}

// Validate checks the edge in isolation; endpoint existence is a graph
// concern, see ValidateGraph.
func (e TaskEdge) Validate() error {
	if _, err := valueobjects.ParseID(e.ID); err != nil {
		return pkgerrors.NewValidationError(fmt.Sprintf("edge id %q: %v", e.ID, err))
	}
	if strings.TrimSpace(e.Source) == "" || strings.TrimSpace(e.Target) == "" {
		return pkgerrors.NewValidationError(fmt.Sprintf("edge %s: source and target are required", e.ID))
	}
	if e.Source == e.Target {
		return pkgerrors.NewValidationError(fmt.Sprintf("edge %s: self-loops are not allowed", e.ID))
	}
	return nil
}

// ValidateGraph enforces the referential rules of a node/edge set: unique
// ids and no dangling edges.
func ValidateGraph(nodes []TaskNode, edges []TaskEdge) error {
	ids := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := ids[n.ID]; dup {
			return pkgerrors.NewIntegrityError(fmt.Sprintf("duplicate node id %s", n.ID)).
				WithCode(pkgerrors.CodeDuplicateNode)
		}
		ids[n.ID] = struct{}{}
	}

	edgeIDs := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		if _, dup := edgeIDs[e.ID]; dup {
			return pkgerrors.NewIntegrityError(fmt.Sprintf("duplicate edge id %s", e.ID)).
				WithCode(pkgerrors.CodeDuplicateEdge)
		}
		edgeIDs[e.ID] = struct{}{}

		_, okSource := ids[e.Source]
		_, okTarget := ids[e.Target]
		if !okSource || !okTarget {
			return pkgerrors.NewIntegrityError(fmt.Sprintf("edge %s references a missing node", e.ID)).
				WithCode(pkgerrors.CodeDanglingEdge).
				WithDetails(map[string]any{"edgeId": e.ID, "source": e.Source, "target": e.Target})
		}
	}
	return nil
}
