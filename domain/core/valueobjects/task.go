package valueobjects

import (
	"encoding/json"
	"fmt"
	"math"
)

// TaskStatus is the progress state of a task node.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
)

// ParseTaskStatus accepts one of the three known statuses.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case StatusTodo, StatusInProgress, StatusDone:
		return TaskStatus(s), nil
	default:
		return "", fmt.Errorf("unknown task status %q", s)
	}
}

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	_, err := ParseTaskStatus(string(s))
	return err == nil
}

// UnmarshalJSON rejects unknown statuses at the edge of the system.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("task status must be a string: %w", err)
	}
	parsed, err := ParseTaskStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Position is a node's location on the canvas.
type Position struct {
	X float64 `json:"x" dynamodbav:"x"`
	Y float64 `json:"y" dynamodbav:"y"`
}

// Validate rejects coordinates that cannot be serialized as JSON numbers.
func (p Position) Validate() error {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return fmt.Errorf("invalid coordinates (%v, %v)", p.X, p.Y)
	}
	return nil
}
