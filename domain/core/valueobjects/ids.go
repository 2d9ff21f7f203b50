package valueobjects

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrEmptyID   = errors.New("id cannot be empty")
	ErrInvalidID = errors.New("id must be a valid UUID")
)

// NewID returns a random 128-bit identifier in canonical UUID form.
// Projects, nodes and edges all use it.
func NewID() string {
	return uuid.NewString()
}

// ParseID validates a client-supplied identifier and returns its canonical
// lower-case form.
func ParseID(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrEmptyID
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", ErrInvalidID
	}
	return parsed.String(), nil
}
