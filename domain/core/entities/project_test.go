package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoflow/domain/core/valueobjects"
	"todoflow/domain/events"
	pkgerrors "todoflow/pkg/errors"
)

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestProject(t *testing.T) *Project {
	t.Helper()
	p, err := NewProject(valueobjects.NewID(), "owner-1", "  Project 1 ", t0)
	require.NoError(t, err)
	p.MarkEventsCommitted()
	return p
}

func node(title string) TaskNode {
	return NewTaskNode(title, valueobjects.Position{X: 1, Y: 2})
}

func TestNewProject(t *testing.T) {
	t.Run("Should trim name and leave updatedAt unset", func(t *testing.T) {
		p, err := NewProject("p1", "owner-1", "  Project 1 ", t0)

		require.NoError(t, err)
		assert.Equal(t, "Project 1", p.Name)
		assert.Nil(t, p.UpdatedAt)
		assert.Equal(t, int64(1), p.Version)
		require.Len(t, p.PendingEvents(), 1)
		assert.Equal(t, events.TypeProjectCreated, p.PendingEvents()[0].GetEventType())
	})

	t.Run("Should reject an empty name", func(t *testing.T) {
		_, err := NewProject("p1", "owner-1", "   ", t0)

		assert.True(t, pkgerrors.IsValidation(err))
	})
}

func TestProject_Rename(t *testing.T) {
	// Arrange
	p := newTestProject(t)
	later := t0.Add(time.Minute)

	// Act
	err := p.Rename("Renamed", later)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)
	require.NotNil(t, p.UpdatedAt)
	assert.Equal(t, later, *p.UpdatedAt)
	assert.Equal(t, int64(2), p.Version)

	require.NoError(t, p.Rename("Renamed", later.Add(time.Minute)))
	assert.Equal(t, int64(2), p.Version, "same name is a no-op")
}

func TestProject_ApplyPatch(t *testing.T) {
	a, b, c := node("a"), node("b"), node("c")
	ab := NewTaskEdge(a.ID, b.ID)
	bc := NewTaskEdge(b.ID, c.ID)

	t.Run("Should add nodes and edges", func(t *testing.T) {
		p := newTestProject(t)

		res, err := p.ApplyPatch(GraphPatch{NodesToAdd: []TaskNode{a, b}, EdgesToAdd: []TaskEdge{ab}}, t0)

		require.NoError(t, err)
		assert.Empty(t, res.CascadedEdges)
		assert.Len(t, p.Nodes, 2)
		assert.Equal(t, []TaskEdge{ab}, p.Edges)
		assert.NotNil(t, p.UpdatedAt)
	})

	t.Run("Should cascade edges of removed nodes", func(t *testing.T) {
		p := newTestProject(t)
		_, err := p.ApplyPatch(GraphPatch{NodesToAdd: []TaskNode{a, b, c}, EdgesToAdd: []TaskEdge{ab, bc}}, t0)
		require.NoError(t, err)

		res, err := p.ApplyPatch(GraphPatch{NodesToRemove: []string{c.ID}}, t0)

		require.NoError(t, err)
		assert.Equal(t, []string{bc.ID}, res.CascadedEdges)
		assert.Equal(t, []TaskEdge{ab}, p.Edges)
	})

	t.Run("Should replace an edge removed and re-added under one id", func(t *testing.T) {
		p := newTestProject(t)
		_, err := p.ApplyPatch(GraphPatch{NodesToAdd: []TaskNode{a, b, c}, EdgesToAdd: []TaskEdge{ab}}, t0)
		require.NoError(t, err)
		moved := ab
		moved.Target = c.ID

		_, err = p.ApplyPatch(GraphPatch{EdgesToRemove: []string{ab.ID}, EdgesToAdd: []TaskEdge{moved}}, t0)

		require.NoError(t, err)
		assert.Equal(t, []TaskEdge{moved}, p.Edges)
	})

	t.Run("Should update node content", func(t *testing.T) {
		p := newTestProject(t)
		_, err := p.ApplyPatch(GraphPatch{NodesToAdd: []TaskNode{a}}, t0)
		require.NoError(t, err)
		edited := a
		edited.Data.Status = valueobjects.StatusDone

		_, err = p.ApplyPatch(GraphPatch{NodesToUpdate: []TaskNode{edited}}, t0)

		require.NoError(t, err)
		assert.Equal(t, valueobjects.StatusDone, p.Nodes[0].Data.Status)
	})

	failures := []struct {
		name     string
		patch    GraphPatch
		wantCode string
	}{
		{"duplicate node", GraphPatch{NodesToAdd: []TaskNode{a}}, pkgerrors.CodeDuplicateNode},
		{"unknown update", GraphPatch{NodesToUpdate: []TaskNode{c}}, pkgerrors.CodeUnknownNode},
		{"dangling edge", GraphPatch{EdgesToAdd: []TaskEdge{bc}}, pkgerrors.CodeDanglingEdge},
		{"duplicate edge", GraphPatch{EdgesToAdd: []TaskEdge{ab}}, pkgerrors.CodeDuplicateEdge},
	}
	for _, tt := range failures {
		t.Run("Should reject "+tt.name+" atomically", func(t *testing.T) {
			p := newTestProject(t)
			_, err := p.ApplyPatch(GraphPatch{NodesToAdd: []TaskNode{a, b}, EdgesToAdd: []TaskEdge{ab}}, t0)
			require.NoError(t, err)
			before := p.Clone()

			_, err = p.ApplyPatch(tt.patch, t0.Add(time.Hour))

			assert.True(t, pkgerrors.HasCode(err, tt.wantCode), "got %v", err)
			assert.Equal(t, before.Nodes, p.Nodes)
			assert.Equal(t, before.Edges, p.Edges)
			assert.Equal(t, before.Version, p.Version)
		})
	}

	t.Run("Should treat an empty patch as a no-op", func(t *testing.T) {
		p := newTestProject(t)

		_, err := p.ApplyPatch(GraphPatch{}, t0)

		require.NoError(t, err)
		assert.Nil(t, p.UpdatedAt)
		assert.Empty(t, p.PendingEvents())
	})
}

func TestValidateGraph(t *testing.T) {
	a, b := node("a"), node("b")

	assert.NoError(t, ValidateGraph([]TaskNode{a, b}, []TaskEdge{NewTaskEdge(a.ID, b.ID)}))

	err := ValidateGraph([]TaskNode{a}, []TaskEdge{NewTaskEdge(a.ID, b.ID)})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDanglingEdge))

	err = ValidateGraph([]TaskNode{a, a}, nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDuplicateNode))
}

func TestTaskNode_Validate(t *testing.T) {
	good := node("ok")
	assert.NoError(t, good.Validate())

	badType := good
	badType.Type = "note"
	assert.Error(t, badType.Validate())

	badID := good
	badID.ID = "n1"
	assert.Error(t, badID.Validate())

	badStatus := good
	badStatus.Data.Status = "LATER"
	assert.Error(t, badStatus.Validate())
}
