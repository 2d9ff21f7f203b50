package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"todoflow/application/mocks"
	"todoflow/domain/core/entities"
	"todoflow/domain/core/valueobjects"
	"todoflow/domain/events"
	"todoflow/infrastructure/persistence/memory"
	pkgerrors "todoflow/pkg/errors"
)

func newProjectService(t *testing.T) (*ProjectService, *memory.ProjectRepository, *mocks.EventPublisher) {
	t.Helper()
	repo := memory.NewProjectRepository()
	pub := &mocks.EventPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewProjectService(repo, pub, zap.NewNop()), repo, pub
}

func p0() time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func publishedTypes(pub *mocks.EventPublisher) []string {
	var types []string
	for _, call := range pub.Calls {
		for _, e := range call.Arguments.Get(1).([]events.DomainEvent) {
			types = append(types, e.GetEventType())
		}
	}
	return types
}

func TestProjectService_CreateAndRename(t *testing.T) {
	// Arrange
	svc, _, pub := newProjectService(t)
	ctx := context.Background()

	// Act
	created, err := svc.Create(ctx, "owner-1", "  Launch  ")
	require.NoError(t, err)
	renamed, err := svc.Rename(ctx, "owner-1", created.ID, "Launch v2")
	require.NoError(t, err)
	list, err := svc.List(ctx, "owner-1")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "Launch", created.Name)
	assert.Nil(t, created.UpdatedAt)
	assert.Equal(t, "Launch v2", renamed.Name)
	assert.NotNil(t, renamed.UpdatedAt)
	assert.Equal(t, created.Version+1, renamed.Version)
	require.Len(t, list, 1)
	assert.Equal(t, "Launch v2", list[0].Name)
	assert.Nil(t, list[0].Nodes)
	assert.Nil(t, list[0].Edges)
	assert.Equal(t, []string{events.TypeProjectCreated, events.TypeProjectRenamed}, publishedTypes(pub))
}

func TestProjectService_OwnerScoping(t *testing.T) {
	// Arrange
	svc, _, _ := newProjectService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, "owner-1", "Mine")
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{"get", func() error { _, err := svc.Get(ctx, "owner-2", p.ID); return err }},
		{"rename", func() error { _, err := svc.Rename(ctx, "owner-2", p.ID, "Theirs"); return err }},
		{"delete", func() error { return svc.Delete(ctx, "owner-2", p.ID) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, pkgerrors.IsNotFound(tt.call()))
		})
	}

	list, err := svc.List(ctx, "owner-2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProjectService_Patch(t *testing.T) {
	ctx := context.Background()
	a := entities.NewTaskNode("A", valueobjects.Position{X: 0, Y: 0})
	b := entities.NewTaskNode("B", valueobjects.Position{X: 100, Y: 0})
	ab := entities.NewTaskEdge(a.ID, b.ID)

	t.Run("applies nodes then edges", func(t *testing.T) {
		// Arrange
		svc, _, pub := newProjectService(t)
		p, err := svc.Create(ctx, "owner-1", "Graph")
		require.NoError(t, err)

		// Act
		res, err := svc.Patch(ctx, "owner-1", p.ID, entities.GraphPatch{
			NodesToAdd: []entities.TaskNode{a, b},
			EdgesToAdd: []entities.TaskEdge{ab},
		})

		// Assert
		require.NoError(t, err)
		assert.Len(t, res.Project.Nodes, 2)
		assert.Len(t, res.Project.Edges, 1)
		stored, err := svc.Get(ctx, "owner-1", p.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Project.Version, stored.Version)
		assert.Contains(t, publishedTypes(pub), events.TypeProjectPatched)
	})

	t.Run("node removal cascades edges", func(t *testing.T) {
		// Arrange
		svc, _, _ := newProjectService(t)
		p, err := svc.Create(ctx, "owner-1", "Graph")
		require.NoError(t, err)
		_, err = svc.Patch(ctx, "owner-1", p.ID, entities.GraphPatch{
			NodesToAdd: []entities.TaskNode{a, b},
			EdgesToAdd: []entities.TaskEdge{ab},
		})
		require.NoError(t, err)

		// Act
		res, err := svc.Patch(ctx, "owner-1", p.ID, entities.GraphPatch{NodesToRemove: []string{a.ID}})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []string{ab.ID}, res.CascadedEdges)
		assert.Empty(t, res.Project.Edges)
	})

	t.Run("combined rename and patch in one save", func(t *testing.T) {
		// Arrange
		svc, _, _ := newProjectService(t)
		p, err := svc.Create(ctx, "owner-1", "Graph")
		require.NoError(t, err)
		name := "Renamed"

		// Act
		res, err := svc.Update(ctx, "owner-1", p.ID, UpdateInput{
			Name:  &name,
			Patch: entities.GraphPatch{NodesToAdd: []entities.TaskNode{a}},
		})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "Renamed", res.Project.Name)
		assert.Len(t, res.Project.Nodes, 1)
		assert.Equal(t, p.Version+2, res.Project.Version)
	})

	t.Run("empty update does not write", func(t *testing.T) {
		// Arrange
		repo := &mocks.ProjectRepository{}
		stored, err := entities.NewProject("p1", "owner-1", "Graph", p0())
		require.NoError(t, err)
		stored.MarkEventsCommitted()
		repo.On("Get", mock.Anything, "owner-1", "p1").Return(stored, nil)
		svc := NewProjectService(repo, nil, zap.NewNop())

		// Act
		res, err := svc.Patch(ctx, "owner-1", "p1", entities.GraphPatch{})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Project.Version)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	})

	rejections := []struct {
		name  string
		patch entities.GraphPatch
		check func(error) bool
	}{
		{
			name:  "update of unknown node",
			patch: entities.GraphPatch{NodesToUpdate: []entities.TaskNode{a}},
			check: func(err error) bool { return pkgerrors.HasCode(err, pkgerrors.CodeUnknownNode) },
		},
		{
			name:  "dangling edge",
			patch: entities.GraphPatch{EdgesToAdd: []entities.TaskEdge{ab}},
			check: func(err error) bool { return pkgerrors.HasCode(err, pkgerrors.CodeDanglingEdge) },
		},
		{
			name:  "duplicate node",
			patch: entities.GraphPatch{NodesToAdd: []entities.TaskNode{a, a}},
			check: func(err error) bool { return pkgerrors.HasCode(err, pkgerrors.CodeDuplicateNode) },
		},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			svc, _, _ := newProjectService(t)
			p, err := svc.Create(ctx, "owner-1", "Graph")
			require.NoError(t, err)

			// Act
			_, err = svc.Patch(ctx, "owner-1", p.ID, tt.patch)

			// Assert
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			stored, err := svc.Get(ctx, "owner-1", p.ID)
			require.NoError(t, err)
			assert.Equal(t, p.Version, stored.Version)
			assert.Empty(t, stored.Nodes)
		})
	}
}

func TestProjectService_RetriesVersionConflict(t *testing.T) {
	ctx := context.Background()
	conflict := pkgerrors.NewConflictError("stale").WithCode(pkgerrors.CodeVersionConflict)
	fresh := func() *entities.Project {
		p, _ := entities.NewProject("p1", "owner-1", "Graph", p0())
		p.MarkEventsCommitted()
		return p
	}

	t.Run("succeeds after one conflict", func(t *testing.T) {
		// Arrange
		repo := &mocks.ProjectRepository{}
		repo.On("Get", mock.Anything, "owner-1", "p1").Return(fresh(), nil).Once()
		repo.On("Get", mock.Anything, "owner-1", "p1").Return(fresh(), nil).Once()
		repo.On("Save", mock.Anything, mock.Anything, int64(1)).Return(conflict).Once()
		repo.On("Save", mock.Anything, mock.Anything, int64(1)).Return(nil).Once()
		svc := NewProjectService(repo, nil, zap.NewNop())

		// Act
		p, err := svc.Rename(ctx, "owner-1", "p1", "New")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "New", p.Name)
		repo.AssertNumberOfCalls(t, "Save", 2)
	})

	t.Run("gives up after repeated conflicts", func(t *testing.T) {
		// Arrange
		repo := &mocks.ProjectRepository{}
		repo.On("Get", mock.Anything, "owner-1", "p1").Return(func(context.Context, string, string) *entities.Project {
			return fresh()
		}, nil)
		repo.On("Save", mock.Anything, mock.Anything, int64(1)).Return(conflict)
		svc := NewProjectService(repo, nil, zap.NewNop())

		// Act
		_, err := svc.Rename(ctx, "owner-1", "p1", "New")

		// Assert
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeVersionConflict))
		repo.AssertNumberOfCalls(t, "Save", maxSaveAttempts)
	})

	t.Run("other save errors are not retried", func(t *testing.T) {
		// Arrange
		repo := &mocks.ProjectRepository{}
		repo.On("Get", mock.Anything, "owner-1", "p1").Return(fresh(), nil)
		repo.On("Save", mock.Anything, mock.Anything, int64(1)).Return(pkgerrors.NewDatabaseError("put", errors.New("down")))
		svc := NewProjectService(repo, nil, zap.NewNop())

		// Act
		_, err := svc.Rename(ctx, "owner-1", "p1", "New")

		// Assert
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeDatabase))
		repo.AssertNumberOfCalls(t, "Save", 1)
	})
}

func TestProjectService_Delete(t *testing.T) {
	// Arrange
	svc, _, pub := newProjectService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, "owner-1", "Doomed")
	require.NoError(t, err)

	// Act
	err = svc.Delete(ctx, "owner-1", p.ID)

	// Assert
	require.NoError(t, err)
	_, err = svc.Get(ctx, "owner-1", p.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.Contains(t, publishedTypes(pub), events.TypeProjectDeleted)
	assert.True(t, pkgerrors.IsNotFound(svc.Delete(ctx, "owner-1", p.ID)))
}
