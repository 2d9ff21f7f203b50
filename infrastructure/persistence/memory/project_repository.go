// Package memory holds in-process repositories for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"todoflow/application/ports"
	"todoflow/domain/core/entities"
	pkgerrors "todoflow/pkg/errors"
)

// ProjectRepository keeps projects in a map. Stored values are deep copies,
// so callers can mutate what they get back.
type ProjectRepository struct {
	mu       sync.RWMutex
	projects map[string]*entities.Project
}

var _ ports.ProjectRepository = (*ProjectRepository)(nil)

// NewProjectRepository creates an empty repository.
func NewProjectRepository() *ProjectRepository {
	return &ProjectRepository{projects: make(map[string]*entities.Project)}
}

func (r *ProjectRepository) Create(_ context.Context, project *entities.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.projects[project.ID]; exists {
		return pkgerrors.NewConflictError(fmt.Sprintf("project %s already exists", project.ID))
	}
	r.projects[project.ID] = project.Clone()
	return nil
}

func (r *ProjectRepository) Get(_ context.Context, ownerID, projectID string) (*entities.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[projectID]
	if !ok || p.OwnerID != ownerID {
		return nil, pkgerrors.NewNotFoundError("project")
	}
	return p.Clone(), nil
}

func (r *ProjectRepository) ListByOwner(_ context.Context, ownerID string) ([]*entities.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.Project
	for _, p := range r.projects {
		if p.OwnerID == ownerID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ProjectRepository) Save(_ context.Context, project *entities.Project, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.projects[project.ID]
	if !ok || stored.OwnerID != project.OwnerID {
		return pkgerrors.NewNotFoundError("project")
	}
	if stored.Version != expectedVersion {
		return versionConflict(project.ID, expectedVersion, stored.Version)
	}
	r.projects[project.ID] = project.Clone()
	return nil
}

func (r *ProjectRepository) Delete(_ context.Context, ownerID, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[projectID]
	if !ok || p.OwnerID != ownerID {
		return pkgerrors.NewNotFoundError("project")
	}
	delete(r.projects, projectID)
	return nil
}

func versionConflict(projectID string, expected, actual int64) error {
	return pkgerrors.NewConflictError("project was modified concurrently").
		WithCode(pkgerrors.CodeVersionConflict).
		WithDetails(map[string]any{"projectId": projectID, "expectedVersion": expected, "actualVersion": actual})
}
