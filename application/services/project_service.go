package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"todoflow/application/ports"
	"todoflow/domain/core/entities"
	"todoflow/domain/core/valueobjects"
	"todoflow/domain/events"
	pkgerrors "todoflow/pkg/errors"
)

// maxSaveAttempts bounds how often an update is replayed after losing an
// optimistic concurrency race.
const maxSaveAttempts = 3

// UpdateInput is a combined rename and graph patch. Either part may be empty.
type UpdateInput struct {
	Name  *string
	Patch entities.GraphPatch
}

// UpdateResult is the stored project plus corrections the server made.
type UpdateResult struct {
	Project       *entities.Project
	CascadedEdges []string
}

// ProjectService implements project use cases for the authenticated owner.
type ProjectService struct {
	repo      ports.ProjectRepository
	publisher ports.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewProjectService creates a new project service
func NewProjectService(repo ports.ProjectRepository, publisher ports.EventPublisher, logger *zap.Logger) *ProjectService {
	return &ProjectService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns summaries of the owner's projects.
func (s *ProjectService) List(ctx context.Context, ownerID string) ([]entities.Project, error) {
	projects, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]entities.Project, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.Summary())
	}
	return out, nil
}

// Create makes an empty project.
func (s *ProjectService) Create(ctx context.Context, ownerID, name string) (*entities.Project, error) {
	project, err := entities.NewProject(valueobjects.NewID(), ownerID, name, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}
	s.commit(ctx, project)
	s.logger.Info("Project created", zap.String("projectID", project.ID), zap.String("ownerID", ownerID))
	return project, nil
}

// Get loads a project with its graph.
func (s *ProjectService) Get(ctx context.Context, ownerID, projectID string) (*entities.Project, error) {
	return s.repo.Get(ctx, ownerID, projectID)
}

// Rename is Update with only a name.
func (s *ProjectService) Rename(ctx context.Context, ownerID, projectID, name string) (*entities.Project, error) {
	res, err := s.Update(ctx, ownerID, projectID, UpdateInput{Name: &name})
	if err != nil {
		return nil, err
	}
	return res.Project, nil
}

// Patch is Update with only a graph patch.
func (s *ProjectService) Patch(ctx context.Context, ownerID, projectID string, patch entities.GraphPatch) (*UpdateResult, error) {
	return s.Update(ctx, ownerID, projectID, UpdateInput{Patch: patch})
}

// Update applies a rename and a graph patch as one change. If another writer
// saves in between, the change is replayed on the fresh copy.
func (s *ProjectService) Update(ctx context.Context, ownerID, projectID string, in UpdateInput) (*UpdateResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		project, err := s.repo.Get(ctx, ownerID, projectID)
		if err != nil {
			return nil, err
		}
		expected := project.Version

		now := s.now()
		if in.Name != nil {
			if err := project.Rename(*in.Name, now); err != nil {
				return nil, err
			}
		}
		result, err := project.ApplyPatch(in.Patch, now)
		if err != nil {
			return nil, err
		}
		if project.Version == expected {
			return &UpdateResult{Project: project}, nil
		}

		err = s.repo.Save(ctx, project, expected)
		if err == nil {
			s.commit(ctx, project)
			if len(result.CascadedEdges) > 0 {
				s.logger.Debug("Cascaded dangling edges",
					zap.String("projectID", projectID),
					zap.Strings("edgeIDs", result.CascadedEdges),
				)
			}
			return &UpdateResult{Project: project, CascadedEdges: result.CascadedEdges}, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeVersionConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Debug("Version conflict, retrying update",
			zap.String("projectID", projectID),
			zap.Int("attempt", attempt),
		)
	}
	return nil, lastErr
}

// Delete removes a project.
func (s *ProjectService) Delete(ctx context.Context, ownerID, projectID string) error {
	project, err := s.repo.Get(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ownerID, projectID); err != nil {
		return err
	}
	s.publish(ctx, events.NewProjectDeleted(projectID, ownerID, project.Version, s.now().UTC()))
	s.logger.Info("Project deleted", zap.String("projectID", projectID), zap.String("ownerID", ownerID))
	return nil
}

func (s *ProjectService) commit(ctx context.Context, project *entities.Project) {
	s.publish(ctx, project.PendingEvents()...)
	project.MarkEventsCommitted()
}

// publish is best effort: the change is already stored.
func (s *ProjectService) publish(ctx context.Context, evts ...events.DomainEvent) {
	if s.publisher == nil || len(evts) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.Warn("Failed to publish events", zap.Int("count", len(evts)), zap.Error(err))
	}
}
