package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"todoflow/application/services"
	"todoflow/domain/core/entities"
	"todoflow/pkg/auth"
	pkgerrors "todoflow/pkg/errors"
	"todoflow/pkg/observability"
	"todoflow/pkg/utils"
)

// ProjectUseCases is what the project endpoints need from the application
// layer. Every call is scoped to the owner.
type ProjectUseCases interface {
	List(ctx context.Context, ownerID string) ([]entities.Project, error)
	Create(ctx context.Context, ownerID, name string) (*entities.Project, error)
	Get(ctx context.Context, ownerID, projectID string) (*entities.Project, error)
	Update(ctx context.Context, ownerID, projectID string, in services.UpdateInput) (*services.UpdateResult, error)
	Delete(ctx context.Context, ownerID, projectID string) error
}

var _ ProjectUseCases = (*services.ProjectService)(nil)

// ProjectHandler handles project-related HTTP requests
type ProjectHandler struct {
	projects     ProjectUseCases
	errorHandler *pkgerrors.ErrorHandler
	metrics      *observability.Collector
	logger       *zap.Logger
}

// NewProjectHandler creates a new project handler. metrics may be nil.
func NewProjectHandler(
	projects ProjectUseCases,
	errorHandler *pkgerrors.ErrorHandler,
	metrics *observability.Collector,
	logger *zap.Logger,
) *ProjectHandler {
	return &ProjectHandler{
		projects:     projects,
		errorHandler: errorHandler,
		metrics:      metrics,
		logger:       logger,
	}
}

// CreateProjectRequest represents the request body for creating a project
type CreateProjectRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// UpdateProjectRequest is a rename, a graph patch, or both at once.
type UpdateProjectRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,max=200"`
	entities.GraphPatch
}

// ListProjects handles GET /projects
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	projects, err := h.projects.List(r.Context(), user.UserID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, projects)
}

// CreateProject handles POST /projects
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	var req CreateProjectRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	project, err := h.projects.Create(r.Context(), user.UserID, req.Name)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	h.metrics.RecordProjectCreated()
	w.Header().Set("Location", "/projects/"+project.ID)
	utils.RespondJSON(w, http.StatusCreated, project)
}

// GetProject handles GET /projects/{projectID}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	project, err := h.projects.Get(r.Context(), user.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, project)
}

// UpdateProject handles PATCH /projects/{projectID}. Edges the patch left
// dangling are listed in the X-Cascaded-Edges header.
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	var req UpdateProjectRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	result, err := h.projects.Update(r.Context(), user.UserID, chi.URLParam(r, "projectID"), services.UpdateInput{
		Name:  req.Name,
		Patch: req.GraphPatch,
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeVersionConflict) {
			h.metrics.RecordVersionConflict()
		}
		h.errorHandler.Handle(w, r, err)
		return
	}
	p := req.GraphPatch
	h.metrics.RecordPatch(len(p.NodesToAdd), len(p.NodesToUpdate), len(p.NodesToRemove), len(p.EdgesToAdd), len(p.EdgesToRemove))
	for _, id := range result.CascadedEdges {
		w.Header().Add("X-Cascaded-Edges", id)
	}
	utils.RespondJSON(w, http.StatusOK, result.Project)
}

// DeleteProject handles DELETE /projects/{projectID}
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.projects.Delete(r.Context(), user.UserID, chi.URLParam(r, "projectID")); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	h.metrics.RecordProjectDeleted()
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) user(w http.ResponseWriter, r *http.Request) (*auth.UserContext, bool) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return nil, false
	}
	return user, true
}
