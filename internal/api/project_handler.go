// Package api provides HTTP handlers for the pipeline's trigger surface.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quillhq/docpipe/internal/api/shared"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/platform/logger"
	"github.com/quillhq/docpipe/internal/store"
)

// ProjectResponse represents the response data for a project.
type ProjectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateProjectRequest represents the request body for creating a project.
type CreateProjectRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// ProjectHandler handles project-related HTTP requests.
type ProjectHandler struct {
	projects store.ProjectStore
	logger   *slog.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects store.ProjectStore, log *slog.Logger) *ProjectHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ProjectHandler")
	}

	return &ProjectHandler{
		projects: projects,
		logger:   log.With(slog.String("component", "project_handler")),
	}
}

// Create handles POST /projects requests.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateProjectRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Name is required")
		return
	}

	project, err := domain.NewProject(req.Name)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid project data", err)
		return
	}

	if err := h.projects.Create(r.Context(), project); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("project created", slog.String("project_id", project.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, ProjectResponse{
		ID:        project.ID.String(),
		Name:      project.Name,
		CreatedAt: project.CreatedAt,
	})
}
