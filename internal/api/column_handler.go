package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quillhq/docpipe/internal/api/shared"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/platform/logger"
	"github.com/quillhq/docpipe/internal/store"
)

// CreateColumnRequest represents the request body for creating a column.
// Processor columns carry exactly one config variant matching processorType;
// the domain constructor rejects everything else.
type CreateColumnRequest struct {
	Key           string                  `json:"key"           validate:"required,max=100"`
	Name          string                  `json:"name"          validate:"required,max=200"`
	ValueType     string                  `json:"valueType"     validate:"required"`
	Mode          string                  `json:"mode"          validate:"required,oneof=manual processor"`
	ProcessorType string                  `json:"processorType,omitempty"`
	Config        *domain.ProcessorConfig `json:"config,omitempty"`
}

// ColumnResponse represents the response data for a column.
type ColumnResponse struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	Key           string `json:"key"`
	Name          string `json:"name"`
	ValueType     string `json:"value_type"`
	Mode          string `json:"mode"`
	ProcessorType string `json:"processor_type,omitempty"`
	Hidden        bool   `json:"hidden"`
	Position      int    `json:"position"`
}

// ColumnHandler handles column-related HTTP requests.
type ColumnHandler struct {
	projects store.ProjectStore
	cols     store.ColumnStore
	logger   *slog.Logger
}

// NewColumnHandler creates a new ColumnHandler.
func NewColumnHandler(projects store.ProjectStore, cols store.ColumnStore, log *slog.Logger) *ColumnHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ColumnHandler")
	}

	return &ColumnHandler{
		projects: projects,
		cols:     cols,
		logger:   log.With(slog.String("component", "column_handler")),
	}
}

// Create handles POST /projects/{projectID}/columns requests.
func (h *ColumnHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid project ID")
		return
	}

	var req CreateColumnRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid column request", err)
		return
	}

	if _, err := h.projects.GetByID(r.Context(), projectID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	position, err := h.cols.NextPosition(r.Context(), projectID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to create column", err)
		return
	}

	var col *domain.Column
	switch domain.ColumnMode(req.Mode) {
	case domain.ColumnModeManual:
		col, err = domain.NewManualColumn(projectID, req.Key, req.Name, domain.ValueType(req.ValueType), position)
	case domain.ColumnModeProcessor:
		col, err = domain.NewProcessorColumn(projectID, req.Key, req.Name,
			domain.ValueType(req.ValueType), domain.ProcessorType(req.ProcessorType), req.Config, position)
	}
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid column configuration", err)
		return
	}

	if err := h.cols.Create(r.Context(), col); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("column created",
		slog.String("column_id", col.ID.String()),
		slog.String("key", col.Key),
		slog.String("mode", string(col.Mode)))
	shared.RespondWithJSON(w, r, http.StatusCreated, columnToResponse(col))
}

func columnToResponse(col *domain.Column) ColumnResponse {
	return ColumnResponse{
		ID:            col.ID.String(),
		ProjectID:     col.ProjectID.String(),
		Key:           col.Key,
		Name:          col.Name,
		ValueType:     string(col.ValueType),
		Mode:          string(col.Mode),
		ProcessorType: string(col.ProcessorType),
		Hidden:        col.Hidden,
		Position:      col.Position,
	}
}
