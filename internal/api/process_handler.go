package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quillhq/docpipe/internal/api/shared"
	"github.com/quillhq/docpipe/internal/platform/logger"
	"github.com/quillhq/docpipe/internal/service"
)

// TriggerRunResponse reports the run covering a processed pair. Created is
// false when an in-flight run already covered it.
type TriggerRunResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Created bool   `json:"created"`
}

// TriggerBulkRequest optionally narrows a bulk trigger to specific documents.
type TriggerBulkRequest struct {
	DocumentIDs []string `json:"documentIds,omitempty"`
}

// TriggerBulkResponse acknowledges an accepted bulk trigger.
type TriggerBulkResponse struct {
	JobID string `json:"job_id"`
}

// RunPromptRequest represents the request body for a free-standing prompt run.
type RunPromptRequest struct {
	ProjectID string `json:"projectId" validate:"required,uuid"`
	Prompt    string `json:"prompt"    validate:"required"`
	Model     string `json:"model,omitempty"`
}

// PromptRunResponse represents an accepted prompt run.
type PromptRunResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RequeueResponse reports how many stuck runs were re-enqueued.
type RequeueResponse struct {
	Requeued int `json:"requeued"`
}

// ProcessHandler handles processing-trigger HTTP requests.
type ProcessHandler struct {
	processing *service.ProcessingService
	logger     *slog.Logger
}

// NewProcessHandler creates a new ProcessHandler.
func NewProcessHandler(processing *service.ProcessingService, log *slog.Logger) *ProcessHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ProcessHandler")
	}

	return &ProcessHandler{
		processing: processing,
		logger:     log.With(slog.String("component", "process_handler")),
	}
}

// TriggerRun handles
// POST /projects/{projectID}/columns/{columnID}/documents/{documentID}/process.
func (h *ProcessHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	projectID, columnID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	documentID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid document ID")
		return
	}

	run, created, err := h.processing.TriggerRun(r.Context(), projectID, documentID, columnID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}

	log.Debug("run trigger handled",
		slog.String("run_id", run.ID.String()),
		slog.Bool("created", created))
	shared.RespondWithJSON(w, r, status, TriggerRunResponse{
		RunID:   run.ID.String(),
		Status:  string(run.Status),
		Created: created,
	})
}

// TriggerBulk handles POST /projects/{projectID}/columns/{columnID}/process.
func (h *ProcessHandler) TriggerBulk(w http.ResponseWriter, r *http.Request) {
	projectID, columnID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	// The body is optional: absent or empty documentIds means the whole project.
	var req TriggerBulkRequest
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	documentIDs := make([]uuid.UUID, 0, len(req.DocumentIDs))
	for _, raw := range req.DocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid document ID in documentIds")
			return
		}
		documentIDs = append(documentIDs, id)
	}

	jobID, err := h.processing.TriggerBulk(r.Context(), projectID, columnID, documentIDs)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, TriggerBulkResponse{JobID: jobID.String()})
}

// RunPrompt handles POST /prompt-runs.
func (h *ProcessHandler) RunPrompt(w http.ResponseWriter, r *http.Request) {
	var req RunPromptRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "projectId and prompt are required", err)
		return
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid project ID")
		return
	}

	run, err := h.processing.RunPrompt(r.Context(), projectID, req.Prompt, req.Model)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, PromptRunResponse{
		ID:        run.ID.String(),
		Status:    string(run.Status),
		CreatedAt: run.CreatedAt,
	})
}

// RequeueStuck handles POST /maintenance/requeue.
func (h *ProcessHandler) RequeueStuck(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	requeued, err := h.processing.RequeueStuck(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to requeue stuck runs", err)
		return
	}

	log.Info("maintenance requeue handled", slog.Int("requeued", requeued))
	shared.RespondWithJSON(w, r, http.StatusOK, RequeueResponse{Requeued: requeued})
}

func (h *ProcessHandler) pathIDs(w http.ResponseWriter, r *http.Request) (projectID, columnID uuid.UUID, ok bool) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid project ID")
		return uuid.Nil, uuid.Nil, false
	}

	columnID, err = uuid.Parse(chi.URLParam(r, "columnID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid column ID")
		return uuid.Nil, uuid.Nil, false
	}

	return projectID, columnID, true
}
