package api

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quillhq/docpipe/internal/api/shared"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/platform/logger"
	"github.com/quillhq/docpipe/internal/service"
)

// maxUploadBytes bounds the multipart form size for document uploads.
const maxUploadBytes = 50 << 20

// CreateURLDocumentRequest represents the JSON body for creating a
// URL-sourced document.
type CreateURLDocumentRequest struct {
	Name      string `json:"name"      validate:"required,max=500"`
	SourceURL string `json:"sourceUrl" validate:"required,url"`
}

// DocumentResponse represents the response data for a document.
type DocumentResponse struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Name      string         `json:"name"`
	Source    string         `json:"source"`
	SourceURL string         `json:"source_url,omitempty"`
	FilePath  string         `json:"file_path,omitempty"`
	Values    map[string]any `json:"values"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunResponse represents one ledger entry in a document's run history.
type RunResponse struct {
	ID           string    `json:"id"`
	ColumnID     string    `json:"column_id"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DocumentHandler handles document-related HTTP requests.
type DocumentHandler struct {
	ingest     *service.IngestService
	processing *service.ProcessingService
	logger     *slog.Logger
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(ingest *service.IngestService, processing *service.ProcessingService, log *slog.Logger) *DocumentHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for DocumentHandler")
	}

	return &DocumentHandler{
		ingest:     ingest,
		processing: processing,
		logger:     log.With(slog.String("component", "document_handler")),
	}
}

// Create handles POST /projects/{projectID}/documents requests. Multipart
// bodies are treated as file uploads; JSON bodies create URL documents.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid project ID")
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.createUpload(w, r, projectID)
		return
	}
	h.createFromURL(w, r, projectID)
}

func (h *DocumentHandler) createUpload(w http.ResponseWriter, r *http.Request, projectID uuid.UUID) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing file field")
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Warn("failed to close uploaded file", "error", closeErr)
		}
	}()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to read upload", err)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	doc, err := h.ingest.CreateUploadDocument(r.Context(), projectID, name, header.Filename, content)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("document upload accepted", slog.String("document_id", doc.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, documentToResponse(doc))
}

func (h *DocumentHandler) createFromURL(w http.ResponseWriter, r *http.Request, projectID uuid.UUID) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateURLDocumentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Name and a valid sourceUrl are required", err)
		return
	}

	doc, err := h.ingest.CreateURLDocument(r.Context(), projectID, req.Name, req.SourceURL)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("url document accepted", slog.String("document_id", doc.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, documentToResponse(doc))
}

// Delete handles DELETE /documents/{documentID} requests.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid document ID")
		return
	}

	if err := h.ingest.DeleteDocument(r.Context(), documentID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListRuns handles GET /documents/{documentID}/runs requests.
func (h *DocumentHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid document ID")
		return
	}

	runs, err := h.processing.RunHistory(r.Context(), documentID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunResponse{
			ID:           run.ID.String(),
			ColumnID:     run.ColumnID.String(),
			Status:       string(run.Status),
			ErrorMessage: run.ErrorMessage,
			CreatedAt:    run.CreatedAt,
			UpdatedAt:    run.UpdatedAt,
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

func documentToResponse(doc *domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:        doc.ID.String(),
		ProjectID: doc.ProjectID.String(),
		Name:      doc.Name,
		Source:    string(doc.Source),
		SourceURL: doc.SourceURL,
		FilePath:  doc.FilePath,
		Values:    doc.Values,
		CreatedAt: doc.CreatedAt,
	}
}
