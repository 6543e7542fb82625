package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers bundles the API's resource handlers for route registration.
type Handlers struct {
	Projects  *ProjectHandler
	Columns   *ColumnHandler
	Documents *DocumentHandler
	Process   *ProcessHandler
}

// NewRouter creates the application router with all routes and standard
// middleware applied.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/projects", h.Projects.Create)
		r.Post("/projects/{projectID}/columns", h.Columns.Create)
		r.Post("/projects/{projectID}/documents", h.Documents.Create)

		r.Post("/projects/{projectID}/columns/{columnID}/documents/{documentID}/process", h.Process.TriggerRun)
		r.Post("/projects/{projectID}/columns/{columnID}/process", h.Process.TriggerBulk)

		r.Post("/prompt-runs", h.Process.RunPrompt)
		r.Post("/maintenance/requeue", h.Process.RequeueStuck)

		r.Get("/documents/{documentID}/runs", h.Documents.ListRuns)
		r.Delete("/documents/{documentID}", h.Documents.Delete)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
