package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/daily-tracker/internal/api/middleware"
	"github.com/dvloznov/daily-tracker/internal/jobs"
	"github.com/dvloznov/daily-tracker/internal/tracker"
)

// RouterConfig holds the dependencies of the HTTP API.
type RouterConfig struct {
	Service   *tracker.Service
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
}

// NewRouter builds the API routes behind the standard middleware chain.
func NewRouter(cfg RouterConfig, log zerolog.Logger) http.Handler {
	trackerHandler := NewTrackerHandler(cfg.Service, log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", trackerHandler.ListCategories)
		r.Get("/overview", trackerHandler.Overview)

		r.Post("/transactions", trackerHandler.SubmitTransaction)
		r.Get("/transactions/recent", trackerHandler.Recent)

		r.Get("/summary", trackerHandler.Summary)
		r.Get("/trend", trackerHandler.Trend)
		r.Get("/calendar", trackerHandler.Calendar)
		r.Get("/leave", trackerHandler.Leave)

		r.Get("/export", trackerHandler.Export)
		if cfg.Publisher != nil && cfg.JobStore != nil {
			exportsHandler := NewExportsHandler(cfg.Publisher, cfg.JobStore, log)
			r.Post("/exports", exportsHandler.Enqueue)
			r.Get("/exports", exportsHandler.ListJobs)
			r.Get("/exports/{id}", exportsHandler.GetJob)
		}

		r.Get("/diagnostics/connection", trackerHandler.TestConnection)
		r.Post("/cache/clear", trackerHandler.ClearCache)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
