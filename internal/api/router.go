// Package api wires the HTTP surface: incident CRUD, uploads, metrics and health.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/rpattn/incidentetl/internal/ingestion"
	"github.com/rpattn/incidentetl/internal/middleware"
)

// RouterDeps carries the handlers mounted by NewRouter. Nil entries are skipped.
type RouterDeps struct {
	Incidents      *IncidentHandler
	Ingestion      *ingestion.Handler
	Metrics        http.Handler
	Health         func(ctx context.Context) error
	Logger         *slog.Logger
	AllowedOrigins []string
}

// NewRouter builds the chi router.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.LoggingMiddleware(deps.Logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	}).Handler)

	if h := deps.Incidents; h != nil {
		r.Route("/incidentes", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			if deps.Ingestion != nil {
				r.Post("/upload", deps.Ingestion.Upload)
			}
			r.Get("/{number}", h.Get)
			r.Put("/{number}", h.Update)
			r.Delete("/{number}", h.Delete)
		})
		// any segment under /incidentes is an incident number
		r.Get("/exports/incidentes", h.Export)
	}
	if deps.Ingestion != nil {
		r.Get("/ingestion/batches/{batchID}/log", deps.Ingestion.BatchLog)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	r.Get("/healthz", healthHandler(deps.Health))

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "base de datos no disponible", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
