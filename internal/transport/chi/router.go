package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/metrics"
)

// NewRouter mounts the API routes behind recovery, request id, logging,
// bearer auth and metrics middleware.
func NewRouter(s *Server, apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Post("/query", s.Query)
	r.Post("/rerank", s.Rerank)
	r.Post("/upsert", s.Upsert)
	r.Post("/delete", s.Delete)
	r.Post("/list", s.List)
	r.Get("/documents", s.ListDocuments)
	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})
	return r
}
