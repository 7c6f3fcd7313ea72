// Package chi is the HTTP API: query, rerank and document management
// routes on a chi router.
package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/metadata"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/request"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
	logpkg "github.com/blaizeai/chatgpt-retrieval-plugin/internal/logger"
	documentuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/document"
	healthuc "github.com/blaizeai/chatgpt-retrieval-plugin/internal/usecase/health"
)

const maxBodyBytes = 32 << 20

// Retriever answers queries and refines externally supplied results.
type Retriever interface {
	Query(ctx context.Context, queries []request.Query) ([]result.Ranked, error)
	Refine(ctx context.Context, results []result.Ranked) []result.Ranked
}

// Documents manages stored documents.
type Documents interface {
	Upsert(ctx context.Context, docs []chunk.Document) ([]string, error)
	Delete(ctx context.Context, req documentuc.DeleteRequest) error
	List(ctx context.Context, req documentuc.ListRequest) (documentuc.Page, error)
}

// HealthReporter reports component readiness.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}

// Server holds the HTTP handlers.
type Server struct {
	retriever     Retriever
	documents     Documents
	health        HealthReporter
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(retriever Retriever, documents Documents, health HealthReporter, logger *zap.Logger) *Server {
	return &Server{
		retriever:     retriever,
		documents:     documents,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "at least one query is required")
		return
	}

	queries := make([]request.Query, len(req.Queries))
	for i, item := range req.Queries {
		if err := validateFilter(item.Filter); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidFilter, fmt.Sprintf("queries[%d]: %v", i, err))
			return
		}
		q, err := request.New(item.Query, item.Filter, item.TopK)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, fmt.Sprintf("queries[%d]: %v", i, err))
			return
		}
		queries[i] = q
	}

	results, err := s.retriever.Query(r.Context(), queries)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Results: rankedToDTO(results)})
}

// Rerank handles POST /rerank: refines externally retrieved results.
func (s *Server) Rerank(w http.ResponseWriter, r *http.Request) {
	var req rerankRequest
	if !s.decode(w, r, &req) {
		return
	}
	refined := s.retriever.Refine(r.Context(), rankedFromDTO(req.Results))
	writeJSON(w, http.StatusOK, queryResponse{Results: rankedToDTO(refined)})
}

// Upsert handles POST /upsert.
func (s *Server) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "at least one document is required")
		return
	}

	docs := make([]chunk.Document, len(req.Documents))
	for i, d := range req.Documents {
		doc := chunk.Document{ID: d.ID, Text: d.Text}
		if d.Metadata != nil {
			if d.Metadata.Source != nil && !d.Metadata.Source.IsValid() {
				writeError(w, http.StatusBadRequest, codeValidationFailed,
					fmt.Sprintf("documents[%d]: unknown source %q", i, *d.Metadata.Source))
				return
			}
			doc.Metadata = *d.Metadata
		}
		docs[i] = doc
	}

	ids, err := s.documents.Upsert(r.Context(), docs)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upsertResponse{IDs: ids})
}

// Delete handles POST /delete.
func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := validateFilter(req.Filter); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidFilter, err.Error())
		return
	}

	err := s.documents.Delete(r.Context(), documentuc.DeleteRequest{
		IDs:       req.IDs,
		Filter:    req.Filter,
		DeleteAll: req.DeleteAll,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true})
}

// List handles POST /list.
func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.list(w, r, documentuc.ListRequest{Filter: req.Filter, Limit: req.Limit, Offset: req.Offset})
}

// ListDocuments handles GET /documents with filter fields as query parameters.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	var (
		limit, offset                       *int
		documentID, source, author, sourceID *string
		startDate, endDate                   *string
	)
	params := []struct {
		name string
		dest any
	}{
		{"limit", &limit},
		{"offset", &offset},
		{"document_id", &documentID},
		{"source", &source},
		{"source_id", &sourceID},
		{"author", &author},
		{"start_date", &startDate},
		{"end_date", &endDate},
	}
	query := r.URL.Query()
	for _, p := range params {
		if err := runtime.BindQueryParameter("form", true, false, p.name, query, p.dest); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("invalid parameter %s: %v", p.name, err))
			return
		}
	}

	f := &metadata.Filter{
		DocumentID: documentID,
		SourceID:   sourceID,
		Author:     author,
		StartDate:  startDate,
		EndDate:    endDate,
	}
	if source != nil {
		src := metadata.Source(*source)
		f.Source = &src
	}

	req := documentuc.ListRequest{Filter: f}
	if limit != nil {
		req.Limit = *limit
	}
	if offset != nil {
		req.Offset = *offset
	}
	s.list(w, r, req)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, req documentuc.ListRequest) {
	if err := validateFilter(req.Filter); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidFilter, err.Error())
		return
	}
	page, err := s.documents.List(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageToDTO(page))
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if l := logpkg.FromContext(r.Context()); l.Core().Enabled(zap.ErrorLevel) {
		return l
	}
	return s.logger
}

func validateFilter(f *metadata.Filter) error {
	if f != nil && f.Source != nil && !f.Source.IsValid() {
		return fmt.Errorf("unknown source %q", *f.Source)
	}
	return nil
}
