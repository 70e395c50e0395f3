// Package server provides the HTTP REST API for the persona transformer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/persona-transformer/internal/metrics"
	"github.com/jonathan/persona-transformer/internal/orchestrator"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/templates"
	"github.com/jonathan/persona-transformer/internal/types"
)

// maxBodyBytes bounds request bodies; source documents are the largest
const maxBodyBytes = 10 << 20

// Jobs is the orchestrator surface used by the API
type Jobs interface {
	Submit(ctx context.Context, req types.SubmitJobRequest) (uuid.UUID, error)
	GetStatus(ctx context.Context, id uuid.UUID) (types.StatusView, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Refine(ctx context.Context, id uuid.UUID, notes string) error
	Subscribe(id uuid.UUID) (<-chan orchestrator.ProgressEvent, func())
}

// Reviews is the quality controller surface used by the API
type Reviews interface {
	Approve(ctx context.Context, jobID, revisionID uuid.UUID, feedback string) (*types.Revision, error)
	RequestRevision(ctx context.Context, jobID, revisionID uuid.UUID, notes string) (*types.Revision, error)
	Rollback(ctx context.Context, jobID, revisionID uuid.UUID) (*types.Revision, error)
	History(ctx context.Context, jobID uuid.UUID) ([]types.Revision, error)
	Export(ctx context.Context, jobID uuid.UUID) (*types.ExportBundle, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	store      store.Store
	templates  templates.Store
	jobs       Jobs
	reviews    Reviews
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Config holds server configuration
type Config struct {
	Port int
}

// Deps are the components the API exposes
type Deps struct {
	Store     store.Store
	Templates templates.Store
	Jobs      Jobs
	Reviews   Reviews
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Templates == nil || deps.Jobs == nil || deps.Reviews == nil {
		return nil, errors.New("server: store, templates, jobs and reviews are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		store:     deps.Store,
		templates: deps.Templates,
		jobs:      deps.Jobs,
		reviews:   deps.Reviews,
		metrics:   deps.Metrics,
		logger:    logger.Named("http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Content Model Store
	mux.HandleFunc("POST /contents", s.handleCreateContent)
	mux.HandleFunc("GET /contents/{id}", s.handleGetContent)
	mux.HandleFunc("GET /personas", s.handleListPersonas)
	mux.HandleFunc("POST /personas", s.handleCreatePersona)
	mux.HandleFunc("GET /personas/{id}", s.handleGetPersona)
	mux.HandleFunc("PUT /personas/{id}", s.handleUpdatePersona)
	mux.HandleFunc("DELETE /personas/{id}", s.handleArchivePersona)

	// Templates
	mux.HandleFunc("GET /templates", s.handleListTemplates)
	mux.HandleFunc("GET /templates/{id}", s.handleGetTemplate)
	mux.HandleFunc("PUT /templates/{id}", s.handlePutTemplate)

	// Jobs
	mux.HandleFunc("POST /jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("POST /jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("GET /jobs/{id}/events", s.handleJobEvents)
	mux.HandleFunc("POST /jobs/{id}/refine", s.handleRefineJob)

	// Revisions
	mux.HandleFunc("GET /jobs/{id}/revisions", s.handleListRevisions)
	mux.HandleFunc("POST /jobs/{id}/revisions/{rev}/approve", s.handleApprove)
	mux.HandleFunc("POST /jobs/{id}/revisions/{rev}/request-revision", s.handleRequestRevision)
	mux.HandleFunc("POST /jobs/{id}/revisions/{rev}/rollback", s.handleRollback)
	mux.HandleFunc("GET /jobs/{id}/export", s.handleExport)

	s.handler = s.metrics.Middleware(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // event streams stay open until the job settles
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter records the status code for request logging
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging logs every request, health checks at debug level
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		fields := []zap.Field{
			zap.String("http_method", r.Method),
			zap.String("http_path", r.URL.Path),
			zap.Int("http_status_code", rw.status),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		}
		switch {
		case rw.status >= 500:
			s.logger.Error("request failed", fields...)
		case rw.status >= 400:
			s.logger.Warn("request rejected", fields...)
		case r.URL.Path == "/health" || r.URL.Path == "/metrics":
			s.logger.Debug("request completed", fields...)
		default:
			s.logger.Info("request completed", fields...)
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("error encoding JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v. An empty body is allowed
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return &ErrValidation{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// pathUUID parses a UUID path value
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}
