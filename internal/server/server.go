// Package server implements the fusegraph debug HTTP service.
//
// The service accepts IR modules, runs the fusion analysis, and serves the
// resulting partition reports. Completed runs are persisted in a
// [store.Store] so they can be retrieved later.
//
// # Endpoints
//
//	POST /api/v1/partition        analyze the module in the request body
//	GET  /api/v1/runs             list recent runs
//	GET  /api/v1/runs/{id}        fetch one run
//	GET  /healthz                 liveness probe
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/matzehuels/fusegraph/pkg/errors"
	"github.com/matzehuels/fusegraph/pkg/pipeline"
	"github.com/matzehuels/fusegraph/pkg/store"
)

// maxModuleBytes bounds the request body size.
const maxModuleBytes = 8 << 20

// Server wires the pipeline runner and run store into an HTTP handler.
type Server struct {
	runner *pipeline.Runner
	store  store.Store
	logger *log.Logger
}

// New creates a server. logger may be nil.
func New(runner *pipeline.Runner, st store.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{runner: runner, store: st, logger: logger}
}

// Handler builds the chi route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/partition", s.handlePartition)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePartition(w http.ResponseWriter, r *http.Request) {
	src, err := io.ReadAll(io.LimitReader(r.Body, maxModuleBytes))
	if err != nil {
		s.writeError(w, apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "read body"))
		return
	}

	opts := pipeline.Options{
		OptLevel:     pipeline.DefaultOptLevel,
		MaxFuseDepth: pipeline.DefaultMaxFuseDepth,
		Logger:       s.logger,
	}
	if v := r.URL.Query().Get("opt_level"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "opt_level must be an integer"))
			return
		}
		opts.OptLevel = n
	}
	if v := r.URL.Query().Get("max_fuse_depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "max_fuse_depth must be an integer"))
			return
		}
		opts.MaxFuseDepth = n
	}

	result, err := s.runner.Execute(r.Context(), src, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	run := &store.Run{
		ID:           result.RunID,
		CreatedAt:    time.Now().UTC(),
		ModuleHash:   result.ModuleHash,
		OptLevel:     opts.OptLevel,
		MaxFuseDepth: opts.MaxFuseDepth,
		Report:       result.Report,
	}
	if err := s.store.Save(r.Context(), run); err != nil {
		s.logger.Warnf("save run %s: %v", run.ID, err)
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	runs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// writeError maps structured error codes to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeInvalidIR,
		apperrors.ErrCodeInvalidPattern, apperrors.ErrCodeInvalidFormat,
		apperrors.ErrCodeInvalidOp:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound, apperrors.ErrCodeRunNotFound,
		apperrors.ErrCodeFileNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Errorf("internal error: %v", err)
	}
	writeJSON(w, status, map[string]string{
		"error": apperrors.UserMessage(err),
		"code":  string(apperrors.GetCode(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
