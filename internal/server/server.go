package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/reconmetrics/internal/eval"
	"github.com/cwbudde/reconmetrics/internal/store"
)

// Server represents the HTTP server
type Server struct {
	store  store.Store
	config eval.Config
	addr   string
	server *http.Server
}

// NewServer creates a new HTTP server. cfg provides the defaults for
// evaluation requests that do not override them.
func NewServer(addr string, st store.Store, cfg eval.Config) *Server {
	return &Server{
		store:  st,
		config: cfg,
		addr:   addr,
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// UI routes
	mux.HandleFunc("/", s.handleIndex)

	// API routes
	mux.HandleFunc("/api/v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("/api/v1/reports", s.handleReports)
	mux.HandleFunc("/api/v1/reports/", s.handleReportsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleReports handles /api/v1/reports
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos, err := s.store.ListReports()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleReportsWithID handles /api/v1/reports/:id/*
func (s *Server) handleReportsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Report ID required", http.StatusBadRequest)
		return
	}

	id := parts[0]
	if !store.ValidID(id) {
		http.Error(w, "Invalid report ID", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			s.handleGetReport(w, r, id)
		case http.MethodDelete:
			s.handleDeleteReport(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == store.DiffArtifact && r.Method == http.MethodGet:
		s.handleGetDiffImage(w, r, id)
	case len(parts) == 2 && parts[1] == "trace" && r.Method == http.MethodGet:
		s.handleGetTrace(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleGetReport handles GET /api/v1/reports/:id
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request, id string) {
	report, err := s.store.LoadReport(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleDeleteReport handles DELETE /api/v1/reports/:id
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.store.DeleteReport(id); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Report deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDiffImage handles GET /api/v1/reports/:id/diff.png
func (s *Server) handleGetDiffImage(w http.ResponseWriter, r *http.Request, id string) {
	rc, err := s.store.OpenArtifact(id, store.DiffArtifact)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("Failed to send diff image", "id", id, "error", err)
	}
}

// handleGetTrace handles GET /api/v1/reports/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, id string) {
	tr, err := s.store.OpenTrace(id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
