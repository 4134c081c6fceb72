// Package server provides the HTTP API: item listing and detail reads,
// the manual refresh trigger, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/database"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/ingest"
	"github.com/Anwesh-Mahapatra/threat-intel-portal/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the main HTTP server.
type Server struct {
	db     database.Store
	runner *ingest.Runner
	router chi.Router
}

// New creates a new server.
func New(db database.Store, runner *ingest.Runner) *Server {
	s := &Server{db: db, runner: runner}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/items", s.handleListItems)
	r.Get("/items/{itemID}", s.handleGetItem)
	r.Post("/admin/refresh", s.handleRefresh)

	s.router = r
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	slog.Info("server starting", "addr", addr, "db", s.db.DatabaseType())
	return http.ListenAndServe(addr, s.router)
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	items, err := s.db.ListItems(q, limit)
	if err != nil {
		slog.Error("list items failed", "err", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []model.ItemSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}
	detail, err := s.db.GetItem(id)
	if err != nil {
		slog.Error("get item failed", "id", id, "err", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if detail == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	iocs := make([]map[string]any, 0, len(detail.IOCs))
	for _, ioc := range detail.IOCs {
		iocs = append(iocs, map[string]any{
			"type":    ioc.Type,
			"value":   ioc.Value,
			"context": ioc.Context,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            detail.ID,
		"source":        detail.SourceName,
		"title":         detail.Title,
		"canonical_url": detail.CanonicalURL,
		"published_at":  detail.PublishedAt,
		"fetched_at":    detail.FetchedAt,
		"author":        detail.Author,
		"text":          detail.Text,
		"summary_short": detail.SummaryShort,
		"lang":          detail.Lang,
		"iocs":          iocs,
	})
}

// handleRefresh kicks off all ingestion jobs immediately. The work runs
// in the background; the response only acknowledges scheduling.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		s.runner.RunAll(ctx)
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "scheduled"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "err", err)
	}
}
