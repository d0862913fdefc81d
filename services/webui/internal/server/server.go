package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tabbacklog/internal/ratelimit"
	"tabbacklog/internal/util"
	"tabbacklog/pkg/domain"
	"tabbacklog/services/webui/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	OwnerID        string
	SearchLimiter  *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	Pipeline       *PipelineProxy
}

// Server is the single-owner query API behind the web UI.
type Server struct {
	app            *app.App
	ownerID        string
	searchLimiter  *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	pipeline       *PipelineProxy
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.OwnerID == "" {
		return nil, errors.New("owner id required")
	}
	s := &Server{
		app:            cfg.App,
		ownerID:        cfg.OwnerID,
		searchLimiter:  cfg.SearchLimiter,
		trustedProxies: cfg.TrustedProxies,
		pipeline:       cfg.Pipeline,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("webui", util.WithCORS(util.WithSecurityHeaders(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/tabs", s.handleListTabs)
	s.mux.HandleFunc("/tabs/", s.handleTab)
	s.mux.HandleFunc("/filters", s.handleFilterOptions)
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.Handle("/search/semantic", s.withSearchLimit(s.handleSemanticSearch))
	s.mux.HandleFunc("/export/", s.handleExport)
	if s.pipeline != nil {
		s.mux.HandleFunc("/pipeline/", s.pipeline.Handle)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"semanticSearch": s.app.SemanticSearchEnabled(),
	})
}

// withSearchLimit applies the per-IP fixed window limit. A nil limiter means
// the limit is not configured and everything passes.
func (s *Server) withSearchLimit(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.searchLimiter != nil {
			key := util.ClientIP(r, s.trustedProxies)
			if !s.searchLimiter.Allow(key) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next(w, r)
	})
}

func (s *Server) handleListTabs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page, err := s.app.ListTabs(s.ownerID, filtersFromQuery(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func filtersFromQuery(r *http.Request) domain.TabFilters {
	q := r.URL.Query()
	filters := domain.TabFilters{
		Status:      domain.TabStatus(q.Get("status")),
		ContentType: domain.ContentType(q.Get("content_type")),
		Search:      q.Get("search"),
		Project:     q.Get("project"),
	}
	if v := q.Get("processed"); v != "" {
		if processed, err := strconv.ParseBool(v); err == nil {
			filters.Processed = &processed
		}
	}
	if n, err := strconv.Atoi(q.Get("read_time_max")); err == nil {
		filters.ReadTimeMax = n
	}
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = n
	}
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil {
		filters.PerPage = n
	}
	return filters
}

// handleTab serves /tabs/{id} and /tabs/{id}/processed.
func (s *Server) handleTab(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tabs/")
	tabID, action, _ := strings.Cut(rest, "/")
	if tabID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getTabDetail(w, tabID)
	case action == "" && r.Method == http.MethodDelete:
		s.deleteTab(w, tabID)
	case action == "processed" && r.Method == http.MethodPost:
		s.setProcessed(w, r, tabID)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) getTabDetail(w http.ResponseWriter, tabID string) {
	detail, err := s.app.GetTabDetail(s.ownerID, tabID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) deleteTab(w http.ResponseWriter, tabID string) {
	if err := s.app.DeleteTab(s.ownerID, tabID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) setProcessed(w http.ResponseWriter, r *http.Request, tabID string) {
	var req struct {
		Processed bool `json:"processed"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tab, err := s.app.SetProcessed(s.ownerID, tabID, req.Processed)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tab)
}

func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	options, err := s.app.FilterOptions(s.ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	events, err := s.app.ListEvents(s.ownerID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := r.URL.Query().Get("q")
	limit := 20
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 100 {
		limit = n
	}
	results, err := s.app.SemanticSearch(r.Context(), s.ownerID, query, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleExport serves POST /export/{format}.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	format, err := app.ParseExportFormat(strings.TrimPrefix(r.URL.Path, "/export/"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req struct {
		TabIDs []string `json:"tabIds"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	data, contentType, err := s.app.Export(s.ownerID, req.TabIDs, format)
	if err != nil {
		writeAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeAppError(w http.ResponseWriter, err error) {
	if errors.Is(err, app.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
