package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"tabbacklog/internal/servicetoken"
	"tabbacklog/internal/util"
	"tabbacklog/pkg/store"
	"tabbacklog/services/coordinator/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	InternalJWTPublicKeyPath string
}

// Server exposes the pipeline control endpoints.
type Server struct {
	app          *app.App
	internalAuth *servicetoken.Verifier
	mux          *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	verifier, err := servicetoken.NewVerifier("coordinator", cfg.InternalJWTPublicKeyPath, []string{"webui", "ingest"})
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:          cfg.App,
		internalAuth: verifier,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("coordinator", util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/pipeline/fetch_batch", s.withInternal(s.handleFetchBatch))
	s.mux.Handle("/pipeline/enrich_batch", s.withInternal(s.handleEnrichBatch))
	s.mux.Handle("/pipeline/embeddings/backfill", s.withInternal(s.handleEmbeddingBackfill))
	s.mux.Handle("/pipeline/tabs/", s.withInternal(s.handleTabReset))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withInternal(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if _, err := s.internalAuth.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

type batchRequest struct {
	OwnerID string `json:"ownerId"`
	Limit   int    `json:"limit,omitempty"`
}

type batchRunner func(ctx context.Context, ownerID string, limit int) (app.BatchReport, error)

func (s *Server) handleFetchBatch(w http.ResponseWriter, r *http.Request) {
	s.runBatch(w, r, s.app.RunFetchBatch)
}

func (s *Server) handleEnrichBatch(w http.ResponseWriter, r *http.Request) {
	s.runBatch(w, r, s.app.RunEnrichBatch)
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request, run batchRunner) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, ok := decodeBatchRequest(w, r)
	if !ok {
		return
	}
	report, err := run(r.Context(), req.OwnerID, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEmbeddingBackfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, ok := decodeBatchRequest(w, r)
	if !ok {
		return
	}
	enqueued, err := s.app.BackfillEmbeddings(r.Context(), req.OwnerID, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"enqueued": enqueued})
}

// handleTabReset serves POST /pipeline/tabs/{id}/reset.
func (s *Server) handleTabReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/pipeline/tabs/")
	tabID, action, found := strings.Cut(rest, "/")
	if !found || action != "reset" || tabID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req struct {
		OwnerID string `json:"ownerId"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "ownerId required")
		return
	}
	tab, err := s.app.ResetTab(r.Context(), req.OwnerID, tabID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tab)
}

func decodeBatchRequest(w http.ResponseWriter, r *http.Request) (batchRequest, bool) {
	var req batchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "ownerId required")
		return req, false
	}
	return req, true
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
