package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tabbacklog/internal/servicetoken"
	"tabbacklog/internal/util"
	"tabbacklog/services/enrich/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	InternalJWTPublicKeyPath string
}

// Server exposes HTTP endpoints for the enrichment service.
type Server struct {
	app          *app.App
	internalAuth *servicetoken.Verifier
	mux          *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	verifier, err := servicetoken.NewVerifier("enrich", cfg.InternalJWTPublicKeyPath, []string{"coordinator"})
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
	return util.WithRequestID(util.WithRequestLog("enrich", util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/enrich_tab", s.withInternal(s.handleEnrichTab))
	s.mux.Handle("/enrich_batch", s.withInternal(s.handleEnrichBatch))
	s.mux.Handle("/model", s.withInternal(s.handleModel))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"model":  s.app.ModelName(),
	})
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

func (s *Server) handleEnrichTab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req app.EnrichRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.app.Enrich(r.Context(), req)
	if err != nil {
		writeEnrichError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type enrichBatchRequest struct {
	Tabs []app.EnrichRequest `json:"tabs"`
}

type enrichBatchItem struct {
	URL       string            `json:"url"`
	Result    *app.EnrichResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	RawOutput string            `json:"rawOutput,omitempty"`
	Attempts  int               `json:"attempts,omitempty"`
}

func (s *Server) handleEnrichBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req enrichBatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 8<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Tabs) == 0 {
		writeError(w, http.StatusBadRequest, "tabs required")
		return
	}
	// Sequential on purpose: the model backend is the bottleneck and the
	// coordinator already fans out across batch calls.
	items := make([]enrichBatchItem, 0, len(req.Tabs))
	for _, tab := range req.Tabs {
		item := enrichBatchItem{URL: tab.URL}
		result, err := s.app.Enrich(r.Context(), tab)
		if err != nil {
			var enrichErr *app.EnrichError
			if errors.As(err, &enrichErr) {
				item.Error = enrichErr.Message
				item.RawOutput = enrichErr.RawOutput
				item.Attempts = enrichErr.Attempts
			} else {
				item.Error = err.Error()
			}
		} else {
			item.Result = &result
			item.Attempts = result.Attempts
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"model": s.app.ModelName()})
}

func writeEnrichError(w http.ResponseWriter, err error) {
	var enrichErr *app.EnrichError
	if errors.As(err, &enrichErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     enrichErr.Message,
			"rawOutput": enrichErr.RawOutput,
			"attempts":  enrichErr.Attempts,
		})
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
