// Package http exposes the enqueue and inspection API.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gazeta/internal/adapter/source"
	"gazeta/internal/domain"
)

// Server is the HTTP adapter for the ingestion service.
type Server struct {
	svc      *domain.QueueService
	registry *source.Registry
	mux      *http.ServeMux
	server   *http.Server
	token    string
	logger   *slog.Logger
}

// NewServer creates a new HTTP server. An empty token disables
// authentication.
func NewServer(svc *domain.QueueService, registry *source.Registry, addr, token string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:      svc,
		registry: registry,
		mux:      http.NewServeMux(),
		token:    token,
		logger:   logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /diarios", s.withAuth(s.handleEnqueue))
	s.mux.HandleFunc("GET /queue/{id}", s.withAuth(s.handleGetItem))
	s.mux.HandleFunc("GET /sources", s.withAuth(s.handleSources))
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// enqueueRequest is the request body for POST /diarios. When URL is empty
// the server resolves it from the source adapter; when Date is empty the
// latest published edition is used.
type enqueueRequest struct {
	Source   string `json:"source"`
	Date     string `json:"date,omitempty"`
	URL      string `json:"url,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// itemResponse is the JSON representation of a queued work item.
type itemResponse struct {
	ID        int64             `json:"id"`
	URL       string            `json:"url"`
	Status    string            `json:"status"`
	Priority  int               `json:"priority"`
	Attempts  int               `json:"attempts"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Source == "" {
		s.writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	adapter, err := s.registry.Get(req.Source)
	if err != nil {
		var unknown *domain.UnknownSourceError
		if errors.As(err, &unknown) {
			s.writeError(w, http.StatusBadRequest, unknown.Error())
			return
		}
		s.logger.Error("resolve source", "source", req.Source, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	rawURL := req.URL
	if rawURL == "" {
		if req.Date != "" {
			rawURL, err = adapter.Discovery.URLForDate(date)
		} else {
			rawURL, err = adapter.Discovery.LatestURL(r.Context())
		}
		if err != nil {
			s.logger.Error("resolve edition URL", "source", req.Source, "error", err)
			s.writeError(w, http.StatusBadGateway, "could not resolve edition URL")
			return
		}
	}
	if req.Date == "" {
		// The latest edition is not necessarily today's (weekends,
		// holidays); trust the date embedded in the edition URL over the
		// clock.
		if d, ok := source.DateFromURL(rawURL); ok {
			date = d
		}
	}

	item, err := s.svc.Submit(r.Context(), req.Source, date, rawURL, req.Priority)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidURL) {
			s.writeError(w, http.StatusBadRequest, "invalid URL")
			return
		}
		s.logger.Error("submit", "source", req.Source, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusCreated, itemToResponse(item))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid item ID")
		return
	}

	item, err := s.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			s.writeError(w, http.StatusNotFound, "item not found")
			return
		}
		s.logger.Error("get item", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, itemToResponse(item))
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"sources": s.registry.SupportedCodes()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func itemToResponse(item *domain.WorkItem) itemResponse {
	return itemResponse{
		ID:        item.ID,
		URL:       item.Reference,
		Status:    string(item.Status),
		Priority:  item.Priority,
		Attempts:  item.Attempts,
		Error:     item.Error,
		Metadata:  item.Metadata,
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
