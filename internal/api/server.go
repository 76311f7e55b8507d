package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"feedbackpipe/internal/deps"
	"feedbackpipe/internal/logging"
	"feedbackpipe/internal/services"
	"feedbackpipe/internal/store"
)

const defaultListLimit = 50

// Options configures a Server.
type Options struct {
	Bind        string
	Token       string
	Submissions SubmissionReader
	Hub         *Hub

	// Dependencies reports external tool availability for /api/health.
	Dependencies func() []deps.Status
	Logger       *slog.Logger
}

// Server is the feedbackpipe HTTP API.
type Server struct {
	bind         string
	logger       *slog.Logger
	submissions  *SubmissionService
	hub          *Hub
	dependencies func() []deps.Status

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

// New builds a server. A nil Hub gets an empty one so session routes still
// answer.
func New(opts Options) *Server {
	s := &Server{
		bind:         strings.TrimSpace(opts.Bind),
		logger:       logging.NewComponentLogger(opts.Logger, "api"),
		submissions:  NewSubmissionService(opts.Submissions),
		hub:          opts.Hub,
		dependencies: opts.Dependencies,
	}
	if s.hub == nil {
		s.hub = NewHub(opts.Logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/submissions", s.handleSubmissions)
	mux.HandleFunc("GET /api/submissions/{id}", s.handleSubmission)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
	s.handler = requestIDMiddleware(authMiddleware(opts.Token, mux))

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed, authenticated handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the event hub the server streams from.
func (s *Server) Hub() *Hub { return s.hub }

// Start listens on the configured bind address and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Addr is the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting up to five seconds for requests.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Dependencies: []DependencyStatus{}}
	if s.dependencies != nil {
		resp.Dependencies = FromDependencies(s.dependencies())
		for _, dep := range resp.Dependencies {
			if !dep.Available && !dep.Optional {
				resp.Status = "degraded"
			}
		}
	}
	counts, err := s.submissions.Counts(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	resp.Counts = counts
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultListLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	var statuses []store.Status
	for _, value := range query["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		statuses = append(statuses, store.Status(trimmed))
	}
	items, err := s.submissions.List(r.Context(), limit, statuses...)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []Submission{}
	}
	writeJSON(w, http.StatusOK, SubmissionListResponse{Items: items})
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	item, err := s.submissions.Describe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if item == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "submission not found"})
		return
	}
	writeJSON(w, http.StatusOK, SubmissionResponse{Item: *item})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	event, ok := s.hub.Latest(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeSession(w, r, r.PathValue("id"))
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logging.WithContext(r.Context(), s.logger).Warn("api request failed",
		logging.String(logging.FieldEventType, "api_error"),
		logging.Int("status", status),
		logging.Error(err),
	)
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware echoes the caller's X-Request-ID or assigns one, and
// carries it on the request context for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
