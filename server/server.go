// Package server exposes the dispatcher over HTTP: the tool catalog, the
// invocation endpoint, the invocation journal, and a health probe.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/covailent/mcpd/history"
	"github.com/covailent/mcpd/tool"
)

// Config configures the HTTP server.
type Config struct {
	Registry   *tool.Registry
	Dispatcher *tool.Dispatcher
	History    *history.Store
	CORSOrigin string
	MaxBody    int64
	Logger     *slog.Logger
}

// Server is the mcpd HTTP API server.
type Server struct {
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	history    *history.Store
	corsOrigin string
	maxBody    int64
	logger     *slog.Logger
}

// NewServer creates a server over a sealed registry and its dispatcher.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("server: registry is nil")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("server: dispatcher is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	return &Server{
		registry:   cfg.Registry,
		dispatcher: cfg.Dispatcher,
		history:    cfg.History,
		corsOrigin: corsOrigin,
		maxBody:    maxBody,
		logger:     logger,
	}, nil
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)

	return handler
}

// RegisterRoutes mounts the API routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleListTools)
	mux.HandleFunc("POST /tools/{tool_name}/run", s.handleRunTool)
	mux.HandleFunc("GET /invocations", s.handleListInvocations)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tools":  s.registry.Len(),
	})
}

// handleListTools returns the catalog as a bare array in registration order.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	catalog := s.registry.Catalog()
	if catalog == nil {
		catalog = []tool.Entry{}
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("tool_name")

	payload := map[string]any{}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE",
				fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "MALFORMED_BODY", "request body must be a JSON object")
		return
	}
	// A body holding anything after the first JSON value is malformed too.
	if dec.More() {
		writeError(w, http.StatusBadRequest, "MALFORMED_BODY", "request body must be a single JSON object")
		return
	}

	outputs, err := s.dispatcher.Dispatch(r.Context(), tool.Request{
		Tool:    name,
		Payload: payload,
	})
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outputs)
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "HISTORY_DISABLED", "invocation journal is not enabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	invocations, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read invocation journal", "error", err)
		writeError(w, http.StatusInternalServerError, "HISTORY_READ_FAILED", "could not read invocation journal")
		return
	}
	writeJSON(w, http.StatusOK, invocations)
}

// writeDispatchError maps the dispatch error taxonomy onto HTTP statuses.
// Input violations are the caller's fault; output violations are a tool
// defect and reported as a server-side error with a distinct code.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	dispatchErr, ok := tool.AsDispatchError(err)
	if !ok {
		s.logger.Error("dispatch returned an unclassified error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}

	details := make([]string, 0, len(dispatchErr.Violations))
	for _, v := range dispatchErr.Violations {
		details = append(details, v.Message)
	}

	switch dispatchErr.Kind {
	case tool.KindNotFound:
		writeError(w, http.StatusNotFound, "NOT_FOUND", dispatchErr.Message)
	case tool.KindInvalidInput:
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", dispatchErr.Message, details...)
	case tool.KindInvalidOutput:
		writeError(w, http.StatusInternalServerError, "INVALID_OUTPUT", dispatchErr.Message, details...)
	case tool.KindExecutionFailed:
		writeError(w, http.StatusInternalServerError, "EXECUTION_FAILED", dispatchErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", dispatchErr.Message)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the standard error envelope.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	body := apiError{
		Error: apiErrorBody{
			Code:    code,
			Message: message,
		},
	}
	if len(details) > 0 {
		body.Error.Details = details
	}
	writeJSON(w, status, body)
}
