// Package server exposes the messaging services over HTTP and websockets.
package server

import (
	"bufio"
	"circles/auth"
	"circles/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// NewRouter mounts the health endpoint at the root and everything else under /api behind auth.
func NewRouter(log *slog.Logger, tokens *auth.TokenManager, chat *ChatServer,
	realtime *RealtimeServer, monitoring *MonitoringServer) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(log))
	r.HandleFunc("/healthz", monitoring.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware(tokens))
	chat.Register(api)
	api.HandleFunc("/realtime", realtime.Connect).Methods(http.MethodGet)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError hides internal causes from callers and logs them instead.
func writeError(w http.ResponseWriter, log *slog.Logger, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Field: errors.FieldOf(err)})
}

func callerID(r *http.Request) (int64, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return 0, errors.ErrUnauthorized
	}
	return id, nil
}

// pathID reads a positive numeric mux variable.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInputError(name, "must be a positive integer")
	}
	return id, nil
}

// queryInt returns nil when the parameter is absent.
func queryInt(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.NewInputError(name, "must be an integer")
	}
	return &v, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(v); err != nil {
		return errors.NewInputError("body", "must be valid JSON")
	}
	return nil
}

// statusRecorder keeps the status for the access log and still lets websockets hijack.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func loggingMiddleware(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
		})
	}
}
