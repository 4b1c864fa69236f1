// Package httpapi serves the kiosk and phone HTTP API: heartbeats, session lifecycle and the QR
// handoff flow. Kiosks and phones poll; there is no push channel.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"kiosk-engine/internal/apperr"
	handoffservice "kiosk-engine/internal/handoff/service"
	"kiosk-engine/internal/presence"
	sessionservice "kiosk-engine/internal/session/service"
)

// ReadyChecker reports whether the service can take traffic.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Deps holds the services behind the HTTP API.
type Deps struct {
	Monitor *presence.Monitor
	Tracker *sessionservice.Tracker
	Broker  *handoffservice.Broker
	// Ready backs /healthz. If nil, /healthz always reports ok.
	Ready ReadyChecker
	// UploadMaxBytes caps the body of a handoff upload.
	UploadMaxBytes int64
	Logger         zerolog.Logger
}

// Server is the HTTP API.
type Server struct {
	router    *mux.Router
	monitor   *presence.Monitor
	tracker   *sessionservice.Tracker
	broker    *handoffservice.Broker
	ready     ReadyChecker
	uploadMax int64
	log       zerolog.Logger
	nowF      func() time.Time
}

// NewServer returns the API with all routes registered.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		monitor:   deps.Monitor,
		tracker:   deps.Tracker,
		broker:    deps.Broker,
		ready:     deps.Ready,
		uploadMax: deps.UploadMaxBytes,
		log:       deps.Logger.With().Str("component", "httpapi").Logger(),
		nowF:      func() time.Time { return time.Now().UTC() },
	}
	s.setupRoutes()
	return s
}

// WithClock replaces the time source used to render handoff status. Used by tests.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.nowF = now
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestLogger)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/kiosks/{kioskId}/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	api.HandleFunc("/kiosks/{kioskId}/presence", s.handlePresence).Methods(http.MethodGet)

	api.HandleFunc("/sessions", s.handleStartSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}/events", s.handleRecordEvent).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/end", s.handleEndSession).Methods(http.MethodPost)

	api.HandleFunc("/handoff", s.handleCreateHandoff).Methods(http.MethodPost)
	api.HandleFunc("/handoff/{token}", s.handleGetHandoff).Methods(http.MethodGet)
	api.HandleFunc("/handoff/{token}", s.handleDeleteHandoff).Methods(http.MethodDelete)
	api.HandleFunc("/handoff/{token}/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/handoff/{token}/image", s.handleGetImage).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ready(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger logs one line per request keyed by the route template, so ids and tokens stay out of logs.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		ev := s.log.Debug()
		if rec.status >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("method", r.Method).Str("route", route).Int("status", rec.status).
			Dur("duration", time.Since(start)).Msg("http request")
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn().Err(err).Msg("encode response")
	}
}

func (s *Server) writeAPIError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps apperr kinds to HTTP statuses. Unknown errors are logged and hidden behind 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		s.writeAPIError(w, status, "internal error")
		return
	}
	s.writeAPIError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrInvalidReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrAlreadyCompleted):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrExpired):
		return http.StatusGone
	case errors.Is(err, apperr.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// decodeJSON decodes an optional JSON body into dst. An empty body leaves dst unchanged.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.ErrInvalidArgument, "invalid JSON body: %v", err)
	}
	return nil
}
