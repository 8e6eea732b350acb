// Package api provides the HTTP control surface of the ADPF daemon: session
// calls, profile administration, history and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yaap/hardware-google-pixel/internal/app/session"
	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/health"
	"github.com/yaap/hardware-google-pixel/internal/infra/logging"
	"github.com/yaap/hardware-google-pixel/internal/infra/sqlite"
)

// requestTimeout bounds every request.
const requestTimeout = 30 * time.Second

// ProfileAdmin lists and switches ADPF profiles and reports hint state.
type ProfileAdmin interface {
	Profiles() []domain.Profile
	TagProfiles() map[string]string
	SetProfile(tag domain.SessionTag, name string) error
	ActiveHints() []string
}

// HistoryReader queries closed sessions.
type HistoryReader interface {
	SessionHistory(ctx context.Context, q sqlite.HistoryQuery) ([]domain.SessionHistory, error)
	SummarizeHistory(ctx context.Context) ([]sqlite.TagSummary, error)
}

// HealthReporter exposes the latest health check results.
type HealthReporter interface {
	Statuses() []health.Status
	IsHealthy() bool
}

// Options wires a Server. Sessions is required; the rest is optional.
type Options struct {
	Sessions *session.Manager
	Profiles ProfileAdmin
	History  HistoryReader
	Health   HealthReporter

	Version string
	BootID  string
	Metrics bool
	Logger  logr.Logger
}

// Server is the ADPF HTTP API server.
type Server struct {
	sessions *session.Manager
	profiles ProfileAdmin
	history  HistoryReader
	health   HealthReporter

	version        string
	bootID         string
	metricsEnabled bool
	log            logr.Logger
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	return &Server{
		sessions:       opts.Sessions,
		profiles:       opts.Profiles,
		history:        opts.History,
		health:         opts.Health,
		version:        opts.Version,
		bootID:         opts.BootID,
		metricsEnabled: opts.Metrics,
		log:            opts.Logger.WithName("api"),
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.logRequests)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCloseSession)
			r.Put("/target", s.handleUpdateTarget)
			r.Post("/report", s.handleReport)
			r.Post("/hint", s.handleSendHint)
			r.Put("/mode", s.handleSetMode)
			r.Put("/threads", s.handleSetThreads)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
		})
	})
	r.Get("/api/snapshot", s.handleSnapshot)
	r.Get("/api/adpf/rate", s.handlePreferredRate)

	if s.profiles != nil {
		r.Route("/api/profiles", func(r chi.Router) {
			r.Get("/", s.handleListProfiles)
			r.Put("/{tag}", s.handleSetProfile)
		})
		r.Get("/api/hints", s.handleActiveHints)
	}

	if s.history != nil {
		r.Get("/api/history", s.handleHistory)
		r.Get("/api/history/summary", s.handleHistorySummary)
	}

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Status ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":           "running",
		"version":          s.version,
		"boot_id":          s.bootID,
		"sessions":         len(s.sessions.Sessions()),
		"boost_suppressed": s.sessions.BoostSuppressed(),
		"timeouts":         s.sessions.TimeoutStats(),
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleActiveHints(w http.ResponseWriter, r *http.Request) {
	active := s.profiles.ActiveHints()
	if active == nil {
		active = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": active})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    reason,
		},
	})
}

// writeDomainError maps err onto a status code by its category.
func writeDomainError(w http.ResponseWriter, err error) {
	reason := domain.ErrorReason(err)
	writeError(w, statusFor(err), reason, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrIllegalState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v and rejects unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// logRequests logs every request at debug verbosity.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.V(logging.DEBUG).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// corsMiddleware adds CORS headers for local dashboards.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
