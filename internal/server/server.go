// Package server mounts the authentication and file-operation engines
// behind the HTTP/WebSocket surface: /auth/* for the session lifecycle,
// /fs/* (bearer-guarded) for file operations, /events for the live change
// stream, and /health for liveness probes.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tonimelisma/waypoint/internal/audit"
	"github.com/tonimelisma/waypoint/internal/auth"
	"github.com/tonimelisma/waypoint/internal/config"
	"github.com/tonimelisma/waypoint/internal/fileops"
)

// Server holds the wired components and the router.
type Server struct {
	cfg      *config.Config
	auth     *auth.Manager
	files    *fileops.Executor
	recorder audit.Recorder
	logger   *slog.Logger

	// wsOrigins are host[:port] patterns for the WebSocket origin check,
	// derived from the configured allowed origins.
	wsOrigins []string

	router chi.Router
}

// New wires the components into a Server with all routes registered.
func New(cfg *config.Config, authMgr *auth.Manager, files *fileops.Executor,
	recorder audit.Recorder, logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:       cfg,
		auth:      authMgr,
		files:     files,
		recorder:  recorder,
		logger:    logger,
		wsOrigins: originHosts(cfg.Server.AllowedOrigins),
	}

	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/fs", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/list", s.handleList)
		r.Get("/download", s.handleDownload)
		r.Post("/upload", s.handleUpload)
		r.Post("/mkdir", s.handleMkdir)
		r.Post("/move", s.handleMove)
		r.Delete("/delete", s.handleDelete)
	})

	// The WebSocket transport has no header channel, so the token rides
	// in a query parameter; the handler does its own auth check.
	r.Get("/events", s.handleEvents)

	s.router = r

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// handleHealth is the unauthenticated liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth guards /fs/* with the bearer access token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if _, err := s.auth.Authenticate(tokenStr); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer so http.ResponseController (and
// the WebSocket upgrade) can reach Hijacker through the wrapper.
func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// corsMiddleware implements the browser-access policy: only the
// configured origins may call the API, with credentials allowed.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.cfg.Server.AllowedOrigins))
	for _, o := range s.cfg.Server.AllowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Vary", "Origin")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, If-Match")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// originHosts extracts host[:port] patterns from origin URLs for the
// WebSocket origin check.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))

	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}

		hosts = append(hosts, u.Host)
	}

	return hosts
}
