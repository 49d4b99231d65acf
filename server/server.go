// Package server implements the tms HTTP server: routing, bearer
// authentication, CORS, API docs and the live activity stream.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/tms/auth"
	"github.com/GoCodeAlone/tms/comms"
	"github.com/GoCodeAlone/tms/config"
	"github.com/GoCodeAlone/tms/server/api"
	"github.com/GoCodeAlone/tms/server/ws"
	"github.com/GoCodeAlone/tms/task"
	"github.com/GoCodeAlone/tms/user"
)

// Server is the tms HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	authn  *auth.Authenticator
	users  *user.Service
	tasks  *task.Service
	bus    comms.Bus
	hub    *ws.Hub
	detach func()

	routesOnce sync.Once
	version    string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		logger:  logger,
		hub:     ws.NewHub(logger),
		version: ver,
	}
}

// SetAuthenticator attaches the bearer token authenticator.
func (s *Server) SetAuthenticator(a *auth.Authenticator) {
	s.authn = a
}

// SetUserService attaches the account service.
func (s *Server) SetUserService(svc *user.Service) {
	s.users = svc
}

// SetTaskService attaches the task service.
func (s *Server) SetTaskService(svc *task.Service) {
	s.tasks = svc
}

// SetBus attaches the activity bus that feeds the SSE stream.
func (s *Server) SetBus(bus comms.Bus) {
	s.bus = bus
}

// Handler returns the fully wired HTTP handler. Routes are registered on
// first use; call the setters before.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.registerRoutes)
	return s.withCORS(s.mux)
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server. Open event streams are
// closed first so Shutdown does not wait on them; other requests drain.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.detach != nil {
		s.detach()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Tasks:   s.tasks,
		Users:   s.users,
		Bus:     s.bus,
		Logger:  s.logger,
		Version: s.version,
		Dev:     s.cfg.IsDevelopment(),
	}
	if s.bus != nil {
		s.detach = s.hub.Attach(s.bus)
	}

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/docs", handleDocs)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())

	// Protected API, wrapped in auth middleware
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)
	apiMux.HandleFunc("GET /api/events", s.hub.ServeSSE)
	apiMux.Handle("/api/", fallback(apiMux, "/api/"))

	// Admin routes are checked for the ADMIN role before any handler runs.
	adminMux := http.NewServeMux()
	h.RegisterAdminRoutes(adminMux)
	adminMux.Handle("/api/admin/", fallback(adminMux, "/api/admin/"))
	apiMux.Handle("/api/admin/", s.requireAdmin(adminMux))

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
	s.mux.Handle("/", fallback(s.mux, "/"))
}

// routeMethods are the methods tried when a request reaches a fallback.
var routeMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// fallback answers requests that reach the catch-all pattern of mux with
// an error envelope: 405 when the path is routed for another method, 404
// otherwise.
func fallback(mux *http.ServeMux, pattern string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var allowed []string
		for _, m := range routeMethods {
			if m == r.Method {
				continue
			}
			alt := r.Clone(r.Context())
			alt.Method = m
			if _, p := mux.Handler(alt); p != "" && p != pattern {
				allowed = append(allowed, m)
			}
		}
		if len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			api.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		api.WriteError(w, http.StatusNotFound, "Not found")
	})
}

// withCORS answers preflight requests and sets CORS headers for the
// configured origin.
func (s *Server) withCORS(next http.Handler) http.Handler {
	origin := s.cfg.Server.CORSOrigin
	if origin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") == origin {
			hdr := w.Header()
			hdr.Set("Access-Control-Allow-Origin", origin)
			hdr.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			hdr.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			hdr.Set("Access-Control-Allow-Credentials", "true")
			hdr.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
