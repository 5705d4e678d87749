// Package api provides the HTTP API server for mailquery.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wesm/mailquery/internal/audit"
	"github.com/wesm/mailquery/internal/config"
	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/metrics"
	"github.com/wesm/mailquery/internal/query"
	"github.com/wesm/mailquery/internal/scheduler"
	"github.com/wesm/mailquery/internal/search"
)

// Searcher defines the engine operations the API needs.
type Searcher interface {
	Run(ctx context.Context, r query.Request) (*query.Result, error)
	Folders(ctx context.Context) ([]mailstore.Folder, error)
	Email(ctx context.Context, id string) (*mailstore.Email, error)
}

// HealthReporter reports mail store connection state.
type HealthReporter interface {
	Info() governor.ConnectionInfo
}

// JobScheduler defines the scheduler operations the API needs.
type JobScheduler interface {
	Status() []scheduler.JobStatus
	IsRunning() bool
}

// Deps are the collaborators behind the API. Engine is required; the rest
// may be nil.
type Deps struct {
	Engine    Searcher
	Health    HealthReporter
	Scheduler JobScheduler
	Audit     audit.Recorder
}

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	engine      Searcher
	health      HealthReporter
	scheduler   JobScheduler
	audit       *audit.Trail
	parser      *search.Parser
	timeouts    governor.Timeouts
	retry       *governor.RetryPolicy
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	retry := governor.NewRetryPolicy(cfg.Connection.MaxRetries, cfg.RetryDelay())
	retry.Logger = logger

	s := &Server{
		cfg:       cfg,
		engine:    deps.Engine,
		health:    deps.Health,
		scheduler: deps.Scheduler,
		audit:     audit.BestEffort(deps.Audit, logger),
		parser:    search.NewParser(),
		timeouts:  cfg.GovernorTimeouts(),
		retry:     retry,
		logger:    logger,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)

	r.Use(CORSMiddleware(DefaultCORSConfig(s.cfg.Server.CORSOrigins)))

	s.rateLimiter = NewRateLimiter(s.cfg.Server.RateLimitQPS, s.cfg.Server.RateLimitBurst)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	// Health and metrics (no auth required)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/folders", s.handleFolders)
		r.Get("/messages/{id}", s.handleGetMessage)
		r.Get("/search", s.handleSearch)
		r.Get("/scheduler/status", s.handleSchedulerStatus)
	})

	return r
}

// Start begins listening for HTTP requests.
// Returns an error if the security posture is invalid.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml")
	}

	// The search handler enforces its own ceiling; leave headroom for it.
	writeTimeout := s.timeouts.For(governor.OpSearch) + 15*time.Second

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
