// Package api serves the access core over HTTP: transition pre-flight
// checks, permission lookups and guarded views, behind chi middleware with
// per-IP rate limiting and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// Options configures a Server. Tables and Sessions are required; Tasks
// enables pre-flight checks by task ID.
type Options struct {
	Config   models.ServerConfig
	Tables   *core.Tables
	Sessions SessionSource
	Events   core.EventLogger
	Tasks    core.TaskAPI
	Logger   *slog.Logger
}

// Server holds the dependencies of the HTTP layer.
type Server struct {
	cfg      models.ServerConfig
	tables   *core.Tables
	machine  *core.StateMachine
	roles    *core.RoleResolver
	levels   *core.LevelResolver
	sessions SessionSource
	events   core.EventLogger
	tasks    core.TaskTransitioner
	limiter  *ipRateLimiter
	metrics  *serverMetrics
	logger   *slog.Logger

	signedIn    func(http.Handler) http.Handler
	policyAdmin func(http.Handler) http.Handler
}

// NewServer creates a Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Tables == nil {
		return nil, errors.New("api server requires tables")
	}
	if opts.Sessions == nil {
		return nil, errors.New("api server requires a session source")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := opts.Config
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	machine := core.NewStateMachine(opts.Tables)
	srv := &Server{
		cfg:      cfg,
		tables:   opts.Tables,
		machine:  machine,
		roles:    core.NewRoleResolver(opts.Tables),
		levels:   core.NewLevelResolver(opts.Tables),
		sessions: opts.Sessions,
		events:   opts.Events,
		limiter:  newIPRateLimiter(limit, burst, 15*time.Minute),
		metrics:  newServerMetrics(),
		logger:   logger,
	}
	if opts.Tasks != nil {
		srv.tasks = core.NewTaskTransitioner(machine, opts.Tasks, opts.Events)
	}

	var err error
	srv.signedIn, err = srv.RequireAccess(core.Requirement{Name: "signed-in"})
	if err != nil {
		return nil, err
	}
	srv.policyAdmin, err = srv.RequireAccess(core.Requirement{
		Name:     "admin-policy",
		Roles:    []models.Role{models.RoleAdmin},
		MinLevel: core.AdminTierLevel,
		Match:    core.MatchAny,
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Handler builds the router.
func (srv *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(srv.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(srv.rateLimit)

	r.Get("/healthz", srv.healthzHandler)
	r.Handle("/metrics", srv.metrics.handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(srv.resolveSession)

		r.Get("/permissions/{role}", srv.permissionsHandler)
		r.With(srv.signedIn).Post("/preflight/transition", srv.preflightHandler)
		r.With(srv.signedIn).Get("/me", srv.meHandler)
		r.With(srv.policyAdmin).Get("/admin/policy", srv.policyHandler)
	})

	return r
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully.
func (srv *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              srv.cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("http server starting", "addr", srv.cfg.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
		srv.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	}
}
