package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"todoflow/interfaces/http/rest/handlers"
	"todoflow/interfaces/http/rest/middleware"
	"todoflow/pkg/auth"
	"todoflow/pkg/errors"
	"todoflow/pkg/observability"
	"todoflow/pkg/utils"
)

// ServiceName names the server in traces and metrics.
const ServiceName = "todoflow-api"

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Options are the router settings that come from configuration.
type Options struct {
	EnableCORS     bool
	CORSOrigins    []string
	EnableTracing  bool
	AuthRateLimit  int
	AuthRateWindow time.Duration
	CircuitBreaker middleware.CircuitBreakerConfig
	// BreakerEnabled turns the circuit breaker on /projects on
	BreakerEnabled bool
}

// Router creates and configures the HTTP router
type Router struct {
	authHandler    *handlers.AuthHandler
	projectHandler *handlers.ProjectHandler
	validator      *auth.JWTValidator
	limiter        auth.RateLimiter
	metrics        *observability.Collector
	errorHandler   *errors.ErrorHandler
	checks         map[string]ReadinessCheck
	opts           Options
	logger         *zap.Logger
}

// NewRouter creates a new router instance. metrics may be nil, which
// disables /metrics.
func NewRouter(
	authHandler *handlers.AuthHandler,
	projectHandler *handlers.ProjectHandler,
	validator *auth.JWTValidator,
	limiter auth.RateLimiter,
	metrics *observability.Collector,
	errorHandler *errors.ErrorHandler,
	checks map[string]ReadinessCheck,
	opts Options,
	logger *zap.Logger,
) *Router {
	return &Router{
		authHandler:    authHandler,
		projectHandler: projectHandler,
		validator:      validator,
		limiter:        limiter,
		metrics:        metrics,
		errorHandler:   errorHandler,
		checks:         checks,
		opts:           opts,
		logger:         logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errorHandler.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.opts.EnableTracing {
		router.Use(observability.TracingMiddleware(ServiceName))
	}
	if rt.metrics != nil {
		router.Use(observability.MetricsMiddleware(rt.metrics))
	}
	if rt.opts.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "traceparent", "tracestate"},
			ExposedHeaders:   []string{"X-Request-ID", "X-Trace-ID", "X-Cascaded-Edges"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errorHandler.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		rt.errorHandler.HandleStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	router.Route("/auth", func(r chi.Router) {
		r.Use(middleware.RateLimit(rt.limiter, rt.opts.AuthRateLimit, rt.opts.AuthRateWindow.String(), rt.errorHandler, rt.logger))
		r.Post("/login", rt.authHandler.Login)
		r.Post("/logout", rt.authHandler.Logout)
		r.Post("/refresh-token", rt.authHandler.Refresh)
	})

	router.Route("/projects", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.validator, rt.errorHandler, rt.logger))
		if rt.opts.BreakerEnabled {
			r.Use(middleware.CircuitBreaker(rt.opts.CircuitBreaker, rt.errorHandler, rt.logger))
		}
		r.Get("/", rt.projectHandler.ListProjects)
		r.Post("/", rt.projectHandler.CreateProject)
		r.Get("/{projectID}", rt.projectHandler.GetProject)
		r.Patch("/{projectID}", rt.projectHandler.UpdateProject)
		r.Delete("/{projectID}", rt.projectHandler.DeleteProject)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck runs every dependency check concurrently and reports 503
// if any of them fails.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	type outcome struct {
		name string
		err  error
	}
	out := make(chan outcome, len(rt.checks))
	var g errgroup.Group
	for name, check := range rt.checks {
		g.Go(func() error {
			out <- outcome{name: name, err: check(ctx)}
			return nil
		})
	}
	_ = g.Wait()
	close(out)

	results := make(map[string]string, len(rt.checks))
	status := http.StatusOK
	for o := range out {
		if o.err != nil {
			status = http.StatusServiceUnavailable
			results[o.name] = fmt.Sprintf("unavailable: %v", o.err)
			rt.logger.Warn("Readiness check failed", zap.String("check", o.name), zap.Error(o.err))
			continue
		}
		results[o.name] = "ok"
	}

	body := map[string]any{"status": "ready", "checks": results}
	if status != http.StatusOK {
		body["status"] = "not ready"
	}
	utils.RespondJSON(w, status, body)
}
