package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/fluxfilter/internal/config"
	"github.com/fluxbase-eu/fluxfilter/internal/middleware"
	"github.com/fluxbase-eu/fluxfilter/internal/observability"
	"github.com/fluxbase-eu/fluxfilter/internal/ratelimit"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
)

// Server represents the HTTP server
type Server struct {
	app       *fiber.App
	config    *config.Config
	registry  *schema.Registry
	tracer    *observability.Tracer
	metrics   *observability.Metrics
	filters   *FilterHandler
	limiter   ratelimit.Store
	startTime time.Time
}

// NewServer creates a new HTTP server serving the schemas in registry. A
// non-nil limiter rate limits the filter endpoints and is closed on Shutdown.
func NewServer(cfg *config.Config, registry *schema.Registry, limiter ratelimit.Store) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "fluxfilter",
		AppName:               "fluxfilter",
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	tracer, err := observability.NewTracer(context.Background(), observability.TracerConfig(cfg.Tracing))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OpenTelemetry tracer, tracing will be disabled")
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(reg)
		metrics.SetSchemasLoaded(registry.Len())
	}

	server := &Server{
		app:       app,
		config:    cfg,
		registry:  registry,
		tracer:    tracer,
		metrics:   metrics,
		filters:   NewFilterHandler(registry, cfg.Filters.ParseOptions(), cfg.Filters.CompileOptions(), metrics),
		limiter:   limiter,
		startTime: time.Now(),
	}

	server.setupMiddlewares()
	server.setupRoutes()

	return server
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	s.app.Use(requestid.New())

	if s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig()))
	}

	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(middleware.StructuredLogger(middleware.StructuredLoggerConfig{
		SkipPaths:            []string{"/health", s.config.Metrics.Path},
		LogRequestBody:       s.config.Debug,
		SlowRequestThreshold: 250 * time.Millisecond,
	}))

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.metrics != nil {
		metricsHandler := s.metrics.Handler()
		s.app.Get(s.config.Metrics.Path, func(c *fiber.Ctx) error {
			s.metrics.UpdateUptime(s.startTime)
			return metricsHandler(c)
		})
	}

	v1 := s.app.Group("/v1")

	schemas := v1.Group("/schemas")
	schemas.Get("/", s.filters.ListSchemas)
	schemas.Get("/:resource", s.filters.GetSchema)

	var limited []fiber.Handler
	if s.limiter != nil {
		limited = append(limited, s.rateLimiter())
	}

	filters := v1.Group("/filters/:resource")
	filters.Get("/validate", append(limited, s.filters.Validate)...)
	filters.Post("/validate", append(limited, s.filters.Validate)...)
	filters.Get("/compile", append(limited, s.filters.Compile)...)
	filters.Post("/compile", append(limited, s.filters.Compile)...)
}

func (s *Server) rateLimiter() fiber.Handler {
	backend := ratelimit.BackendName(s.limiter)
	log.Debug().
		Str("backend", backend).
		Int("max", s.config.RateLimit.Max).
		Dur("window", s.config.RateLimit.Window).
		Msg("Adding rate limiter to filter endpoints")

	return middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Store:  s.limiter,
		Max:    s.config.RateLimit.Max,
		Window: s.config.RateLimit.Window,
		OnLimit: func(c *fiber.Ctx) {
			if s.metrics != nil {
				s.metrics.RecordRateLimitHit(backend, c.Params("resource"))
			}
		},
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"schemas":   s.registry.Len(),
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Int("schemas", s.registry.Len()).Msg("Starting HTTP server")
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Flush remaining spans
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown OpenTelemetry tracer")
		}
	}

	log.Info().Msg("Shutting down HTTP server")
	err := s.app.ShutdownWithContext(ctx)

	if s.limiter != nil {
		if cerr := s.limiter.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close rate limit store")
		}
	}
	return err
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}
