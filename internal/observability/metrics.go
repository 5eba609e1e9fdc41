package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for fluxfilter
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestSize      *prometheus.HistogramVec
	httpResponseSize     *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Filter pipeline metrics
	filterParseTotal       *prometheus.CounterVec
	filterValidationTotal  *prometheus.CounterVec
	filterValidationErrors *prometheus.CounterVec
	filterCompileTotal     *prometheus.CounterVec
	filterCompileDuration  *prometheus.HistogramVec
	filterClauses          *prometheus.HistogramVec

	// Schema metrics
	schemasLoaded prometheus.Gauge

	// Rate limit metrics
	rateLimitHitsTotal *prometheus.CounterVec

	// System metrics
	systemUptime prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses a fresh registry, so tests can create as many instances as they like.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	m := &Metrics{
		// HTTP metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxfilter_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluxfilter_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluxfilter_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
		httpResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluxfilter_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fluxfilter_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Filter pipeline metrics
		filterParseTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxfilter_filter_parse_total",
				Help: "Total number of filter inputs parsed",
			},
			[]string{"result"},
		),
		filterValidationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxfilter_filter_validations_total",
				Help: "Total number of filter lists validated",
			},
			[]string{"resource", "result"},
		),
		filterValidationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxfilter_filter_validation_errors_total",
				Help: "Total number of validation errors by code",
			},
			[]string{"resource", "code"},
		),
		filterCompileTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxfilter_filter_compiles_total",
				Help: "Total number of filter lists compiled",
			},
			[]string{"resource", "status"},
		),
		filterCompileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluxfilter_filter_compile_duration_seconds",
				Help:    "Filter compilation latency in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"resource"},
		),
		filterClauses: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluxfilter_filter_clauses",
				Help:    "Number of clauses per compiled filter",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
			},
			[]string{"resource"},
		),

		schemasLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fluxfilter_schemas_loaded",
				Help: "Number of filter schemas currently registered",
			},
		),

		rateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxfilter_rate_limit_hits_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"backend", "resource"},
		),

		// System metrics
		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fluxfilter_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		gatherer: gatherer,
	}

	return m
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		requestSize := len(c.Body())
		method := c.Method()

		err := c.Next()

		// Route path is only known after routing
		path := normalizePath(c.Route().Path)
		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())
		responseSize := len(c.Response().Body())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		m.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
		m.httpResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))

		return err
	}
}

// RecordParse records the outcome of parsing a filter input
func (m *Metrics) RecordParse(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.filterParseTotal.WithLabelValues(result).Inc()
}

// RecordValidation records a validation run and counts its errors by code
func (m *Metrics) RecordValidation(resource string, errorCodes []string) {
	result := "valid"
	if len(errorCodes) > 0 {
		result = "invalid"
	}
	m.filterValidationTotal.WithLabelValues(resource, result).Inc()
	for _, code := range errorCodes {
		m.filterValidationErrors.WithLabelValues(resource, code).Inc()
	}
}

// RecordCompile records a compilation
func (m *Metrics) RecordCompile(resource string, clauses int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.filterCompileTotal.WithLabelValues(resource, status).Inc()
	m.filterCompileDuration.WithLabelValues(resource).Observe(duration.Seconds())
	if err == nil {
		m.filterClauses.WithLabelValues(resource).Observe(float64(clauses))
	}
}

// SetSchemasLoaded updates the registered schema count
func (m *Metrics) SetSchemasLoaded(n int) {
	m.schemasLoaded.Set(float64(n))
}

// RecordRateLimitHit records a request rejected by the rate limiter
func (m *Metrics) RecordRateLimitHit(backend, resource string) {
	m.rateLimitHitsTotal.WithLabelValues(backend, resource).Inc()
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// normalizePath bounds the cardinality of the path label
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
