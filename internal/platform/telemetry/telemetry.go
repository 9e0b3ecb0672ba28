// Package telemetry wires Prometheus metrics and OpenTelemetry tracing for
// the clinref server. Metrics live in a private registry exposed at
// /metrics; spans are exported over OTLP/gRPC only when an endpoint is
// configured.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "clinref"

// TelemetryConfig holds all configuration for the telemetry provider.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // gRPC collector endpoint; empty disables export
	Environment    string
	SampleRate     float64 // 0.0 to 1.0
	MetricsEnabled *bool   // nil = use default (true)
	TracingEnabled *bool   // nil = use default (true)
}

func (c *TelemetryConfig) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *TelemetryConfig) tracingOn() bool {
	if c.TracingEnabled == nil {
		return true
	}
	return *c.TracingEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "clinref-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
}

// BoolPtr is a helper to create a *bool for TelemetryConfig fields.
func BoolPtr(b bool) *bool {
	return &b
}

// TelemetryProvider owns the metric collectors and the tracer provider.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry
	tp       *sdktrace.TracerProvider
	tracer   trace.Tracer

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	activeRequests prometheus.Gauge

	ingestBatches  *prometheus.CounterVec
	ingestRows     *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
}

// NewTelemetryProvider builds the provider. Extra tracer provider options
// are appended after the defaults, which lets tests attach a span recorder.
func NewTelemetryProvider(ctx context.Context, cfg TelemetryConfig, opts ...sdktrace.TracerProviderOption) (*TelemetryProvider, error) {
	cfg.applyDefaults()

	p := &TelemetryProvider{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
	}
	p.registerMetrics()

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}
	if cfg.tracingOn() && cfg.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tpOpts = append(tpOpts, opts...)

	p.tp = sdktrace.NewTracerProvider(tpOpts...)
	p.tracer = p.tp.Tracer("github.com/clinref/clinref")
	return p, nil
}

func (p *TelemetryProvider) registerMetrics() {
	p.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})
	p.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	p.activeRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_active_requests",
		Help:      "Requests currently in flight.",
	})
	p.ingestBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_batches_total",
		Help:      "Bulk ingestion batches by entity and outcome.",
	}, []string{"entity", "outcome"})
	p.ingestRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_rows_total",
		Help:      "Rows committed by bulk ingestion.",
	}, []string{"entity"})
	p.ingestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_batch_duration_seconds",
		Help:      "Bulk ingestion latency from validation to commit.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"entity"})

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.httpRequests, p.httpDuration, p.activeRequests,
		p.ingestBatches, p.ingestRows, p.ingestDuration,
	)
}

// Install makes the provider the global otel tracer provider so packages
// calling otel.Tracer pick it up.
func (p *TelemetryProvider) Install() {
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Shutdown flushes pending spans.
func (p *TelemetryProvider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// Registry exposes the metric registry.
func (p *TelemetryProvider) Registry() *prometheus.Registry {
	return p.registry
}

// ObserveBatch records one bulk ingestion outcome.
func (p *TelemetryProvider) ObserveBatch(entity, outcome string, rows int, d time.Duration) {
	if !p.cfg.metricsOn() {
		return
	}
	p.ingestBatches.WithLabelValues(entity, outcome).Inc()
	if rows > 0 {
		p.ingestRows.WithLabelValues(entity).Add(float64(rows))
	}
	p.ingestDuration.WithLabelValues(entity).Observe(d.Seconds())
}

// PoolStatsFunc reports total, idle and acquired connections.
type PoolStatsFunc func() (total, idle, acquired int32)

// RegisterPoolStats exposes connection pool gauges sampled at scrape time.
func (p *TelemetryProvider) RegisterPoolStats(stats PoolStatsFunc) error {
	gauge := func(name, help string, pick func(total, idle, acquired int32) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(pick(stats()))
		})
	}
	var errs []error
	for _, c := range []prometheus.Collector{
		gauge("total_conns", "Open connections.", func(t, _, _ int32) int32 { return t }),
		gauge("idle_conns", "Idle connections.", func(_, i, _ int32) int32 { return i }),
		gauge("acquired_conns", "Connections in use.", func(_, _, a int32) int32 { return a }),
	} {
		errs = append(errs, p.registry.Register(c))
	}
	return errors.Join(errs...)
}

// TracingMiddleware starts a server span per request, named after the
// route pattern.
func (p *TelemetryProvider) TracingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !p.cfg.tracingOn() {
				return next(c)
			}
			req := c.Request()
			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

			route := routeOf(c)
			ctx, span := p.tracer.Start(ctx, "HTTP "+req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("http.target", req.URL.RequestURI()),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			span.SetAttributes(attribute.Int("http.status_code", status))
			if rid, ok := c.Get("request_id").(string); ok && rid != "" {
				span.SetAttributes(attribute.String("request.id", rid))
			}
			if status >= 500 {
				span.SetStatus(codes.Error, strconv.Itoa(status))
			}
			return nil
		}
	}
}

// MetricsMiddleware records request counts and latency per route.
func (p *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !p.cfg.metricsOn() {
				return next(c)
			}
			p.activeRequests.Inc()
			defer p.activeRequests.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := routeOf(c)
			method := c.Request().Method
			p.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			p.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus text format.
func (p *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}

func routeOf(c echo.Context) string {
	if route := c.Path(); route != "" {
		return route
	}
	return c.Request().URL.Path
}
