package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/ragd/internal/http"

// HTTPMetrics records request counts, latency and response size per route,
// plus requests turned away before reaching a handler. Instruments that
// fail to register are left nil and skipped.
type HTTPMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	size     metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
	rejected metric.Int64Counter
}

// NewHTTPMetrics registers the instruments on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	return NewHTTPMetricsWithMeter(otel.Meter(httpInstrumentationName), logger)
}

// NewHTTPMetricsWithMeter registers the instruments on meter.
func NewHTTPMetricsWithMeter(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to register http instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	var m HTTPMetrics
	var err error
	m.requests, err = meter.Int64Counter("ragd.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status"),
		metric.WithUnit("{request}"),
	)
	warn("requests_total", err)

	// A chat answer waits on an embedding call and a generation call.
	m.latency, err = meter.Float64Histogram("ragd.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	warn("request_duration_seconds", err)

	m.size, err = meter.Int64Histogram("ragd.http.response_size_bytes",
		metric.WithDescription("HTTP response body size by method, route and status"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 5000, 10000, 50000, 100000),
	)
	warn("response_size_bytes", err)

	m.inFlight, err = meter.Int64UpDownCounter("ragd.http.active_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	)
	warn("active_requests", err)

	m.rejected, err = meter.Int64Counter("ragd.http.rejected_total",
		metric.WithDescription("Requests refused before a handler ran, by reason (unauthorized, rate_limited)"),
		metric.WithUnit("{request}"),
	)
	warn("rejected_total", err)

	return &m
}

// MetricsMiddleware records every request that reaches the router.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()

			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
			}

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status
				// below is the one the client sees.
				c.Error(err)
				err = nil
			}

			attrs := metric.WithAttributes(
				attribute.String("method", req.Method),
				attribute.String("route", normalizePath(c.Path())),
				attribute.Int("status", c.Response().Status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.size != nil {
				m.size.Record(ctx, c.Response().Size, attrs)
			}
			if m.inFlight != nil {
				m.inFlight.Add(ctx, -1)
			}
			return err
		}
	}
}

// recordRejected counts a request refused by auth or rate limiting.
func (m *HTTPMetrics) recordRejected(c echo.Context, reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.Add(c.Request().Context(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// normalizePath folds unmatched requests into "/". Registered routes have
// no parameters, so c.Path() is already low-cardinality.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
