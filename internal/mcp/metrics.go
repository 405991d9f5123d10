package mcp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/mcp"

// outcomeOK labels calls that returned no error. Failed calls are labelled
// with their apperr kind.
const outcomeOK = "ok"

// Metrics instruments tool calls. Instruments that fail to register are
// left nil and skipped.
type Metrics struct {
	calls    metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewMetrics registers the instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return NewMetricsWithMeter(otel.Meter(instrumentationName), logger)
}

// NewMetricsWithMeter registers the instruments on meter.
func NewMetricsWithMeter(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to register mcp instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	var m Metrics
	var err error
	m.calls, err = meter.Int64Counter("ragd.mcp.tool.calls_total",
		metric.WithDescription("MCP tool calls by tool and outcome"),
		metric.WithUnit("{call}"),
	)
	warn("calls_total", err)

	m.latency, err = meter.Float64Histogram("ragd.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call latency; ask_documents includes retrieval and generation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	warn("duration_seconds", err)

	m.inFlight, err = meter.Int64UpDownCounter("ragd.mcp.tool.in_flight",
		metric.WithDescription("MCP tool calls currently executing"),
		metric.WithUnit("{call}"),
	)
	warn("in_flight", err)

	return &m
}

// start marks a call to tool as in flight. The returned func records its
// outcome and must be called exactly once.
func (m *Metrics) start(ctx context.Context, tool string) func(error) {
	toolAttr := metric.WithAttributes(attribute.String("tool", tool))
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, toolAttr)
	}
	began := time.Now()

	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, toolAttr)
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(began).Seconds(), toolAttr)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("outcome", outcome(err)),
			))
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return outcomeOK
	}
	return string(apperr.KindOf(err))
}
