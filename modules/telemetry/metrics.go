package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics holds counters and histograms for HTTP endpoint instrumentation
type HTTPMetrics struct {
	requestCounter    metric.Int64Counter
	durationHisto     metric.Float64Histogram
	responseSizeHisto metric.Int64Histogram
}

// NewHTTPMetrics creates a new HTTPMetrics instance for a given service name
func NewHTTPMetrics(serviceName string) (*HTTPMetrics, error) {
	meter := otel.Meter(serviceName)

	requestCounter, err := meter.Int64Counter(
		"http_server_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	durationHisto, err := meter.Float64Histogram(
		"http_server_duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	responseSizeHisto, err := meter.Int64Histogram(
		"http_server_response_size",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requestCounter:    requestCounter,
		durationHisto:     durationHisto,
		responseSizeHisto: responseSizeHisto,
	}, nil
}

// RecordRequest records a single HTTP request with its attributes
func (m *HTTPMetrics) RecordRequest(ctx context.Context, method, endpoint, statusCode string, durationMs float64, responseSize int64) {
	attrs := []attribute.KeyValue{
		attribute.String("http_method", method),
		attribute.String("http_endpoint", endpoint),
		attribute.String("http_status_code", statusCode),
	}

	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durationHisto.Record(ctx, durationMs, metric.WithAttributes(attrs...))
	if responseSize > 0 {
		m.responseSizeHisto.Record(ctx, responseSize, metric.WithAttributes(attrs...))
	}
}

// LimiterMetrics instruments admission-control decisions. All methods are
// nil-receiver safe so callers can run without telemetry configured.
type LimiterMetrics struct {
	decisionCounter metric.Int64Counter
	fallbackCounter metric.Int64Counter
	failOpenCounter metric.Int64Counter
}

func NewLimiterMetrics(serviceName string) (*LimiterMetrics, error) {
	meter := otel.Meter(serviceName)

	decisionCounter, err := meter.Int64Counter(
		"ratelimit_decisions_total",
		metric.WithDescription("Admission decisions by outcome and serving store"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	fallbackCounter, err := meter.Int64Counter(
		"ratelimit_fallbacks_total",
		metric.WithDescription("Evaluations redone against the local store after a distributed store failure"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, err
	}

	failOpenCounter, err := meter.Int64Counter(
		"ratelimit_fail_open_total",
		metric.WithDescription("Requests allowed because evaluation itself failed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &LimiterMetrics{
		decisionCounter: decisionCounter,
		fallbackCounter: fallbackCounter,
		failOpenCounter: failOpenCounter,
	}, nil
}

func (m *LimiterMetrics) RecordDecision(ctx context.Context, allowed bool, source string) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.decisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}

func (m *LimiterMetrics) RecordFallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.fallbackCounter.Add(ctx, 1)
}

func (m *LimiterMetrics) RecordFailOpen(ctx context.Context) {
	if m == nil {
		return
	}
	m.failOpenCounter.Add(ctx, 1)
}
