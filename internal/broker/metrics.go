package broker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all broker metrics.
const meterName = "github.com/conciergehq/concierge/internal/broker"

// Metrics holds the broker's OpenTelemetry instruments. All fields are safe
// for concurrent use; the underlying OTel types handle their own
// synchronisation. A nil *Metrics is valid and records nothing, so tests
// can run the executor without a meter provider.
type Metrics struct {
	// Invocations counts tool invocations. Attributes: tool, status
	// (ok | error | not_connected | config_missing).
	Invocations metric.Int64Counter

	// InvocationDuration tracks end-to-end invocation latency in seconds,
	// including retries and backoff. Attributes: tool.
	InvocationDuration metric.Float64Histogram

	// Retries counts retry attempts (not first attempts). Attributes: tool.
	Retries metric.Int64Counter

	// CacheHits and CacheMisses count result-cache lookups for cacheable
	// invocations.
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter
}

// NewMetrics creates broker instruments on the given provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	invocations, err := meter.Int64Counter("concierge.broker.invocations",
		metric.WithDescription("Tool invocations by tool and status."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("concierge.broker.invocation.duration",
		metric.WithDescription("End-to-end invocation latency including retries."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("concierge.broker.retries",
		metric.WithDescription("Retry attempts after a failed attempt."))
	if err != nil {
		return nil, err
	}
	hits, err := meter.Int64Counter("concierge.broker.cache.hits",
		metric.WithDescription("Result cache hits."))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("concierge.broker.cache.misses",
		metric.WithDescription("Result cache misses."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Invocations:        invocations,
		InvocationDuration: duration,
		Retries:            retries,
		CacheHits:          hits,
		CacheMisses:        misses,
	}, nil
}

func (m *Metrics) recordInvocation(ctx context.Context, tool, status string, seconds float64) {
	if m == nil {
		return
	}
	m.Invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
	m.InvocationDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("tool", tool),
	))
}

func (m *Metrics) recordRetry(ctx context.Context, tool string) {
	if m == nil {
		return
	}
	m.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

func (m *Metrics) recordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Add(ctx, 1)
		return
	}
	m.CacheMisses.Add(ctx, 1)
}
