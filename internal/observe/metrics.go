// Package observe provides application-wide observability primitives for
// Concierge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// Broker-level instruments (invocations, retries, cache lookups) live in the
// broker package; this package carries the transport- and process-level ones.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for process-level metrics.
const meterName = "github.com/conciergehq/concierge"

// Metrics holds the process-level OpenTelemetry metric instruments. All
// fields are safe for concurrent use; the underlying OTel types handle their
// own synchronisation.
type Metrics struct {
	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPRequestsInFlight tracks the number of requests currently being
	// served.
	HTTPRequestsInFlight metric.Int64UpDownCounter

	// RegistryRefreshes counts catalogue refresh attempts. Use with
	// attribute: status (ok | error).
	RegistryRefreshes metric.Int64Counter

	// CredentialOps counts credential store operations. Use with attributes:
	// op (get | set | delete), status (ok | error).
	CredentialOps metric.Int64Counter
}

// requestBuckets defines histogram bucket boundaries (in seconds) sized for
// HTTP handlers that may fan out to remote integrations.
var requestBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.HTTPRequestDuration, err = m.Float64Histogram("concierge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(requestBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestsInFlight, err = m.Int64UpDownCounter("concierge.http.requests.in_flight",
		metric.WithDescription("Number of HTTP requests currently being served."),
	); err != nil {
		return nil, err
	}
	if met.RegistryRefreshes, err = m.Int64Counter("concierge.registry.refreshes",
		metric.WithDescription("Integration catalogue refresh attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.CredentialOps, err = m.Int64Counter("concierge.credential.ops",
		metric.WithDescription("Credential store operations by op and status."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordRegistryRefresh records one catalogue refresh attempt.
func (m *Metrics) RecordRegistryRefresh(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RegistryRefreshes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordCredentialOp records one credential store operation.
func (m *Metrics) RecordCredentialOp(ctx context.Context, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CredentialOps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}
