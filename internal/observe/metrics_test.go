package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics creates a Metrics instance backed by a manual reader so
// tests can collect and inspect recorded data.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// findMetric locates a metric by name in collected resource metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// collect gathers all recorded metrics.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// sumByAttr returns the counter sum for data points matching the given
// attribute key/value pairs.
func sumByAttr(t *testing.T, met *metricdata.Metrics, want map[string]string) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is not an int64 sum", met.Name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		matched := true
		for k, v := range want {
			attr, ok := dp.Attributes.Value(attribute.Key(k))
			if !ok || attr.AsString() != v {
				matched = false
				break
			}
		}
		if matched {
			total += dp.Value
		}
	}
	return total
}

// TestNewMetricsCreatesAllInstruments verifies instrument creation succeeds
// and records without panicking.
func TestNewMetricsCreatesAllInstruments(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05)
	m.HTTPRequestsInFlight.Add(ctx, 1)
	m.HTTPRequestsInFlight.Add(ctx, -1)
	m.RecordRegistryRefresh(ctx, nil)
	m.RecordCredentialOp(ctx, "get", nil)

	rm := collect(t, reader)
	for _, name := range []string{
		"concierge.http.request.duration",
		"concierge.http.requests.in_flight",
		"concierge.registry.refreshes",
		"concierge.credential.ops",
	} {
		if findMetric(rm, name) == nil {
			t.Errorf("metric %s not recorded", name)
		}
	}
}

// TestRecordRegistryRefreshStatus verifies the status attribute reflects the
// refresh outcome.
func TestRecordRegistryRefreshStatus(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRegistryRefresh(ctx, nil)
	m.RecordRegistryRefresh(ctx, nil)
	m.RecordRegistryRefresh(ctx, errors.New("unreachable"))

	rm := collect(t, reader)
	met := findMetric(rm, "concierge.registry.refreshes")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumByAttr(t, met, map[string]string{"status": "ok"}); got != 2 {
		t.Errorf("ok refreshes = %d, want 2", got)
	}
	if got := sumByAttr(t, met, map[string]string{"status": "error"}); got != 1 {
		t.Errorf("error refreshes = %d, want 1", got)
	}
}

// TestRecordCredentialOpAttributes verifies op and status attributes.
func TestRecordCredentialOpAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCredentialOp(ctx, "set", nil)
	m.RecordCredentialOp(ctx, "delete", errors.New("pool closed"))

	rm := collect(t, reader)
	met := findMetric(rm, "concierge.credential.ops")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumByAttr(t, met, map[string]string{"op": "set", "status": "ok"}); got != 1 {
		t.Errorf("set/ok = %d, want 1", got)
	}
	if got := sumByAttr(t, met, map[string]string{"op": "delete", "status": "error"}); got != 1 {
		t.Errorf("delete/error = %d, want 1", got)
	}
}

// TestDefaultMetricsSingleton verifies DefaultMetrics returns the same
// instance on every call.
func TestDefaultMetricsSingleton(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
