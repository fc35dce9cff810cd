package emitter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/yairfalse/tether/pkg/resource"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func newTestMetricsEmitter(t *testing.T) (*MetricsEmitter, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	e, err := NewMetricsEmitter(provider.Meter("test"))
	require.NoError(t, err)
	return e, reader
}

func sumByAttr(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestMetricsEmitter_Counters(t *testing.T) {
	e, reader := newTestMetricsEmitter(t)
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, testEntry("i-1")))

	partial := testEntry("i-2")
	partial.Attachments.Fail(resource.CategoryS3Buckets, errors.New("denied"))
	require.NoError(t, e.Emit(ctx, partial))

	require.NoError(t, e.Emit(ctx, resource.Entry{
		Instance: resource.Instance{ID: "i-3", State: "running"},
		Err:      context.Canceled,
	}))

	metrics := collect(t, reader)

	attached := metrics["tether_attached_resources_total"]
	assert.Equal(t, int64(4), sumByAttr(t, attached, "category", "SecurityGroups"))
	assert.Equal(t, int64(2), sumByAttr(t, attached, "category", "EBSVolumes"))

	instances := metrics["tether_instances_total"]
	assert.Equal(t, int64(1), sumByAttr(t, instances, "outcome", "complete"))
	assert.Equal(t, int64(1), sumByAttr(t, instances, "outcome", "partial"))
	assert.Equal(t, int64(1), sumByAttr(t, instances, "outcome", "error"))
}

func TestMetricsEmitter_Gauge(t *testing.T) {
	e, reader := newTestMetricsEmitter(t)

	entry := testEntry("i-1")
	entry.Attachments.Fail(resource.CategoryAMIs, errors.New("throttled"))
	require.NoError(t, e.Emit(context.Background(), entry))

	gauge, ok := collect(t, reader)["tether_instance_attachments"].(metricdata.Gauge[int64])
	require.True(t, ok)

	// Failed categories are not observed.
	assert.Len(t, gauge.DataPoints, len(resource.Categories)-1)
	for _, dp := range gauge.DataPoints {
		c, _ := dp.Attributes.Value("category")
		if c.AsString() == string(resource.CategorySecurityGroups) {
			assert.Equal(t, int64(2), dp.Value)
		}
		assert.NotEqual(t, string(resource.CategoryAMIs), c.AsString())
	}
}

func TestMetricsEmitter_Close(t *testing.T) {
	e, _ := newTestMetricsEmitter(t)
	assert.NoError(t, e.Close())
}
