package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestCounterExportsThroughMeter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	reg := NewRegistry(provider.Meter("test"))
	c := reg.Counter("events.published", "published events")
	reg.Gauge("queue.depth", "depth", func(_ context.Context, o metric.Int64Observer) error {
		o.Observe(7)
		return nil
	})
	require.NoError(t, reg.Err())

	c.Inc(context.Background())
	c.Add(context.Background(), 2)
	c.Add(context.Background(), 0)
	assert.Equal(t, uint64(3), c.Load())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	values := map[string]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		switch data := m.Data.(type) {
		case metricdata.Sum[int64]:
			values[m.Name] = data.DataPoints[0].Value
		case metricdata.Gauge[int64]:
			values[m.Name] = data.DataPoints[0].Value
		}
	}
	assert.Equal(t, int64(3), values["events.published"])
	assert.Equal(t, int64(7), values["queue.depth"])
}

func TestNilMeterFallsBackToNoop(t *testing.T) {
	reg := NewRegistry(nil)
	c := reg.Counter("x", "x")
	c.Inc(context.Background())

	assert.NoError(t, reg.Err())
	assert.Equal(t, uint64(1), c.Load())
}
