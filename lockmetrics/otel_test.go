package lockmetrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/christophcemper/datasetlock"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func typeOf(attrs attribute.Set) string {
	v, _ := attrs.Value("type")
	return v.AsString()
}

func TestOTelObserver(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	obs, err := NewOTelObserver(provider.Meter("lockmetrics-test"))
	require.NoError(t, err)

	lock := datasetlock.New(&sample{}).WithName("otel").WithObserver(obs)
	lock.ReadLock()
	lock.ReadLock()
	lock.ReadUnlock()
	lock.ReadUnlock()
	lock.WriteLock()
	lock.WriteLock()

	metrics := collect(t, reader)

	acq, ok := metrics["datasetlock.acquisitions"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "acquisitions should be an int64 sum")
	perType := map[string]int64{}
	for _, dp := range acq.DataPoints {
		v, _ := dp.Attributes.Value("lock")
		assert.Equal(t, "otel", v.AsString())
		perType[typeOf(dp.Attributes)] = dp.Value
	}
	assert.Equal(t, map[string]int64{"ReadLock": 1, "WriteLock": 1}, perType)

	held, ok := metrics["datasetlock.held"].Data.(metricdata.Gauge[int64])
	require.True(t, ok, "held should be an int64 gauge")
	gauges := map[string]int64{}
	for _, dp := range held.DataPoints {
		gauges[typeOf(dp.Attributes)] = dp.Value
	}
	assert.Equal(t, int64(0), gauges["ReadLock"])
	assert.Equal(t, int64(2), gauges["WriteLock"])

	hold, ok := metrics["datasetlock.hold.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "hold duration should be a float64 histogram")
	require.Len(t, hold.DataPoints, 1)
	assert.Equal(t, "ReadLock", typeOf(hold.DataPoints[0].Attributes))
	assert.Equal(t, uint64(1), hold.DataPoints[0].Count)

	lock.WriteUnlock()
	lock.WriteUnlock()

	metrics = collect(t, reader)
	hold = metrics["datasetlock.hold.duration"].Data.(metricdata.Histogram[float64])
	assert.Len(t, hold.DataPoints, 2)
	_, hasContentions := metrics["datasetlock.contentions"]
	assert.False(t, hasContentions, "no contention was recorded")
}

func TestNewOTelObserverGlobalMeter(t *testing.T) {
	obs, err := NewOTelObserver(nil)
	require.NoError(t, err)

	// the global no-op provider accepts events without recording them
	lock := datasetlock.New(&sample{}).WithObserver(obs)
	lock.WriteLock()
	lock.WriteUnlock()
}
