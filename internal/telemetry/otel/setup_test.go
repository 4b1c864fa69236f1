package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	semconv "go.opentelemetry.io/otel/semconv/v1.40.0"

	"kiosk-engine/internal/telemetry"
)

func TestNewProviders_NoEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(context.Background(), Options{Endpoint: endpoint, ServiceName: "kiosk-engine"})
		require.NoError(t, err)
		require.NotNil(t, providers.TracerProvider)
		require.NotNil(t, providers.MeterProvider)
		require.NotNil(t, providers.LoggerProvider)
		assert.NoError(t, providers.Shutdown(context.Background()))
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		_, err := NewProviders(context.Background(), Options{Endpoint: endpoint, ServiceName: "kiosk-engine"})
		assert.Error(t, err, endpoint)
	}
}

func TestCollectorTarget(t *testing.T) {
	testCases := []struct {
		endpoint string
		override bool
		target   string
		insecure bool
	}{
		{"collector:4317", false, "collector:4317", true},
		{"http://collector:4317/v1/traces", false, "collector:4317", true},
		{"https://collector:4317", false, "collector:4317", false},
		{"https://collector:4317", true, "collector:4317", true},
	}
	for _, tc := range testCases {
		target, insecure, err := collectorTarget(tc.endpoint, tc.override)
		require.NoError(t, err, tc.endpoint)
		assert.Equal(t, tc.target, target, tc.endpoint)
		assert.Equal(t, tc.insecure, insecure, tc.endpoint)
	}
}

func TestNewResource(t *testing.T) {
	res, err := NewResource(Options{
		ServiceName:    "kiosk-engine",
		ServiceVersion: "1.4.0",
		Environment:    "production",
		InstanceID:     "engine-2",
	})
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "kiosk-engine", attrs[string(semconv.ServiceNameKey)])
	assert.Equal(t, "1.4.0", attrs[string(semconv.ServiceVersionKey)])
	assert.Equal(t, "engine-2", attrs[string(semconv.ServiceInstanceIDKey)])
	assert.Equal(t, "production", attrs["deployment.environment.name"])
}

func TestMeterOptions_SessionDurationBuckets(t *testing.T) {
	res, err := NewResource(Options{ServiceName: "kiosk-engine", InstanceID: "engine-1"})
	require.NoError(t, err)
	reader := metric.NewManualReader()
	m, err := telemetry.NewMetrics(metric.NewMeterProvider(meterOptions(res, reader)...))
	require.NoError(t, err)

	ctx := context.Background()
	m.SessionClosed(ctx, "printed_card", 150)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != telemetry.SessionDurationMetric {
				continue
			}
			hist, ok := md.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			require.Len(t, hist.DataPoints, 1)
			dp := hist.DataPoints[0]
			assert.Equal(t, SessionDurationBuckets, dp.Bounds)
			// 150s falls in the (120, 300] bucket.
			assert.Equal(t, uint64(1), dp.BucketCounts[4])
			found = true
		}
	}
	assert.True(t, found, "session duration histogram not collected")
}

func TestSetGlobal(t *testing.T) {
	providers, err := NewProviders(context.Background(), Options{ServiceName: "kiosk-engine"})
	require.NoError(t, err)
	before := otel.GetMeterProvider()
	providers.SetGlobal()
	assert.NotEqual(t, before, otel.GetMeterProvider())
}
