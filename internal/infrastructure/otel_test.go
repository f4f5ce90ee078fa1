package infrastructure

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOTelInitialization(t *testing.T) {
	// the prometheus exporter registers on the default registry, so only one test may use it
	providers, err := InitializeOTel(nil, discardLogger())
	require.NoError(t, err)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	require.NotNil(t, providers.PrometheusHTTP)

	metrics, err := NewPipelineMetrics(providers.Meter)
	require.NoError(t, err)
	metrics.RecordRun(context.Background(), 3, 2, map[string]int{"liquidity": 1}, time.Second, nil)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "report_runs_total")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelUnsupportedExporter(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.TraceExporter = "zipkin"
	_, err := InitializeOTel(cfg, discardLogger())
	assert.Error(t, err)

	cfg = DefaultOTelConfig()
	cfg.MetricExporter = "statsd"
	_, err = InitializeOTel(cfg, discardLogger())
	assert.Error(t, err)
}

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

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestPipelineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	metrics, err := NewPipelineMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordRun(ctx, 8, 5, map[string]int{"liquidity": 2, "fetch_error": 1, "missing_price": 0}, 2*time.Second, nil)
	metrics.RecordRun(ctx, 0, 0, nil, time.Second, errors.New("boom"))
	metrics.RecordUpstream(ctx, "rti", 150*time.Millisecond, nil)
	metrics.RecordDelivery(ctx, "telegram", errors.New("timeout"))

	got := collect(t, reader)

	assert.Equal(t, int64(2), sumOf(t, got["report_runs_total"]))
	assert.Equal(t, int64(8), sumOf(t, got["symbols_analyzed_total"]))
	assert.Equal(t, int64(3), sumOf(t, got["symbols_excluded_total"]))
	assert.Equal(t, int64(1), sumOf(t, got["upstream_requests_total"]))
	assert.Equal(t, int64(1), sumOf(t, got["report_deliveries_total"]))
	assert.Contains(t, got, "report_entries")
	assert.Contains(t, got, "report_run_duration_seconds")
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var metrics *PipelineMetrics
	assert.NotPanics(t, func() {
		metrics.RecordRun(context.Background(), 1, 1, nil, time.Second, nil)
		metrics.RecordUpstream(context.Background(), "rti", time.Second, nil)
		metrics.RecordDelivery(context.Background(), "telegram", nil)
	})
}
