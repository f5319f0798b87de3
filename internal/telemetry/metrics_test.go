package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collect gathers all metrics of the named scope from reader, keyed by instrument name
func collect(t *testing.T, reader *sdkmetric.ManualReader, scopeName string) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != scopeName {
			continue
		}
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func newManualProvider(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

func TestNewMetrics_NilProvider(t *testing.T) {
	t.Parallel()

	refresh, err := NewRefreshMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, refresh)

	leaderboard, err := NewLeaderboardMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, leaderboard)

	// Nil receivers must be safe to use
	ctx := context.Background()
	refresh.RecordCycleDuration(ctx, "file", time.Second, true)
	refresh.RecordEntries(ctx, "file", 10)
	refresh.RecordFailure(ctx, "file", "fetch")
	leaderboard.RecordQuery(ctx, "page", 20)
}

func TestRefreshMetrics(t *testing.T) {
	t.Parallel()

	reader, mp := newManualProvider(t)
	metrics, err := NewRefreshMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordCycleDuration(ctx, "postgres", 1500*time.Millisecond, true)
	metrics.RecordEntries(ctx, "postgres", 42)
	metrics.RecordFailure(ctx, "postgres", "timeout")
	metrics.RecordFailure(ctx, "postgres", "timeout")
	metrics.RecordFailure(ctx, "postgres", "malformed")

	got := collect(t, reader, RefreshMetricsMeterName)

	hist, ok := got["rating_server_refresh_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok, "expected duration histogram")
	require.Len(t, hist.DataPoints, 1)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)

	gauge, ok := got["rating_server_leaderboard_entries"].(metricdata.Gauge[int64])
	require.True(t, ok, "expected entries gauge")
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(42), gauge.DataPoints[0].Value)

	failures, ok := got["rating_server_refresh_failures"].(metricdata.Sum[int64])
	require.True(t, ok, "expected failures counter")
	byKind := map[string]int64{}
	for _, dp := range failures.DataPoints {
		kind, _ := dp.Attributes.Value("kind")
		byKind[kind.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"timeout": 2, "malformed": 1}, byKind)
}

func TestLeaderboardMetrics(t *testing.T) {
	t.Parallel()

	reader, mp := newManualProvider(t)
	metrics, err := NewLeaderboardMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordQuery(ctx, "page", 20)
	metrics.RecordQuery(ctx, "page", 3)
	metrics.RecordQuery(ctx, "search", 0)

	got := collect(t, reader, LeaderboardMetricsMeterName)

	queries, ok := got["rating_server_leaderboard_queries"].(metricdata.Sum[int64])
	require.True(t, ok)
	byOp := map[string]int64{}
	for _, dp := range queries.DataPoints {
		op, _ := dp.Attributes.Value("operation")
		byOp[op.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"page": 2, "search": 1}, byOp)

	results, ok := got["rating_server_leaderboard_query_results"].(metricdata.Histogram[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range results.DataPoints {
		total += dp.Sum
	}
	assert.Equal(t, int64(23), total)
}
