package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RefreshMetricsMeterName is the name used for the refresh scheduler meter
	RefreshMetricsMeterName = "github.com/panorama-game/rating-server/refresh"

	// LeaderboardMetricsMeterName is the name used for the query engine meter
	LeaderboardMetricsMeterName = "github.com/panorama-game/rating-server/leaderboard"
)

// RefreshMetrics holds the OpenTelemetry instruments for refresh cycles
type RefreshMetrics struct {
	cycleDuration metric.Float64Histogram
	entries       metric.Int64Gauge
	failures      metric.Int64Counter
}

// NewRefreshMetrics creates a new RefreshMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRefreshMetrics(provider metric.MeterProvider) (*RefreshMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RefreshMetricsMeterName)

	cycleDuration, err := meter.Float64Histogram(
		"rating_server_refresh_duration_seconds",
		metric.WithDescription("Duration of refresh cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	entries, err := meter.Int64Gauge(
		"rating_server_leaderboard_entries",
		metric.WithDescription("Number of entries in the published leaderboard snapshot"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"rating_server_refresh_failures",
		metric.WithDescription("Number of failed refresh cycles by failure kind"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	return &RefreshMetrics{
		cycleDuration: cycleDuration,
		entries:       entries,
		failures:      failures,
	}, nil
}

// RecordCycleDuration records how long a refresh cycle took
func (m *RefreshMetrics) RecordCycleDuration(ctx context.Context, source string, duration time.Duration, success bool) {
	if m == nil || m.cycleDuration == nil {
		return
	}

	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("success", success),
	))
}

// RecordEntries records the size of a freshly published snapshot
func (m *RefreshMetrics) RecordEntries(ctx context.Context, source string, count int64) {
	if m == nil || m.entries == nil {
		return
	}

	m.entries.Record(ctx, count, metric.WithAttributes(attribute.String("source", source)))
}

// RecordFailure counts a failed cycle. kind is a low-cardinality label such
// as "fetch", "timeout", "malformed" or "cancelled".
func (m *RefreshMetrics) RecordFailure(ctx context.Context, source, kind string) {
	if m == nil || m.failures == nil {
		return
	}

	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("kind", kind),
	))
}

// LeaderboardMetrics holds the OpenTelemetry instruments for leaderboard queries
type LeaderboardMetrics struct {
	queries metric.Int64Counter
	results metric.Int64Histogram
}

// NewLeaderboardMetrics creates a new LeaderboardMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewLeaderboardMetrics(provider metric.MeterProvider) (*LeaderboardMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(LeaderboardMetricsMeterName)

	queries, err := meter.Int64Counter(
		"rating_server_leaderboard_queries",
		metric.WithDescription("Number of leaderboard queries by operation"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	results, err := meter.Int64Histogram(
		"rating_server_leaderboard_query_results",
		metric.WithDescription("Number of entries returned per leaderboard query"),
		metric.WithUnit("{entry}"),
		metric.WithExplicitBucketBoundaries(0, 1, 10, 20, 50, 100, 1000, 10000),
	)
	if err != nil {
		return nil, err
	}

	return &LeaderboardMetrics{
		queries: queries,
		results: results,
	}, nil
}

// RecordQuery records one query of the given operation ("page", "search", "count")
// and the number of entries it returned
func (m *LeaderboardMetrics) RecordQuery(ctx context.Context, operation string, resultCount int) {
	if m == nil || m.queries == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("operation", operation))
	m.queries.Add(ctx, 1, attrs)
	m.results.Record(ctx, int64(resultCount), attrs)
}
