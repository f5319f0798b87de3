// Package otel provides span helpers shared by the leaderboard query engine,
// the refresh scheduler and the ranking sources.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Attribute keys shared by every span the server emits
const (
	AttrSourceName      = attribute.Key("ranking.source")
	AttrSnapshotVersion = attribute.Key("snapshot.version")
	AttrSnapshotSize    = attribute.Key("snapshot.size")
	AttrCycleID         = attribute.Key("refresh.cycle_id")
	AttrPageNumber      = attribute.Key("pagination.page")
	AttrPageSize        = attribute.Key("pagination.size")
	AttrResultCount     = attribute.Key("result.count")
	AttrSearchFields    = attribute.Key("search.fields")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
// The no-op span is detached from ctx so ending it never ends the caller's span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, noop.Span{}
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors. The status description stays
// generic so source queries and connection strings never end up in it; the
// full error is kept on the exception event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
