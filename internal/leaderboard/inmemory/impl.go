// Package inmemory provides the cache-backed implementation of the leaderboard Service
package inmemory

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/panorama-game/rating-server/internal/cache"
	"github.com/panorama-game/rating-server/internal/leaderboard"
	"github.com/panorama-game/rating-server/internal/otel"
	"github.com/panorama-game/rating-server/internal/ranking"
	"github.com/panorama-game/rating-server/internal/telemetry"
)

const (
	// ServiceTracerName is the name used for the query engine tracer
	ServiceTracerName = "github.com/panorama-game/rating-server/leaderboard"
)

// boardSvc implements the leaderboard Service over a snapshot cache.
// Every call reads the cache exactly once and serves the whole request
// from that snapshot.
type boardSvc struct {
	cache   *cache.Cache
	tracer  trace.Tracer
	metrics *telemetry.LeaderboardMetrics
}

var _ leaderboard.Service = (*boardSvc)(nil)

// Option is a functional option for configuring the boardSvc
type Option func(*boardSvc)

// WithTracerProvider enables spans for every query
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *boardSvc) {
		if tp != nil {
			s.tracer = tp.Tracer(ServiceTracerName)
		}
	}
}

// WithMetrics records query counts and result sizes
func WithMetrics(m *telemetry.LeaderboardMetrics) Option {
	return func(s *boardSvc) {
		s.metrics = m
	}
}

// New creates a leaderboard service reading from c
func New(c *cache.Cache, opts ...Option) (leaderboard.Service, error) {
	if c == nil {
		return nil, fmt.Errorf("snapshot cache is required")
	}

	s := &boardSvc{cache: c}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// CheckReadiness implements leaderboard.Service.CheckReadiness
func (s *boardSvc) CheckReadiness(_ context.Context) error {
	if !s.cache.Published() {
		return leaderboard.ErrNotReady
	}
	return nil
}

// Page implements leaderboard.Service.Page
func (s *boardSvc) Page(ctx context.Context, pageNumber, pageSize int) (*leaderboard.PageResult, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "leaderboard.Page",
		trace.WithAttributes(
			otel.AttrPageNumber.Int(pageNumber),
			otel.AttrPageSize.Int(pageSize),
		),
	)
	defer span.End()

	if pageNumber < 0 || pageSize <= 0 {
		err := fmt.Errorf("%w: page %d, page size %d", leaderboard.ErrInvalidPagination, pageNumber, pageSize)
		otel.RecordError(span, err)
		return nil, err
	}

	snap := s.cache.Current()
	total := snap.Len()

	var entries []ranking.Entry
	// Guard the multiplication so huge page numbers cannot overflow into range
	if pageNumber > total/pageSize {
		entries = []ranking.Entry{}
	} else {
		lo := pageNumber * pageSize
		entries = snap.Slice(lo, lo+pageSize)
	}

	span.SetAttributes(
		otel.AttrSnapshotVersion.Int64(int64(snap.Version())),
		otel.AttrResultCount.Int(len(entries)),
	)
	s.metrics.RecordQuery(ctx, "page", len(entries))

	return &leaderboard.PageResult{
		Entries:         entries,
		PageNumber:      pageNumber,
		PageSize:        pageSize,
		PageCount:       leaderboard.PageCount(total, pageSize),
		TotalCount:      total,
		SnapshotVersion: snap.Version(),
		GeneratedAt:     snap.GeneratedAt(),
	}, nil
}

// Search implements leaderboard.Service.Search
func (s *boardSvc) Search(
	ctx context.Context,
	opts ...leaderboard.Option[leaderboard.SearchOptions],
) (*leaderboard.SearchResult, error) {
	options := &leaderboard.SearchOptions{}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	ctx, span := otel.StartSpan(ctx, s.tracer, "leaderboard.Search",
		trace.WithAttributes(attribute.StringSlice(string(otel.AttrSearchFields), options.Fields())),
	)
	defer span.End()

	snap := s.cache.Current()
	entries := snap.Filter(matcher(options))

	span.SetAttributes(
		otel.AttrSnapshotVersion.Int64(int64(snap.Version())),
		otel.AttrResultCount.Int(len(entries)),
	)
	s.metrics.RecordQuery(ctx, "search", len(entries))

	return &leaderboard.SearchResult{
		Entries:         entries,
		SnapshotVersion: snap.Version(),
	}, nil
}

// TotalCount implements leaderboard.Service.TotalCount
func (s *boardSvc) TotalCount(ctx context.Context) int {
	total := s.cache.Current().Len()
	s.metrics.RecordQuery(ctx, "count", total)
	return total
}

// Info implements leaderboard.Service.Info
func (s *boardSvc) Info(_ context.Context) leaderboard.Info {
	snap := s.cache.Current()
	return leaderboard.Info{
		TotalCount:      snap.Len(),
		SnapshotVersion: snap.Version(),
		GeneratedAt:     snap.GeneratedAt(),
		Hash:            snap.Hash(),
	}
}

// matcher builds the predicate for a search; absent criteria match everything
func matcher(o *leaderboard.SearchOptions) func(ranking.Entry) bool {
	return func(e ranking.Entry) bool {
		return contains(e.Login, o.Login) &&
			contains(e.Nickname, o.Nickname) &&
			contains(e.RatingText(), o.Rating) &&
			contains(e.MatchesNumberText(), o.MatchesNumber)
	}
}

func contains(value string, fragment *string) bool {
	return fragment == nil || strings.Contains(value, *fragment)
}
