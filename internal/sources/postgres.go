package sources

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/panorama-game/rating-server/internal/ranking"
)

// Querier is the subset of a pgx pool the postgres source needs
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// postgresSource reads players with a single SELECT.
// The query must return nickname, rating, matches_number, login and id, in that order.
type postgresSource struct {
	db    Querier
	query string
	pool  *pgxpool.Pool
}

var _ RankingSource = (*postgresSource)(nil)

// NewPostgresSource creates a source running query against db
func NewPostgresSource(db Querier, query string) RankingSource {
	s := &postgresSource{db: db, query: query}
	if pool, ok := db.(*pgxpool.Pool); ok {
		s.pool = pool
	}
	return s
}

// Name returns the source name
func (*postgresSource) Name() string {
	return "postgres"
}

// FetchAll runs the query and scans each row by position; NULL columns stay nil
func (s *postgresSource) FetchAll(ctx context.Context) ([]ranking.Record, error) {
	rows, err := s.db.Query(ctx, s.query)
	if err != nil {
		return nil, ranking.NewDataAccessError(s.Name(), fmt.Errorf("failed to query players: %w", err))
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ranking.Record])
	if err != nil {
		return nil, ranking.NewDataAccessError(s.Name(), fmt.Errorf("failed to scan players: %w", err))
	}

	return records, nil
}

// Close releases the connection pool when the source owns one
func (s *postgresSource) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
