package sources

import (
	"context"

	"github.com/panorama-game/rating-server/internal/config"
	"github.com/panorama-game/rating-server/internal/ranking"
)

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=types.go RankingSource,Factory

// RankingSource is the abstract supplier of raw player records
type RankingSource interface {
	// FetchAll returns every player record currently stored, in no particular order
	FetchAll(ctx context.Context) ([]ranking.Record, error)

	// Name identifies the source in logs, metrics and errors
	Name() string
}

// Factory creates the ranking source described by the configuration
type Factory interface {
	// Create builds the configured source. Sources holding connections also
	// implement io.Closer.
	Create(ctx context.Context, cfg *config.Config) (RankingSource, error)
}
