package sources

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/panorama-game/rating-server/internal/config"
	"github.com/panorama-game/rating-server/internal/db"
	"github.com/panorama-game/rating-server/internal/httpclient"
)

// PoolConnector opens the PostgreSQL pool for the postgres source
type PoolConnector func(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error)

// FactoryOption configures the default factory
type FactoryOption func(*defaultFactory)

// WithHTTPClient sets the client used by the api source
func WithHTTPClient(client httpclient.Client) FactoryOption {
	return func(f *defaultFactory) {
		f.httpClient = client
	}
}

// WithPoolConnector replaces how the postgres pool is opened
func WithPoolConnector(connect PoolConnector) FactoryOption {
	return func(f *defaultFactory) {
		f.connectPool = connect
	}
}

// defaultFactory is the default implementation of Factory
type defaultFactory struct {
	httpClient  httpclient.Client
	connectPool PoolConnector
}

var _ Factory = (*defaultFactory)(nil)

// NewFactory creates a new source factory
func NewFactory(opts ...FactoryOption) Factory {
	f := &defaultFactory{
		connectPool: func(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
			return db.NewPool(ctx, cfg)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds the source selected in cfg.Source
func (f *defaultFactory) Create(ctx context.Context, cfg *config.Config) (RankingSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	sourceType := cfg.Source.GetType()
	slog.Info("Creating ranking source", "type", sourceType)

	switch sourceType {
	case config.SourceTypeFile:
		return NewFileSource(cfg.Source.File.Path), nil

	case config.SourceTypeAPI:
		client := f.httpClient
		if client == nil {
			client = httpclient.NewDefaultClient(httpclient.WithTimeout(cfg.GetFetchTimeout()))
		}
		return NewAPISource(cfg.Source.API.Endpoint, client), nil

	case config.SourceTypePostgres:
		pool, err := f.connectPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return NewPostgresSource(pool, cfg.Source.Postgres.GetQuery()), nil

	case config.SourceTypeRedis:
		redisCfg := cfg.Source.Redis
		password, err := redisCfg.GetPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read redis password: %w", err)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Address,
			Password: password,
			DB:       redisCfg.DB,
		})
		return NewRedisSource(client, redisCfg.GetSetKey(), redisCfg.GetKeyPrefix()), nil

	default:
		return nil, fmt.Errorf("unsupported source type: %q", sourceType)
	}
}
