package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/panorama-game/rating-server/internal/api"
	v1 "github.com/panorama-game/rating-server/internal/api/v1"
	"github.com/panorama-game/rating-server/internal/cache"
	"github.com/panorama-game/rating-server/internal/config"
	"github.com/panorama-game/rating-server/internal/leaderboard"
	"github.com/panorama-game/rating-server/internal/leaderboard/inmemory"
	"github.com/panorama-game/rating-server/internal/refresh"
	"github.com/panorama-game/rating-server/internal/sources"
	"github.com/panorama-game/rating-server/internal/status"
	"github.com/panorama-game/rating-server/internal/telemetry"
)

const (
	defaultDataDir        = "./data"
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// RatingAppOptions is a function that configures the rating app builder
type RatingAppOptions func(*ratingAppConfig) error

// ratingAppConfig collects everything needed to assemble a RatingApp.
// Component overrides exist for tests; production uses the defaults.
type ratingAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	sourceFactory     sources.Factory
	statusPersistence status.Persistence

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	idleTimeout    time.Duration

	dataDir string

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...RatingAppOptions) (*ratingAppConfig, error) {
	cfg := &ratingAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		idleTimeout:    defaultIdleTimeout,
		dataDir:        defaultDataDir,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewRatingApp assembles the source, snapshot cache, refresh scheduler,
// leaderboard service and HTTP server described by the options
func NewRatingApp(
	ctx context.Context,
	opts ...RatingAppOptions,
) (*RatingApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.sourceFactory == nil {
		cfg.sourceFactory = sources.NewFactory()
	}
	source, err := cfg.sourceFactory.Create(ctx, cfg.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranking source: %w", err)
	}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			closeSource(source)
		}
	}()

	snapshots := cache.New()

	scheduler, err := buildRefreshComponents(cfg, source, snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh components: %w", err)
	}

	board, err := buildLeaderboard(cfg, snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to build leaderboard service: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, board, scheduler)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	// Cleanup is now handled by the app, not in defer
	cleanupNeeded = false

	var closeOnce sync.Once
	cancelFunc := func() {
		cancel()
		closeOnce.Do(func() { closeSource(source) })
	}

	return &RatingApp{
		config: cfg.config,
		components: &AppComponents{
			Source:      source,
			Snapshots:   snapshots,
			Scheduler:   scheduler,
			Leaderboard: board,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) RatingAppOptions {
	return func(cfg *ratingAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) RatingAppOptions {
	return func(cfg *ratingAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) RatingAppOptions {
	return func(cfg *ratingAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout bounds leaderboard read requests
func WithRequestTimeout(d time.Duration) RatingAppOptions {
	return func(cfg *ratingAppConfig) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithDataDirectory sets the directory holding the refresh status file
func WithDataDirectory(dir string) RatingAppOptions {
	return func(cfg *ratingAppConfig) error {
		if dir == "" {
			return fmt.Errorf("data directory cannot be empty")
		}
		cfg.dataDir = dir
		return nil
	}
}

// WithSourceFactory allows injecting a custom source factory (for testing)
func WithSourceFactory(f sources.Factory) RatingAppOptions {
	return func(cfg *ratingAppConfig) error {
		cfg.sourceFactory = f
		return nil
	}
}

// WithStatusPersistence allows injecting a custom status store (for testing)
func WithStatusPersistence(p status.Persistence) RatingAppOptions {
	return func(cfg *ratingAppConfig) error {
		cfg.statusPersistence = p
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider
func WithMeterProvider(mp metric.MeterProvider) RatingAppOptions {
	return func(cfg *ratingAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) RatingAppOptions {
	return func(cfg *ratingAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler exposes h at /metrics
func WithMetricsHandler(h http.Handler) RatingAppOptions {
	return func(cfg *ratingAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildRefreshComponents builds the scheduler that keeps snapshots fresh
func buildRefreshComponents(
	b *ratingAppConfig,
	source sources.RankingSource,
	snapshots *cache.Cache,
) (refresh.Scheduler, error) {
	slog.Info("Initializing refresh components", "source", source.Name())

	if b.statusPersistence == nil {
		b.statusPersistence = status.NewFilePersistence(b.dataDir)
	}

	schedOpts := []refresh.Option{
		refresh.WithPersistence(b.statusPersistence),
		refresh.WithTracerProvider(b.tracerProvider),
	}

	refreshMetrics, err := telemetry.NewRefreshMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh metrics: %w", err)
	}
	if refreshMetrics != nil {
		schedOpts = append(schedOpts, refresh.WithMetrics(refreshMetrics))
		slog.Info("Refresh metrics enabled")
	}

	scheduler, err := refresh.New(source, snapshots, b.config, schedOpts...)
	if err != nil {
		return nil, err
	}

	slog.Info("Refresh components initialized successfully",
		"interval", b.config.GetRefreshInterval(),
		"fetch_timeout", b.config.GetFetchTimeout(),
	)
	return scheduler, nil
}

// buildLeaderboard builds the read side over the snapshot cache
func buildLeaderboard(b *ratingAppConfig, snapshots *cache.Cache) (leaderboard.Service, error) {
	svcOpts := []inmemory.Option{
		inmemory.WithTracerProvider(b.tracerProvider),
	}

	boardMetrics, err := telemetry.NewLeaderboardMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create leaderboard metrics: %w", err)
	}
	if boardMetrics != nil {
		svcOpts = append(svcOpts, inmemory.WithMetrics(boardMetrics))
	}

	return inmemory.New(snapshots, svcOpts...)
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(
	b *ratingAppConfig,
	svc leaderboard.Service,
	scheduler refresh.Scheduler,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Request deadlines are applied per route group so the websocket stream is not cut short
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			api.LoggingMiddleware,
		}
	}

	if b.tracerProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.tracerProvider)}, b.middlewares...)
		slog.Info("HTTP tracing middleware enabled")
	}

	// Prepended last so it wraps everything, including recovered panics
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
			slog.Info("HTTP metrics middleware enabled")
		}
	}

	streamsCtx, closeStreams := context.WithCancel(context.Background())

	router := api.NewServer(svc,
		api.WithMiddlewares(b.middlewares...),
		api.WithMetricsHandler(b.metricsHandler),
		api.WithRouteOptions(
			v1.WithPageSizes(b.config.GetDefaultPageSize(), b.config.GetMaxPageSize()),
			v1.WithRequestTimeout(b.requestTimeout),
			v1.WithStatusProvider(scheduler),
			v1.WithStreamContext(streamsCtx),
		),
	)

	// No WriteTimeout: it would sever long-lived websocket streams
	server := &http.Server{
		Addr:              b.address,
		Handler:           router,
		ReadTimeout:       b.readTimeout,
		ReadHeaderTimeout: b.readTimeout,
		IdleTimeout:       b.idleTimeout,
	}
	// Shutdown does not track hijacked websocket connections
	server.RegisterOnShutdown(closeStreams)
	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// closeSource releases connections held by sources backed by a pool or client
func closeSource(source sources.RankingSource) {
	closer, ok := source.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close ranking source", "source", source.Name(), "error", err)
	}
}
