package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	ratingapp "github.com/panorama-game/rating-server/internal/app"
	"github.com/panorama-game/rating-server/internal/config"
	"github.com/panorama-game/rating-server/internal/telemetry"
)

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	telemetryFlushTimeout  = 5 * time.Second
)

const (
	flagConfig          = "config"
	flagAddress         = "address"
	flagDataDir         = "data-dir"
	flagGracefulTimeout = "graceful-timeout"
)

// serveOptions are the resolved flag and environment values for serve
type serveOptions struct {
	configPath      string
	address         string
	dataDir         string
	gracefulTimeout time.Duration
}

func newServeCmd() *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the rating server",
		Long: `Start the rating server.

The server requires a configuration file (--config or RATING_SERVER_CONFIG) that specifies:
- The ranking source (postgres, file, api or redis)
- The refresh interval and fetch timeout
- Leaderboard page size limits and telemetry settings

See the examples/ directory for sample configurations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := resolveServeOptions(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().String(flagConfig, "", "Path to configuration file (YAML format, required)")
	cmd.Flags().String(flagAddress, ":8080", "Address to listen on")
	cmd.Flags().String(flagDataDir, "./data", "Directory holding the refresh status file")
	cmd.Flags().Duration(flagGracefulTimeout, defaultGracefulTimeout, "Time allowed for in-flight requests on shutdown")

	for _, name := range []string{flagConfig, flagAddress, flagDataDir, flagGracefulTimeout} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			slog.Error("Failed to bind flag", "flag", name, "error", err)
		}
	}

	return cmd
}

// resolveServeOptions reads flags, falling back to RATING_SERVER_* environment variables
func resolveServeOptions(v *viper.Viper) (*serveOptions, error) {
	opts := &serveOptions{
		configPath:      v.GetString(flagConfig),
		address:         v.GetString(flagAddress),
		dataDir:         v.GetString(flagDataDir),
		gracefulTimeout: v.GetDuration(flagGracefulTimeout),
	}
	if opts.configPath == "" {
		return nil, fmt.Errorf("a configuration file is required (--%s or %s_CONFIG)", flagConfig, config.EnvPrefix)
	}
	if opts.gracefulTimeout <= 0 {
		opts.gracefulTimeout = defaultGracefulTimeout
	}
	return opts, nil
}

func runServe(parent context.Context, opts *serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(config.WithConfigPath(opts.configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", opts.configPath,
		"server", cfg.GetServerName(),
		"source", cfg.Source.GetType(),
	)

	if err := os.MkdirAll(opts.dataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	appOpts := []ratingapp.RatingAppOptions{
		ratingapp.WithConfig(cfg),
		ratingapp.WithAddress(opts.address),
		ratingapp.WithDataDirectory(opts.dataDir),
		ratingapp.WithMetricsHandler(tel.MetricsHandler()),
	}
	if cfg.Telemetry != nil && cfg.Telemetry.Enabled {
		appOpts = append(appOpts,
			ratingapp.WithMeterProvider(tel.MeterProvider()),
			ratingapp.WithTracerProvider(tel.TracerProvider()),
		)
	}

	app, err := ratingapp.NewRatingApp(ctx, appOpts...)
	if err != nil {
		return fmt.Errorf("failed to create rating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		// Start only returns on its own when a component failed
		stopErr := app.Stop(opts.gracefulTimeout)
		return errors.Join(err, stopErr)
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	if err := app.Stop(opts.gracefulTimeout); err != nil {
		return err
	}
	return <-errCh
}
