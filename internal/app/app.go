// Package app provides application lifecycle management for the rating server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/panorama-game/rating-server/internal/config"
)

// RatingApp encapsulates all components needed to run the rating server.
// It provides lifecycle management and graceful shutdown capabilities.
type RatingApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start runs the refresh scheduler and the HTTP server.
// It blocks until both have stopped and returns the first failure.
func (app *RatingApp) Start() error {
	g, ctx := errgroup.WithContext(app.ctx)

	g.Go(func() error {
		if err := app.components.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("refresh scheduler failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	// A failed server must not leave the scheduler running, and vice versa
	g.Go(func() error {
		<-ctx.Done()
		if app.ctx.Err() == nil {
			_ = app.httpServer.Close()
		}
		return nil
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout.
// It stops the refresh scheduler and then shuts down the HTTP server.
func (app *RatingApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server")

	if err := app.components.Scheduler.Stop(); err != nil {
		slog.Error("Failed to stop refresh scheduler", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *RatingApp) GetConfig() *config.Config {
	return app.config
}

// GetComponents returns the assembled application components
func (app *RatingApp) GetComponents() *AppComponents {
	return app.components
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *RatingApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
