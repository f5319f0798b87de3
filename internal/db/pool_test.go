package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panorama-game/rating-server/internal/config"
)

func databaseConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()

	passwordFile := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("secret"), 0600))

	return &config.DatabaseConfig{
		Host:         "127.0.0.1",
		Port:         1,
		User:         "panorama",
		PasswordFile: passwordFile,
		Database:     "panorama",
		SSLMode:      "disable",
	}
}

func TestParsePoolConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		poolConfig, err := ParsePoolConfig(databaseConfig(t))
		require.NoError(t, err)

		assert.Equal(t, int32(defaultMaxConns), poolConfig.MaxConns)
		assert.Equal(t, defaultConnMaxLifetime, poolConfig.MaxConnLifetime)
		assert.Equal(t, "127.0.0.1", poolConfig.ConnConfig.Host)
		assert.Equal(t, uint16(1), poolConfig.ConnConfig.Port)
		assert.Equal(t, "panorama", poolConfig.ConnConfig.Database)
		assert.Equal(t, "secret", poolConfig.ConnConfig.Password)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Parallel()

		cfg := databaseConfig(t)
		cfg.MaxConns = 4
		cfg.MinConns = 2
		cfg.ConnMaxLifetime = "90s"

		poolConfig, err := ParsePoolConfig(cfg)
		require.NoError(t, err)

		assert.Equal(t, int32(4), poolConfig.MaxConns)
		assert.Equal(t, int32(2), poolConfig.MinConns)
		assert.Equal(t, 90*time.Second, poolConfig.MaxConnLifetime)
	})

	t.Run("invalid lifetime", func(t *testing.T) {
		t.Parallel()

		cfg := databaseConfig(t)
		cfg.ConnMaxLifetime = "forever"

		_, err := ParsePoolConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connMaxLifetime")
	})

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()

		_, err := ParsePoolConfig(nil)
		require.Error(t, err)
	})
}

func TestNewPool_GivesUpOnUnreachableDatabase(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	_, err := NewPool(ctx, databaseConfig(t),
		WithBackOff(backoff.NewConstantBackOff(10*time.Millisecond)),
		WithConnectMaxElapsed(200*time.Millisecond),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
	assert.Less(t, time.Since(start), 20*time.Second)
}
