// Package config provides configuration loading and management for the rating server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/panorama-game/rating-server/internal/telemetry"
)

const (
	// EnvPrefix is the prefix for environment variables read by the server
	EnvPrefix = "RATING_SERVER"

	// DatabasePasswordEnv is the environment variable holding the database password
	DatabasePasswordEnv = EnvPrefix + "_DATABASE_PASSWORD"
)

const (
	// SourceTypePostgres reads players from a PostgreSQL users table
	SourceTypePostgres = "postgres"

	// SourceTypeFile reads players from a local YAML or JSON file
	SourceTypeFile = "file"

	// SourceTypeAPI reads players from an HTTP endpoint
	SourceTypeAPI = "api"

	// SourceTypeRedis reads players from Redis hashes
	SourceTypeRedis = "redis"
)

const (
	// DefaultRefreshInterval is how often the leaderboard is rebuilt when not configured
	DefaultRefreshInterval = 5 * time.Minute

	// DefaultFetchTimeout bounds a single fetch from the ranking source
	DefaultFetchTimeout = 30 * time.Second

	// DefaultPageSize is the page size used when a caller does not ask for one
	DefaultPageSize = 20

	// DefaultMaxPageSize is the largest page a caller may request
	DefaultMaxPageSize = 100

	// DefaultPostgresQuery selects every ranked player
	DefaultPostgresQuery = "SELECT nickname, rating, matches_number, login, id FROM users"

	// DefaultRedisSetKey is the set holding every player id
	DefaultRedisSetKey = "players"

	// DefaultRedisKeyPrefix prefixes the per-player hash key
	DefaultRedisKeyPrefix = "player:"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// ServerName identifies this instance in logs and telemetry
	ServerName string `yaml:"serverName,omitempty"`

	Source      SourceConfig       `yaml:"source"`
	Refresh     *RefreshConfig     `yaml:"refresh,omitempty"`
	Leaderboard *LeaderboardConfig `yaml:"leaderboard,omitempty"`
	Database    *DatabaseConfig    `yaml:"database,omitempty"`
	Telemetry   *telemetry.Config  `yaml:"telemetry,omitempty"`
}

// SourceConfig selects the ranking source. Exactly one field must be set.
type SourceConfig struct {
	Postgres *PostgresSourceConfig `yaml:"postgres,omitempty"`
	File     *FileSourceConfig     `yaml:"file,omitempty"`
	API      *APISourceConfig      `yaml:"api,omitempty"`
	Redis    *RedisSourceConfig    `yaml:"redis,omitempty"`
}

// PostgresSourceConfig reads players with a SQL query. Requires the database section.
type PostgresSourceConfig struct {
	// Query must return nickname, rating, matches_number, login, id in that order
	Query string `yaml:"query,omitempty"`
}

// FileSourceConfig reads players from a local file
type FileSourceConfig struct {
	// Path is the path to a YAML or JSON document with a top-level players list
	Path string `yaml:"path"`
}

// APISourceConfig reads players from an HTTP endpoint
type APISourceConfig struct {
	// Endpoint is the full URL returning a JSON document with a top-level players list
	Endpoint string `yaml:"endpoint"`
}

// RedisSourceConfig reads players from Redis.
// Player ids are members of SetKey; each player is a hash at KeyPrefix+id.
type RedisSourceConfig struct {
	Address      string `yaml:"address"`
	PasswordFile string `yaml:"passwordFile,omitempty"`
	DB           int    `yaml:"db,omitempty"`
	SetKey       string `yaml:"setKey,omitempty"`
	KeyPrefix    string `yaml:"keyPrefix,omitempty"`
}

// RefreshConfig controls the refresh scheduler
type RefreshConfig struct {
	// Interval between refresh cycles (e.g. "5m")
	Interval string `yaml:"interval,omitempty"`

	// Jitter is the maximum random offset applied to each interval
	Jitter string `yaml:"jitter,omitempty"`

	// FetchTimeout bounds a single fetch from the source
	FetchTimeout string `yaml:"fetchTimeout,omitempty"`
}

// LeaderboardConfig controls read-side defaults
type LeaderboardConfig struct {
	DefaultPageSize int `yaml:"defaultPageSize,omitempty"`
	MaxPageSize     int `yaml:"maxPageSize,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxConns is the maximum number of pooled connections
	MaxConns int32 `yaml:"maxConns,omitempty"`

	// MinConns is the minimum number of idle pooled connections
	MinConns int32 `yaml:"minConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from RATING_SERVER_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		return readSecretFile(d.PasswordFile)
	}

	if envPassword := os.Getenv(DatabasePasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", DatabasePasswordEnv,
	)
}

// GetConnectionString builds a PostgreSQL connection URL.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String(), nil
}

// GetPassword returns the redis password from PasswordFile, or empty when none is configured
func (r *RedisSourceConfig) GetPassword() (string, error) {
	if r.PasswordFile == "" {
		return "", nil
	}
	return readSecretFile(r.PasswordFile)
}

// GetSetKey returns the player id set key, using the default if not specified
func (r *RedisSourceConfig) GetSetKey() string {
	if r.SetKey == "" {
		return DefaultRedisSetKey
	}
	return r.SetKey
}

// GetKeyPrefix returns the player hash key prefix, using the default if not specified
func (r *RedisSourceConfig) GetKeyPrefix() string {
	if r.KeyPrefix == "" {
		return DefaultRedisKeyPrefix
	}
	return r.KeyPrefix
}

// GetQuery returns the configured query or the default users query
func (p *PostgresSourceConfig) GetQuery() string {
	if p == nil || strings.TrimSpace(p.Query) == "" {
		return DefaultPostgresQuery
	}
	return p.Query
}

func readSecretFile(path string) (string, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to read password from file %s: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses and validates configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetServerName returns the server name, using "rating-server" if not specified
func (c *Config) GetServerName() string {
	if c.ServerName == "" {
		return "rating-server"
	}
	return c.ServerName
}

// GetRefreshInterval returns the refresh interval, falling back to the default
func (c *Config) GetRefreshInterval() time.Duration {
	if c.Refresh == nil {
		return DefaultRefreshInterval
	}
	return parseDurationOr(c.Refresh.Interval, DefaultRefreshInterval)
}

// GetRefreshJitter returns the refresh jitter, zero if not configured
func (c *Config) GetRefreshJitter() time.Duration {
	if c.Refresh == nil {
		return 0
	}
	return parseDurationOr(c.Refresh.Jitter, 0)
}

// GetFetchTimeout returns the source fetch timeout, falling back to the default
func (c *Config) GetFetchTimeout() time.Duration {
	if c.Refresh == nil {
		return DefaultFetchTimeout
	}
	return parseDurationOr(c.Refresh.FetchTimeout, DefaultFetchTimeout)
}

// GetDefaultPageSize returns the page size used when callers omit one
func (c *Config) GetDefaultPageSize() int {
	if c.Leaderboard == nil || c.Leaderboard.DefaultPageSize == 0 {
		return DefaultPageSize
	}
	return c.Leaderboard.DefaultPageSize
}

// GetMaxPageSize returns the largest page size callers may request
func (c *Config) GetMaxPageSize() int {
	if c.Leaderboard == nil || c.Leaderboard.MaxPageSize == 0 {
		return DefaultMaxPageSize
	}
	return c.Leaderboard.MaxPageSize
}

// GetType returns the configured source type
func (s *SourceConfig) GetType() string {
	switch {
	case s.Postgres != nil:
		return SourceTypePostgres
	case s.File != nil:
		return SourceTypeFile
	case s.API != nil:
		return SourceTypeAPI
	case s.Redis != nil:
		return SourceTypeRedis
	}
	return ""
}

// parseDurationOr parses value, returning fallback when it is empty.
// Values are validated at load time, so a parse failure here also yields fallback.
func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateSource(c); err != nil {
		return err
	}

	if err := validateRefresh(c.Refresh); err != nil {
		return err
	}

	if err := validateLeaderboard(c.Leaderboard); err != nil {
		return err
	}

	if c.Database != nil {
		if err := validateDatabase(c.Database); err != nil {
			return err
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

// validateSource ensures exactly one source is configured and that it is complete
func validateSource(c *Config) error {
	s := &c.Source
	count := 0
	for _, set := range []bool{s.Postgres != nil, s.File != nil, s.API != nil, s.Redis != nil} {
		if set {
			count++
		}
	}

	if count == 0 {
		return fmt.Errorf("source: one of postgres, file, api, or redis must be specified")
	}
	if count > 1 {
		return fmt.Errorf("source: only one of postgres, file, api, or redis may be specified")
	}

	switch {
	case s.Postgres != nil:
		if c.Database == nil {
			return fmt.Errorf("source.postgres: database configuration is required")
		}
	case s.File != nil:
		if s.File.Path == "" {
			return fmt.Errorf("source.file: path is required")
		}
	case s.API != nil:
		if s.API.Endpoint == "" {
			return fmt.Errorf("source.api: endpoint is required")
		}
		u, err := url.Parse(s.API.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("source.api: endpoint must be an absolute http(s) URL, got %q", s.API.Endpoint)
		}
	case s.Redis != nil:
		if s.Redis.Address == "" {
			return fmt.Errorf("source.redis: address is required")
		}
		if s.Redis.DB < 0 {
			return fmt.Errorf("source.redis: db must not be negative")
		}
	}

	return nil
}

// validateRefresh validates the refresh durations when present
func validateRefresh(r *RefreshConfig) error {
	if r == nil {
		return nil
	}

	fields := []struct {
		name     string
		value    string
		positive bool
	}{
		{name: "interval", value: r.Interval, positive: true},
		{name: "jitter", value: r.Jitter},
		{name: "fetchTimeout", value: r.FetchTimeout, positive: true},
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return fmt.Errorf("refresh.%s must be a valid duration (e.g., '30s', '5m'): %w", f.name, err)
		}
		if d < 0 || (f.positive && d == 0) {
			return fmt.Errorf("refresh.%s must be positive, got %s", f.name, f.value)
		}
	}

	interval := parseDurationOr(r.Interval, DefaultRefreshInterval)
	if jitter := parseDurationOr(r.Jitter, 0); jitter >= interval {
		return fmt.Errorf("refresh.jitter (%s) must be smaller than refresh.interval (%s)", jitter, interval)
	}

	return nil
}

// validateLeaderboard validates page size bounds when present
func validateLeaderboard(l *LeaderboardConfig) error {
	if l == nil {
		return nil
	}
	if l.DefaultPageSize < 0 || l.MaxPageSize < 0 {
		return fmt.Errorf("leaderboard: page sizes must not be negative")
	}

	def, maxSize := l.DefaultPageSize, l.MaxPageSize
	if def == 0 {
		def = DefaultPageSize
	}
	if maxSize == 0 {
		maxSize = DefaultMaxPageSize
	}
	if def > maxSize {
		return fmt.Errorf("leaderboard: defaultPageSize (%d) exceeds maxPageSize (%d)", def, maxSize)
	}
	return nil
}

// validateDatabase validates required connection fields
func validateDatabase(d *DatabaseConfig) error {
	if d.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if d.Port <= 0 {
		return fmt.Errorf("database.port is required")
	}
	if d.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("database.connMaxLifetime must be a valid duration: %w", err)
		}
	}
	return nil
}
