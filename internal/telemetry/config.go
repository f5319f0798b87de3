// Package telemetry instruments the rating server with OpenTelemetry.
//
// Refresh cycles, leaderboard queries and HTTP requests are measured through
// one meter provider. Its readers are an OTLP push exporter and, when
// metrics.prometheus is set, a Prometheus registry scraped at /metrics. Traces
// are pushed over OTLP HTTP. Everything degrades to no-op providers when
// telemetry is disabled.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName identifies the service in exported resources
	DefaultServiceName = "rating-server"

	// DefaultEndpoint is the OTLP HTTP collector address
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the trace sampling ratio used when none is configured
	DefaultSampling = 0.05

	unknownServiceVersion = "unknown"
)

// Config is the telemetry section of the server configuration
type Config struct {
	// Enabled gates every provider; when false all instrumentation is no-op
	Enabled bool `yaml:"enabled"`

	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the collector "host:port"; the exporters append /v1/traces and /v1/metrics
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure exports over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of traces kept, in [0, 1]. Zero means DefaultSampling.
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig configures metric export
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Prometheus serves the same instruments in text format on /metrics
	Prometheus bool `yaml:"prometheus,omitempty"`
}

// GetServiceName returns the configured service name or DefaultServiceName
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the configured service version or "unknown"
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return unknownServiceVersion
	}
	return c.ServiceVersion
}

// GetEndpoint returns the configured collector endpoint or DefaultEndpoint
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// PrometheusEnabled reports whether the /metrics scrape endpoint should be served
func (c *Config) PrometheusEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled && c.Metrics.Prometheus
}

// GetSampling returns the sampling ratio. YAML cannot tell an explicit 0 from
// an absent value, so 0 selects DefaultSampling.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0.0 {
		return DefaultSampling
	}
	return c.Sampling
}

// Validate checks the enabled sections. A nil or disabled config is valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	return errors.Join(errs...)
}

// Validate checks the sampling ratio of enabled tracing
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Sampling < 0 || c.Sampling > 1.0 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}
	return nil
}

// Validate rejects a Prometheus endpoint without metrics collection
func (c *MetricsConfig) Validate() error {
	if c == nil {
		return nil
	}
	if c.Prometheus && !c.Enabled {
		return errors.New("prometheus requires metrics to be enabled")
	}
	return nil
}
