package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvTelemetryServiceName = "MRV_TELEMETRY_SERVICE_NAME"
	EnvTelemetryTracing     = "MRV_TELEMETRY_TRACING"
	EnvTelemetryMetrics     = "MRV_TELEMETRY_METRICS"
	EnvTelemetrySampleRatio = "MRV_TELEMETRY_SAMPLE_RATIO"
)

// TelemetryConfig toggles tracing and metrics. Tracing exports spans to
// stdout. Metrics are exposed for Prometheus scraping at /metrics.
type TelemetryConfig struct {
	ServiceName string   `toml:"service_name"`
	Tracing     *bool    `toml:"tracing"`
	Metrics     *bool    `toml:"metrics"`
	SampleRatio *float64 `toml:"sample_ratio"`
}

// TracingEnabled reports whether spans are exported.
func (c *TelemetryConfig) TracingEnabled() bool {
	return c.Tracing != nil && *c.Tracing
}

// MetricsEnabled reports whether the Prometheus exporter is installed.
func (c *TelemetryConfig) MetricsEnabled() bool {
	return c.Metrics == nil || *c.Metrics
}

// Ratio returns the trace sampling ratio.
func (c *TelemetryConfig) Ratio() float64 {
	if c.SampleRatio == nil {
		return 1
	}
	return *c.SampleRatio
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *TelemetryConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites fields set in overlay.
func (c *TelemetryConfig) Merge(overlay *TelemetryConfig) {
	if overlay.ServiceName != "" {
		c.ServiceName = overlay.ServiceName
	}
	if overlay.Tracing != nil {
		c.Tracing = overlay.Tracing
	}
	if overlay.Metrics != nil {
		c.Metrics = overlay.Metrics
	}
	if overlay.SampleRatio != nil {
		c.SampleRatio = overlay.SampleRatio
	}
}

func (c *TelemetryConfig) loadDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "mrv"
	}
}

func (c *TelemetryConfig) loadEnv() {
	if v := os.Getenv(EnvTelemetryServiceName); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv(EnvTelemetryTracing); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Tracing = &b
		}
	}
	if v := os.Getenv(EnvTelemetryMetrics); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Metrics = &b
		}
	}
	if v := os.Getenv(EnvTelemetrySampleRatio); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SampleRatio = &f
		}
	}
}

func (c *TelemetryConfig) validate() error {
	if r := c.Ratio(); r < 0 || r > 1 {
		return fmt.Errorf("sample_ratio %g outside [0, 1]", r)
	}
	return nil
}
