// Package config handles TOML configuration for Tether.
package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	AWS       AWSConfig       `toml:"aws"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Report    ReportConfig    `toml:"report"`
	OTEL      OTELConfig      `toml:"otel"`
	Log       LogConfig       `toml:"log"`
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	Region  string `toml:"region"`
	Profile string `toml:"profile"`
}

// DiscoveryConfig controls how attachments are correlated.
type DiscoveryConfig struct {
	// ReuseIndex resolves load balancer topology and bucket policies once
	// per run instead of once per instance.
	ReuseIndex *bool `toml:"reuse_index"`
	// TargetGroupLBTypes lists the load balancer types whose target groups
	// are resolved.
	TargetGroupLBTypes []string `toml:"target_group_lb_types"`
	LBPageSize         int32    `toml:"lb_page_size"`
	// States limits correlation to instances in these states. Empty means all.
	States           []string `toml:"states"`
	ExcludeInstances []string `toml:"exclude_instances"`
}

// ShouldReuseIndex returns the effective reuse_index setting.
func (d DiscoveryConfig) ShouldReuseIndex() bool {
	return d.ReuseIndex == nil || *d.ReuseIndex
}

// ReportConfig holds output settings.
type ReportConfig struct {
	Output      string `toml:"output"`
	Color       bool   `toml:"color"`
	Summary     bool   `toml:"summary"`
	MetricsFile string `toml:"metrics_file"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint"`
	Insecure    bool          `toml:"insecure"`
	ServiceName string        `toml:"service_name"`
	Traces      TracesConfig  `toml:"traces"`
	Metrics     MetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

var (
	outputFormats  = []string{"text", "yaml"}
	lbTypes        = []string{"application", "network", "gateway"}
	instanceStates = []string{"pending", "running", "shutting-down", "terminated", "stopping", "stopped"}
)

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Discovery.TargetGroupLBTypes) == 0 {
		cfg.Discovery.TargetGroupLBTypes = []string{"application"}
	}
	if cfg.Discovery.LBPageSize == 0 {
		cfg.Discovery.LBPageSize = 400
	}
	if cfg.Report.Output == "" {
		cfg.Report.Output = "text"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "tether"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if !slices.Contains(outputFormats, c.Report.Output) {
		return fmt.Errorf("report: output must be one of %v (got %q)", outputFormats, c.Report.Output)
	}
	for _, t := range c.Discovery.TargetGroupLBTypes {
		if !slices.Contains(lbTypes, t) {
			return fmt.Errorf("discovery: unknown load balancer type %q", t)
		}
	}
	for _, s := range c.Discovery.States {
		if !slices.Contains(instanceStates, s) {
			return fmt.Errorf("discovery: unknown instance state %q", s)
		}
	}
	if c.Discovery.LBPageSize < 1 || c.Discovery.LBPageSize > 400 {
		return fmt.Errorf("discovery: lb_page_size must be between 1 and 400 (got %d)", c.Discovery.LBPageSize)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}
