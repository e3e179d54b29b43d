// Package config resolves exporter configuration from environment variables,
// builder calls and configuration documents.
package config

import (
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

// Config is the configuration document consumed by config-driven clients.
// Exporter holds settings shared by every signal; the per-signal sections
// override them field by field.
type Config struct {
	Exporter    Settings          `yaml:"exporter"    json:"exporter"`
	Traces      SignalConfig      `yaml:"traces"      json:"traces"`
	Metrics     SignalConfig      `yaml:"metrics"     json:"metrics"`
	Logs        SignalConfig      `yaml:"logs"        json:"logs"`
	Logging     LoggingConfig     `yaml:"logging"     json:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" json:"diagnostics"`
}

// SignalConfig toggles a signal and carries its setting overrides.
type SignalConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	Settings `yaml:",inline"`
}

// LoggingConfig controls structured log behavior.
type LoggingConfig struct {
	Level       string  `yaml:"level"        json:"level"`
	Format      string  `yaml:"format"       json:"format"`
	Adapter     string  `yaml:"adapter"      json:"adapter"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
}

// DiagnosticsConfig toggles the exporter status endpoint.
type DiagnosticsConfig struct {
	Enabled   bool   `yaml:"enabled"    json:"enabled"`
	HTTPAddr  string `yaml:"http_addr"  json:"http_addr"`
	AuthToken string `yaml:"auth_token" json:"auth_token"`
}

// Signal returns the section for sig.
func (c Config) Signal(sig telemetry.Signal) SignalConfig {
	switch sig {
	case telemetry.SignalMetrics:
		return c.Metrics
	case telemetry.SignalLogs:
		return c.Logs
	default:
		return c.Traces
	}
}

// SettingsFor merges the shared exporter settings with the overrides of sig.
// A shared OTLP/HTTP endpoint is treated as a base URL and receives the signal
// path; a per-signal endpoint is used as written.
func (c Config) SettingsFor(sig telemetry.Signal) Settings {
	shared := c.Exporter
	section := c.Signal(sig).Settings

	if section.Endpoint == "" && shared.Endpoint != "" && effectiveProtocol(shared, section).IsHTTP() {
		shared.Endpoint = SignalURL(shared.Endpoint, sig)
	}

	return shared.Merge(section)
}

func effectiveProtocol(shared, section Settings) Protocol {
	merged := shared.Merge(section)
	if merged.Protocol != "" {
		return merged.Protocol
	}

	if merged.Transport == "http" {
		return ProtocolHTTPProtobuf
	}

	return ""
}
