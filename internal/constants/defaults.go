// Package constants provides common constants used across the otlpexport project.
package constants

import "time"

const (
	// DefaultTimeout bounds a single export call, including admission and the network round trip.
	DefaultTimeout = 10 * time.Second
	// DefaultShutdownTimeout is the default timeout for shutdown operations.
	DefaultShutdownTimeout = 30 * time.Second
	// DefaultShutdownGracePeriod is how long Shutdown waits for in-flight exports to drain.
	DefaultShutdownGracePeriod = 5 * time.Second
	// DefaultMaxConcurrentExports is the default admission limit per exporter.
	DefaultMaxConcurrentExports = 8
	// DefaultReadHeaderTimeout is used by the diagnostics HTTP server.
	DefaultReadHeaderTimeout = 5 * time.Second
)

const (
	// DefaultGRPCEndpoint is the collector endpoint used for OTLP/gRPC when nothing is configured.
	DefaultGRPCEndpoint = "http://localhost:4317"
	// DefaultHTTPEndpoint is the collector base URL used for OTLP/HTTP when nothing is configured.
	DefaultHTTPEndpoint = "http://localhost:4318"
)

const (
	// TracesPath is the OTLP/HTTP path for trace exports.
	TracesPath = "/v1/traces"
	// MetricsPath is the OTLP/HTTP path for metric exports.
	MetricsPath = "/v1/metrics"
	// LogsPath is the OTLP/HTTP path for log exports.
	LogsPath = "/v1/logs"
)

const (
	// UserAgent identifies the exporter to collectors.
	UserAgent = "otlpexport-go/0.1"
	// MaxResponseBodyBytes caps how much of a collector response is read.
	MaxResponseBodyBytes = 64 << 10
)
