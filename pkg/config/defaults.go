package config

import (
	"github.com/hyp3rd/otlpexport/internal/constants"
)

// DefaultConfig returns a Config populated with production-safe defaults.
// Traces are enabled over OTLP/HTTP; metrics and logs are opt-in. The protocol
// is left to the transport default.
func DefaultConfig() Config {
	return Config{
		Exporter: Settings{
			Transport:            "http",
			Timeout:              constants.DefaultTimeout,
			Compression:          CompressionGzip,
			MaxConcurrentExports: constants.DefaultMaxConcurrentExports,
		},
		Traces: SignalConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Adapter:     "slog",
			SampleRatio: 1.0,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:  false,
			HTTPAddr: "127.0.0.1:14271",
		},
	}
}
