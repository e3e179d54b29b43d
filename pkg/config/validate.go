package config

import (
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

// Validate asserts that the document meets baseline expectations. Values that
// can still be overridden by OTEL_* variables are checked again by Resolve.
func Validate(cfg Config) error {
	enabled := 0

	for _, sig := range telemetry.Signals() {
		section := cfg.Signal(sig)
		if !section.Enabled {
			continue
		}

		enabled++

		err := validateSettings(string(sig), cfg.SettingsFor(sig))
		if err != nil {
			return err
		}
	}

	if enabled == 0 {
		return invalidConfigError("signals", "at least one of traces, metrics or logs must be enabled")
	}

	if cfg.Logging.SampleRatio < 0 || cfg.Logging.SampleRatio > 1 {
		return invalidConfigError("logging.sample_ratio", "must be within [0,1], got %v", cfg.Logging.SampleRatio)
	}

	if cfg.Diagnostics.Enabled && cfg.Diagnostics.HTTPAddr == "" {
		return invalidConfigError("diagnostics.http_addr", "required when diagnostics are enabled")
	}

	return nil
}

func validateSettings(section string, s Settings) error {
	if s.Transport == "" {
		return invalidConfigError(section+".transport", "transport is required")
	}

	if s.Protocol != "" {
		_, err := ParseProtocol(string(s.Protocol))
		if err != nil {
			return wrapConfigError(section+".protocol", err, "validate protocol")
		}
	}

	_, err := ParseCompression(string(s.Compression))
	if err != nil {
		return wrapConfigError(section+".compression", err, "validate compression")
	}

	if s.Endpoint != "" {
		_, err = ParseEndpoint(section+".endpoint", s.Endpoint)
		if err != nil {
			return err
		}
	}

	if s.Timeout < 0 {
		return invalidConfigError(section+".timeout", "must not be negative")
	}

	if s.MaxConcurrentExports < 0 {
		return invalidConfigError(section+".max_concurrent_exports", "must not be negative")
	}

	return nil
}
