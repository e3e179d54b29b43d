package config_test

import (
	"context"
	"slices"
	"testing"
	"testing/fstest"
	"time"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

func TestLoadLayers(t *testing.T) {
	t.Parallel()

	env := config.MapEnvironment{
		"OTLPEXPORT_EXPORTER__TIMEOUT":      "3s",
		"OTLPEXPORT_EXPORTER__TLS__CA_FILE": "/etc/otlp/ca.pem",
		"OTLPEXPORT_METRICS__ENABLED":       "true",
		"OTLPEXPORT_LOGS__HEADERS":          "x-tenant=acme,api-key=secret%20value",
		"OTLPEXPORT_LOGGING__SAMPLE_RATIO":  "0.5",
		"OTLPEXPORT_TRACES__UNKNOWN":        "ignored",
	}

	fs := fstest.MapFS{
		config.DefaultConfigPath: {
			Data: []byte(`
exporter:
  endpoint: http://collector:4318
  compression: zstd
metrics:
  enabled: false
  endpoint: http://metrics-gateway:4318/ingest
logs:
  enabled: true
`),
		},
	}

	cfg, err := config.Load(context.Background(),
		config.FileLoader{FS: fs},
		config.EnvLoader{Env: env},
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Exporter.Timeout != 3*time.Second {
		t.Fatalf("expected env override for exporter.timeout, got %s", cfg.Exporter.Timeout)
	}

	if cfg.Exporter.Compression != config.CompressionZstd {
		t.Fatalf("expected compression from file, got %q", cfg.Exporter.Compression)
	}

	if cfg.Exporter.TLS.CAFile != "/etc/otlp/ca.pem" {
		t.Fatalf("expected nested tls override, got %+v", cfg.Exporter.TLS)
	}

	if cfg.Logging.SampleRatio != 0.5 || cfg.Logging.Adapter != "slog" {
		t.Fatalf("expected sample ratio override over defaults, got %+v", cfg.Logging)
	}

	if !cfg.Metrics.Enabled {
		t.Fatal("expected metrics enabled by env override")
	}

	if got := cfg.SettingsFor(telemetry.SignalTraces).Endpoint; got != "http://collector:4318/v1/traces" {
		t.Fatalf("expected shared endpoint with traces path, got %q", got)
	}

	if got := cfg.SettingsFor(telemetry.SignalMetrics).Endpoint; got != "http://metrics-gateway:4318/ingest" {
		t.Fatalf("expected per-signal endpoint as written, got %q", got)
	}

	want := config.Headers{{Key: "x-tenant", Value: "acme"}, {Key: "api-key", Value: "secret value"}}
	if headers := cfg.SettingsFor(telemetry.SignalLogs).Headers; !slices.Equal(headers, want) {
		t.Fatalf("unexpected logs headers: %#v", headers)
	}
}

func TestLoadMissingFileIsSkipped(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(context.Background(), config.FileLoader{FS: fstest.MapFS{}})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Exporter.Transport != "http" {
		t.Fatalf("expected default transport, got %q", cfg.Exporter.Transport)
	}
}

func TestLoadRejectsInvalidDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown protocol",
			doc:  "exporter:\n  protocol: carrier-pigeon\n",
		},
		{
			name: "relative endpoint",
			doc:  "traces:\n  enabled: true\n  endpoint: collector:4317\n",
		},
		{
			name: "unknown compression",
			doc:  "exporter:\n  compression: brotli\n",
		},
		{
			name: "nothing enabled",
			doc:  "traces:\n  enabled: false\n",
		},
		{
			name: "unknown key",
			doc:  "exporter:\n  endpont: http://collector:4318\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fs := fstest.MapFS{"cfg.yaml": {Data: []byte(tc.doc)}}

			_, err := config.Load(context.Background(), config.FileLoader{Path: "cfg.yaml", FS: fs})
			if err == nil {
				t.Fatal("expected validation error")
			}

			if !config.IsConfigurationError(err) {
				t.Fatalf("expected configuration error, got %T: %v", err, err)
			}
		})
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	fs := fstest.MapFS{config.DefaultConfigPath: {Data: []byte("")}}

	cfg, err := config.Load(context.Background(), config.FileLoader{FS: fs})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if !cfg.Traces.Enabled || cfg.Exporter.Compression != config.CompressionGzip {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestEnvLoaderRejectsMalformedValue(t *testing.T) {
	t.Parallel()

	env := config.MapEnvironment{"OTLPEXPORT_EXPORTER__TIMEOUT": "soon"}

	_, err := config.Load(context.Background(), config.EnvLoader{Env: env})
	if err == nil {
		t.Fatal("expected error for malformed timeout")
	}

	if !config.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %T: %v", err, err)
	}
}

func TestLoadKeepsHeaderOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		env  config.MapEnvironment
		want config.Headers
	}{
		{
			name: "mapping",
			doc:  "exporter:\n  headers:\n    z-tenant: acme\n    authorization: Bearer t\n    b-trace: \"on\"\n",
			want: config.Headers{{Key: "z-tenant", Value: "acme"}, {Key: "authorization", Value: "Bearer t"}, {Key: "b-trace", Value: "on"}},
		},
		{
			name: "header string",
			doc:  "exporter:\n  headers: \"z-tenant=acme,a-key=1\"\n",
			want: config.Headers{{Key: "z-tenant", Value: "acme"}, {Key: "a-key", Value: "1"}},
		},
		{
			name: "env replaces document",
			doc:  "exporter:\n  headers:\n    z-tenant: acme\n    authorization: Bearer t\n",
			env:  config.MapEnvironment{"OTLPEXPORT_EXPORTER__HEADERS": "x-only=1"},
			want: config.Headers{{Key: "x-only", Value: "1"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fs := fstest.MapFS{"cfg.yaml": {Data: []byte(tc.doc)}}

			cfg, err := config.Load(context.Background(),
				config.FileLoader{Path: "cfg.yaml", FS: fs},
				config.EnvLoader{Env: tc.env},
			)
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}

			if !slices.Equal(cfg.Exporter.Headers, tc.want) {
				t.Fatalf("expected %#v, got %#v", tc.want, cfg.Exporter.Headers)
			}
		})
	}
}
