package config

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is read by FileLoader when no path is given.
	DefaultConfigPath = "otlpexport.yaml"
	// DefaultEnvPrefix scopes the variables read by EnvLoader.
	DefaultEnvPrefix = "OTLPEXPORT_"
)

// Loader applies one configuration source on top of cfg. A source with
// nothing to contribute leaves cfg untouched and returns nil.
// Loaders only feed the document; OTEL_EXPORTER_OTLP_* variables are applied
// later by Resolve.
type Loader interface {
	Load(ctx context.Context, cfg *Config) error
}

// Load applies loaders in order over DefaultConfig and validates the result.
func Load(ctx context.Context, loaders ...Loader) (Config, error) {
	cfg := DefaultConfig()

	for _, loader := range loaders {
		if loader == nil {
			continue
		}

		err := ctx.Err()
		if err != nil {
			return Config{}, ewrap.Wrap(err, "load config")
		}

		err = loader.Load(ctx, &cfg)
		if err != nil {
			return Config{}, err
		}
	}

	err := Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// FileLoader reads a YAML document from disk, or from FS when set.
// A missing file is skipped; unknown keys are rejected.
type FileLoader struct {
	Path string
	FS   fs.FS
}

// Load implements Loader.
func (fl FileLoader) Load(_ context.Context, cfg *Config) error {
	path := fl.Path
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := fl.read(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return ewrap.Wrapf(err, "read config file %q", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err = dec.Decode(cfg)
	if errors.Is(err, io.EOF) {
		return nil
	}

	if err != nil {
		return wrapConfigError(path, err, "parse yaml")
	}

	return nil
}

func (fl FileLoader) read(path string) ([]byte, error) {
	if fl.FS != nil {
		return fs.ReadFile(fl.FS, path)
	}

	return os.ReadFile(path)
}

// Keys accepted by EnvLoader, per document section. A dot marks a nested
// field and is spelled as a double underscore in the variable name.
var (
	settingsKeys = []string{
		"transport",
		"endpoint",
		"protocol",
		"timeout",
		"compression",
		"max_concurrent_exports",
		"tls.ca_file",
		"tls.cert_file",
		"tls.key_file",
		"tls.insecure_skip_verify",
	}
	signalKeys      = append([]string{"enabled"}, settingsKeys...)
	loggingKeys     = []string{"level", "format", "adapter", "sample_ratio"}
	diagnosticsKeys = []string{"enabled", "http_addr", "auth_token"}
)

// EnvLoader applies <Prefix><SECTION>__<FIELD> variables to the document,
// for example OTLPEXPORT_TRACES__ENDPOINT or OTLPEXPORT_EXPORTER__TLS__CA_FILE.
// Headers use the OTEL key=value,key2=value2 format.
type EnvLoader struct {
	Prefix string
	// Env defaults to the process environment.
	Env Environment
}

// Load implements Loader.
func (el EnvLoader) Load(_ context.Context, cfg *Config) error {
	prefix := el.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	env := el.Env
	if env == nil {
		env = OSEnvironment{}
	}

	sections := []struct {
		name    string
		keys    []string
		out     any
		headers *Headers
	}{
		{name: "exporter", keys: settingsKeys, out: &cfg.Exporter, headers: &cfg.Exporter.Headers},
		{name: "traces", keys: signalKeys, out: &cfg.Traces, headers: &cfg.Traces.Headers},
		{name: "metrics", keys: signalKeys, out: &cfg.Metrics, headers: &cfg.Metrics.Headers},
		{name: "logs", keys: signalKeys, out: &cfg.Logs, headers: &cfg.Logs.Headers},
		{name: "logging", keys: loggingKeys, out: &cfg.Logging},
		{name: "diagnostics", keys: diagnosticsKeys, out: &cfg.Diagnostics},
	}

	for _, section := range sections {
		sectionPrefix := prefix + strings.ToUpper(section.name) + "__"

		values := lookupSection(env, sectionPrefix, section.keys)
		if len(values) > 0 {
			err := decodeSection(section.out, values)
			if err != nil {
				return wrapConfigError(section.name, err, "apply "+sectionPrefix+"* variables")
			}
		}

		if section.headers == nil {
			continue
		}

		raw, ok := env.Lookup(sectionPrefix + "HEADERS")
		if !ok {
			continue
		}

		headers, err := ParseHeaders(raw)
		if err != nil {
			return wrapConfigError(section.name, err, "apply "+sectionPrefix+"HEADERS")
		}

		*section.headers = headers
	}

	return nil
}

func lookupSection(env Environment, prefix string, keys []string) map[string]any {
	values := map[string]any{}

	for _, key := range keys {
		raw, ok := env.Lookup(prefix + strings.ToUpper(strings.ReplaceAll(key, ".", "__")))
		if !ok {
			continue
		}

		parent, field, nested := strings.Cut(key, ".")
		if !nested {
			values[key] = raw

			continue
		}

		sub, _ := values[parent].(map[string]any)
		if sub == nil {
			sub = map[string]any{}
			values[parent] = sub
		}

		sub[field] = raw
	}

	return values
}

// decodeSection overlays string values onto one section. Fields without a
// value keep their current content.
func decodeSection(out any, values map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           out,
		Squash:           true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return ewrap.Wrap(err, "create decoder")
	}

	err = decoder.Decode(values)
	if err != nil {
		return ewrap.Wrap(err, "decode")
	}

	return nil
}
