package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

// ExportConfig is the fully resolved configuration of one exporter.
// It is produced by Resolve and never changes after the exporter is built.
type ExportConfig struct {
	Signal               telemetry.Signal
	Endpoint             *url.URL
	Protocol             Protocol
	Timeout              time.Duration
	Compression          Compression
	Headers              Headers
	TLS                  TLSConfig
	MaxConcurrentExports int
}

// Secure reports whether the endpoint requires TLS.
func (c ExportConfig) Secure() bool {
	return c.Endpoint != nil && strings.EqualFold(c.Endpoint.Scheme, "https")
}

// Clone returns a deep copy so callers cannot alter a built exporter.
func (c ExportConfig) Clone() ExportConfig {
	out := c
	if c.Endpoint != nil {
		u := *c.Endpoint
		out.Endpoint = &u
	}

	out.Headers = c.Headers.Clone()

	return out
}

// Resolve computes the configuration for signal. Each field is taken from the
// first tier that sets it:
//
//  1. OTEL_EXPORTER_OTLP_<SIGNAL>_<FIELD>
//  2. OTEL_EXPORTER_OTLP_<FIELD>
//  3. overrides (builder calls)
//  4. defaults, then compiled defaults
//
// Any invalid value, including an endpoint that is not an absolute URI, fails
// here with a ConfigurationError.
func Resolve(signal telemetry.Signal, env Environment, overrides, defaults Settings) (ExportConfig, error) {
	if !signal.Valid() {
		return ExportConfig{}, invalidConfigError("signal", "unknown signal %q", signal)
	}

	cfg := ExportConfig{Signal: signal}

	var err error

	cfg.Protocol, err = resolveProtocol(env, signal, overrides, defaults)
	if err != nil {
		return ExportConfig{}, err
	}

	cfg.Endpoint, err = resolveEndpoint(env, signal, cfg.Protocol, overrides, defaults)
	if err != nil {
		return ExportConfig{}, err
	}

	cfg.Timeout, err = resolveTimeout(env, signal, overrides, defaults)
	if err != nil {
		return ExportConfig{}, err
	}

	cfg.Compression, err = resolveCompression(env, signal, overrides, defaults)
	if err != nil {
		return ExportConfig{}, err
	}

	cfg.Headers, err = resolveHeaders(env, signal, overrides, defaults)
	if err != nil {
		return ExportConfig{}, err
	}

	cfg.TLS = resolveTLS(env, signal, overrides, defaults)

	cfg.MaxConcurrentExports = firstPositive(
		overrides.MaxConcurrentExports,
		defaults.MaxConcurrentExports,
		constants.DefaultMaxConcurrentExports,
	)

	return cfg, nil
}

func resolveProtocol(env Environment, signal telemetry.Signal, overrides, defaults Settings) (Protocol, error) {
	if raw, key, tier := lookupEnv(env, signal, EnvProtocol); tier != tierNone {
		p, err := ParseProtocol(raw)
		if err != nil {
			return "", wrapConfigError(key, err, "parse protocol")
		}

		return p, nil
	}

	for _, candidate := range []Protocol{overrides.Protocol, defaults.Protocol} {
		if candidate == "" {
			continue
		}

		return ParseProtocol(string(candidate))
	}

	return ProtocolHTTPProtobuf, nil
}

func resolveEndpoint(
	env Environment,
	signal telemetry.Signal,
	protocol Protocol,
	overrides, defaults Settings,
) (*url.URL, error) {
	raw, key, tier := lookupEnv(env, signal, EnvEndpoint)

	switch {
	case tier == tierGeneric && protocol.IsHTTP():
		raw = SignalURL(raw, signal)
	case tier != tierNone:
	case overrides.Endpoint != "":
		raw, key = overrides.Endpoint, "endpoint"
	case defaults.Endpoint != "":
		raw, key = defaults.Endpoint, "endpoint"
	case protocol.IsHTTP():
		raw, key = SignalURL(constants.DefaultHTTPEndpoint, signal), "endpoint"
	default:
		raw, key = constants.DefaultGRPCEndpoint, "endpoint"
	}

	return ParseEndpoint(key, raw)
}

// ParseEndpoint validates that raw is an absolute URI with a scheme and host.
func ParseEndpoint(field, raw string) (*url.URL, error) {
	if field == "" {
		field = "endpoint"
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidConfigError(field, "endpoint is empty")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, wrapConfigError(field, err, "parse endpoint "+quote(trimmed))
	}

	if !u.IsAbs() || u.Host == "" {
		return nil, invalidConfigError(field, "endpoint %q is not an absolute URI", trimmed)
	}

	return u, nil
}

// SignalURL appends the OTLP/HTTP path of signal to the path of a base URL.
// Query and fragment are kept. A base that does not parse is returned with the
// path appended so ParseEndpoint reports it.
func SignalURL(base string, signal telemetry.Signal) string {
	trimmed := strings.TrimSpace(base)

	u, err := url.Parse(trimmed)
	if err != nil || !u.IsAbs() {
		return strings.TrimRight(trimmed, "/") + signal.HTTPPath()
	}

	return u.JoinPath(signal.HTTPPath()).String()
}

func resolveTimeout(env Environment, signal telemetry.Signal, overrides, defaults Settings) (time.Duration, error) {
	if raw, key, tier := lookupEnv(env, signal, EnvTimeout); tier != tierNone {
		ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return 0, wrapConfigError(key, err, "parse timeout milliseconds")
		}

		if ms <= 0 {
			return 0, invalidConfigError(key, "timeout must be positive, got %d", ms)
		}

		return time.Duration(ms) * time.Millisecond, nil
	}

	if overrides.Timeout < 0 {
		return 0, invalidConfigError("timeout", "timeout must be positive, got %s", overrides.Timeout)
	}

	if overrides.Timeout > 0 {
		return overrides.Timeout, nil
	}

	if defaults.Timeout > 0 {
		return defaults.Timeout, nil
	}

	return constants.DefaultTimeout, nil
}

func resolveCompression(env Environment, signal telemetry.Signal, overrides, defaults Settings) (Compression, error) {
	if raw, key, tier := lookupEnv(env, signal, EnvCompression); tier != tierNone {
		c, err := ParseCompression(raw)
		if err != nil {
			return "", wrapConfigError(key, err, "parse compression")
		}

		return c, nil
	}

	if overrides.Compression != "" {
		return ParseCompression(string(overrides.Compression))
	}

	return ParseCompression(string(defaults.Compression))
}

func resolveHeaders(env Environment, signal telemetry.Signal, overrides, defaults Settings) (Headers, error) {
	if raw, key, tier := lookupEnv(env, signal, EnvHeaders); tier != tierNone {
		headers, err := ParseHeaders(raw)
		if err != nil {
			return nil, wrapConfigError(key, err, "parse headers")
		}

		return headers, nil
	}

	if len(overrides.Headers) > 0 {
		return overrides.Headers.Clone(), nil
	}

	return defaults.Headers.Clone(), nil
}

func resolveTLS(env Environment, signal telemetry.Signal, overrides, defaults Settings) TLSConfig {
	pick := func(field, over, def string) string {
		if raw, _, tier := lookupEnv(env, signal, field); tier != tierNone {
			return raw
		}

		if over != "" {
			return over
		}

		return def
	}

	return TLSConfig{
		CAFile:             pick(EnvCertificate, overrides.TLS.CAFile, defaults.TLS.CAFile),
		CertFile:           pick(EnvClientCertificate, overrides.TLS.CertFile, defaults.TLS.CertFile),
		KeyFile:            pick(EnvClientKey, overrides.TLS.KeyFile, defaults.TLS.KeyFile),
		InsecureSkipVerify: overrides.TLS.InsecureSkipVerify || defaults.TLS.InsecureSkipVerify,
	}
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}

	return 0
}
