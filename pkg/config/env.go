package config

import (
	"os"

	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

const envPrefix = "OTEL_EXPORTER_OTLP_"

// Environment variable suffixes understood by Resolve.
const (
	EnvEndpoint          = "ENDPOINT"
	EnvProtocol          = "PROTOCOL"
	EnvTimeout           = "TIMEOUT"
	EnvCompression       = "COMPRESSION"
	EnvHeaders           = "HEADERS"
	EnvCertificate       = "CERTIFICATE"
	EnvClientCertificate = "CLIENT_CERTIFICATE"
	EnvClientKey         = "CLIENT_KEY"
)

// Environment looks up environment variables. Tests inject a MapEnvironment.
type Environment interface {
	Lookup(key string) (string, bool)
}

// OSEnvironment reads the process environment.
type OSEnvironment struct{}

// Lookup implements Environment.
func (OSEnvironment) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapEnvironment serves variables from a map.
type MapEnvironment map[string]string

// Lookup implements Environment.
func (m MapEnvironment) Lookup(key string) (string, bool) {
	v, ok := m[key]

	return v, ok
}

// GenericEnvKey returns the signal-independent variable name, e.g. OTEL_EXPORTER_OTLP_ENDPOINT.
func GenericEnvKey(field string) string {
	return envPrefix + field
}

// SignalEnvKey returns the signal-specific variable name, e.g. OTEL_EXPORTER_OTLP_TRACES_ENDPOINT.
func SignalEnvKey(signal telemetry.Signal, field string) string {
	return envPrefix + signal.EnvName() + "_" + field
}

type envTier int

const (
	tierNone envTier = iota
	tierSignal
	tierGeneric
)

// lookupEnv returns the highest-precedence non-empty value for field.
func lookupEnv(env Environment, signal telemetry.Signal, field string) (string, string, envTier) {
	if env == nil {
		return "", "", tierNone
	}

	key := SignalEnvKey(signal, field)
	if v, ok := env.Lookup(key); ok && v != "" {
		return v, key, tierSignal
	}

	key = GenericEnvKey(field)
	if v, ok := env.Lookup(key); ok && v != "" {
		return v, key, tierGeneric
	}

	return "", "", tierNone
}
