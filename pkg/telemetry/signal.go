// Package telemetry defines the in-memory telemetry batches handed to exporters.
//
// The types are deliberately thin value types: a pipeline builds them (directly or
// through the SDK adapters in pkg/exporter) and exporters never mutate them.
package telemetry

import (
	"strings"

	"github.com/hyp3rd/otlpexport/internal/constants"
)

// Signal identifies one of the three OTLP telemetry kinds.
type Signal string

const (
	// SignalTraces identifies span batches.
	SignalTraces Signal = "traces"
	// SignalMetrics identifies metric batches.
	SignalMetrics Signal = "metrics"
	// SignalLogs identifies log record batches.
	SignalLogs Signal = "logs"
)

// Signals lists every supported signal in a stable order.
func Signals() []Signal {
	return []Signal{SignalTraces, SignalMetrics, SignalLogs}
}

// Valid reports whether s is a known signal.
func (s Signal) Valid() bool {
	switch s {
	case SignalTraces, SignalMetrics, SignalLogs:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (s Signal) String() string {
	return string(s)
}

// EnvName returns the upper-case token used in signal-specific environment variables.
func (s Signal) EnvName() string {
	return strings.ToUpper(string(s))
}

// HTTPPath returns the OTLP/HTTP path for the signal.
func (s Signal) HTTPPath() string {
	switch s {
	case SignalMetrics:
		return constants.MetricsPath
	case SignalLogs:
		return constants.LogsPath
	default:
		return constants.TracesPath
	}
}

// ParseSignal converts a string into a Signal.
func ParseSignal(raw string) (Signal, bool) {
	sig := Signal(strings.ToLower(strings.TrimSpace(raw)))

	return sig, sig.Valid()
}
