// Package transport defines the contract between an exporter and the network
// client that delivers its encoded payloads.
//
// Concrete clients live in sub-packages (otlphttp, otlpgrpc, otlpkafka) and are
// only linked into a binary when imported. The exporter builder sees nothing
// but a Factory.
package transport

import (
	"context"
	"slices"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

// ResponseDecoder extracts partial-success information from a response body.
type ResponseDecoder interface {
	DecodeResponse(data []byte) (outcome.Partial, error)
}

// Request is one encoded export call.
type Request struct {
	Signal      telemetry.Signal
	Payload     []byte
	ContentType string
	// Items is the number of records in the payload, used for logging and metrics.
	Items   int
	Decoder ResponseDecoder
}

// Client sends encoded payloads to a collector. Implementations must be safe
// for concurrent use and must return outcome.Closed from Send after Shutdown.
type Client interface {
	Send(ctx context.Context, req Request) outcome.Outcome
	Shutdown(ctx context.Context) error
}

// Factory creates Clients from a resolved configuration.
type Factory interface {
	// Name identifies the transport in configuration files and diagnostics.
	Name() string
	// Protocols lists the supported protocols. The first one is the default.
	Protocols() []config.Protocol
	New(ctx context.Context, cfg config.ExportConfig) (Client, error)
}

// Supports reports whether f can carry protocol.
func Supports(f Factory, protocol config.Protocol) bool {
	return slices.Contains(f.Protocols(), protocol)
}

// DefaultProtocol returns the first protocol advertised by f.
func DefaultProtocol(f Factory) config.Protocol {
	protocols := f.Protocols()
	if len(protocols) == 0 {
		return ""
	}

	return protocols[0]
}

// FactoryFunc adapts a constructor into a Factory.
type FactoryFunc struct {
	name      string
	protocols []config.Protocol
	build     func(ctx context.Context, cfg config.ExportConfig) (Client, error)
}

// NewFactory returns a Factory backed by build.
func NewFactory(
	name string,
	protocols []config.Protocol,
	build func(ctx context.Context, cfg config.ExportConfig) (Client, error),
) FactoryFunc {
	return FactoryFunc{name: name, protocols: slices.Clone(protocols), build: build}
}

// Name implements Factory.
func (f FactoryFunc) Name() string {
	return f.name
}

// Protocols implements Factory.
func (f FactoryFunc) Protocols() []config.Protocol {
	return slices.Clone(f.protocols)
}

// New implements Factory.
func (f FactoryFunc) New(ctx context.Context, cfg config.ExportConfig) (Client, error) {
	return f.build(ctx, cfg)
}
