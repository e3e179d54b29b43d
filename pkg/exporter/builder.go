package exporter

import (
	"context"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/codec"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/logging"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
	"github.com/hyp3rd/otlpexport/pkg/transport"
)

// Builder assembles an Exporter. Exactly one transport must be selected.
// Builder methods only record settings; every check happens in Build.
type Builder[T telemetry.Record] struct {
	signal     telemetry.Signal
	newCodec   func(codec.Encoding) *codec.Codec[T]
	transports []transport.Factory

	settings      config.Settings
	env           config.Environment
	logger        logging.Adapter
	meterProvider metric.MeterProvider
	grace         time.Duration
	resource      telemetry.Resource
	scope         telemetry.Scope
}

type (
	// TraceBuilder builds a TraceExporter.
	TraceBuilder = Builder[telemetry.Span]
	// MetricBuilder builds a MetricExporter.
	MetricBuilder = Builder[telemetry.Metric]
	// LogBuilder builds a LogExporter.
	LogBuilder = Builder[telemetry.LogRecord]
)

// NewTraceBuilder starts a span exporter.
func NewTraceBuilder() *TraceBuilder {
	return newBuilder(telemetry.SignalTraces, codec.Traces)
}

// NewMetricBuilder starts a metric exporter.
func NewMetricBuilder() *MetricBuilder {
	return newBuilder(telemetry.SignalMetrics, codec.Metrics)
}

// NewLogBuilder starts a log exporter.
func NewLogBuilder() *LogBuilder {
	return newBuilder(telemetry.SignalLogs, codec.Logs)
}

func newBuilder[T telemetry.Record](signal telemetry.Signal, newCodec func(codec.Encoding) *codec.Codec[T]) *Builder[T] {
	return &Builder[T]{
		signal:   signal,
		newCodec: newCodec,
		env:      config.OSEnvironment{},
		grace:    constants.DefaultShutdownGracePeriod,
	}
}

// WithTransport selects the transport. Selecting more than one makes Build fail.
func (b *Builder[T]) WithTransport(factory transport.Factory) *Builder[T] {
	b.transports = append(b.transports, factory)

	return b
}

// WithEndpoint sets the collector URL, used as-is.
func (b *Builder[T]) WithEndpoint(endpoint string) *Builder[T] {
	b.settings.Endpoint = endpoint

	return b
}

// WithTimeout bounds each export, including admission.
func (b *Builder[T]) WithTimeout(timeout time.Duration) *Builder[T] {
	b.settings.Timeout = timeout

	return b
}

// WithProtocol selects the wire protocol. It must be supported by the transport.
func (b *Builder[T]) WithProtocol(protocol config.Protocol) *Builder[T] {
	b.settings.Protocol = protocol

	return b
}

// WithCompression selects payload compression.
func (b *Builder[T]) WithCompression(compression config.Compression) *Builder[T] {
	b.settings.Compression = compression

	return b
}

// WithHeader adds one request header. Headers are sent in the order they
// were first added; a repeated key replaces the earlier value in place.
func (b *Builder[T]) WithHeader(key, value string) *Builder[T] {
	b.settings.Headers.Set(key, value)

	return b
}

// WithHeaders adds request headers in order.
func (b *Builder[T]) WithHeaders(headers ...config.Header) *Builder[T] {
	for _, hdr := range headers {
		b.settings.Headers.Set(hdr.Key, hdr.Value)
	}

	return b
}

// WithTLS sets the trust material for https endpoints.
func (b *Builder[T]) WithTLS(tls config.TLSConfig) *Builder[T] {
	b.settings.TLS = tls

	return b
}

// WithMaxConcurrentExports sets the admission limit.
func (b *Builder[T]) WithMaxConcurrentExports(limit int) *Builder[T] {
	b.settings.MaxConcurrentExports = limit

	return b
}

// WithSettings overlays every field set in s.
func (b *Builder[T]) WithSettings(s config.Settings) *Builder[T] {
	b.settings = b.settings.Merge(s)

	return b
}

// WithEnvironment replaces the process environment used for OTEL_* lookups.
func (b *Builder[T]) WithEnvironment(env config.Environment) *Builder[T] {
	b.env = env

	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder[T]) WithLogger(logger logging.Adapter) *Builder[T] {
	b.logger = logger

	return b
}

// WithMeterProvider enables the exporter's own metrics.
func (b *Builder[T]) WithMeterProvider(mp metric.MeterProvider) *Builder[T] {
	b.meterProvider = mp

	return b
}

// WithShutdownGracePeriod bounds how long Shutdown waits for in-flight exports.
func (b *Builder[T]) WithShutdownGracePeriod(grace time.Duration) *Builder[T] {
	b.grace = grace

	return b
}

// WithResource attaches the initial Resource and Scope envelope.
func (b *Builder[T]) WithResource(resource telemetry.Resource, scope telemetry.Scope) *Builder[T] {
	b.resource = resource
	b.scope = scope

	return b
}

// Build resolves the configuration, creates the transport client and returns
// an active exporter. Nothing is installed globally.
func (b *Builder[T]) Build(ctx context.Context) (*Exporter[T], error) {
	factory, err := b.selectTransport()
	if err != nil {
		return nil, err
	}

	env := b.env
	if env == nil {
		env = config.MapEnvironment{}
	}

	cfg, err := config.Resolve(b.signal, env, b.settings, config.Settings{
		Protocol: transport.DefaultProtocol(factory),
	})
	if err != nil {
		return nil, err
	}

	if !transport.Supports(factory, cfg.Protocol) {
		return nil, config.NewConfigurationError("protocol",
			"transport %q does not support protocol %q (supported: %s)",
			factory.Name(), cfg.Protocol, joinProtocols(factory.Protocols()))
	}

	logger := logging.With(b.logger,
		AttrSignal.String(b.signal.String()),
		AttrTransport.String(factory.Name()),
	)

	inst, err := newInstruments(b.meterProvider,
		AttrSignal.String(b.signal.String()),
		AttrTransport.String(factory.Name()),
	)
	if err != nil {
		return nil, err
	}

	client, err := factory.New(ctx, cfg.Clone())
	if err != nil {
		return nil, config.WrapConfigurationError("transport", err, "create "+factory.Name()+" transport")
	}

	grace := b.grace
	if grace <= 0 {
		grace = constants.DefaultShutdownGracePeriod
	}

	exp := &Exporter[T]{
		cfg:           cfg,
		transportName: factory.Name(),
		codec:         b.newCodec(codec.EncodingFor(cfg.Protocol)),
		client:        client,
		logger:        logger,
		instruments:   inst,
		grace:         grace,
		resource:      b.resource,
		scope:         b.scope,
	}

	err = inst.observeInFlight(exp.InFlight)
	if err != nil {
		_ = client.Shutdown(ctx)

		return nil, ewrap.Wrap(err, "register exporter metrics")
	}

	exp.state.Store(int32(StateActive))

	logger.Debug(ctx, "exporter built",
		attribute.String("protocol", string(cfg.Protocol)),
		attribute.String("endpoint", cfg.Endpoint.Redacted()),
	)

	return exp, nil
}

func (b *Builder[T]) selectTransport() (transport.Factory, error) {
	switch len(b.transports) {
	case 0:
		return nil, config.NewConfigurationError("transport", "no transport selected for %s exporter", b.signal)
	case 1:
		if b.transports[0] == nil {
			return nil, config.NewConfigurationError("transport", "nil transport selected for %s exporter", b.signal)
		}

		return b.transports[0], nil
	default:
		names := make([]string, 0, len(b.transports))
		for _, f := range b.transports {
			if f != nil {
				names = append(names, f.Name())
			}
		}

		return nil, config.NewConfigurationError("transport",
			"exactly one transport must be selected for %s exporter, got %d (%s)",
			b.signal, len(b.transports), strings.Join(names, ", "))
	}
}

func joinProtocols(protocols []config.Protocol) string {
	out := make([]string, 0, len(protocols))
	for _, p := range protocols {
		out = append(out, string(p))
	}

	return strings.Join(out, ", ")
}
