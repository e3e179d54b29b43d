package otlpexport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/hyp3rd/ewrap"
	"gopkg.in/yaml.v3"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/diagnostics"
	"github.com/hyp3rd/otlpexport/pkg/exporter"
	"github.com/hyp3rd/otlpexport/pkg/logging"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
	"github.com/hyp3rd/otlpexport/pkg/transport"
)

// pipeline is the set of exporters built from one configuration document.
// A reload builds a new pipeline and retires the old one.
type pipeline struct {
	cfg    config.Config
	digest string

	traces  *exporter.TraceExporter
	metrics *exporter.MetricExporter
	logs    *exporter.LogExporter

	// active counts exports running against this pipeline.
	active sync.WaitGroup
}

func newPipeline(ctx context.Context, cfg config.Config, opts options, logger logging.Adapter) (*pipeline, error) {
	digest, err := configDigest(cfg)
	if err != nil {
		return nil, err
	}

	p := &pipeline{cfg: cfg, digest: digest}

	if cfg.Traces.Enabled {
		p.traces, err = buildExporter(ctx, p, exporter.NewTraceBuilder(), cfg, opts, logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.Enabled {
		p.metrics, err = buildExporter(ctx, p, exporter.NewMetricBuilder(), cfg, opts, logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Logs.Enabled {
		p.logs, err = buildExporter(ctx, p, exporter.NewLogBuilder(), cfg, opts, logger)
		if err != nil {
			return nil, err
		}
	}

	return p, nil
}

// buildExporter builds the exporter for one signal. On failure every exporter
// already built for p is shut down.
func buildExporter[T telemetry.Record](
	ctx context.Context,
	p *pipeline,
	b *exporter.Builder[T],
	cfg config.Config,
	opts options,
	logger logging.Adapter,
) (*exporter.Exporter[T], error) {
	signal := signalOf[T]()
	settings := cfg.SettingsFor(signal)

	factory, err := lookupTransport(opts.transports, settings.Transport)
	if err != nil {
		return nil, errors.Join(err, p.shutdown(ctx))
	}

	exp, err := b.
		WithTransport(factory).
		WithSettings(settings).
		WithEnvironment(opts.env).
		WithLogger(logger).
		WithMeterProvider(opts.meterProvider).
		WithResource(opts.resource, opts.scope).
		Build(ctx)
	if err != nil {
		return nil, errors.Join(ewrap.Wrapf(err, "build %s exporter", signal), p.shutdown(ctx))
	}

	return exp, nil
}

func signalOf[T telemetry.Record]() telemetry.Signal {
	var zero T

	switch any(zero).(type) {
	case telemetry.Metric:
		return telemetry.SignalMetrics
	case telemetry.LogRecord:
		return telemetry.SignalLogs
	default:
		return telemetry.SignalTraces
	}
}

func lookupTransport(transports map[string]transport.Factory, name string) (transport.Factory, error) {
	factory, ok := transports[name]
	if !ok {
		return nil, config.NewConfigurationError("transport", "unknown transport %q", name)
	}

	return factory, nil
}

// drain waits until no export is running against p or ctx ends.
func (p *pipeline) drain(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		p.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ewrap.Wrap(ctx.Err(), "drain exports")
	}
}

// shutdown stops every exporter of the pipeline. It is idempotent.
func (p *pipeline) shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error

	if p.traces != nil {
		errs = append(errs, p.traces.Shutdown(ctx))
	}

	if p.metrics != nil {
		errs = append(errs, p.metrics.Shutdown(ctx))
	}

	if p.logs != nil {
		errs = append(errs, p.logs.Shutdown(ctx))
	}

	err := errors.Join(errs...)
	if err != nil {
		return ewrap.Wrap(err, "shutdown exporters")
	}

	return nil
}

func (p *pipeline) statuses() []diagnostics.ExporterStatus {
	out := make([]diagnostics.ExporterStatus, 0, len(telemetry.Signals()))

	if p.traces != nil {
		out = append(out, p.traces.Status())
	}

	if p.metrics != nil {
		out = append(out, p.metrics.Status())
	}

	if p.logs != nil {
		out = append(out, p.logs.Status())
	}

	return out
}

// configDigest fingerprints a configuration so unchanged files do not rebuild
// the exporters.
func configDigest(cfg config.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", ewrap.Wrap(err, "marshal config digest")
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}
