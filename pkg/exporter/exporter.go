// Package exporter implements the per-signal OTLP exporters and their builders.
//
// An Exporter owns exactly one transport client, fixed when it is built. Export
// encodes a batch, sends it and returns the classified outcome; it never
// retries. Callers, usually batching processors, decide what to do with a
// retryable outcome.
package exporter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hyp3rd/otlpexport/pkg/codec"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/diagnostics"
	"github.com/hyp3rd/otlpexport/pkg/logging"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
	"github.com/hyp3rd/otlpexport/pkg/transport"
)

// Exporter delivers batches of one signal to a collector. It is safe for
// concurrent use.
type Exporter[T telemetry.Record] struct {
	cfg           config.ExportConfig
	transportName string
	codec         *codec.Codec[T]
	client        transport.Client
	logger        logging.Adapter
	instruments   *instruments
	grace         time.Duration

	mu       sync.RWMutex
	resource telemetry.Resource
	scope    telemetry.Scope
	locked   bool

	state        atomic.Int32
	inflight     atomic.Int64
	stats        exporterStats
	shutdownOnce sync.Once
	shutdownErr  error
}

type (
	// TraceExporter exports spans.
	TraceExporter = Exporter[telemetry.Span]
	// MetricExporter exports metrics.
	MetricExporter = Exporter[telemetry.Metric]
	// LogExporter exports log records.
	LogExporter = Exporter[telemetry.LogRecord]
)

// Signal returns the exported signal.
func (e *Exporter[T]) Signal() telemetry.Signal {
	return e.cfg.Signal
}

// Config returns a copy of the resolved configuration.
func (e *Exporter[T]) Config() config.ExportConfig {
	return e.cfg.Clone()
}

// State returns the lifecycle state.
func (e *Exporter[T]) State() State {
	return State(e.state.Load())
}

// SetResource attaches the Resource and Scope used for batches that do not
// carry their own. It must be called before the first export; afterwards it
// returns ErrResourceLocked and leaves the envelope unchanged.
func (e *Exporter[T]) SetResource(resource telemetry.Resource, scope telemetry.Scope) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked || e.State() == StateShutDown {
		return ErrResourceLocked
	}

	e.resource = resource
	e.scope = scope

	return nil
}

// Export encodes batch, sends it and classifies the result.
//
// After Shutdown it returns a terminal exporter_closed outcome without any
// I/O. An empty batch succeeds without touching the network. A batch whose
// Resource or Scope is set overrides the attached envelope for that call.
func (e *Exporter[T]) Export(ctx context.Context, batch telemetry.Batch[T]) outcome.Outcome {
	if e.State() == StateShutDown {
		return outcome.Closed()
	}

	if batch.Len() == 0 {
		return outcome.Success()
	}

	batch.Resource, batch.Scope = e.envelope(batch.Resource, batch.Scope)

	start := time.Now()

	payload, err := e.codec.Encode(batch)
	if err != nil {
		out := outcome.Terminal(outcome.ReasonEncoding, err)
		e.finish(ctx, out, batch.Len(), time.Since(start))

		return out
	}

	e.inflight.Add(1)
	out := e.client.Send(ctx, transport.Request{
		Signal:      e.cfg.Signal,
		Payload:     payload,
		ContentType: e.codec.ContentType(),
		Items:       batch.Len(),
		Decoder:     e.codec,
	})
	e.inflight.Add(-1)

	e.finish(ctx, out, batch.Len(), time.Since(start))

	return out
}

// envelope locks the attached resource and returns the one to use for a batch.
func (e *Exporter[T]) envelope(resource telemetry.Resource, scope telemetry.Scope) (telemetry.Resource, telemetry.Scope) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.locked = true

	if resource.IsZero() {
		resource = e.resource
	}

	if scope.IsZero() {
		scope = e.scope
	}

	return resource, scope
}

func (e *Exporter[T]) finish(ctx context.Context, out outcome.Outcome, items int, elapsed time.Duration) {
	e.stats.record(out, items)
	e.instruments.record(ctx, out, items, elapsed)

	attrs := []attribute.KeyValue{
		attribute.Int("items", items),
		attribute.String("outcome", out.Kind.String()),
		attribute.Int64("duration_ms", elapsed.Milliseconds()),
	}

	switch out.Kind {
	case outcome.KindSuccess:
		e.logger.Debug(ctx, "export succeeded", attrs...)
	case outcome.KindPartialSuccess:
		e.logger.Warn(ctx, nil, "export partially rejected",
			append(attrs, attribute.Int64("rejected", out.Rejected), attribute.String("message", out.Message))...)
	case outcome.KindRetryable:
		e.logger.Warn(ctx, out.Err, "export failed, retryable",
			append(attrs, attribute.String("reason", string(out.Reason)))...)
	case outcome.KindTerminal:
		if out.Reason == outcome.ReasonClosed {
			e.logger.Debug(ctx, "export after shutdown", attrs...)

			return
		}

		e.logger.Error(ctx, out.Err, "export failed",
			append(attrs, attribute.String("reason", string(out.Reason)))...)
	}
}

// Shutdown stops the exporter. In-flight exports get the grace period, bounded
// by ctx, to finish before the transport is released. The exporter ends up
// shut down even when draining fails; that failure is returned once. Later
// calls return nil.
func (e *Exporter[T]) Shutdown(ctx context.Context) error {
	first := false

	e.shutdownOnce.Do(func() {
		first = true

		e.mu.Lock()
		e.state.Store(int32(StateShutDown))
		e.mu.Unlock()

		drainCtx, cancel := context.WithTimeout(ctx, e.grace)
		defer cancel()

		e.shutdownErr = errors.Join(e.client.Shutdown(drainCtx), e.instruments.shutdown())
		if e.shutdownErr != nil {
			e.logger.Error(ctx, e.shutdownErr, "exporter shutdown incomplete")
		} else {
			e.logger.Debug(ctx, "exporter shut down")
		}
	})

	if !first {
		return nil
	}

	return e.shutdownErr
}

// InFlight returns the number of exports currently waiting on the transport.
func (e *Exporter[T]) InFlight() int64 {
	return e.inflight.Load()
}

// Status returns a diagnostics snapshot of the exporter.
func (e *Exporter[T]) Status() diagnostics.ExporterStatus {
	status := diagnostics.ExporterStatus{
		Signal:    e.cfg.Signal.String(),
		Transport: e.transportName,
		Protocol:  string(e.cfg.Protocol),
		State:     e.State().String(),
		InFlight:  e.InFlight(),
	}

	if e.cfg.Endpoint != nil {
		status.Endpoint = e.cfg.Endpoint.Redacted()
	}

	e.stats.fill(&status)

	return status
}
