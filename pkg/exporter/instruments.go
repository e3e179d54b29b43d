package exporter

import (
	"context"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/hyp3rd/otlpexport/pkg/outcome"
)

const meterName = "github.com/hyp3rd/otlpexport/pkg/exporter"

// Attribute keys used by the exporter's own metrics and logs.
const (
	AttrSignal    = attribute.Key("otlpexport.signal")
	AttrTransport = attribute.Key("otlpexport.transport")
	AttrOutcome   = attribute.Key("otlpexport.outcome")
	AttrReason    = attribute.Key("otlpexport.reason")
)

type instruments struct {
	meter        metric.Meter
	items        metric.Int64Counter
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	inflight     metric.Int64ObservableGauge
	registration metric.Registration
	base         []attribute.KeyValue
}

func newInstruments(mp metric.MeterProvider, base ...attribute.KeyValue) (*instruments, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	meter := mp.Meter(meterName)

	items, err := meter.Int64Counter(
		"otlpexport.exporter.items",
		metric.WithDescription("Records handed to the exporter, by outcome"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create items counter")
	}

	requests, err := meter.Int64Counter(
		"otlpexport.exporter.requests",
		metric.WithDescription("Export requests, by outcome and failure reason"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create requests counter")
	}

	duration, err := meter.Float64Histogram(
		"otlpexport.exporter.duration",
		metric.WithDescription("Latency of export requests including admission"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create duration histogram")
	}

	inflight, err := meter.Int64ObservableGauge(
		"otlpexport.exporter.in_flight",
		metric.WithDescription("Export requests currently being sent"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create in-flight gauge")
	}

	return &instruments{
		meter:    meter,
		items:    items,
		requests: requests,
		duration: duration,
		inflight: inflight,
		base:     base,
	}, nil
}

func (in *instruments) observeInFlight(load func() int64) error {
	reg, err := in.meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(in.inflight, load(), metric.WithAttributes(in.base...))

			return nil
		},
		in.inflight,
	)
	if err != nil {
		return ewrap.Wrap(err, "register in-flight callback")
	}

	in.registration = reg

	return nil
}

func (in *instruments) record(ctx context.Context, out outcome.Outcome, items int, elapsed time.Duration) {
	attrs := make([]attribute.KeyValue, 0, len(in.base)+2)
	attrs = append(attrs, in.base...)
	attrs = append(attrs, AttrOutcome.String(out.Kind.String()))

	if out.Reason != outcome.ReasonNone {
		attrs = append(attrs, AttrReason.String(string(out.Reason)))
	}

	set := metric.WithAttributes(attrs...)

	in.requests.Add(ctx, 1, set)
	in.items.Add(ctx, int64(items), set)
	in.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), set)
}

func (in *instruments) shutdown() error {
	if in == nil || in.registration == nil {
		return nil
	}

	err := in.registration.Unregister()
	if err != nil {
		return ewrap.Wrap(err, "unregister exporter metrics")
	}

	return nil
}
