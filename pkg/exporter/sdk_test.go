package exporter_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"

	"github.com/hyp3rd/otlpexport/pkg/codec"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/exporter"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/transport"
)

func TestSpanExporterAdapter(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	exp := buildTraceExporter(t, exporter.NewTraceBuilder().WithTransport(fakeFactory(client)))

	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("checkout"))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter.NewSpanExporter(exp)),
		sdktrace.WithResource(res),
	)

	ctx, parent := tp.Tracer("orders").Start(context.Background(), "place-order")
	_, child := tp.Tracer("orders").Start(ctx, "reserve-stock")
	child.End()
	parent.End()

	err := tp.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("tracer provider shutdown: %v", err)
	}

	sent := client.sent()
	if len(sent) != 2 {
		t.Fatalf("expected one request per ended span, got %d", len(sent))
	}

	req := decodeTraces(t, sent[0].Payload)
	rs := req.GetResourceSpans()[0]

	if !hasAttr(rs.GetResource().GetAttributes(), "service.name", "checkout") {
		t.Fatalf("resource not propagated: %v", rs.GetResource())
	}

	span := rs.GetScopeSpans()[0].GetSpans()[0]
	if span.GetName() != "reserve-stock" || len(span.GetParentSpanId()) != 8 {
		t.Fatalf("unexpected span %v", span)
	}

	if exp.State() != exporter.StateShutDown {
		t.Fatal("provider shutdown should shut the exporter down")
	}
}

func TestMetricExporterAdapter(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}

	exp, err := exporter.NewMetricBuilder().
		WithTransport(fakeFactory(client)).
		WithEnvironment(config.MapEnvironment{}).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	adapter := exporter.NewMetricExporter(exp)
	now := time.Date(2024, 12, 5, 12, 0, 0, 0, time.UTC)

	rm := &metricdata.ResourceMetrics{
		Resource: resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("checkout")),
		ScopeMetrics: []metricdata.ScopeMetrics{{
			Scope: instrumentation.Scope{Name: "orders"},
			Metrics: []metricdata.Metrics{
				{
					Name: "orders.placed",
					Unit: "{order}",
					Data: metricdata.Sum[int64]{
						Temporality: metricdata.CumulativeTemporality,
						IsMonotonic: true,
						DataPoints: []metricdata.DataPoint[int64]{{
							Attributes: attribute.NewSet(attribute.String("region", "eu")),
							StartTime:  now,
							Time:       now.Add(time.Minute),
							Value:      42,
						}},
					},
				},
				{
					Name: "orders.latency",
					Unit: "ms",
					Data: metricdata.Histogram[float64]{
						Temporality: metricdata.DeltaTemporality,
						DataPoints: []metricdata.HistogramDataPoint[float64]{{
							StartTime:    now,
							Time:         now.Add(time.Minute),
							Count:        3,
							Sum:          31.5,
							Bounds:       []float64{10, 20},
							BucketCounts: []uint64{1, 1, 1},
							Min:          metricdata.NewExtrema(1.5),
							Max:          metricdata.NewExtrema(25.0),
						}},
					},
				},
			},
		}},
	}

	err = adapter.Export(context.Background(), rm)
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	sent := client.sent()
	if len(sent) != 1 {
		t.Fatalf("expected one request, got %d", len(sent))
	}

	msg, err := codec.Metrics(codec.EncodingProtobuf).DecodeRequest(sent[0].Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	req, ok := msg.(*colmetricpb.ExportMetricsServiceRequest)
	if !ok {
		t.Fatalf("unexpected message type %T", msg)
	}

	metrics := req.GetResourceMetrics()[0].GetScopeMetrics()[0].GetMetrics()
	if len(metrics) != 2 {
		t.Fatalf("expected two metrics, got %d", len(metrics))
	}

	sum := metrics[0].GetSum()
	if sum == nil || !sum.GetIsMonotonic() || sum.GetDataPoints()[0].GetAsInt() != 42 {
		t.Fatalf("unexpected sum %v", metrics[0])
	}

	hist := metrics[1].GetHistogram()
	if hist == nil || hist.GetDataPoints()[0].GetMax() != 25.0 {
		t.Fatalf("unexpected histogram %v", metrics[1])
	}

	err = adapter.ForceFlush(context.Background())
	if err != nil {
		t.Fatalf("ForceFlush returned error: %v", err)
	}

	err = adapter.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}

func TestSpanExporterAdapterReturnsClassifiedError(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(transport.Request) outcome.Outcome {
		return outcome.Retryable(outcome.ReasonConnection, nil)
	}}
	exp := buildTraceExporter(t, exporter.NewTraceBuilder().WithTransport(fakeFactory(client)))

	stubs := tracetest.SpanStubs{{
		Name: "place-order",
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
			SpanID:  trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		}),
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Millisecond),
	}}

	err := exporter.NewSpanExporter(exp).ExportSpans(context.Background(), stubs.Snapshots())
	if !outcome.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}

	if exp.Status().Failed != 1 {
		t.Fatalf("expected the failure to be recorded, got %+v", exp.Status())
	}
}
