package exporter

import (
	"context"

	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

// SpanExporter lets a TraceExporter sit behind an SDK span processor.
type SpanExporter struct {
	exp *TraceExporter
}

var _ sdktrace.SpanExporter = (*SpanExporter)(nil)

// NewSpanExporter wraps exp for use with sdktrace.NewBatchSpanProcessor.
func NewSpanExporter(exp *TraceExporter) *SpanExporter {
	return &SpanExporter{exp: exp}
}

// ExportSpans groups spans by resource and scope and exports each group.
// The first failure is returned as an *outcome.ExportError; remaining groups
// are still attempted.
func (s *SpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	var firstErr error

	for _, batch := range spanBatches(spans) {
		err := s.exp.Export(ctx, batch).Error()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Shutdown shuts the wrapped exporter down.
func (s *SpanExporter) Shutdown(ctx context.Context) error {
	return s.exp.Shutdown(ctx)
}

type envelopeKey struct {
	resource *sdkresource.Resource
	scope    instrumentation.Scope
}

func spanBatches(spans []sdktrace.ReadOnlySpan) []telemetry.Batch[telemetry.Span] {
	var (
		order   []envelopeKey
		grouped = map[envelopeKey]*telemetry.Batch[telemetry.Span]{}
	)

	for _, span := range spans {
		if span == nil {
			continue
		}

		key := envelopeKey{resource: span.Resource(), scope: span.InstrumentationScope()}

		batch, ok := grouped[key]
		if !ok {
			batch = &telemetry.Batch[telemetry.Span]{
				Resource: telemetry.ResourceFromSDK(key.resource),
				Scope:    telemetry.ScopeFromSDK(key.scope),
			}
			grouped[key] = batch
			order = append(order, key)
		}

		batch.Records = append(batch.Records, spanFromSDK(span))
	}

	out := make([]telemetry.Batch[telemetry.Span], 0, len(order))
	for _, key := range order {
		out = append(out, *grouped[key])
	}

	return out
}

func spanFromSDK(span sdktrace.ReadOnlySpan) telemetry.Span {
	sc := span.SpanContext()

	out := telemetry.Span{
		TraceID:           sc.TraceID(),
		SpanID:            sc.SpanID(),
		TraceState:        sc.TraceState().String(),
		Flags:             sc.TraceFlags(),
		Name:              span.Name(),
		Kind:              span.SpanKind(),
		StartTime:         span.StartTime(),
		EndTime:           span.EndTime(),
		Attributes:        span.Attributes(),
		Status:            telemetry.Status{Code: span.Status().Code, Description: span.Status().Description},
		DroppedAttributes: span.DroppedAttributes(),
		DroppedEvents:     span.DroppedEvents(),
		DroppedLinks:      span.DroppedLinks(),
	}

	if parent := span.Parent(); parent.IsValid() {
		out.ParentSpanID = parent.SpanID()
	}

	for _, ev := range span.Events() {
		out.Events = append(out.Events, telemetry.Event{
			Name:              ev.Name,
			Time:              ev.Time,
			Attributes:        ev.Attributes,
			DroppedAttributes: ev.DroppedAttributeCount,
		})
	}

	for _, link := range span.Links() {
		out.Links = append(out.Links, telemetry.Link{
			TraceID:           link.SpanContext.TraceID(),
			SpanID:            link.SpanContext.SpanID(),
			TraceState:        link.SpanContext.TraceState().String(),
			Flags:             link.SpanContext.TraceFlags(),
			Attributes:        link.Attributes,
			DroppedAttributes: link.DroppedAttributeCount,
		})
	}

	return out
}

// MetricReaderExporter lets a MetricExporter back an SDK periodic reader.
type MetricReaderExporter struct {
	exp *MetricExporter

	temporality sdkmetric.TemporalitySelector
	aggregation sdkmetric.AggregationSelector
}

var _ sdkmetric.Exporter = (*MetricReaderExporter)(nil)

// NewMetricExporter wraps exp for use with sdkmetric.NewPeriodicReader. It
// uses the SDK's default temporality and aggregation.
func NewMetricExporter(exp *MetricExporter) *MetricReaderExporter {
	return &MetricReaderExporter{
		exp:         exp,
		temporality: sdkmetric.DefaultTemporalitySelector,
		aggregation: sdkmetric.DefaultAggregationSelector,
	}
}

// Temporality implements sdkmetric.Exporter.
func (m *MetricReaderExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return m.temporality(kind)
}

// Aggregation implements sdkmetric.Exporter.
func (m *MetricReaderExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return m.aggregation(kind)
}

// Export converts one collection and exports it scope by scope.
func (m *MetricReaderExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	if rm == nil {
		return nil
	}

	res := telemetry.ResourceFromSDK(rm.Resource)

	var firstErr error

	for _, sm := range rm.ScopeMetrics {
		batch := telemetry.Batch[telemetry.Metric]{
			Resource: res,
			Scope:    telemetry.ScopeFromSDK(sm.Scope),
			Records:  make([]telemetry.Metric, 0, len(sm.Metrics)),
		}

		for _, md := range sm.Metrics {
			metric, ok := metricFromSDK(md)
			if ok {
				batch.Records = append(batch.Records, metric)
			}
		}

		err := m.exp.Export(ctx, batch).Error()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// ForceFlush is a no-op: every Export is synchronous.
func (*MetricReaderExporter) ForceFlush(context.Context) error {
	return nil
}

// Shutdown shuts the wrapped exporter down.
func (m *MetricReaderExporter) Shutdown(ctx context.Context) error {
	return m.exp.Shutdown(ctx)
}

// metricFromSDK converts SDK aggregations. Unknown aggregations are skipped.
func metricFromSDK(md metricdata.Metrics) (telemetry.Metric, bool) {
	out := telemetry.Metric{Name: md.Name, Description: md.Description, Unit: md.Unit}

	switch data := md.Data.(type) {
	case metricdata.Gauge[int64]:
		out.Data = telemetry.Gauge{Points: numberPoints(data.DataPoints)}
	case metricdata.Gauge[float64]:
		out.Data = telemetry.Gauge{Points: numberPoints(data.DataPoints)}
	case metricdata.Sum[int64]:
		out.Data = telemetry.Sum{
			Points:      numberPoints(data.DataPoints),
			Temporality: temporalityFromSDK(data.Temporality),
			IsMonotonic: data.IsMonotonic,
		}
	case metricdata.Sum[float64]:
		out.Data = telemetry.Sum{
			Points:      numberPoints(data.DataPoints),
			Temporality: temporalityFromSDK(data.Temporality),
			IsMonotonic: data.IsMonotonic,
		}
	case metricdata.Histogram[int64]:
		out.Data = telemetry.Histogram{Points: histogramPoints(data.DataPoints), Temporality: temporalityFromSDK(data.Temporality)}
	case metricdata.Histogram[float64]:
		out.Data = telemetry.Histogram{Points: histogramPoints(data.DataPoints), Temporality: temporalityFromSDK(data.Temporality)}
	case metricdata.ExponentialHistogram[int64]:
		out.Data = telemetry.ExponentialHistogram{
			Points:      exponentialPoints(data.DataPoints),
			Temporality: temporalityFromSDK(data.Temporality),
		}
	case metricdata.ExponentialHistogram[float64]:
		out.Data = telemetry.ExponentialHistogram{
			Points:      exponentialPoints(data.DataPoints),
			Temporality: temporalityFromSDK(data.Temporality),
		}
	case metricdata.Summary:
		out.Data = telemetry.Summary{Points: summaryPoints(data.DataPoints)}
	default:
		return telemetry.Metric{}, false
	}

	return out, true
}

func temporalityFromSDK(t metricdata.Temporality) telemetry.Temporality {
	switch t {
	case metricdata.DeltaTemporality:
		return telemetry.TemporalityDelta
	case metricdata.CumulativeTemporality:
		return telemetry.TemporalityCumulative
	default:
		return telemetry.TemporalityUnspecified
	}
}

func numberValue[N int64 | float64](v N) telemetry.NumberValue {
	switch x := any(v).(type) {
	case int64:
		return telemetry.Int64Value(x)
	case float64:
		return telemetry.Float64Value(x)
	default:
		return telemetry.NumberValue{}
	}
}

func numberPoints[N int64 | float64](in []metricdata.DataPoint[N]) []telemetry.NumberPoint {
	out := make([]telemetry.NumberPoint, 0, len(in))
	for _, dp := range in {
		out = append(out, telemetry.NumberPoint{
			Attributes: dp.Attributes.ToSlice(),
			StartTime:  dp.StartTime,
			Time:       dp.Time,
			Value:      numberValue(dp.Value),
			Exemplars:  exemplars(dp.Exemplars),
		})
	}

	return out
}

func histogramPoints[N int64 | float64](in []metricdata.HistogramDataPoint[N]) []telemetry.HistogramPoint {
	out := make([]telemetry.HistogramPoint, 0, len(in))
	for _, dp := range in {
		sum := float64(dp.Sum)
		out = append(out, telemetry.HistogramPoint{
			Attributes:   dp.Attributes.ToSlice(),
			StartTime:    dp.StartTime,
			Time:         dp.Time,
			Count:        dp.Count,
			Sum:          &sum,
			Min:          extrema(dp.Min),
			Max:          extrema(dp.Max),
			Bounds:       dp.Bounds,
			BucketCounts: dp.BucketCounts,
			Exemplars:    exemplars(dp.Exemplars),
		})
	}

	return out
}

func exponentialPoints[N int64 | float64](in []metricdata.ExponentialHistogramDataPoint[N]) []telemetry.ExponentialHistogramPoint {
	out := make([]telemetry.ExponentialHistogramPoint, 0, len(in))
	for _, dp := range in {
		sum := float64(dp.Sum)
		out = append(out, telemetry.ExponentialHistogramPoint{
			Attributes:    dp.Attributes.ToSlice(),
			StartTime:     dp.StartTime,
			Time:          dp.Time,
			Count:         dp.Count,
			Sum:           &sum,
			Min:           extrema(dp.Min),
			Max:           extrema(dp.Max),
			Scale:         dp.Scale,
			ZeroCount:     dp.ZeroCount,
			ZeroThreshold: dp.ZeroThreshold,
			Positive:      telemetry.ExponentialBuckets{Offset: dp.PositiveBucket.Offset, Counts: dp.PositiveBucket.Counts},
			Negative:      telemetry.ExponentialBuckets{Offset: dp.NegativeBucket.Offset, Counts: dp.NegativeBucket.Counts},
			Exemplars:     exemplars(dp.Exemplars),
		})
	}

	return out
}

func summaryPoints(in []metricdata.SummaryDataPoint) []telemetry.SummaryPoint {
	out := make([]telemetry.SummaryPoint, 0, len(in))
	for _, dp := range in {
		quantiles := make([]telemetry.QuantileValue, 0, len(dp.QuantileValues))
		for _, q := range dp.QuantileValues {
			quantiles = append(quantiles, telemetry.QuantileValue{Quantile: q.Quantile, Value: q.Value})
		}

		out = append(out, telemetry.SummaryPoint{
			Attributes:     dp.Attributes.ToSlice(),
			StartTime:      dp.StartTime,
			Time:           dp.Time,
			Count:          dp.Count,
			Sum:            dp.Sum,
			QuantileValues: quantiles,
		})
	}

	return out
}

func extrema[N int64 | float64](e metricdata.Extrema[N]) *float64 {
	v, ok := e.Value()
	if !ok {
		return nil
	}

	f := float64(v)

	return &f
}

func exemplars[N int64 | float64](in []metricdata.Exemplar[N]) []telemetry.Exemplar {
	if len(in) == 0 {
		return nil
	}

	out := make([]telemetry.Exemplar, 0, len(in))
	for _, ex := range in {
		e := telemetry.Exemplar{
			FilteredAttributes: ex.FilteredAttributes,
			Time:               ex.Time,
			Value:              numberValue(ex.Value),
		}
		copy(e.TraceID[:], ex.TraceID)
		copy(e.SpanID[:], ex.SpanID)
		out = append(out, e)
	}

	return out
}
