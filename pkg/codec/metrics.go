package codec

import (
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"

	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

// MetricsRequest converts a metric batch into an OTLP export request.
func MetricsRequest(batch telemetry.Batch[telemetry.Metric]) (*colmetricspb.ExportMetricsServiceRequest, error) {
	metrics := make([]*metricspb.Metric, 0, len(batch.Records))

	for i := range batch.Records {
		m, err := metricToProto(i, &batch.Records[i])
		if err != nil {
			return nil, err
		}

		metrics = append(metrics, m)
	}

	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			Resource:  resourceToProto(batch.Resource),
			SchemaUrl: batch.Resource.SchemaURL,
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Scope:     scopeToProto(batch.Scope),
				SchemaUrl: batch.Scope.SchemaURL,
				Metrics:   metrics,
			}},
		}},
	}, nil
}

func metricToProto(index int, m *telemetry.Metric) (*metricspb.Metric, error) {
	if m.Name == "" {
		return nil, recordError(telemetry.SignalMetrics, index, "metric has no name")
	}

	out := &metricspb.Metric{
		Name:        m.Name,
		Description: m.Description,
		Unit:        m.Unit,
	}

	switch data := m.Data.(type) {
	case telemetry.Gauge:
		out.Data = &metricspb.Metric_Gauge{Gauge: &metricspb.Gauge{
			DataPoints: numberPoints(data.Points),
		}}
	case telemetry.Sum:
		out.Data = &metricspb.Metric_Sum{Sum: &metricspb.Sum{
			DataPoints:             numberPoints(data.Points),
			AggregationTemporality: temporality(data.Temporality),
			IsMonotonic:            data.IsMonotonic,
		}}
	case telemetry.Histogram:
		points, err := histogramPoints(index, m.Name, data.Points)
		if err != nil {
			return nil, err
		}

		out.Data = &metricspb.Metric_Histogram{Histogram: &metricspb.Histogram{
			DataPoints:             points,
			AggregationTemporality: temporality(data.Temporality),
		}}
	case telemetry.ExponentialHistogram:
		out.Data = &metricspb.Metric_ExponentialHistogram{ExponentialHistogram: &metricspb.ExponentialHistogram{
			DataPoints:             exponentialPoints(data.Points),
			AggregationTemporality: temporality(data.Temporality),
		}}
	case telemetry.Summary:
		out.Data = &metricspb.Metric_Summary{Summary: &metricspb.Summary{
			DataPoints: summaryPoints(data.Points),
		}}
	case nil:
		return nil, recordError(telemetry.SignalMetrics, index, "metric %q has no data", m.Name)
	default:
		return nil, recordError(telemetry.SignalMetrics, index, "metric %q has unsupported data %T", m.Name, data)
	}

	return out, nil
}

func temporality(t telemetry.Temporality) metricspb.AggregationTemporality {
	switch t {
	case telemetry.TemporalityDelta:
		return metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_DELTA
	case telemetry.TemporalityCumulative:
		return metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE
	default:
		return metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_UNSPECIFIED
	}
}

func numberPoints(points []telemetry.NumberPoint) []*metricspb.NumberDataPoint {
	out := make([]*metricspb.NumberDataPoint, 0, len(points))

	for _, p := range points {
		dp := &metricspb.NumberDataPoint{
			Attributes:        keyValues(p.Attributes),
			StartTimeUnixNano: unixNano(p.StartTime),
			TimeUnixNano:      unixNano(p.Time),
			Exemplars:         exemplars(p.Exemplars),
		}

		if p.Value.IsInt() {
			dp.Value = &metricspb.NumberDataPoint_AsInt{AsInt: p.Value.AsInt64()}
		} else {
			dp.Value = &metricspb.NumberDataPoint_AsDouble{AsDouble: p.Value.AsFloat64()}
		}

		out = append(out, dp)
	}

	return out
}

func histogramPoints(index int, name string, points []telemetry.HistogramPoint) ([]*metricspb.HistogramDataPoint, error) {
	out := make([]*metricspb.HistogramDataPoint, 0, len(points))

	for _, p := range points {
		if len(p.BucketCounts) > 0 && len(p.BucketCounts) != len(p.Bounds)+1 {
			return nil, recordError(telemetry.SignalMetrics, index,
				"histogram %q has %d bucket counts for %d bounds", name, len(p.BucketCounts), len(p.Bounds))
		}

		out = append(out, &metricspb.HistogramDataPoint{
			Attributes:        keyValues(p.Attributes),
			StartTimeUnixNano: unixNano(p.StartTime),
			TimeUnixNano:      unixNano(p.Time),
			Count:             p.Count,
			Sum:               p.Sum,
			Min:               p.Min,
			Max:               p.Max,
			ExplicitBounds:    p.Bounds,
			BucketCounts:      p.BucketCounts,
			Exemplars:         exemplars(p.Exemplars),
		})
	}

	return out, nil
}

func exponentialPoints(points []telemetry.ExponentialHistogramPoint) []*metricspb.ExponentialHistogramDataPoint {
	out := make([]*metricspb.ExponentialHistogramDataPoint, 0, len(points))

	for _, p := range points {
		out = append(out, &metricspb.ExponentialHistogramDataPoint{
			Attributes:        keyValues(p.Attributes),
			StartTimeUnixNano: unixNano(p.StartTime),
			TimeUnixNano:      unixNano(p.Time),
			Count:             p.Count,
			Sum:               p.Sum,
			Min:               p.Min,
			Max:               p.Max,
			Scale:             p.Scale,
			ZeroCount:         p.ZeroCount,
			ZeroThreshold:     p.ZeroThreshold,
			Positive: &metricspb.ExponentialHistogramDataPoint_Buckets{
				Offset:       p.Positive.Offset,
				BucketCounts: p.Positive.Counts,
			},
			Negative: &metricspb.ExponentialHistogramDataPoint_Buckets{
				Offset:       p.Negative.Offset,
				BucketCounts: p.Negative.Counts,
			},
			Exemplars: exemplars(p.Exemplars),
		})
	}

	return out
}

func summaryPoints(points []telemetry.SummaryPoint) []*metricspb.SummaryDataPoint {
	out := make([]*metricspb.SummaryDataPoint, 0, len(points))

	for _, p := range points {
		quantiles := make([]*metricspb.SummaryDataPoint_ValueAtQuantile, 0, len(p.QuantileValues))
		for _, q := range p.QuantileValues {
			quantiles = append(quantiles, &metricspb.SummaryDataPoint_ValueAtQuantile{
				Quantile: q.Quantile,
				Value:    q.Value,
			})
		}

		out = append(out, &metricspb.SummaryDataPoint{
			Attributes:        keyValues(p.Attributes),
			StartTimeUnixNano: unixNano(p.StartTime),
			TimeUnixNano:      unixNano(p.Time),
			Count:             p.Count,
			Sum:               p.Sum,
			QuantileValues:    quantiles,
		})
	}

	return out
}

func exemplars(in []telemetry.Exemplar) []*metricspb.Exemplar {
	if len(in) == 0 {
		return nil
	}

	out := make([]*metricspb.Exemplar, 0, len(in))

	for _, e := range in {
		ex := &metricspb.Exemplar{
			FilteredAttributes: keyValues(e.FilteredAttributes),
			TimeUnixNano:       unixNano(e.Time),
		}

		if e.TraceID != [16]byte{} {
			ex.TraceId = copyID(e.TraceID[:])
		}

		if e.SpanID != [8]byte{} {
			ex.SpanId = copyID(e.SpanID[:])
		}

		if e.Value.IsInt() {
			ex.Value = &metricspb.Exemplar_AsInt{AsInt: e.Value.AsInt64()}
		} else {
			ex.Value = &metricspb.Exemplar_AsDouble{AsDouble: e.Value.AsFloat64()}
		}

		out = append(out, ex)
	}

	return out
}
