package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Temporality is the aggregation temporality of cumulative-capable metric data.
type Temporality int

const (
	// TemporalityUnspecified leaves temporality unset.
	TemporalityUnspecified Temporality = iota
	// TemporalityDelta reports changes since the previous collection.
	TemporalityDelta
	// TemporalityCumulative reports totals since the start time.
	TemporalityCumulative
)

// Metric is a named metric stream with exactly one kind of data.
type Metric struct {
	Name        string
	Description string
	Unit        string
	Data        MetricData
}

// MetricData is implemented by Gauge, Sum, Histogram, ExponentialHistogram and Summary.
type MetricData interface {
	metricData()
	// PointCount returns the number of data points carried.
	PointCount() int
}

// Gauge holds instantaneous measurements.
type Gauge struct {
	Points []NumberPoint
}

// Sum holds additive measurements.
type Sum struct {
	Points      []NumberPoint
	Temporality Temporality
	IsMonotonic bool
}

// Histogram holds explicit-bucket distributions.
type Histogram struct {
	Points      []HistogramPoint
	Temporality Temporality
}

// ExponentialHistogram holds base-2 exponential bucket distributions.
type ExponentialHistogram struct {
	Points      []ExponentialHistogramPoint
	Temporality Temporality
}

// Summary holds precomputed quantiles.
type Summary struct {
	Points []SummaryPoint
}

func (Gauge) metricData()                {}
func (Sum) metricData()                  {}
func (Histogram) metricData()            {}
func (ExponentialHistogram) metricData() {}
func (Summary) metricData()              {}

// PointCount implements MetricData.
func (g Gauge) PointCount() int { return len(g.Points) }

// PointCount implements MetricData.
func (s Sum) PointCount() int { return len(s.Points) }

// PointCount implements MetricData.
func (h Histogram) PointCount() int { return len(h.Points) }

// PointCount implements MetricData.
func (h ExponentialHistogram) PointCount() int { return len(h.Points) }

// PointCount implements MetricData.
func (s Summary) PointCount() int { return len(s.Points) }

// NumberValue is either an int64 or a float64 measurement.
type NumberValue struct {
	isInt bool
	i     int64
	f     float64
}

// Int64Value returns an integer NumberValue.
func Int64Value(v int64) NumberValue {
	return NumberValue{isInt: true, i: v}
}

// Float64Value returns a floating point NumberValue.
func Float64Value(v float64) NumberValue {
	return NumberValue{f: v}
}

// IsInt reports whether the value holds an integer.
func (n NumberValue) IsInt() bool {
	return n.isInt
}

// AsInt64 returns the integer value, truncating floats.
func (n NumberValue) AsInt64() int64 {
	if n.isInt {
		return n.i
	}

	return int64(n.f)
}

// AsFloat64 returns the value as a float64.
func (n NumberValue) AsFloat64() float64 {
	if n.isInt {
		return float64(n.i)
	}

	return n.f
}

// NumberPoint is a single gauge or sum data point.
type NumberPoint struct {
	Attributes []attribute.KeyValue
	StartTime  time.Time
	Time       time.Time
	Value      NumberValue
	Exemplars  []Exemplar
}

// HistogramPoint is a single explicit-bucket histogram data point.
//
// BucketCounts must have len(Bounds)+1 entries.
type HistogramPoint struct {
	Attributes   []attribute.KeyValue
	StartTime    time.Time
	Time         time.Time
	Count        uint64
	Sum          *float64
	Min          *float64
	Max          *float64
	Bounds       []float64
	BucketCounts []uint64
	Exemplars    []Exemplar
}

// ExponentialBuckets is one side of an exponential histogram.
type ExponentialBuckets struct {
	Offset int32
	Counts []uint64
}

// ExponentialHistogramPoint is a single exponential histogram data point.
type ExponentialHistogramPoint struct {
	Attributes    []attribute.KeyValue
	StartTime     time.Time
	Time          time.Time
	Count         uint64
	Sum           *float64
	Min           *float64
	Max           *float64
	Scale         int32
	ZeroCount     uint64
	ZeroThreshold float64
	Positive      ExponentialBuckets
	Negative      ExponentialBuckets
	Exemplars     []Exemplar
}

// QuantileValue is a single quantile of a summary.
type QuantileValue struct {
	Quantile float64
	Value    float64
}

// SummaryPoint is a single summary data point.
type SummaryPoint struct {
	Attributes     []attribute.KeyValue
	StartTime      time.Time
	Time           time.Time
	Count          uint64
	Sum            float64
	QuantileValues []QuantileValue
}

// Exemplar is a sampled measurement attached to a data point.
type Exemplar struct {
	FilteredAttributes []attribute.KeyValue
	Time               time.Time
	Value              NumberValue
	TraceID            [16]byte
	SpanID             [8]byte
}
