package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Resource describes the entity producing telemetry.
type Resource struct {
	Attributes             []attribute.KeyValue
	DroppedAttributesCount uint32
	SchemaURL              string
}

// IsZero reports whether the resource carries no information.
func (r Resource) IsZero() bool {
	return len(r.Attributes) == 0 && r.DroppedAttributesCount == 0 && r.SchemaURL == ""
}

// Scope describes the instrumentation library that produced the records.
type Scope struct {
	Name       string
	Version    string
	SchemaURL  string
	Attributes []attribute.KeyValue
}

// IsZero reports whether the scope carries no information.
func (s Scope) IsZero() bool {
	return s.Name == "" && s.Version == "" && s.SchemaURL == "" && len(s.Attributes) == 0
}

// Record constrains the record types an exporter can carry.
type Record interface {
	Span | LogRecord | Metric
}

// Batch is an ordered group of records of one signal sharing a resource and scope.
type Batch[T Record] struct {
	Resource Resource
	Scope    Scope
	Records  []T
}

// Len returns the number of records in the batch.
func (b Batch[T]) Len() int {
	return len(b.Records)
}

// Span is a completed span.
type Span struct {
	TraceID      trace.TraceID
	SpanID       trace.SpanID
	ParentSpanID trace.SpanID
	TraceState   string
	Flags        trace.TraceFlags
	Name         string
	Kind         trace.SpanKind
	StartTime    time.Time
	EndTime      time.Time
	Attributes   []attribute.KeyValue
	Events       []Event
	Links        []Link
	Status       Status

	DroppedAttributes int
	DroppedEvents     int
	DroppedLinks      int
}

// Event is a timestamped annotation on a span.
type Event struct {
	Name              string
	Time              time.Time
	Attributes        []attribute.KeyValue
	DroppedAttributes int
}

// Link references another span.
type Link struct {
	TraceID           trace.TraceID
	SpanID            trace.SpanID
	TraceState        string
	Flags             trace.TraceFlags
	Attributes        []attribute.KeyValue
	DroppedAttributes int
}

// Status is the final status of a span.
type Status struct {
	Code        codes.Code
	Description string
}

// LogRecord is a single log entry.
//
// Severity follows the OTLP severity numbers (1 TRACE .. 24 FATAL4). Values
// outside that range, zero included, are clamped on encode.
type LogRecord struct {
	Timestamp         time.Time
	ObservedTimestamp time.Time
	Severity          int
	SeverityText      string
	EventName         string
	Body              attribute.Value
	Attributes        []attribute.KeyValue
	TraceID           trace.TraceID
	SpanID            trace.SpanID
	Flags             trace.TraceFlags

	DroppedAttributes int
}
