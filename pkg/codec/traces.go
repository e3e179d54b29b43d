package codec

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

// TracesRequest converts a span batch into an OTLP export request.
func TracesRequest(batch telemetry.Batch[telemetry.Span]) (*coltracepb.ExportTraceServiceRequest, error) {
	spans := make([]*tracepb.Span, 0, len(batch.Records))

	for i := range batch.Records {
		span, err := spanToProto(i, &batch.Records[i])
		if err != nil {
			return nil, err
		}

		spans = append(spans, span)
	}

	return &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource:  resourceToProto(batch.Resource),
			SchemaUrl: batch.Resource.SchemaURL,
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope:     scopeToProto(batch.Scope),
				SchemaUrl: batch.Scope.SchemaURL,
				Spans:     spans,
			}},
		}},
	}, nil
}

func spanToProto(index int, span *telemetry.Span) (*tracepb.Span, error) {
	if !span.TraceID.IsValid() {
		return nil, recordError(telemetry.SignalTraces, index, "span %q has an invalid trace id", span.Name)
	}

	if !span.SpanID.IsValid() {
		return nil, recordError(telemetry.SignalTraces, index, "span %q has an invalid span id", span.Name)
	}

	if !span.EndTime.IsZero() && span.EndTime.Before(span.StartTime) {
		return nil, recordError(telemetry.SignalTraces, index, "span %q ends before it starts", span.Name)
	}

	out := &tracepb.Span{
		TraceId:                copyID(span.TraceID[:]),
		SpanId:                 copyID(span.SpanID[:]),
		TraceState:             span.TraceState,
		Flags:                  uint32(span.Flags),
		Name:                   span.Name,
		Kind:                   spanKind(span.Kind),
		StartTimeUnixNano:      unixNano(span.StartTime),
		EndTimeUnixNano:        unixNano(span.EndTime),
		Attributes:             keyValues(span.Attributes),
		DroppedAttributesCount: clampCount(span.DroppedAttributes),
		DroppedEventsCount:     clampCount(span.DroppedEvents),
		DroppedLinksCount:      clampCount(span.DroppedLinks),
		Status:                 spanStatus(span.Status),
	}

	if span.ParentSpanID.IsValid() {
		out.ParentSpanId = copyID(span.ParentSpanID[:])
	}

	for _, ev := range span.Events {
		out.Events = append(out.Events, &tracepb.Span_Event{
			Name:                   ev.Name,
			TimeUnixNano:           unixNano(ev.Time),
			Attributes:             keyValues(ev.Attributes),
			DroppedAttributesCount: clampCount(ev.DroppedAttributes),
		})
	}

	for _, link := range span.Links {
		out.Links = append(out.Links, &tracepb.Span_Link{
			TraceId:                copyID(link.TraceID[:]),
			SpanId:                 copyID(link.SpanID[:]),
			TraceState:             link.TraceState,
			Flags:                  uint32(link.Flags),
			Attributes:             keyValues(link.Attributes),
			DroppedAttributesCount: clampCount(link.DroppedAttributes),
		})
	}

	return out, nil
}

func spanKind(kind trace.SpanKind) tracepb.Span_SpanKind {
	switch kind {
	case trace.SpanKindInternal:
		return tracepb.Span_SPAN_KIND_INTERNAL
	case trace.SpanKindServer:
		return tracepb.Span_SPAN_KIND_SERVER
	case trace.SpanKindClient:
		return tracepb.Span_SPAN_KIND_CLIENT
	case trace.SpanKindProducer:
		return tracepb.Span_SPAN_KIND_PRODUCER
	case trace.SpanKindConsumer:
		return tracepb.Span_SPAN_KIND_CONSUMER
	default:
		return tracepb.Span_SPAN_KIND_UNSPECIFIED
	}
}

func spanStatus(st telemetry.Status) *tracepb.Status {
	out := &tracepb.Status{}

	switch st.Code {
	case codes.Ok:
		out.Code = tracepb.Status_STATUS_CODE_OK
	case codes.Error:
		out.Code = tracepb.Status_STATUS_CODE_ERROR
		out.Message = st.Description
	default:
		out.Code = tracepb.Status_STATUS_CODE_UNSET
	}

	return out
}

func copyID(id []byte) []byte {
	out := make([]byte, len(id))
	copy(out, id)

	return out
}
