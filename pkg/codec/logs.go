package codec

import (
	"go.opentelemetry.io/otel/attribute"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

const (
	minSeverity = int(logspb.SeverityNumber_SEVERITY_NUMBER_TRACE)
	maxSeverity = int(logspb.SeverityNumber_SEVERITY_NUMBER_FATAL4)
)

// ClampSeverity maps any severity onto the OTLP range [1,24].
// Out-of-range values are common in the wild and are never rejected.
func ClampSeverity(severity int) logspb.SeverityNumber {
	switch {
	case severity < minSeverity:
		return logspb.SeverityNumber(minSeverity)
	case severity > maxSeverity:
		return logspb.SeverityNumber(maxSeverity)
	default:
		return logspb.SeverityNumber(severity) //nolint:gosec // bounded above.
	}
}

// LogsRequest converts a log batch into an OTLP export request.
func LogsRequest(batch telemetry.Batch[telemetry.LogRecord]) (*collogspb.ExportLogsServiceRequest, error) {
	records := make([]*logspb.LogRecord, 0, len(batch.Records))

	for i := range batch.Records {
		records = append(records, logToProto(&batch.Records[i]))
	}

	return &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			Resource:  resourceToProto(batch.Resource),
			SchemaUrl: batch.Resource.SchemaURL,
			ScopeLogs: []*logspb.ScopeLogs{{
				Scope:      scopeToProto(batch.Scope),
				SchemaUrl:  batch.Scope.SchemaURL,
				LogRecords: records,
			}},
		}},
	}, nil
}

func logToProto(rec *telemetry.LogRecord) *logspb.LogRecord {
	out := &logspb.LogRecord{
		TimeUnixNano:           unixNano(rec.Timestamp),
		ObservedTimeUnixNano:   unixNano(rec.ObservedTimestamp),
		SeverityNumber:         ClampSeverity(rec.Severity),
		SeverityText:           rec.SeverityText,
		EventName:              rec.EventName,
		Attributes:             keyValues(rec.Attributes),
		DroppedAttributesCount: clampCount(rec.DroppedAttributes),
		Flags:                  uint32(rec.Flags),
	}

	if rec.Body.Type() != attribute.INVALID {
		out.Body = anyValue(rec.Body)
	}

	if rec.TraceID.IsValid() {
		out.TraceId = copyID(rec.TraceID[:])
	}

	if rec.SpanID.IsValid() {
		out.SpanId = copyID(rec.SpanID[:])
	}

	return out
}
