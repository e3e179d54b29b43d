// Package codec serializes telemetry batches into OTLP request payloads and
// reads partial-success information back out of collector responses.
package codec

import (
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

// Encoding selects the payload representation.
type Encoding int

const (
	// EncodingProtobuf is the binary protobuf encoding.
	EncodingProtobuf Encoding = iota
	// EncodingJSON is the OTLP/JSON encoding.
	EncodingJSON
)

// Content types sent with OTLP/HTTP requests.
const (
	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeJSON     = "application/json"
)

// EncodingFor returns the encoding implied by protocol.
func EncodingFor(protocol config.Protocol) Encoding {
	if protocol == config.ProtocolHTTPJSON {
		return EncodingJSON
	}

	return EncodingProtobuf
}

// ContentType returns the MIME type of the encoding.
func (e Encoding) ContentType() string {
	if e == EncodingJSON {
		return ContentTypeJSON
	}

	return ContentTypeProtobuf
}

// String implements fmt.Stringer.
func (e Encoding) String() string {
	if e == EncodingJSON {
		return "json"
	}

	return "protobuf"
}

// Codec encodes batches of one signal in one encoding. It is stateless and
// safe for concurrent use.
type Codec[T telemetry.Record] struct {
	signal      telemetry.Signal
	encoding    Encoding
	toRequest   func(telemetry.Batch[T]) (proto.Message, error)
	newRequest  func() proto.Message
	newResponse func() proto.Message
	partial     func(proto.Message) outcome.Partial

	jsonRequest  func() otlpJSON
	jsonResponse func() otlpJSON
}

// Traces returns the span codec.
func Traces(enc Encoding) *Codec[telemetry.Span] {
	return &Codec[telemetry.Span]{
		signal:   telemetry.SignalTraces,
		encoding: enc,
		toRequest: func(b telemetry.Batch[telemetry.Span]) (proto.Message, error) {
			return TracesRequest(b)
		},
		newRequest:  func() proto.Message { return &coltracepb.ExportTraceServiceRequest{} },
		newResponse: func() proto.Message { return &coltracepb.ExportTraceServiceResponse{} },
		jsonRequest:  traceRequestJSON,
		jsonResponse: traceResponseJSON,
		partial: func(m proto.Message) outcome.Partial {
			ps := m.(*coltracepb.ExportTraceServiceResponse).GetPartialSuccess() //nolint:forcetypeassert // built by newResponse.

			return outcome.Partial{Rejected: ps.GetRejectedSpans(), Message: ps.GetErrorMessage()}
		},
	}
}

// Metrics returns the metric codec.
func Metrics(enc Encoding) *Codec[telemetry.Metric] {
	return &Codec[telemetry.Metric]{
		signal:   telemetry.SignalMetrics,
		encoding: enc,
		toRequest: func(b telemetry.Batch[telemetry.Metric]) (proto.Message, error) {
			return MetricsRequest(b)
		},
		newRequest:  func() proto.Message { return &colmetricspb.ExportMetricsServiceRequest{} },
		newResponse: func() proto.Message { return &colmetricspb.ExportMetricsServiceResponse{} },
		jsonRequest:  metricRequestJSON,
		jsonResponse: metricResponseJSON,
		partial: func(m proto.Message) outcome.Partial {
			ps := m.(*colmetricspb.ExportMetricsServiceResponse).GetPartialSuccess() //nolint:forcetypeassert // built by newResponse.

			return outcome.Partial{Rejected: ps.GetRejectedDataPoints(), Message: ps.GetErrorMessage()}
		},
	}
}

// Logs returns the log record codec.
func Logs(enc Encoding) *Codec[telemetry.LogRecord] {
	return &Codec[telemetry.LogRecord]{
		signal:   telemetry.SignalLogs,
		encoding: enc,
		toRequest: func(b telemetry.Batch[telemetry.LogRecord]) (proto.Message, error) {
			return LogsRequest(b)
		},
		newRequest:  func() proto.Message { return &collogspb.ExportLogsServiceRequest{} },
		newResponse: func() proto.Message { return &collogspb.ExportLogsServiceResponse{} },
		jsonRequest:  logRequestJSON,
		jsonResponse: logResponseJSON,
		partial: func(m proto.Message) outcome.Partial {
			ps := m.(*collogspb.ExportLogsServiceResponse).GetPartialSuccess() //nolint:forcetypeassert // built by newResponse.

			return outcome.Partial{Rejected: ps.GetRejectedLogRecords(), Message: ps.GetErrorMessage()}
		},
	}
}

// Signal returns the signal handled by the codec.
func (c *Codec[T]) Signal() telemetry.Signal {
	return c.signal
}

// Encoding returns the payload encoding.
func (c *Codec[T]) Encoding() Encoding {
	return c.encoding
}

// ContentType returns the MIME type of encoded payloads.
func (c *Codec[T]) ContentType() string {
	return c.encoding.ContentType()
}

// WithEncoding returns a codec for the same signal using enc.
func (c *Codec[T]) WithEncoding(enc Encoding) *Codec[T] {
	out := *c
	out.encoding = enc

	return &out
}

// Encode serializes batch. Protobuf output is deterministic: the same batch
// always yields the same bytes.
func (c *Codec[T]) Encode(batch telemetry.Batch[T]) ([]byte, error) {
	req, err := c.toRequest(batch)
	if err != nil {
		return nil, err
	}

	if c.encoding == EncodingJSON {
		data, err := marshalJSON(req, c.jsonRequest())
		if err != nil {
			return nil, batchError(c.signal, err, "marshal json")
		}

		return data, nil
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return nil, batchError(c.signal, err, "marshal protobuf")
	}

	return data, nil
}

// DecodeRequest parses an encoded request, mainly for tests and diagnostics.
func (c *Codec[T]) DecodeRequest(data []byte) (proto.Message, error) {
	msg := c.newRequest()

	err := c.unmarshal(data, msg, c.jsonRequest)
	if err != nil {
		return nil, batchError(c.signal, err, "decode request")
	}

	return msg, nil
}

// DecodeResponse extracts partial-success information from a collector
// response body. An empty body is a full success.
func (c *Codec[T]) DecodeResponse(data []byte) (outcome.Partial, error) {
	if len(data) == 0 {
		return outcome.Partial{}, nil
	}

	msg := c.newResponse()

	err := c.unmarshal(data, msg, c.jsonResponse)
	if err != nil {
		return outcome.Partial{}, batchError(c.signal, err, "decode response")
	}

	return c.partial(msg), nil
}

func (c *Codec[T]) unmarshal(data []byte, msg proto.Message, carrier func() otlpJSON) error {
	if c.encoding == EncodingJSON {
		return unmarshalJSON(data, msg, carrier())
	}

	return proto.Unmarshal(data, msg)
}
