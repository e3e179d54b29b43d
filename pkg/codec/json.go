package codec

import (
	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"
	"google.golang.org/protobuf/proto"
)

// otlpJSON is implemented by the pdata export requests and responses. pdata
// speaks OTLP/JSON natively: hex trace and span ids, integer enums.
type otlpJSON interface {
	MarshalProto() ([]byte, error)
	UnmarshalProto(data []byte) error
	MarshalJSON() ([]byte, error)
	UnmarshalJSON(data []byte) error
}

func traceRequestJSON() otlpJSON   { return ptraceotlp.NewExportRequest() }
func traceResponseJSON() otlpJSON  { return ptraceotlp.NewExportResponse() }
func metricRequestJSON() otlpJSON  { return pmetricotlp.NewExportRequest() }
func metricResponseJSON() otlpJSON { return pmetricotlp.NewExportResponse() }
func logRequestJSON() otlpJSON     { return plogotlp.NewExportRequest() }
func logResponseJSON() otlpJSON    { return plogotlp.NewExportResponse() }

// marshalJSON renders msg as OTLP/JSON by passing its protobuf form through
// the pdata equivalent.
func marshalJSON(msg proto.Message, carrier otlpJSON) ([]byte, error) {
	raw, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, ewrap.Wrap(err, "protobuf marshal")
	}

	err = carrier.UnmarshalProto(raw)
	if err != nil {
		return nil, ewrap.Wrap(err, "load otlp payload")
	}

	data, err := carrier.MarshalJSON()
	if err != nil {
		return nil, ewrap.Wrap(err, "otlp json marshal")
	}

	return data, nil
}

// unmarshalJSON parses OTLP/JSON into msg.
func unmarshalJSON(data []byte, msg proto.Message, carrier otlpJSON) error {
	err := carrier.UnmarshalJSON(data)
	if err != nil {
		return ewrap.Wrap(err, "otlp json unmarshal")
	}

	raw, err := carrier.MarshalProto()
	if err != nil {
		return ewrap.Wrap(err, "protobuf marshal")
	}

	err = proto.Unmarshal(raw, msg)
	if err != nil {
		return ewrap.Wrap(err, "protobuf unmarshal")
	}

	return nil
}
