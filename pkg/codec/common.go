package codec

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"

	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

func resourceToProto(res telemetry.Resource) *resourcepb.Resource {
	return &resourcepb.Resource{
		Attributes:             keyValues(res.Attributes),
		DroppedAttributesCount: res.DroppedAttributesCount,
	}
}

func scopeToProto(scope telemetry.Scope) *commonpb.InstrumentationScope {
	return &commonpb.InstrumentationScope{
		Name:       scope.Name,
		Version:    scope.Version,
		Attributes: keyValues(scope.Attributes),
	}
}

// keyValues keeps the caller's attribute order so the encoding is reproducible.
func keyValues(attrs []attribute.KeyValue) []*commonpb.KeyValue {
	if len(attrs) == 0 {
		return nil
	}

	out := make([]*commonpb.KeyValue, 0, len(attrs))
	for _, kv := range attrs {
		if !kv.Valid() {
			continue
		}

		out = append(out, &commonpb.KeyValue{
			Key:   string(kv.Key),
			Value: anyValue(kv.Value),
		})
	}

	return out
}

func anyValue(v attribute.Value) *commonpb.AnyValue {
	//nolint:exhaustive // remaining kinds are emitted as strings.
	switch v.Type() {
	case attribute.BOOL:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: v.AsBool()}}
	case attribute.INT64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v.AsInt64()}}
	case attribute.FLOAT64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: v.AsFloat64()}}
	case attribute.STRING:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v.AsString()}}
	case attribute.BOOLSLICE:
		items := v.AsBoolSlice()

		values := make([]*commonpb.AnyValue, 0, len(items))
		for _, item := range items {
			values = append(values, &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: item}})
		}

		return arrayValue(values)
	case attribute.INT64SLICE:
		items := v.AsInt64Slice()

		values := make([]*commonpb.AnyValue, 0, len(items))
		for _, item := range items {
			values = append(values, &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: item}})
		}

		return arrayValue(values)
	case attribute.FLOAT64SLICE:
		items := v.AsFloat64Slice()

		values := make([]*commonpb.AnyValue, 0, len(items))
		for _, item := range items {
			values = append(values, &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: item}})
		}

		return arrayValue(values)
	case attribute.STRINGSLICE:
		items := v.AsStringSlice()

		values := make([]*commonpb.AnyValue, 0, len(items))
		for _, item := range items {
			values = append(values, &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: item}})
		}

		return arrayValue(values)
	case attribute.INVALID:
		return nil
	default:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v.Emit()}}
	}
}

func arrayValue(values []*commonpb.AnyValue) *commonpb.AnyValue {
	return &commonpb.AnyValue{Value: &commonpb.AnyValue_ArrayValue{
		ArrayValue: &commonpb.ArrayValue{Values: values},
	}}
}

func unixNano(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}

	return uint64(t.UnixNano()) //nolint:gosec // timestamps before 1970 are not representable in OTLP.
}

func clampCount(n int) uint32 {
	if n <= 0 {
		return 0
	}

	if uint64(n) > uint64(^uint32(0)) {
		return ^uint32(0)
	}

	return uint32(n)
}
