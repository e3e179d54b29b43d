package otlpgrpc

import (
	"github.com/hyp3rd/ewrap"
)

// rawMessage carries a payload that is already protobuf encoded.
type rawMessage struct {
	data []byte
}

// rawCodec passes pre-encoded bytes through untouched. It registers under the
// "proto" name so the wire content-type stays application/grpc+proto.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(*rawMessage)
	if !ok {
		return nil, ewrap.Newf("otlpgrpc: cannot marshal %T", v)
	}

	return msg.data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(*rawMessage)
	if !ok {
		return ewrap.Newf("otlpgrpc: cannot unmarshal into %T", v)
	}

	msg.data = append(msg.data[:0], data...)

	return nil
}

func (rawCodec) Name() string {
	return "proto"
}
