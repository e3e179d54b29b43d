package otlpgrpc_test

import (
	"context"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/hyp3rd/otlpexport/pkg/codec"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
	"github.com/hyp3rd/otlpexport/pkg/transport"
	"github.com/hyp3rd/otlpexport/pkg/transport/otlpgrpc"
)

const bufSize = 1 << 20

type traceCollector struct {
	coltracepb.UnimplementedTraceServiceServer

	mu       sync.Mutex
	requests []*coltracepb.ExportTraceServiceRequest
	metadata []metadata.MD
	response *coltracepb.ExportTraceServiceResponse
	err      error
}

func (c *traceCollector) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	md, _ := metadata.FromIncomingContext(ctx)
	c.requests = append(c.requests, req)
	c.metadata = append(c.metadata, md)

	if c.err != nil {
		return nil, c.err
	}

	if c.response != nil {
		return c.response, nil
	}

	return &coltracepb.ExportTraceServiceResponse{}, nil
}

func (c *traceCollector) received() ([]*coltracepb.ExportTraceServiceRequest, []metadata.MD) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.requests, c.metadata
}

func startCollector(t *testing.T, collector *traceCollector) *bufconn.Listener {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	coltracepb.RegisterTraceServiceServer(server, collector)

	go func() {
		_ = server.Serve(lis)
	}()

	t.Cleanup(server.Stop)

	return lis
}

func newClient(t *testing.T, lis *bufconn.Listener, compression config.Compression, opts ...otlpgrpc.Option) *otlpgrpc.Client {
	t.Helper()

	opts = append(opts,
		otlpgrpc.WithTarget("passthrough:///bufnet"),
		otlpgrpc.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)

	client, err := otlpgrpc.New(config.ExportConfig{
		Signal:      telemetry.SignalTraces,
		Endpoint:    &url.URL{Scheme: "http", Host: "bufnet"},
		Protocol:    config.ProtocolGRPC,
		Timeout:     2 * time.Second,
		Compression: compression,
		Headers:     config.Headers{{Key: "X-Tenant", Value: "acme"}},
	}, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Shutdown(context.Background())
	})

	return client
}

func encodedSpans(t *testing.T) []byte {
	t.Helper()

	batch := telemetry.Batch[telemetry.Span]{
		Resource: telemetry.ServiceResource("checkout", ""),
		Records: []telemetry.Span{{
			TraceID:   trace.TraceID{1},
			SpanID:    trace.SpanID{2},
			Name:      "op",
			StartTime: time.Unix(10, 0),
			EndTime:   time.Unix(11, 0),
		}},
	}

	data, err := codec.Traces(codec.EncodingProtobuf).Encode(batch)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	return data
}

func request(payload []byte) transport.Request {
	return transport.Request{
		Signal:      telemetry.SignalTraces,
		Payload:     payload,
		ContentType: codec.ContentTypeProtobuf,
		Items:       1,
		Decoder:     codec.Traces(codec.EncodingProtobuf),
	}
}

func TestSendDeliversPayloadAndMetadata(t *testing.T) {
	t.Parallel()

	for _, compression := range []config.Compression{config.CompressionNone, config.CompressionGzip, config.CompressionZstd} {
		t.Run(string(compression), func(t *testing.T) {
			t.Parallel()

			collector := &traceCollector{}
			client := newClient(t, startCollector(t, collector), compression)

			out := client.Send(context.Background(), request(encodedSpans(t)))
			if out.Kind != outcome.KindSuccess {
				t.Fatalf("expected success, got %s (%v)", out.Kind, out.Err)
			}

			reqs, mds := collector.received()
			if len(reqs) != 1 {
				t.Fatalf("expected 1 request, got %d", len(reqs))
			}

			if got := reqs[0].GetResourceSpans()[0].GetScopeSpans()[0].GetSpans()[0].GetName(); got != "op" {
				t.Fatalf("unexpected span name %q", got)
			}

			if got := mds[0].Get("x-tenant"); len(got) != 1 || got[0] != "acme" {
				t.Fatalf("expected tenant metadata, got %v", got)
			}
		})
	}
}

func TestSendPartialSuccess(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{response: &coltracepb.ExportTraceServiceResponse{
		PartialSuccess: &coltracepb.ExportTracePartialSuccess{RejectedSpans: 1, ErrorMessage: "dropped"},
	}}
	client := newClient(t, startCollector(t, collector), config.CompressionNone)

	out := client.Send(context.Background(), request(encodedSpans(t)))
	if out.Kind != outcome.KindPartialSuccess || out.Rejected != 1 {
		t.Fatalf("expected partial success with 1 rejected, got %s/%d", out.Kind, out.Rejected)
	}
}

func TestSendStatusClassification(t *testing.T) {
	t.Parallel()

	throttled, err := status.New(codes.ResourceExhausted, "slow down").
		WithDetails(&errdetails.RetryInfo{RetryDelay: durationpb.New(2 * time.Second)})
	if err != nil {
		t.Fatalf("WithDetails returned error: %v", err)
	}

	tests := []struct {
		name      string
		err       error
		wantKind  outcome.Kind
		wantDelay time.Duration
	}{
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), wantKind: outcome.KindRetryable},
		{name: "throttled", err: throttled.Err(), wantKind: outcome.KindRetryable, wantDelay: 2 * time.Second},
		{name: "permission denied", err: status.Error(codes.PermissionDenied, "no"), wantKind: outcome.KindTerminal},
		{name: "invalid argument", err: status.Error(codes.InvalidArgument, "bad"), wantKind: outcome.KindTerminal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newClient(t, startCollector(t, &traceCollector{err: tc.err}), config.CompressionNone)

			out := client.Send(context.Background(), request(encodedSpans(t)))
			if out.Kind != tc.wantKind {
				t.Fatalf("expected %s, got %s (%v)", tc.wantKind, out.Kind, out.Err)
			}

			if out.RetryAfter != tc.wantDelay {
				t.Fatalf("expected retry delay %s, got %s", tc.wantDelay, out.RetryAfter)
			}
		})
	}
}

func TestMetadataFuncRunsPerCall(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)

	hook := otlpgrpc.WithMetadataFunc(func(context.Context) (map[string]string, error) {
		mu.Lock()
		defer mu.Unlock()

		calls++

		return map[string]string{"Authorization": "Bearer rotated"}, nil
	})

	collector := &traceCollector{}
	client := newClient(t, startCollector(t, collector), config.CompressionNone, hook)

	for range 3 {
		out := client.Send(context.Background(), request(encodedSpans(t)))
		if out.Kind != outcome.KindSuccess {
			t.Fatalf("expected success, got %s (%v)", out.Kind, out.Err)
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if calls != 3 {
		t.Fatalf("expected hook to run 3 times, got %d", calls)
	}

	_, mds := collector.received()
	if got := mds[2].Get("authorization"); len(got) != 1 || got[0] != "Bearer rotated" {
		t.Fatalf("expected authorization metadata, got %v", got)
	}
}

func TestShutdownRejectsSends(t *testing.T) {
	t.Parallel()

	collector := &traceCollector{}
	client := newClient(t, startCollector(t, collector), config.CompressionNone)

	err := client.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	out := client.Send(context.Background(), request(encodedSpans(t)))
	if out.Reason != outcome.ReasonClosed {
		t.Fatalf("expected closed outcome, got %s/%s", out.Kind, out.Reason)
	}

	if reqs, _ := collector.received(); len(reqs) != 0 {
		t.Fatalf("expected no requests after shutdown, got %d", len(reqs))
	}
}
