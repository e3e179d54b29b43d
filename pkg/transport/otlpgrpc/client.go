// Package otlpgrpc sends OTLP payloads as unary gRPC Export calls.
package otlpgrpc

import (
	"context"
	"strings"

	"github.com/hyp3rd/ewrap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/metadata"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
	"github.com/hyp3rd/otlpexport/pkg/transport"
)

// Name is the transport name used in configuration files.
const Name = "grpc"

var exportMethods = map[telemetry.Signal]string{
	telemetry.SignalTraces:  "/opentelemetry.proto.collector.trace.v1.TraceService/Export",
	telemetry.SignalMetrics: "/opentelemetry.proto.collector.metrics.v1.MetricsService/Export",
	telemetry.SignalLogs:    "/opentelemetry.proto.collector.logs.v1.LogsService/Export",
}

// Option customizes the gRPC client.
type Option func(*options)

type options struct {
	dialOptions  []grpc.DialOption
	metadataFunc MetadataFunc
	target       string
}

// WithDialOptions appends raw grpc dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

// WithMetadataFunc installs an auth hook invoked once per export.
func WithMetadataFunc(fn MetadataFunc) Option {
	return func(o *options) {
		o.metadataFunc = fn
	}
}

// WithTarget overrides the dial target derived from the endpoint host, for
// example "passthrough:///bufnet" for in-process servers.
func WithTarget(target string) Option {
	return func(o *options) {
		o.target = target
	}
}

// NewFactory returns the gRPC transport factory.
func NewFactory(opts ...Option) transport.Factory {
	return transport.NewFactory(
		Name,
		[]config.Protocol{config.ProtocolGRPC},
		func(_ context.Context, cfg config.ExportConfig) (transport.Client, error) {
			return New(cfg, opts...)
		},
	)
}

// Client is an OTLP/gRPC transport client. It owns its connection.
type Client struct {
	conn     *grpc.ClientConn
	method   string
	md       metadata.MD
	callOpts []grpc.CallOption
	guard    *transport.Guard
}

// New dials lazily; no connection is attempted until the first export.
func New(cfg config.ExportConfig, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	method, ok := exportMethods[cfg.Signal]
	if !ok {
		return nil, ewrap.Newf("otlpgrpc: unknown signal %q", cfg.Signal)
	}

	if cfg.Endpoint == nil {
		return nil, ewrap.New("otlpgrpc: endpoint is required")
	}

	scheme := strings.ToLower(cfg.Endpoint.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ewrap.Newf("otlpgrpc: unsupported endpoint scheme %q", cfg.Endpoint.Scheme)
	}

	creds, err := transportCredentials(cfg)
	if err != nil {
		return nil, err
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithUserAgent(constants.UserAgent),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	}

	if o.metadataFunc != nil {
		dialOpts = append(dialOpts, grpc.WithChainUnaryInterceptor(newMetadataInterceptor(o.metadataFunc)))
	}

	dialOpts = append(dialOpts, o.dialOptions...)

	target := o.target
	if target == "" {
		target = cfg.Endpoint.Host
	}

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, ewrap.Wrapf(err, "otlpgrpc: create client for %s", target)
	}

	callOpts, err := compressionCallOptions(cfg.Compression)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	return &Client{
		conn:     conn,
		method:   method,
		md:       headerMetadata(cfg.Headers),
		callOpts: callOpts,
		guard:    transport.NewGuard(cfg),
	}, nil
}

func transportCredentials(cfg config.ExportConfig) (credentials.TransportCredentials, error) {
	if !cfg.Secure() {
		return insecure.NewCredentials(), nil
	}

	tlsCfg, err := cfg.ClientTLS()
	if err != nil {
		return nil, ewrap.Wrap(err, "otlpgrpc: tls")
	}

	return credentials.NewTLS(tlsCfg), nil
}

func compressionCallOptions(c config.Compression) ([]grpc.CallOption, error) {
	switch c {
	case config.CompressionNone, "":
		return nil, nil
	case config.CompressionGzip:
		return []grpc.CallOption{grpc.UseCompressor(gzip.Name)}, nil
	case config.CompressionZstd:
		return []grpc.CallOption{grpc.UseCompressor(ZstdName)}, nil
	default:
		return nil, ewrap.Newf("otlpgrpc: unsupported compression %q", c)
	}
}

func headerMetadata(headers config.Headers) metadata.MD {
	md := metadata.MD{}
	for _, h := range headers {
		md.Set(strings.ToLower(h.Key), h.Value)
	}

	return md
}

// Send invokes the signal's Export RPC with the encoded payload.
func (c *Client) Send(ctx context.Context, req transport.Request) outcome.Outcome {
	return c.guard.Do(ctx, func(ctx context.Context) outcome.Outcome {
		return c.invoke(ctx, req)
	})
}

// InFlight returns the number of calls currently being sent.
func (c *Client) InFlight() int64 {
	return c.guard.InFlight()
}

// Shutdown stops accepting sends, waits for in-flight calls and closes the
// connection.
func (c *Client) Shutdown(ctx context.Context) error {
	err := c.guard.Close(ctx)

	closeErr := c.conn.Close()
	if err == nil && closeErr != nil {
		err = ewrap.Wrap(closeErr, "otlpgrpc: close connection")
	}

	return err
}

func (c *Client) invoke(ctx context.Context, req transport.Request) outcome.Outcome {
	if len(c.md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, c.md.Copy())
	}

	reply := &rawMessage{}

	err := c.conn.Invoke(ctx, c.method, &rawMessage{data: req.Payload}, reply, c.callOpts...)
	if err != nil {
		return outcome.FromGRPC(err)
	}

	if req.Decoder == nil {
		return outcome.Success()
	}

	partial, err := req.Decoder.DecodeResponse(reply.data)
	if err != nil {
		return outcome.Success()
	}

	return outcome.FromPartial(partial)
}
