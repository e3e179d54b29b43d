package otlpgrpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MetadataFunc returns per-call metadata, typically short-lived credentials.
// It runs once for every export, right before the request is sent.
type MetadataFunc func(ctx context.Context) (map[string]string, error)

func newMetadataInterceptor(fn MetadataFunc) grpc.UnaryClientInterceptor {
	return func(ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		extra, err := fn(ctx)
		if err != nil {
			return status.Errorf(codes.Unauthenticated, "metadata hook: %v", err)
		}

		if len(extra) > 0 {
			pairs := make([]string, 0, 2*len(extra))
			for key, value := range extra {
				pairs = append(pairs, strings.ToLower(key), value)
			}

			ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
		}

		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
