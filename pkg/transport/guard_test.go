package transport_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/transport"
)

func TestGuardNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	guard := transport.NewGuard(config.ExportConfig{Timeout: 5 * time.Second, MaxConcurrentExports: 3})

	var (
		current atomic.Int64
		peak    atomic.Int64
	)

	group, ctx := errgroup.WithContext(context.Background())

	for range 40 {
		group.Go(func() error {
			out := guard.Do(ctx, func(context.Context) outcome.Outcome {
				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}

				time.Sleep(2 * time.Millisecond)
				current.Add(-1)

				return outcome.Success()
			})
			if out.Kind != outcome.KindSuccess {
				t.Errorf("unexpected outcome %s", out.Kind)
			}

			return nil
		})
	}

	_ = group.Wait()

	if got := peak.Load(); got > 3 {
		t.Fatalf("admission limit exceeded: peak %d", got)
	}

	if guard.InFlight() != 0 {
		t.Fatalf("expected no sends in flight, got %d", guard.InFlight())
	}
}

func TestGuardBackpressureWhenSaturated(t *testing.T) {
	t.Parallel()

	guard := transport.NewGuard(config.ExportConfig{Timeout: 50 * time.Millisecond, MaxConcurrentExports: 1})

	release := make(chan struct{})
	started := make(chan struct{})

	go guard.Do(context.Background(), func(context.Context) outcome.Outcome {
		close(started)
		<-release

		return outcome.Success()
	})

	<-started

	out := guard.Do(context.Background(), func(context.Context) outcome.Outcome {
		t.Error("send must not run while the slot is held")

		return outcome.Success()
	})

	close(release)

	if out.Kind != outcome.KindRetryable || out.Reason != outcome.ReasonBackpressure {
		t.Fatalf("expected retryable backpressure, got %s/%s", out.Kind, out.Reason)
	}
}

func TestGuardTimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	guard := transport.NewGuard(config.ExportConfig{Timeout: 20 * time.Millisecond})

	out := guard.Do(context.Background(), func(ctx context.Context) outcome.Outcome {
		<-ctx.Done()

		return outcome.FromError(ctx.Err())
	})

	if out.Kind != outcome.KindRetryable || out.Reason != outcome.ReasonTimeout {
		t.Fatalf("expected retryable timeout, got %s/%s", out.Kind, out.Reason)
	}
}

func TestGuardClosedSkipsSend(t *testing.T) {
	t.Parallel()

	guard := transport.NewGuard(config.ExportConfig{})

	err := guard.Close(context.Background())
	if err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	err = guard.Close(context.Background())
	if err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	called := false
	out := guard.Do(context.Background(), func(context.Context) outcome.Outcome {
		called = true

		return outcome.Success()
	})

	if called {
		t.Fatal("send ran after Close")
	}

	if out.Reason != outcome.ReasonClosed || out.Kind != outcome.KindTerminal {
		t.Fatalf("expected terminal closed outcome, got %s/%s", out.Kind, out.Reason)
	}
}

func TestGuardCloseCancelsAfterDeadline(t *testing.T) {
	t.Parallel()

	guard := transport.NewGuard(config.ExportConfig{Timeout: time.Minute})

	started := make(chan struct{})
	result := make(chan outcome.Outcome, 1)

	go func() {
		result <- guard.Do(context.Background(), func(ctx context.Context) outcome.Outcome {
			close(started)
			<-ctx.Done()

			return outcome.FromError(ctx.Err())
		})
	}()

	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := guard.Close(ctx)
	if err == nil {
		t.Fatal("expected drain error when in-flight send outlives the deadline")
	}

	select {
	case out := <-result:
		if out.Accepted() {
			t.Fatalf("expected cancelled send to fail, got %s", out.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight send was not cancelled")
	}
}

func TestFactoryHelpers(t *testing.T) {
	t.Parallel()

	factory := transport.NewFactory("fake", []config.Protocol{config.ProtocolHTTPJSON, config.ProtocolHTTPProtobuf},
		func(context.Context, config.ExportConfig) (transport.Client, error) {
			return nil, nil //nolint:nilnil // unused in this test.
		})

	if transport.DefaultProtocol(factory) != config.ProtocolHTTPJSON {
		t.Fatalf("unexpected default protocol %q", transport.DefaultProtocol(factory))
	}

	if !transport.Supports(factory, config.ProtocolHTTPProtobuf) {
		t.Fatal("expected http/protobuf to be supported")
	}

	if transport.Supports(factory, config.ProtocolGRPC) {
		t.Fatal("grpc must not be supported")
	}
}
