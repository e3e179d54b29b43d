package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"
	"golang.org/x/sync/semaphore"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
)

// Guard holds the lifecycle and admission state shared by every transport.
//
// Each Do call is bounded by the configured timeout, which covers both the
// wait for an admission slot and the send itself. Once Close has been called,
// Do returns outcome.Closed without running the send.
type Guard struct {
	timeout time.Duration
	limit   int64
	sem     *semaphore.Weighted

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	active   atomic.Int64

	stop       context.Context //nolint:containedctx // cancels in-flight sends once the drain deadline passes.
	cancelStop context.CancelFunc
}

// NewGuard returns a Guard for cfg.
func NewGuard(cfg config.ExportConfig) *Guard {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultTimeout
	}

	limit := int64(cfg.MaxConcurrentExports)
	if limit <= 0 {
		limit = constants.DefaultMaxConcurrentExports
	}

	stop, cancel := context.WithCancel(context.Background())

	return &Guard{
		timeout:    timeout,
		limit:      limit,
		sem:        semaphore.NewWeighted(limit),
		stop:       stop,
		cancelStop: cancel,
	}
}

// Limit returns the admission limit.
func (g *Guard) Limit() int64 {
	return g.limit
}

// InFlight returns the number of sends currently holding an admission slot.
func (g *Guard) InFlight() int64 {
	return g.active.Load()
}

// Closed reports whether Close has been called.
func (g *Guard) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.closed
}

// Do admits and runs send. The context passed to send carries the timeout.
func (g *Guard) Do(ctx context.Context, send func(context.Context) outcome.Outcome) outcome.Outcome {
	if !g.enter() {
		return outcome.Closed()
	}
	defer g.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	stopAfter := context.AfterFunc(g.stop, cancel)
	defer stopAfter()

	err := g.sem.Acquire(ctx, 1)
	if err != nil {
		return g.admissionFailure(ctx)
	}
	defer g.sem.Release(1)

	g.active.Add(1)
	defer g.active.Add(-1)

	result := send(ctx)
	if result.Retryable() && result.Reason != outcome.ReasonTimeout && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result = outcome.Retryable(outcome.ReasonTimeout, ewrap.Wrapf(ctx.Err(), "export exceeded %s", g.timeout))
	}

	return result
}

// Close stops admitting sends and waits for in-flight ones to finish. When ctx
// expires first, in-flight sends are cancelled and the context error is
// returned. Close is idempotent.
func (g *Guard) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})

	go func() {
		g.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.cancelStop()

		return nil
	case <-ctx.Done():
		g.cancelStop()

		return ewrap.Wrap(ctx.Err(), "drain in-flight exports")
	}
}

func (g *Guard) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}

	g.inflight.Add(1)

	return true
}

func (g *Guard) admissionFailure(ctx context.Context) outcome.Outcome {
	if g.stop.Err() != nil {
		return outcome.Closed()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return outcome.Retryable(
			outcome.ReasonBackpressure,
			ewrap.Newf("no export slot available within %s (limit %d)", g.timeout, g.limit),
		)
	}

	return outcome.FromError(ctx.Err())
}
