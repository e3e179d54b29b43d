package exporter

import (
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/otlpexport/pkg/diagnostics"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
)

// ErrResourceLocked is returned by SetResource once the first export has started.
var ErrResourceLocked = ewrap.New("resource can only be set before the first export")

// State is the lifecycle state of an Exporter.
type State int32

const (
	// StateUnstarted only exists while a Builder is assembling the exporter.
	StateUnstarted State = iota
	// StateActive accepts exports.
	StateActive
	// StateShutDown is terminal.
	StateShutDown
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateActive:
		return "active"
	case StateShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}

type exporterError struct {
	message string
	time    time.Time
}

// exporterStats accumulates per-exporter counters for diagnostics.
type exporterStats struct {
	exported  atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	lastError atomic.Pointer[exporterError]
}

func (s *exporterStats) record(out outcome.Outcome, items int) {
	n := int64(items)

	switch out.Kind {
	case outcome.KindSuccess:
		s.exported.Add(n)
	case outcome.KindPartialSuccess:
		rejected := min(max(out.Rejected, 0), n)
		s.exported.Add(n - rejected)
		s.rejected.Add(rejected)
	case outcome.KindRetryable, outcome.KindTerminal:
		s.failed.Add(n)
	}

	if err := out.Error(); err != nil {
		s.lastError.Store(&exporterError{
			message: err.Error(),
			time:    time.Now().UTC(),
		})
	}
}

func (s *exporterStats) fill(status *diagnostics.ExporterStatus) {
	status.Exported = s.exported.Load()
	status.Failed = s.failed.Load()
	status.Rejected = s.rejected.Load()

	if last := s.lastError.Load(); last != nil {
		status.LastError = last.message
		status.LastErrorTime = last.time
	}
}
