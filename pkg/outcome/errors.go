package outcome

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"google.golang.org/grpc/codes"
)

// ErrExporterClosed is reported for exports attempted after shutdown.
var ErrExporterClosed = ewrap.New("exporter closed")

// ExportError is the error form of a failed Outcome.
type ExportError struct {
	Kind       Kind
	Reason     Reason
	StatusCode int
	GRPCCode   codes.Code
	RetryAfter time.Duration
	err        error
}

// Error implements error.
func (e *ExportError) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder

	b.WriteString(e.Kind.String())
	b.WriteString(" export failure")

	if e.Reason != ReasonNone {
		b.WriteString(" (")
		b.WriteString(string(e.Reason))
		b.WriteString(")")
	}

	if e.StatusCode != 0 {
		b.WriteString(": http status ")
		b.WriteString(strconv.Itoa(e.StatusCode))
	}

	if e.GRPCCode != codes.OK {
		b.WriteString(": grpc code ")
		b.WriteString(e.GRPCCode.String())
	}

	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}

	return b.String()
}

// Unwrap implements errors.Wrapper.
func (e *ExportError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.err
}

// IsRetryable reports whether err carries a retryable classification.
func IsRetryable(err error) bool {
	var target *ExportError
	if errors.As(err, &target) {
		return target.Kind == KindRetryable
	}

	return false
}

// RetryDelay returns the server-requested delay carried by err, if any.
func RetryDelay(err error) (time.Duration, bool) {
	var target *ExportError
	if errors.As(err, &target) && target.RetryAfter > 0 {
		return target.RetryAfter, true
	}

	return 0, false
}
