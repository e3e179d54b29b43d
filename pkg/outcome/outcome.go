// Package outcome classifies the result of a single export attempt.
//
// The exporter never retries on its own. It returns an Outcome and the caller,
// usually a batching processor, decides whether and when to try again.
package outcome

import (
	"strconv"
	"time"

	"google.golang.org/grpc/codes"
)

// Kind is the coarse classification of an export attempt.
type Kind int

const (
	// KindSuccess means every record was accepted.
	KindSuccess Kind = iota
	// KindPartialSuccess means the request was accepted but the collector rejected some records.
	KindPartialSuccess
	// KindRetryable means the attempt failed and may succeed if repeated.
	KindRetryable
	// KindTerminal means the attempt failed and repeating it will not help.
	KindTerminal
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindPartialSuccess:
		return "partial_success"
	case KindRetryable:
		return "retryable"
	case KindTerminal:
		return "terminal"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Reason explains a failure.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonTimeout      Reason = "timeout"
	ReasonBackpressure Reason = "backpressure"
	ReasonConnection   Reason = "connection"
	ReasonCertificate  Reason = "certificate"
	ReasonStatus       Reason = "status"
	ReasonThrottled    Reason = "throttled"
	ReasonEncoding     Reason = "encoding"
	ReasonClosed       Reason = "exporter_closed"
	ReasonCanceled     Reason = "canceled"
	ReasonInternal     Reason = "internal"
)

// Partial is the partial-success section of an OTLP response.
type Partial struct {
	Rejected int64
	Message  string
}

// IsZero reports whether the response carried no partial-success information.
func (p Partial) IsZero() bool {
	return p.Rejected == 0 && p.Message == ""
}

// Outcome is the classified result of one export attempt.
type Outcome struct {
	Kind Kind
	// Reason is set for failures.
	Reason Reason
	// Rejected and Message carry partial-success details.
	Rejected int64
	Message  string
	// StatusCode is the HTTP status, zero when not applicable.
	StatusCode int
	// GRPCCode is the gRPC status code, codes.OK when not applicable.
	GRPCCode codes.Code
	// RetryAfter is the server-requested delay before retrying, if any.
	RetryAfter time.Duration
	// Err is the underlying failure.
	Err error
}

// Success returns a full success.
func Success() Outcome {
	return Outcome{Kind: KindSuccess}
}

// PartialSuccess returns an accepted request with rejected records.
func PartialSuccess(rejected int64, message string) Outcome {
	return Outcome{
		Kind:     KindPartialSuccess,
		Rejected: rejected,
		Message:  message,
	}
}

// FromPartial returns Success when p is empty and PartialSuccess otherwise.
func FromPartial(p Partial) Outcome {
	if p.IsZero() {
		return Success()
	}

	return PartialSuccess(p.Rejected, p.Message)
}

// Retryable returns a retryable failure.
func Retryable(reason Reason, err error) Outcome {
	return Outcome{Kind: KindRetryable, Reason: reason, Err: err}
}

// Terminal returns a terminal failure.
func Terminal(reason Reason, err error) Outcome {
	return Outcome{Kind: KindTerminal, Reason: reason, Err: err}
}

// Closed is returned by exporters and transports after shutdown.
func Closed() Outcome {
	return Terminal(ReasonClosed, ErrExporterClosed)
}

// Accepted reports whether the collector accepted the request (fully or partially).
func (o Outcome) Accepted() bool {
	return o.Kind == KindSuccess || o.Kind == KindPartialSuccess
}

// Retryable reports whether the failure may be retried.
func (o Outcome) Retryable() bool {
	return o.Kind == KindRetryable
}

// Error returns nil for accepted outcomes and an *ExportError otherwise.
func (o Outcome) Error() error {
	if o.Accepted() {
		return nil
	}

	return &ExportError{
		Kind:       o.Kind,
		Reason:     o.Reason,
		StatusCode: o.StatusCode,
		GRPCCode:   o.GRPCCode,
		RetryAfter: o.RetryAfter,
		err:        o.Err,
	}
}
