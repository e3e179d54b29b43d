package codec

import (
	"errors"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

// EncodingError reports a batch that cannot be represented in OTLP.
// It is scoped to one export call and never changes exporter state.
type EncodingError struct {
	Signal telemetry.Signal
	// Index is the offending record, or -1 for batch-level failures.
	Index int
	err   error
}

// Error implements error.
func (e *EncodingError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}

	return "encode " + string(e.Signal) + ": " + e.err.Error()
}

// Unwrap implements errors.Wrapper.
func (e *EncodingError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.err
}

// IsEncodingError reports whether err is, or wraps, an EncodingError.
func IsEncodingError(err error) bool {
	var target *EncodingError

	return errors.As(err, &target)
}

func recordError(signal telemetry.Signal, index int, format string, args ...any) error {
	return &EncodingError{
		Signal: signal,
		Index:  index,
		err:    ewrap.Newf("record %d: "+format, append([]any{index}, args...)...),
	}
}

func batchError(signal telemetry.Signal, err error, msg string) error {
	return &EncodingError{
		Signal: signal,
		Index:  -1,
		err:    ewrap.Wrap(err, msg),
	}
}
