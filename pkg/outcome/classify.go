package outcome

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FromHTTP classifies an OTLP/HTTP response.
//
//   - 2xx: success, or partial success when partial is set
//   - 429 and any status carrying Retry-After: retryable, throttled
//   - other 4xx: terminal
//   - 5xx: retryable
//   - anything else: terminal
func FromHTTP(statusCode int, header http.Header, partial Partial) Outcome {
	if statusCode >= 200 && statusCode < 300 {
		out := FromPartial(partial)
		out.StatusCode = statusCode

		return out
	}

	err := ewrap.Newf("collector responded with %d %s", statusCode, http.StatusText(statusCode))
	delay, hasDelay := parseRetryAfter(header.Get("Retry-After"), time.Now())

	var out Outcome

	switch {
	case statusCode == http.StatusTooManyRequests || (hasDelay && statusCode >= 400 && statusCode < 500):
		out = Retryable(ReasonThrottled, err)
	case statusCode >= 500 && statusCode < 600:
		out = Retryable(ReasonStatus, err)
	default:
		out = Terminal(ReasonStatus, err)
	}

	out.StatusCode = statusCode
	if hasDelay && out.Kind == KindRetryable {
		out.RetryAfter = delay
	}

	return out
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}

		return time.Duration(secs) * time.Second, true
	}

	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}

	delay := when.Sub(now)
	if delay < 0 {
		delay = 0
	}

	return delay, true
}

// FromGRPC classifies the error returned by a unary OTLP/gRPC call.
// A nil error yields Success; the caller folds in partial success from the response.
func FromGRPC(err error) Outcome {
	if err == nil {
		return Success()
	}

	st, ok := status.FromError(err)
	if !ok {
		return FromError(err)
	}

	code := st.Code()
	if code == codes.OK {
		return Success()
	}

	if code == codes.Unavailable && isHandshakeCertificateFailure(st.Message()) {
		out := Terminal(ReasonCertificate, err)
		out.GRPCCode = code
		out.Message = st.Message()

		return out
	}

	var out Outcome

	if shouldRetry(code) {
		out = Retryable(grpcReason(code), err)
		out.RetryAfter = throttleDuration(st)
	} else {
		out = Terminal(ReasonStatus, err)
	}

	out.GRPCCode = code
	out.Message = st.Message()

	return out
}

func shouldRetry(code codes.Code) bool {
	//nolint:exhaustive // every other code is terminal, including authentication failures.
	switch code {
	case codes.Canceled,
		codes.DeadlineExceeded,
		codes.ResourceExhausted,
		codes.Aborted,
		codes.OutOfRange,
		codes.Unavailable,
		codes.DataLoss:
		return true
	default:
		return false
	}
}

func grpcReason(code codes.Code) Reason {
	//nolint:exhaustive // only retryable codes reach this point.
	switch code {
	case codes.DeadlineExceeded:
		return ReasonTimeout
	case codes.Canceled:
		return ReasonCanceled
	case codes.ResourceExhausted:
		return ReasonThrottled
	case codes.Unavailable:
		return ReasonConnection
	default:
		return ReasonStatus
	}
}

func throttleDuration(st *status.Status) time.Duration {
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
			return info.GetRetryDelay().AsDuration()
		}
	}

	return 0
}

// FromError classifies a failure that happened before any response was received.
func FromError(err error) Outcome {
	if err == nil {
		return Success()
	}

	switch {
	case errors.Is(err, ErrExporterClosed):
		return Terminal(ReasonClosed, err)
	case errors.Is(err, context.DeadlineExceeded):
		return Retryable(ReasonTimeout, err)
	case errors.Is(err, context.Canceled):
		return Retryable(ReasonCanceled, err)
	}

	if isCertificateError(err) {
		return Terminal(ReasonCertificate, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retryable(ReasonTimeout, err)
	}

	return Retryable(ReasonConnection, err)
}

// isCertificateError reports a failed peer certificate verification. Retrying
// cannot fix it without a configuration change.
func isCertificateError(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)

	return errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}

// isHandshakeCertificateFailure matches the Unavailable status grpc-go reports
// when the TLS handshake rejects the server certificate. Only the message
// survives the status conversion.
func isHandshakeCertificateFailure(msg string) bool {
	if !strings.Contains(msg, "authentication handshake failed") {
		return false
	}

	return strings.Contains(msg, "x509:") || strings.Contains(msg, "failed to verify certificate")
}
