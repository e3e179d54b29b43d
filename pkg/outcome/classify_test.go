package outcome_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/hyp3rd/otlpexport/pkg/outcome"
)

func TestFromHTTP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		retryAfter string
		partial    outcome.Partial
		wantKind   outcome.Kind
		wantDelay  time.Duration
	}{
		{name: "200", status: http.StatusOK, wantKind: outcome.KindSuccess},
		{name: "202", status: http.StatusAccepted, wantKind: outcome.KindSuccess},
		{
			name:     "200 partial",
			status:   http.StatusOK,
			partial:  outcome.Partial{Rejected: 2, Message: "dropped"},
			wantKind: outcome.KindPartialSuccess,
		},
		{name: "400", status: http.StatusBadRequest, wantKind: outcome.KindTerminal},
		{name: "401", status: http.StatusUnauthorized, wantKind: outcome.KindTerminal},
		{name: "413", status: http.StatusRequestEntityTooLarge, wantKind: outcome.KindTerminal},
		{name: "429", status: http.StatusTooManyRequests, wantKind: outcome.KindRetryable},
		{
			name:       "429 retry after",
			status:     http.StatusTooManyRequests,
			retryAfter: "7",
			wantKind:   outcome.KindRetryable,
			wantDelay:  7 * time.Second,
		},
		{
			name:       "4xx with retry after",
			status:     http.StatusRequestTimeout,
			retryAfter: "2",
			wantKind:   outcome.KindRetryable,
			wantDelay:  2 * time.Second,
		},
		{name: "500", status: http.StatusInternalServerError, wantKind: outcome.KindRetryable},
		{name: "503", status: http.StatusServiceUnavailable, wantKind: outcome.KindRetryable},
		{name: "302", status: http.StatusFound, wantKind: outcome.KindTerminal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			header := http.Header{}
			if tc.retryAfter != "" {
				header.Set("Retry-After", tc.retryAfter)
			}

			got := outcome.FromHTTP(tc.status, header, tc.partial)
			if got.Kind != tc.wantKind {
				t.Fatalf("expected %s, got %s", tc.wantKind, got.Kind)
			}

			if got.StatusCode != tc.status {
				t.Fatalf("expected status %d recorded, got %d", tc.status, got.StatusCode)
			}

			if got.RetryAfter != tc.wantDelay {
				t.Fatalf("expected retry after %s, got %s", tc.wantDelay, got.RetryAfter)
			}

			if got.Accepted() != (got.Error() == nil) {
				t.Fatalf("Accepted and Error disagree for %s", got.Kind)
			}
		})
	}
}

func TestFromHTTPRetryAfterDate(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))

	got := outcome.FromHTTP(http.StatusServiceUnavailable, header, outcome.Partial{})
	if got.RetryAfter <= 58*time.Minute || got.RetryAfter > time.Hour {
		t.Fatalf("expected about an hour of delay, got %s", got.RetryAfter)
	}
}

func TestFromGRPC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     codes.Code
		wantKind outcome.Kind
	}{
		{codes.Unavailable, outcome.KindRetryable},
		{codes.ResourceExhausted, outcome.KindRetryable},
		{codes.DeadlineExceeded, outcome.KindRetryable},
		{codes.Aborted, outcome.KindRetryable},
		{codes.DataLoss, outcome.KindRetryable},
		{codes.InvalidArgument, outcome.KindTerminal},
		{codes.Unauthenticated, outcome.KindTerminal},
		{codes.PermissionDenied, outcome.KindTerminal},
		{codes.Unimplemented, outcome.KindTerminal},
		{codes.Internal, outcome.KindTerminal},
	}

	for _, tc := range tests {
		t.Run(tc.code.String(), func(t *testing.T) {
			t.Parallel()

			got := outcome.FromGRPC(status.Error(tc.code, "boom"))
			if got.Kind != tc.wantKind {
				t.Fatalf("expected %s for %s, got %s", tc.wantKind, tc.code, got.Kind)
			}

			if got.GRPCCode != tc.code {
				t.Fatalf("expected code %s recorded, got %s", tc.code, got.GRPCCode)
			}
		})
	}
}

func TestFromGRPCRetryInfo(t *testing.T) {
	t.Parallel()

	st, err := status.New(codes.ResourceExhausted, "slow down").WithDetails(&errdetails.RetryInfo{
		RetryDelay: durationpb.New(3 * time.Second),
	})
	if err != nil {
		t.Fatalf("WithDetails returned error: %v", err)
	}

	got := outcome.FromGRPC(st.Err())
	if !got.Retryable() {
		t.Fatalf("expected retryable, got %s", got.Kind)
	}

	if got.RetryAfter != 3*time.Second {
		t.Fatalf("expected 3s delay, got %s", got.RetryAfter)
	}

	delay, ok := outcome.RetryDelay(got.Error())
	if !ok || delay != 3*time.Second {
		t.Fatalf("expected RetryDelay to expose 3s, got %s %v", delay, ok)
	}
}

func TestFromError(t *testing.T) {
	t.Parallel()

	if got := outcome.FromError(context.DeadlineExceeded); got.Kind != outcome.KindRetryable || got.Reason != outcome.ReasonTimeout {
		t.Fatalf("expected retryable timeout, got %+v", got)
	}

	if got := outcome.FromError(errors.New("connection reset by peer")); got.Reason != outcome.ReasonConnection {
		t.Fatalf("expected connection failure, got %+v", got)
	}

	certificateErrors := []error{
		&tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}},
		fmt.Errorf("post: %w", x509.UnknownAuthorityError{}),
		x509.HostnameError{Certificate: &x509.Certificate{}, Host: "collector"},
		x509.CertificateInvalidError{Reason: x509.Expired},
	}

	for _, err := range certificateErrors {
		got := outcome.FromError(err)
		if got.Kind != outcome.KindTerminal || got.Reason != outcome.ReasonCertificate {
			t.Fatalf("expected terminal certificate failure for %v, got %+v", err, got)
		}
	}

	handshake := status.Error(codes.Unavailable,
		"connection error: desc = \"transport: authentication handshake failed: tls: failed to verify certificate: x509: certificate signed by unknown authority\"")
	if got := outcome.FromGRPC(handshake); got.Kind != outcome.KindTerminal || got.Reason != outcome.ReasonCertificate {
		t.Fatalf("expected terminal certificate failure for handshake, got %+v", got)
	}

	if got := outcome.FromGRPC(status.Error(codes.Unavailable, "authentication handshake failed: EOF")); !got.Retryable() {
		t.Fatalf("expected handshake EOF to stay retryable, got %+v", got)
	}

	closed := outcome.Closed()
	if closed.Kind != outcome.KindTerminal {
		t.Fatalf("expected terminal closed outcome, got %s", closed.Kind)
	}

	if !errors.Is(closed.Error(), outcome.ErrExporterClosed) {
		t.Fatalf("expected closed outcome to wrap ErrExporterClosed, got %v", closed.Error())
	}

	if outcome.IsRetryable(closed.Error()) {
		t.Fatal("closed outcome must not be retryable")
	}
}
