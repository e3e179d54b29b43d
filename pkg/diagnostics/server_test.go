package diagnostics_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/diagnostics"
)

type stubSnapshotProvider struct {
	snapshot diagnostics.Snapshot
}

func (s stubSnapshotProvider) Snapshot() diagnostics.Snapshot {
	return s.snapshot
}

func TestHandleStatusReturnsSnapshot(t *testing.T) {
	t.Parallel()

	provider := stubSnapshotProvider{
		snapshot: diagnostics.Snapshot{
			Exporters: []diagnostics.ExporterStatus{{
				Signal:        "traces",
				Transport:     "grpc",
				Protocol:      "grpc",
				Endpoint:      "http://collector:4317",
				State:         "active",
				Exported:      12,
				LastError:     "boom",
				LastErrorTime: time.Date(2024, 12, 5, 12, 0, 0, 0, time.UTC),
			}},
		},
	}
	server := diagnostics.NewServer(config.DiagnosticsConfig{Enabled: true, HTTPAddr: "127.0.0.1:0"}, provider)

	req := httptest.NewRequest(http.MethodGet, diagnostics.StatusPath, nil)
	rr := httptest.NewRecorder()

	server.HandleStatus(rr, req)

	res := rr.Result()

	defer func() {
		err := res.Body.Close()
		if err != nil {
			t.Fatalf("close response body: %v", err)
		}
	}()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: got %d", res.StatusCode)
	}

	var snapshot diagnostics.Snapshot

	err := json.NewDecoder(res.Body).Decode(&snapshot)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}

	status, ok := snapshot.Exporter("traces")
	if !ok {
		t.Fatal("expected traces exporter in snapshot")
	}

	if status.Endpoint != "http://collector:4317" || status.Exported != 12 {
		t.Fatalf("unexpected exporter status %+v", status)
	}

	if snapshot.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestHandleStatusAuth(t *testing.T) {
	t.Parallel()

	server := diagnostics.NewServer(config.DiagnosticsConfig{AuthToken: "secret"}, stubSnapshotProvider{})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic secret", want: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer secret", want: http.StatusOK},
	}

	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, diagnostics.StatusPath, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}

		rr := httptest.NewRecorder()
		server.HandleStatus(rr, req)

		if rr.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rr.Code)
		}
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}

	addr := ln.Addr().String()
	_ = ln.Close()

	server := diagnostics.NewServer(config.DiagnosticsConfig{Enabled: true, HTTPAddr: addr}, stubSnapshotProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = server.Start(ctx)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+diagnostics.StatusPath, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}

	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	err = server.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}

func TestStartRequiresAddress(t *testing.T) {
	t.Parallel()

	err := diagnostics.NewServer(config.DiagnosticsConfig{}, stubSnapshotProvider{}).Start(context.Background())
	if err == nil {
		t.Fatal("expected error without http_addr")
	}
}
