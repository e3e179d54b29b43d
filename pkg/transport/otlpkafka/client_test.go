package otlpkafka_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hyp3rd/otlpexport/pkg/codec"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
	"github.com/hyp3rd/otlpexport/pkg/transport"
	"github.com/hyp3rd/otlpexport/pkg/transport/otlpkafka"
)

type stubKafkaWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (s *stubKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msgs...)

	return s.err
}

func (s *stubKafkaWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

func exportConfig(t *testing.T, signal telemetry.Signal, raw string) config.ExportConfig {
	t.Helper()

	endpoint, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse endpoint: %v", err)
	}

	return config.ExportConfig{
		Signal:   signal,
		Endpoint: endpoint,
		Protocol: config.ProtocolHTTPProtobuf,
		Timeout:  time.Second,
		Headers:  config.Headers{{Key: "tenant", Value: "acme"}},
	}
}

func TestSendPublishesToSignalTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		signal    telemetry.Signal
		endpoint  string
		wantTopic string
	}{
		{name: "traces default", signal: telemetry.SignalTraces, endpoint: "kafka://broker:9092", wantTopic: "otlp_spans"},
		{name: "metrics default", signal: telemetry.SignalMetrics, endpoint: "kafka://broker:9092", wantTopic: "otlp_metrics"},
		{name: "logs override", signal: telemetry.SignalLogs, endpoint: "kafka://broker:9092?topic=app_logs", wantTopic: "app_logs"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubKafkaWriter{}

			client, err := otlpkafka.New(exportConfig(t, tc.signal, tc.endpoint), otlpkafka.WithWriter(stub))
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}

			out := client.Send(context.Background(), transport.Request{
				Signal:      tc.signal,
				Payload:     []byte("payload"),
				ContentType: codec.ContentTypeProtobuf,
			})
			if out.Kind != outcome.KindSuccess {
				t.Fatalf("expected success, got %s (%v)", out.Kind, out.Err)
			}

			if len(stub.messages) != 1 {
				t.Fatalf("expected 1 message, got %d", len(stub.messages))
			}

			msg := stub.messages[0]
			if msg.Topic != tc.wantTopic {
				t.Fatalf("expected topic %q, got %q", tc.wantTopic, msg.Topic)
			}

			if string(msg.Value) != "payload" {
				t.Fatalf("unexpected payload %q", msg.Value)
			}

			if len(msg.Headers) != 2 || msg.Headers[0].Key != "tenant" || msg.Headers[1].Key != "content-type" {
				t.Fatalf("unexpected headers %+v", msg.Headers)
			}
		})
	}
}

func TestSendClassifiesBrokerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantKind outcome.Kind
	}{
		{name: "leader unavailable", err: kafka.LeaderNotAvailable, wantKind: outcome.KindRetryable},
		{name: "message too large", err: kafka.MessageSizeTooLarge, wantKind: outcome.KindTerminal},
		{name: "write errors", err: kafka.WriteErrors{kafka.NotEnoughReplicas}, wantKind: outcome.KindRetryable},
		{name: "connection", err: errors.New("dial tcp: connection refused"), wantKind: outcome.KindRetryable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubKafkaWriter{err: tc.err}

			client, err := otlpkafka.New(exportConfig(t, telemetry.SignalTraces, "kafka://broker:9092"), otlpkafka.WithWriter(stub))
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}

			out := client.Send(context.Background(), transport.Request{Payload: []byte("x")})
			if out.Kind != tc.wantKind {
				t.Fatalf("expected %s, got %s", tc.wantKind, out.Kind)
			}
		})
	}
}

func TestShutdownClosesWriter(t *testing.T) {
	t.Parallel()

	stub := &stubKafkaWriter{}

	client, err := otlpkafka.New(exportConfig(t, telemetry.SignalLogs, "kafka://a:9092,b:9092"), otlpkafka.WithWriter(stub))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	err = client.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	if !stub.closed {
		t.Fatal("expected writer to be closed")
	}

	out := client.Send(context.Background(), transport.Request{Payload: []byte("x")})
	if out.Reason != outcome.ReasonClosed {
		t.Fatalf("expected closed outcome, got %s", out.Reason)
	}

	if len(stub.messages) != 0 {
		t.Fatal("no message may be written after shutdown")
	}
}

func TestNewValidatesEndpoint(t *testing.T) {
	t.Parallel()

	_, err := otlpkafka.New(exportConfig(t, telemetry.SignalTraces, "http://broker:9092"))
	if err == nil {
		t.Fatal("expected error for non-kafka scheme")
	}

	if got := otlpkafka.Brokers("a:9092, b:9092,,"); len(got) != 2 || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestGenericEndpointKeepsTopic(t *testing.T) {
	t.Parallel()

	env := config.MapEnvironment{"OTEL_EXPORTER_OTLP_ENDPOINT": "kafka://broker:9092?topic=spans"}

	cfg, err := config.Resolve(telemetry.SignalTraces, env, config.Settings{}, config.Settings{})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	client, err := otlpkafka.New(cfg, otlpkafka.WithWriter(&stubKafkaWriter{}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if client.Topic() != "spans" {
		t.Fatalf("expected topic spans, got %q", client.Topic())
	}
}
