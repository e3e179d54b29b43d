// Package otlpkafka publishes OTLP payloads to Kafka topics, one message per
// export. Endpoints look like kafka://broker1:9092,broker2:9092?topic=otlp_spans.
//
// The payload encoding follows the configured protocol: http/protobuf (the
// default) or http/json.
package otlpkafka

import (
	"context"
	"errors"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/segmentio/kafka-go"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
	"github.com/hyp3rd/otlpexport/pkg/transport"
)

// Name is the transport name used in configuration files.
const Name = "kafka"

// Scheme is the endpoint scheme accepted by this transport.
const Scheme = "kafka"

var defaultTopics = map[telemetry.Signal]string{
	telemetry.SignalTraces:  "otlp_spans",
	telemetry.SignalMetrics: "otlp_metrics",
	telemetry.SignalLogs:    "otlp_logs",
}

// Writer is the subset of *kafka.Writer used by the client.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Option customizes the Kafka client.
type Option func(*options)

type options struct {
	writer   Writer
	balancer kafka.Balancer
}

// WithWriter replaces the kafka-go writer, mainly for tests.
func WithWriter(w Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithBalancer sets the partition balancer. The default is round robin.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) {
		o.balancer = b
	}
}

// NewFactory returns the Kafka transport factory.
func NewFactory(opts ...Option) transport.Factory {
	return transport.NewFactory(
		Name,
		[]config.Protocol{config.ProtocolHTTPProtobuf, config.ProtocolHTTPJSON},
		func(_ context.Context, cfg config.ExportConfig) (transport.Client, error) {
			return New(cfg, opts...)
		},
	)
}

// Client publishes encoded payloads to one topic.
type Client struct {
	topic   string
	headers []kafka.Header
	writer  Writer
	guard   *transport.Guard
}

// New builds a Client for cfg.
func New(cfg config.ExportConfig, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Endpoint == nil {
		return nil, ewrap.New("otlpkafka: endpoint is required")
	}

	if !strings.EqualFold(cfg.Endpoint.Scheme, Scheme) {
		return nil, ewrap.Newf("otlpkafka: endpoint scheme must be %q, got %q", Scheme, cfg.Endpoint.Scheme)
	}

	brokers := Brokers(cfg.Endpoint.Host)
	if len(brokers) == 0 {
		return nil, ewrap.New("otlpkafka: endpoint has no brokers")
	}

	topic := cfg.Endpoint.Query().Get("topic")
	if topic == "" {
		topic = defaultTopics[cfg.Signal]
	}

	if topic == "" {
		return nil, ewrap.Newf("otlpkafka: no topic for signal %q", cfg.Signal)
	}

	writer := o.writer
	if writer == nil {
		w, err := newWriter(cfg, brokers, o.balancer)
		if err != nil {
			return nil, err
		}

		writer = w
	}

	headers := make([]kafka.Header, 0, len(cfg.Headers))
	for _, h := range cfg.Headers {
		headers = append(headers, kafka.Header{Key: h.Key, Value: []byte(h.Value)})
	}

	return &Client{
		topic:   topic,
		headers: headers,
		writer:  writer,
		guard:   transport.NewGuard(cfg),
	}, nil
}

// Brokers splits a comma separated host list.
func Brokers(hosts string) []string {
	var out []string

	for host := range strings.SplitSeq(hosts, ",") {
		host = strings.TrimSpace(host)
		if host != "" {
			out = append(out, host)
		}
	}

	return out
}

func newWriter(cfg config.ExportConfig, brokers []string, balancer kafka.Balancer) (*kafka.Writer, error) {
	if balancer == nil {
		balancer = &kafka.RoundRobin{}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     balancer,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.Timeout,
	}

	switch cfg.Compression {
	case config.CompressionGzip:
		w.Compression = kafka.Gzip
	case config.CompressionZstd:
		w.Compression = kafka.Zstd
	case config.CompressionNone, "":
	default:
		return nil, ewrap.Newf("otlpkafka: unsupported compression %q", cfg.Compression)
	}

	if !cfg.TLS.IsZero() {
		tlsCfg, err := cfg.TLS.ClientConfig()
		if err != nil {
			return nil, ewrap.Wrap(err, "otlpkafka: tls")
		}

		tlsCfg.ServerName = strings.Split(brokers[0], ":")[0]
		w.Transport = &kafka.Transport{TLS: tlsCfg}
	}

	return w, nil
}

// Topic returns the destination topic.
func (c *Client) Topic() string {
	return c.topic
}

// Send publishes req as a single message.
func (c *Client) Send(ctx context.Context, req transport.Request) outcome.Outcome {
	return c.guard.Do(ctx, func(ctx context.Context) outcome.Outcome {
		headers := make([]kafka.Header, 0, len(c.headers)+1)
		headers = append(headers, c.headers...)
		headers = append(headers, kafka.Header{Key: "content-type", Value: []byte(req.ContentType)})

		err := c.writer.WriteMessages(ctx, kafka.Message{
			Topic:   c.topic,
			Value:   req.Payload,
			Headers: headers,
		})

		return classify(err)
	})
}

// Shutdown stops accepting sends, waits for in-flight ones and closes the writer.
func (c *Client) Shutdown(ctx context.Context) error {
	err := c.guard.Close(ctx)

	closeErr := c.writer.Close()
	if err == nil && closeErr != nil {
		err = ewrap.Wrap(closeErr, "otlpkafka: close writer")
	}

	return err
}

func classify(err error) outcome.Outcome {
	if err == nil {
		return outcome.Success()
	}

	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil {
				return classify(e)
			}
		}

		return outcome.Success()
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) {
		switch {
		case kerr == kafka.MessageSizeTooLarge:
			return outcome.Terminal(outcome.ReasonStatus, err)
		case kerr.Temporary():
			return outcome.Retryable(outcome.ReasonStatus, err)
		default:
			return outcome.Terminal(outcome.ReasonStatus, err)
		}
	}

	return outcome.FromError(err)
}
