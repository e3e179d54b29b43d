// Package otlphttp sends OTLP payloads over HTTP, one POST per export.
package otlphttp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"golang.org/x/net/http2"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/transport"
)

// Name is the transport name used in configuration files.
const Name = "http"

const (
	http2ReadIdleTimeout = 30 * time.Second
	http2PingTimeout     = 15 * time.Second
	errorSnippetBytes    = 256
)

// Option customizes the HTTP client.
type Option func(*options)

type options struct {
	roundTripper http.RoundTripper
	userAgent    string
}

// WithRoundTripper replaces the underlying transport. TLS settings from the
// configuration are not applied to a custom round tripper.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.roundTripper = rt
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// NewFactory returns the HTTP transport factory. It supports http/protobuf
// (the default) and http/json.
func NewFactory(opts ...Option) transport.Factory {
	return transport.NewFactory(
		Name,
		[]config.Protocol{config.ProtocolHTTPProtobuf, config.ProtocolHTTPJSON},
		func(_ context.Context, cfg config.ExportConfig) (transport.Client, error) {
			return New(cfg, opts...)
		},
	)
}

// Client is an OTLP/HTTP transport client.
type Client struct {
	endpoint   string
	headers    config.Headers
	userAgent  string
	client     *http.Client
	compressor *compressor
	guard      *transport.Guard
}

// New builds a Client for cfg. The endpoint is used as-is; path handling
// happens during configuration resolution.
func New(cfg config.ExportConfig, opts ...Option) (*Client, error) {
	o := options{userAgent: constants.UserAgent}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Endpoint == nil {
		return nil, ewrap.New("otlphttp: endpoint is required")
	}

	scheme := strings.ToLower(cfg.Endpoint.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ewrap.Newf("otlphttp: unsupported endpoint scheme %q", cfg.Endpoint.Scheme)
	}

	comp, err := compressorFor(cfg.Compression)
	if err != nil {
		return nil, ewrap.Wrap(err, "otlphttp")
	}

	rt := o.roundTripper
	if rt == nil {
		rt, err = newTransport(cfg)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		endpoint:   cfg.Endpoint.String(),
		headers:    cfg.Headers.Clone(),
		userAgent:  o.userAgent,
		client:     &http.Client{Transport: rt},
		compressor: comp,
		guard:      transport.NewGuard(cfg),
	}, nil
}

func newTransport(cfg config.ExportConfig) (*http.Transport, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		base = &http.Transport{}
	}

	tr := base.Clone()

	if !cfg.Secure() {
		return tr, nil
	}

	tlsCfg, err := cfg.ClientTLS()
	if err != nil {
		return nil, ewrap.Wrap(err, "otlphttp: tls")
	}

	tr.TLSClientConfig = tlsCfg

	h2, err := http2.ConfigureTransports(tr)
	if err != nil {
		return nil, ewrap.Wrap(err, "otlphttp: configure http2")
	}

	h2.ReadIdleTimeout = http2ReadIdleTimeout
	h2.PingTimeout = http2PingTimeout

	return tr, nil
}

// Send posts req to the collector.
func (c *Client) Send(ctx context.Context, req transport.Request) outcome.Outcome {
	return c.guard.Do(ctx, func(ctx context.Context) outcome.Outcome {
		return c.post(ctx, req)
	})
}

// InFlight returns the number of requests currently being sent.
func (c *Client) InFlight() int64 {
	return c.guard.InFlight()
}

// Shutdown stops accepting sends, waits for in-flight ones and closes idle
// connections.
func (c *Client) Shutdown(ctx context.Context) error {
	err := c.guard.Close(ctx)
	c.client.CloseIdleConnections()

	return err
}

func (c *Client) post(ctx context.Context, req transport.Request) outcome.Outcome {
	body := req.Payload

	if c.compressor != nil {
		compressed, err := c.compressor.compress(body)
		if err != nil {
			return outcome.Terminal(outcome.ReasonEncoding, err)
		}

		body = compressed
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return outcome.Terminal(outcome.ReasonInternal, ewrap.Wrap(err, "build request"))
	}

	for _, h := range c.headers {
		httpReq.Header.Set(h.Key, h.Value)
	}

	httpReq.Header.Set("Content-Type", req.ContentType)
	httpReq.Header.Set("User-Agent", c.userAgent)

	if c.compressor != nil {
		httpReq.Header.Set("Content-Encoding", c.compressor.encoding)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return outcome.FromError(err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out := outcome.FromHTTP(resp.StatusCode, resp.Header, outcome.Partial{})
		if snippet := errorSnippet(data); snippet != "" {
			out.Message = snippet
		}

		return out
	}

	// A 2xx whose body cannot be read or decoded was still accepted.
	var partial outcome.Partial

	if readErr == nil && req.Decoder != nil {
		if decoded, decErr := req.Decoder.DecodeResponse(data); decErr == nil {
			partial = decoded
		}
	}

	return outcome.FromHTTP(resp.StatusCode, resp.Header, partial)
}

func errorSnippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > errorSnippetBytes {
		s = s[:errorSnippetBytes]
	}

	return s
}
