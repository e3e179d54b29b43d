package config

import (
	"strings"
	"time"
)

// Protocol selects the OTLP wire encoding and, implicitly, the transport family.
type Protocol string

const (
	// ProtocolGRPC is OTLP/gRPC with protobuf payloads.
	ProtocolGRPC Protocol = "grpc"
	// ProtocolHTTPProtobuf is OTLP/HTTP with binary protobuf payloads.
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	// ProtocolHTTPJSON is OTLP/HTTP with JSON payloads.
	ProtocolHTTPJSON Protocol = "http/json"
)

// ParseProtocol validates a protocol name. The empty string is rejected.
func ParseProtocol(raw string) (Protocol, error) {
	p := Protocol(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case ProtocolGRPC, ProtocolHTTPProtobuf, ProtocolHTTPJSON:
		return p, nil
	default:
		return "", invalidConfigError("protocol", "unsupported protocol %q", raw)
	}
}

// IsHTTP reports whether the protocol is carried over OTLP/HTTP.
func (p Protocol) IsHTTP() bool {
	return p == ProtocolHTTPProtobuf || p == ProtocolHTTPJSON
}

// Compression selects payload compression.
type Compression string

const (
	// CompressionNone sends payloads uncompressed.
	CompressionNone Compression = "none"
	// CompressionGzip compresses payloads with gzip.
	CompressionGzip Compression = "gzip"
	// CompressionZstd compresses payloads with zstd.
	CompressionZstd Compression = "zstd"
)

// ParseCompression validates a compression name. The empty string maps to none.
func ParseCompression(raw string) (Compression, error) {
	c := Compression(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case "":
		return CompressionNone, nil
	case CompressionNone, CompressionGzip, CompressionZstd:
		return c, nil
	default:
		return "", invalidConfigError("compression", "unsupported compression %q", raw)
	}
}

// TLSConfig holds the trust material used for https endpoints.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"              json:"ca_file"`
	CertFile           string `yaml:"cert_file"            json:"cert_file"`
	KeyFile            string `yaml:"key_file"             json:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// IsZero reports whether no TLS material is configured.
func (t TLSConfig) IsZero() bool {
	return t.CAFile == "" && t.CertFile == "" && t.KeyFile == "" && !t.InsecureSkipVerify
}

// Settings is one tier of exporter settings. Zero values mean "not set" so that
// tiers can be layered; see Resolve for the precedence rules.
type Settings struct {
	// Transport names the transport plug-in used by config-driven clients (http, grpc, kafka).
	Transport            string        `yaml:"transport"              json:"transport"`
	Endpoint             string        `yaml:"endpoint"               json:"endpoint"`
	Protocol             Protocol      `yaml:"protocol"               json:"protocol"`
	Timeout              time.Duration `yaml:"timeout"                json:"timeout"`
	Compression          Compression   `yaml:"compression"            json:"compression"`
	Headers              Headers       `yaml:"headers"                json:"headers"`
	TLS                  TLSConfig     `yaml:"tls"                    json:"tls"`
	MaxConcurrentExports int           `yaml:"max_concurrent_exports" json:"max_concurrent_exports"`
}

// Merge returns s overlaid with every field set in over.
// Headers are replaced as a whole, TLS fields individually.
func (s Settings) Merge(over Settings) Settings {
	out := s

	if over.Transport != "" {
		out.Transport = over.Transport
	}

	if over.Endpoint != "" {
		out.Endpoint = over.Endpoint
	}

	if over.Protocol != "" {
		out.Protocol = over.Protocol
	}

	if over.Timeout > 0 {
		out.Timeout = over.Timeout
	}

	if over.Compression != "" {
		out.Compression = over.Compression
	}

	if len(over.Headers) > 0 {
		out.Headers = over.Headers.Clone()
	}

	if over.TLS.CAFile != "" {
		out.TLS.CAFile = over.TLS.CAFile
	}

	if over.TLS.CertFile != "" {
		out.TLS.CertFile = over.TLS.CertFile
	}

	if over.TLS.KeyFile != "" {
		out.TLS.KeyFile = over.TLS.KeyFile
	}

	if over.TLS.InsecureSkipVerify {
		out.TLS.InsecureSkipVerify = true
	}

	if over.MaxConcurrentExports > 0 {
		out.MaxConcurrentExports = over.MaxConcurrentExports
	}

	return out
}
