package config

import (
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// Header is a single key/value pair sent with every export request.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered header list where setting an existing key replaces its value.
type Headers []Header

// Get returns the value stored for key.
func (h Headers) Get(key string) (string, bool) {
	for _, hdr := range h {
		if hdr.Key == key {
			return hdr.Value, true
		}
	}

	return "", false
}

// Set stores value under key, keeping the position of an existing entry.
func (h *Headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = value

			return
		}
	}

	*h = append(*h, Header{Key: key, Value: value})
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}

	out := make(Headers, len(h))
	copy(out, h)

	return out
}

// UnmarshalYAML accepts a mapping, kept in document order, or a string in
// the OTEL header format.
func (h *Headers) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*h = nil

			return nil
		}

		parsed, err := ParseHeaders(node.Value)
		if err != nil {
			return err
		}

		*h = parsed

		return nil
	case yaml.MappingNode:
		var out Headers

		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if key.Kind != yaml.ScalarNode || value.Kind != yaml.ScalarNode {
				return invalidConfigError("headers", "line %d: header names and values must be scalars", key.Line)
			}

			out.Set(key.Value, value.Value)
		}

		*h = out

		return nil
	default:
		return invalidConfigError("headers", "line %d: expected a mapping or a header string", node.Line)
	}
}

// MarshalYAML renders the headers as a mapping in their current order.
func (h Headers) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, hdr := range h {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: hdr.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: hdr.Value},
		)
	}

	return node, nil
}

// ParseHeaders parses the OTEL_EXPORTER_OTLP_HEADERS format: comma separated
// key=value pairs whose keys and values are percent-encoded. Empty segments are
// ignored and a repeated key keeps the last value.
func ParseHeaders(raw string) (Headers, error) {
	var out Headers

	for _, pair := range strings.Split(raw, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}

		rawKey, rawValue, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, invalidConfigError("headers", "malformed header pair %q: missing '='", pair)
		}

		key, err := url.PathUnescape(strings.TrimSpace(rawKey))
		if err != nil {
			return nil, wrapConfigError("headers", err, "decode header key in pair "+quote(pair))
		}

		if key == "" {
			return nil, invalidConfigError("headers", "malformed header pair %q: empty key", pair)
		}

		value, err := url.PathUnescape(strings.TrimSpace(rawValue))
		if err != nil {
			return nil, wrapConfigError("headers", err, "decode header value in pair "+quote(pair))
		}

		out.Set(key, value)
	}

	return out, nil
}

func quote(s string) string {
	return `"` + s + `"`
}
