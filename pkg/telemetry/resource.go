package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ServiceResource builds a Resource identifying a service.
func ServiceResource(name, version string, extra ...attribute.KeyValue) Resource {
	attrs := make([]attribute.KeyValue, 0, len(extra)+2)
	attrs = append(attrs, semconv.ServiceName(name))

	if version != "" {
		attrs = append(attrs, semconv.ServiceVersion(version))
	}

	attrs = append(attrs, extra...)

	return Resource{
		Attributes: attrs,
		SchemaURL:  semconv.SchemaURL,
	}
}

// ResourceFromSDK converts an SDK resource. A nil resource yields the zero Resource.
func ResourceFromSDK(res *resource.Resource) Resource {
	if res == nil {
		return Resource{}
	}

	return Resource{
		Attributes: res.Attributes(),
		SchemaURL:  res.SchemaURL(),
	}
}

// ScopeFromSDK converts an SDK instrumentation scope.
func ScopeFromSDK(scope instrumentation.Scope) Scope {
	return Scope{
		Name:       scope.Name,
		Version:    scope.Version,
		SchemaURL:  scope.SchemaURL,
		Attributes: scope.Attributes.ToSlice(),
	}
}
