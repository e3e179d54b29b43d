// Package logging provides the logging contract used by exporters and the
// adapters that back it with slog, zap, zerolog or the standard logger.
package logging

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Adapter describes the logging contract used within the otlpexport library.
// Exporters log successful exports at debug, retryable failures at warn and
// terminal failures at error.
type Adapter interface {
	Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Info(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Warn(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue)
	Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue)
}

// NoopAdapter discards all logs.
type NoopAdapter struct{}

// NewNoopAdapter returns a logger that drops every log event.
func NewNoopAdapter() Adapter {
	return NoopAdapter{}
}

// Debug implements Adapter.
func (NoopAdapter) Debug(context.Context, string, ...attribute.KeyValue) {}

// Info implements Adapter.
func (NoopAdapter) Info(context.Context, string, ...attribute.KeyValue) {}

// Warn implements Adapter.
func (NoopAdapter) Warn(context.Context, error, string, ...attribute.KeyValue) {}

// Error implements Adapter.
func (NoopAdapter) Error(context.Context, error, string, ...attribute.KeyValue) {}

// With returns an adapter that prepends attrs to every entry.
func With(adapter Adapter, attrs ...attribute.KeyValue) Adapter {
	if adapter == nil {
		adapter = NewNoopAdapter()
	}

	if len(attrs) == 0 {
		return adapter
	}

	return withAttrs{inner: adapter, attrs: attrs}
}

type withAttrs struct {
	inner Adapter
	attrs []attribute.KeyValue
}

func (w withAttrs) merge(attrs []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(w.attrs)+len(attrs))
	out = append(out, w.attrs...)

	return append(out, attrs...)
}

func (w withAttrs) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	w.inner.Debug(ctx, msg, w.merge(attrs)...)
}

func (w withAttrs) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	w.inner.Info(ctx, msg, w.merge(attrs)...)
}

func (w withAttrs) Warn(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	w.inner.Warn(ctx, err, msg, w.merge(attrs)...)
}

func (w withAttrs) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	w.inner.Error(ctx, err, msg, w.merge(attrs)...)
}

// SlogAdapter writes logs using log/slog.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a slog-based adapter. If logger is nil a default JSON logger is used.
func NewSlogAdapter(logger *slog.Logger) Adapter {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	return &SlogAdapter{logger: logger}
}

// Debug implements Adapter.
func (s *SlogAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.logger.LogAttrs(ctx, slog.LevelDebug, msg, toSlogAttrs(withTrace(ctx, attrs))...)
}

// Info implements Adapter.
func (s *SlogAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.logger.LogAttrs(ctx, slog.LevelInfo, msg, toSlogAttrs(withTrace(ctx, attrs))...)
}

// Warn implements Adapter.
func (s *SlogAdapter) Warn(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.logger.LogAttrs(ctx, slog.LevelWarn, msg, toSlogAttrs(withTrace(ctx, withError(err, attrs)))...)
}

// Error implements Adapter.
func (s *SlogAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.logger.LogAttrs(ctx, slog.LevelError, msg, toSlogAttrs(withTrace(ctx, withError(err, attrs)))...)
}

// ZapAdapter writes logs via zap.Logger.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter creates a zap adapter. The logger must not be nil.
func NewZapAdapter(logger *zap.Logger) Adapter {
	return &ZapAdapter{logger: logger}
}

// Debug implements Adapter.
func (z *ZapAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	z.logger.Debug(msg, toZapFields(withTrace(ctx, attrs))...)
}

// Info implements Adapter.
func (z *ZapAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	z.logger.Info(msg, toZapFields(withTrace(ctx, attrs))...)
}

// Warn implements Adapter.
func (z *ZapAdapter) Warn(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	z.logger.Warn(msg, zapFieldsWithError(ctx, err, attrs)...)
}

// Error implements Adapter.
func (z *ZapAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	z.logger.Error(msg, zapFieldsWithError(ctx, err, attrs)...)
}

func zapFieldsWithError(ctx context.Context, err error, attrs []attribute.KeyValue) []zap.Field {
	fields := toZapFields(withTrace(ctx, attrs))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	return fields
}

// ZerologAdapter writes logs via zerolog.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates an adapter using zerolog.
func NewZerologAdapter(logger zerolog.Logger) Adapter {
	return &ZerologAdapter{logger: logger}
}

// Debug implements Adapter.
func (z ZerologAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	emit(z.logger.Debug(), ctx, nil, msg, attrs)
}

// Info implements Adapter.
func (z ZerologAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	emit(z.logger.Info(), ctx, nil, msg, attrs)
}

// Warn implements Adapter.
func (z ZerologAdapter) Warn(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	emit(z.logger.Warn(), ctx, err, msg, attrs)
}

// Error implements Adapter.
func (z ZerologAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	emit(z.logger.Error(), ctx, err, msg, attrs)
}

//nolint:revive // the event is the natural receiver-like first argument.
func emit(event *zerolog.Event, ctx context.Context, err error, msg string, attrs []attribute.KeyValue) {
	for _, attr := range withTrace(ctx, attrs) {
		event = event.Interface(string(attr.Key), attrValue(attr))
	}

	if err != nil {
		event = event.Err(err)
	}

	event.Msg(msg)
}

// StdAdapter uses the standard library logger.
type StdAdapter struct {
	logger *log.Logger
}

// NewStdAdapter creates an adapter around log.Logger. If logger is nil log.Default is used.
func NewStdAdapter(logger *log.Logger) Adapter {
	if logger == nil {
		logger = log.Default()
	}

	return &StdAdapter{logger: logger}
}

// Debug implements Adapter.
func (s *StdAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.logger.Println(formatLine("DEBUG", msg, withTrace(ctx, attrs)))
}

// Info implements Adapter.
func (s *StdAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.logger.Println(formatLine("INFO", msg, withTrace(ctx, attrs)))
}

// Warn implements Adapter.
func (s *StdAdapter) Warn(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.logger.Println(formatLine("WARN", msg, withTrace(ctx, withError(err, attrs))))
}

// Error implements Adapter.
func (s *StdAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.logger.Println(formatLine("ERROR", msg, withTrace(ctx, withError(err, attrs))))
}

func withError(err error, attrs []attribute.KeyValue) []attribute.KeyValue {
	if err == nil {
		return attrs
	}

	return append(attrs, attribute.String("error", err.Error()))
}

func withTrace(ctx context.Context, attrs []attribute.KeyValue) []attribute.KeyValue {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return attrs
	}

	traceAttrs := []attribute.KeyValue{
		attribute.String("trace_id", spanCtx.TraceID().String()),
		attribute.String("span_id", spanCtx.SpanID().String()),
	}

	return append(traceAttrs, attrs...)
}

func attrValue(attr attribute.KeyValue) any {
	//nolint:exhaustive // attribute.INVALID falls through to AsInterface.
	switch attr.Value.Type() {
	case attribute.BOOL:
		return attr.Value.AsBool()
	case attribute.INT64:
		return attr.Value.AsInt64()
	case attribute.FLOAT64:
		return attr.Value.AsFloat64()
	case attribute.STRING:
		return attr.Value.AsString()
	default:
		return attr.Value.AsInterface()
	}
}

func toSlogAttrs(attrs []attribute.KeyValue) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, slog.Any(string(attr.Key), attrValue(attr)))
	}

	return out
}

func toZapFields(attrs []attribute.KeyValue) []zap.Field {
	out := make([]zap.Field, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, zap.Any(string(attr.Key), attrValue(attr)))
	}

	return out
}

func formatLine(level, msg string, attrs []attribute.KeyValue) string {
	builder := strings.Builder{}
	builder.WriteString(level)
	builder.WriteString(" ")
	builder.WriteString(msg)

	for _, attr := range attrs {
		builder.WriteString(" ")
		builder.WriteString(string(attr.Key))
		builder.WriteString("=")
		builder.WriteString(fmt.Sprint(attrValue(attr)))
	}

	return builder.String()
}
