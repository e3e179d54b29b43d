package logging

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hyp3rd/otlpexport/pkg/config"
)

// Level orders log severities for filtering.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a configuration string onto a Level. Unknown values are info.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// FromConfig builds an Adapter from logging configuration.
func FromConfig(cfg config.LoggingConfig) Adapter {
	base := buildBaseAdapter(cfg)
	if _, ok := base.(NoopAdapter); ok {
		return base
	}

	base = applyLevelFilter(base, ParseLevel(cfg.Level))
	base = applySampling(base, cfg.SampleRatio)

	return base
}

func buildBaseAdapter(cfg config.LoggingConfig) Adapter {
	switch strings.ToLower(cfg.Adapter) {
	case "none", "noop":
		return NewNoopAdapter()
	case "std":
		return NewStdAdapter(nil)
	case "zap":
		logger, err := newZapLogger(cfg)
		if err == nil {
			return NewZapAdapter(logger)
		}
	case "zerolog":
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerologLevel(cfg.Level))

		return NewZerologAdapter(logger)
	}

	return newSlogFromConfig(cfg)
}

func newSlogFromConfig(cfg config.LoggingConfig) Adapter {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slogLevel(cfg.Level),
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return NewSlogAdapter(slog.New(handler))
}

func newZapLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	configZap := zap.NewProductionConfig()
	configZap.Level = zap.NewAtomicLevelAt(zapLevel(cfg.Level))

	switch strings.ToLower(cfg.Format) {
	case "text":
		configZap.Encoding = "console"
	default:
		configZap.Encoding = "json"
	}

	zapLogger, err := configZap.Build()
	if err != nil {
		return nil, ewrap.Wrap(err, "build zap logger")
	}

	return zapLogger, nil
}

// applyLevelFilter drops entries below min before they reach the backend.
func applyLevelFilter(adapter Adapter, minLevel Level) Adapter {
	if adapter == nil {
		return NewNoopAdapter()
	}

	if minLevel <= LevelDebug {
		return adapter
	}

	return levelFilter{inner: adapter, min: minLevel}
}

type levelFilter struct {
	inner Adapter
	min   Level
}

func (f levelFilter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if f.min <= LevelDebug {
		f.inner.Debug(ctx, msg, attrs...)
	}
}

func (f levelFilter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if f.min <= LevelInfo {
		f.inner.Info(ctx, msg, attrs...)
	}
}

func (f levelFilter) Warn(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	if f.min <= LevelWarn {
		f.inner.Warn(ctx, err, msg, attrs...)
	}
}

func (f levelFilter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	f.inner.Error(ctx, err, msg, attrs...)
}

// applySampling thins debug and info entries. Warnings and errors are never sampled.
func applySampling(adapter Adapter, ratio float64) Adapter {
	if adapter == nil {
		return NewNoopAdapter()
	}

	if ratio >= 1 {
		return adapter
	}

	return &samplingAdapter{
		inner: adapter,
		ratio: max(ratio, 0),
	}
}

type samplingAdapter struct {
	inner Adapter
	ratio float64
}

func (s *samplingAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if s.shouldLog() {
		s.inner.Debug(ctx, msg, attrs...)
	}
}

func (s *samplingAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if s.shouldLog() {
		s.inner.Info(ctx, msg, attrs...)
	}
}

func (s *samplingAdapter) Warn(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.inner.Warn(ctx, err, msg, attrs...)
}

func (s *samplingAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.inner.Error(ctx, err, msg, attrs...)
}

func (s *samplingAdapter) shouldLog() bool {
	if s.ratio <= 0 {
		return false
	}

	return randomFloat64() <= s.ratio
}

func randomFloat64() float64 {
	var randomBytes [8]byte

	_, err := rand.Read(randomBytes[:])
	if err != nil {
		return 1
	}

	n := binary.BigEndian.Uint64(randomBytes[:])

	return float64(n) / float64(math.MaxUint64)
}

func slogLevel(level string) slog.Level {
	switch ParseLevel(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(level string) zapcore.Level {
	switch ParseLevel(level) {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func zerologLevel(level string) zerolog.Level {
	switch ParseLevel(level) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
