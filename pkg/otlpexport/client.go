// Package otlpexport runs OTLP exporters from a configuration document.
//
// Init loads the document (YAML file plus OTLPEXPORT_* variables by default),
// builds one exporter per enabled signal and, when the document comes from a
// file, rebuilds them whenever the file changes. OTEL_EXPORTER_OTLP_* variables
// keep precedence over the document.
package otlpexport

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/diagnostics"
	"github.com/hyp3rd/otlpexport/pkg/exporter"
	"github.com/hyp3rd/otlpexport/pkg/logging"
	"github.com/hyp3rd/otlpexport/pkg/outcome"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
)

// ErrSignalDisabled is reported when exporting a signal the configuration does not enable.
var ErrSignalDisabled = ewrap.New("signal is not enabled")

// Client owns the active exporters and swaps them on configuration changes.
type Client struct {
	mu          sync.RWMutex
	reloadMu    sync.Mutex
	pipeline    *pipeline
	opts        options
	logger      logging.Adapter
	diagServer  *diagnostics.Server
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	startTime  time.Time
	lastReload time.Time
	reloads    int64
	closed     bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// Init loads the configuration and builds the exporters it enables.
// Callers must invoke Shutdown when finished.
func Init(ctx context.Context, opts ...Option) (*Client, error) {
	settings := defaultOptions()
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := settings.loadConfig(ctx)
	if err != nil {
		return nil, ewrap.Wrap(err, "load config")
	}

	logger := settings.logger
	if !settings.loggerOverride {
		logger = logging.FromConfig(cfg.Logging)
	}

	if logger == nil {
		logger = logging.NewNoopAdapter()
	}

	p, err := newPipeline(ctx, cfg, settings, logger)
	if err != nil {
		return nil, ewrap.Wrap(err, "init exporters")
	}

	now := time.Now().UTC()
	client := &Client{
		pipeline:   p,
		opts:       settings,
		logger:     logger,
		startTime:  now,
		lastReload: now,
	}

	if cfg.Diagnostics.Enabled {
		server := diagnostics.NewServer(cfg.Diagnostics, client)

		err = server.Start(ctx)
		if err != nil {
			return nil, ewrap.Wrap(errors.Join(err, p.shutdown(ctx)), "start diagnostics server")
		}

		client.diagServer = server
	}

	err = client.startConfigWatcher(ctx)
	if err != nil {
		client.logger.Error(ctx, err, "config watcher disabled")
	}

	logger.Info(ctx, "otlp exporters started", attribute.StringSlice("signals", enabledSignals(cfg)))

	return client, nil
}

// Shutdown stops the watcher and the diagnostics server, then shuts every
// exporter down. Later calls return nil.
func (c *Client) Shutdown(ctx context.Context) error {
	first := false

	c.shutdownOnce.Do(func() {
		first = true

		if c.watchCancel != nil {
			c.watchCancel()
			<-c.watchDone
		}

		c.reloadMu.Lock()
		c.closed = true
		c.reloadMu.Unlock()

		var errs []error

		if c.diagServer != nil {
			errs = append(errs, c.diagServer.Shutdown(ctx))
		}

		c.mu.RLock()
		p := c.pipeline
		c.mu.RUnlock()

		errs = append(errs, p.shutdown(ctx))

		c.shutdownErr = errors.Join(errs...)
	})

	if !first {
		return nil
	}

	return c.shutdownErr
}

// Config returns the active configuration document.
func (c *Client) Config() config.Config {
	return c.current().cfg
}

// Traces returns the active span exporter, or nil when traces are disabled.
// The exporter is replaced on reload; hold on to it only for one export.
func (c *Client) Traces() *exporter.TraceExporter {
	return c.current().traces
}

// Metrics returns the active metric exporter, or nil when metrics are disabled.
func (c *Client) Metrics() *exporter.MetricExporter {
	return c.current().metrics
}

// Logs returns the active log exporter, or nil when logs are disabled.
func (c *Client) Logs() *exporter.LogExporter {
	return c.current().logs
}

// ExportTraces exports batch through the active span exporter.
func (c *Client) ExportTraces(ctx context.Context, batch telemetry.Batch[telemetry.Span]) outcome.Outcome {
	p := c.acquire()
	defer p.active.Done()

	return export(ctx, p.traces, batch)
}

// ExportMetrics exports batch through the active metric exporter.
func (c *Client) ExportMetrics(ctx context.Context, batch telemetry.Batch[telemetry.Metric]) outcome.Outcome {
	p := c.acquire()
	defer p.active.Done()

	return export(ctx, p.metrics, batch)
}

// ExportLogs exports batch through the active log exporter.
func (c *Client) ExportLogs(ctx context.Context, batch telemetry.Batch[telemetry.LogRecord]) outcome.Outcome {
	p := c.acquire()
	defer p.active.Done()

	return export(ctx, p.logs, batch)
}

func export[T telemetry.Record](ctx context.Context, exp *exporter.Exporter[T], batch telemetry.Batch[T]) outcome.Outcome {
	if exp == nil {
		return outcome.Terminal(outcome.ReasonInternal, ErrSignalDisabled)
	}

	return exp.Export(ctx, batch)
}

// Snapshot implements diagnostics.SnapshotProvider.
func (c *Client) Snapshot() diagnostics.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return diagnostics.Snapshot{
		StartTime:         c.startTime,
		LastReloadTime:    c.lastReload,
		ConfigReloadCount: c.reloads,
		Exporters:         c.pipeline.statuses(),
	}
}

func (c *Client) log() logging.Adapter {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.logger
}

// acquire returns the active pipeline and keeps a reload from shutting it
// down until the caller invokes p.active.Done.
func (c *Client) acquire() *pipeline {
	c.mu.RLock()
	defer c.mu.RUnlock()

	c.pipeline.active.Add(1)

	return c.pipeline
}

func (c *Client) current() *pipeline {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pipeline
}

func (c *Client) startConfigWatcher(ctx context.Context) error {
	if !c.opts.watchConfig {
		return nil
	}

	path := c.opts.fileWatcherPath()
	if path == "" {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ewrap.Wrap(err, "resolve config path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ewrap.Wrap(err, "create config watcher")
	}

	err = watcher.Add(filepath.Dir(abs))
	if err != nil {
		closeErr := watcher.Close()
		if closeErr != nil {
			c.logger.Error(ctx, closeErr, "close config watcher after add failure")
		}

		return ewrap.Wrap(err, "watch config directory")
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.watchCancel = cancel
	c.watchDone = make(chan struct{})

	go c.watchLoop(ctx, watcher, abs)

	return nil
}

// watchLoop reloads the exporters when the configuration file is written,
// created or renamed into place.
func (c *Client) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string) {
	defer close(c.watchDone)

	defer func() {
		closeErr := watcher.Close()
		if closeErr != nil {
			c.log().Error(ctx, closeErr, "close config watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Name != target {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			c.log().Info(ctx, "configuration change detected", attribute.String("path", target))
			c.Reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			c.log().Error(ctx, err, "config watcher error")
		}
	}
}

// Reload reads the configuration again and swaps the exporters when it
// changed, reporting whether it did. A document that fails to load or build
// leaves the running exporters untouched.
func (c *Client) Reload(ctx context.Context) bool {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	if c.closed {
		return false
	}

	cfg, err := c.opts.loadConfig(ctx)
	if err != nil {
		c.log().Error(ctx, err, "reload config failed")

		return false
	}

	digest, err := configDigest(cfg)
	if err != nil {
		c.log().Error(ctx, err, "reload config failed")

		return false
	}

	if digest == c.current().digest {
		c.log().Debug(ctx, "configuration unchanged")

		return false
	}

	logger := c.log()
	if !c.opts.loggerOverride {
		if l := logging.FromConfig(cfg.Logging); l != nil {
			logger = l
		}
	}

	p, err := newPipeline(ctx, cfg, c.opts, logger)
	if err != nil {
		c.log().Error(ctx, err, "exporter rebuild failed")

		return false
	}

	c.swapPipeline(ctx, p, logger)
	c.log().Info(ctx, "exporters reloaded", attribute.StringSlice("signals", enabledSignals(cfg)))

	return true
}

func (c *Client) swapPipeline(ctx context.Context, next *pipeline, logger logging.Adapter) {
	c.mu.Lock()
	old := c.pipeline
	c.pipeline = next
	c.logger = logger
	c.lastReload = time.Now().UTC()
	c.reloads++
	c.mu.Unlock()

	if old == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, constants.DefaultShutdownTimeout)
	defer cancel()

	err := old.drain(shutdownCtx)
	if err != nil {
		logger.Warn(shutdownCtx, err, "previous exporters still busy")
	}

	err = old.shutdown(shutdownCtx)
	if err != nil {
		logger.Error(shutdownCtx, err, "shutdown previous exporters")
	}
}

func enabledSignals(cfg config.Config) []string {
	out := make([]string, 0, len(telemetry.Signals()))

	for _, sig := range telemetry.Signals() {
		if cfg.Signal(sig).Enabled {
			out = append(out, sig.String())
		}
	}

	return out
}
