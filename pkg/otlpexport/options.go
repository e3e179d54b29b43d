package otlpexport

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/logging"
	"github.com/hyp3rd/otlpexport/pkg/telemetry"
	"github.com/hyp3rd/otlpexport/pkg/transport"
	"github.com/hyp3rd/otlpexport/pkg/transport/otlpgrpc"
	"github.com/hyp3rd/otlpexport/pkg/transport/otlphttp"
	"github.com/hyp3rd/otlpexport/pkg/transport/otlpkafka"
)

// Option mutates initialization settings.
type Option func(*options)

type options struct {
	overrideConfig *config.Config
	loaders        []config.Loader
	logger         logging.Adapter
	loggerOverride bool
	watchConfig    bool
	transports     map[string]transport.Factory
	env            config.Environment
	meterProvider  metric.MeterProvider
	resource       telemetry.Resource
	scope          telemetry.Scope
}

func defaultOptions() options {
	opts := options{
		loaders: []config.Loader{
			config.FileLoader{},
			config.EnvLoader{},
		},
		watchConfig: true,
		transports:  map[string]transport.Factory{},
		env:         config.OSEnvironment{},
	}

	for _, f := range []transport.Factory{
		otlphttp.NewFactory(),
		otlpgrpc.NewFactory(),
		otlpkafka.NewFactory(),
	} {
		opts.transports[f.Name()] = f
	}

	return opts
}

func (o options) loadConfig(ctx context.Context) (config.Config, error) {
	if o.overrideConfig != nil {
		cfg := *o.overrideConfig

		err := config.Validate(cfg)
		if err != nil {
			return config.Config{}, err
		}

		return cfg, nil
	}

	return config.Load(ctx, o.loaders...)
}

// WithConfig provides a fully resolved configuration and bypasses loaders.
// OTEL_EXPORTER_OTLP_* variables still take precedence over it.
func WithConfig(cfg config.Config) Option {
	return func(opt *options) {
		opt.overrideConfig = &cfg
	}
}

// WithLoaders replaces the default loader chain.
func WithLoaders(loaders ...config.Loader) Option {
	return func(opt *options) {
		opt.loaders = append([]config.Loader{}, loaders...)
	}
}

// WithLogger specifies the logging adapter. It disables the logging section
// of the configuration document.
func WithLogger(adapter logging.Adapter) Option {
	return func(opt *options) {
		opt.logger = adapter
		opt.loggerOverride = true
	}
}

// WithConfigWatcher toggles file-based config hot reload. Enabled by default.
func WithConfigWatcher(enabled bool) Option {
	return func(opt *options) {
		opt.watchConfig = enabled
	}
}

// WithTransport registers factories under their Name, replacing built-in ones.
// The configuration selects among them with the transport setting.
func WithTransport(factories ...transport.Factory) Option {
	return func(opt *options) {
		for _, f := range factories {
			if f != nil {
				opt.transports[f.Name()] = f
			}
		}
	}
}

// WithEnvironment replaces the process environment used for OTEL_* lookups.
func WithEnvironment(env config.Environment) Option {
	return func(opt *options) {
		opt.env = env
	}
}

// WithMeterProvider enables the exporters' own metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(opt *options) {
		opt.meterProvider = mp
	}
}

// WithResource attaches the Resource and Scope used by batches that carry none.
func WithResource(resource telemetry.Resource, scope telemetry.Scope) Option {
	return func(opt *options) {
		opt.resource = resource
		opt.scope = scope
	}
}

func (o options) fileWatcherPath() string {
	if o.overrideConfig != nil {
		return ""
	}

	for _, loader := range o.loaders {
		if fl, ok := loader.(config.FileLoader); ok {
			if fl.FS != nil {
				return ""
			}

			if fl.Path != "" {
				return fl.Path
			}

			return config.DefaultConfigPath
		}
	}

	return ""
}
