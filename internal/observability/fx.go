package observability

import (
	"github.com/smallbiznis/hireboard/internal/observability/logger"
	"github.com/smallbiznis/hireboard/internal/observability/metrics"
	"github.com/smallbiznis/hireboard/internal/observability/tracing"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// Module provides the zap logger, the OTel tracer and meter providers, the
// ledger instruments and the HTTP metrics shared by every binary.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName:         cfg.ServiceName,
				Environment:         cfg.Environment,
				Version:             cfg.Version,
				Level:               cfg.Log.Level,
				Format:              cfg.Log.Format,
				Debug:               cfg.Debug(),
				IncludeCaller:       true,
				IncludeStackOnError: cfg.Debug(),
			}
		},
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.OTel.Enabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.OTel.Endpoint,
				ExporterProtocol: cfg.OTel.TracesProtocol,
				SamplingRatio:    cfg.OTel.SamplingRatio,
			}
		},
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.OTel.Enabled,
				ExporterEndpoint: cfg.OTel.Endpoint,
				ExporterProtocol: cfg.OTel.Protocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
			}
		},
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(func(trace.TracerProvider) {}),
	fx.Invoke(func(cfg metrics.Config) { metrics.SchedulerWithConfig(cfg) }),
)
