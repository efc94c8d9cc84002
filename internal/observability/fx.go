// Package observability wires logging, tracing and metrics into the fx app.
package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/bizboard/internal/config"
	"github.com/smallbiznis/bizboard/internal/observability/logger"
	"github.com/smallbiznis/bizboard/internal/observability/metrics"
	"github.com/smallbiznis/bizboard/internal/observability/tracing"
)

var Module = fx.Module("observability",
	fx.Provide(func(cfg config.Config) logger.Config {
		return logger.Config{
			Environment: cfg.Environment,
			ServiceName: cfg.Observability.ServiceName,
		}
	}),
	fx.Provide(logger.New),
	fx.Invoke(func(log *zap.Logger) {
		zap.ReplaceGlobals(log)
	}),
	fx.Provide(func(cfg config.Config) metrics.Config {
		return metrics.Config{
			ServiceName: cfg.Observability.ServiceName,
			Environment: cfg.Environment,
		}
	}),
	fx.Provide(func(mcfg metrics.Config) *metrics.BillingMetrics {
		return metrics.BillingWithConfig(mcfg)
	}),
	fx.Provide(func() metric.MeterProvider {
		return otel.GetMeterProvider()
	}),
	fx.Provide(metrics.NewHTTPMetrics),
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) error {
		_, err := tracing.NewProvider(lc, tracing.Config{
			Enabled:          cfg.Observability.TracingEnabled,
			ServiceName:      cfg.Observability.ServiceName,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.Observability.TracingExporterEndpoint,
			ExporterProtocol: cfg.Observability.TracingExporterProtocol,
			SamplingRatio:    cfg.Observability.TracingSamplingRatio,
		}, log)
		return err
	}),
)
