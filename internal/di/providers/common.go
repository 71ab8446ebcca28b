// Package providers defines the dependency injection providers wiring
// binwatch together.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/binwatch/binwatch/internal/config"
	"github.com/binwatch/binwatch/internal/logger"
	"github.com/binwatch/binwatch/internal/metrics"
)

// ProvideConfig loads and validates the application configuration.
func ProvideConfig(do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the application logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return logger.New(logger.Config{
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
	}), nil
}

// ProvideMetrics provides the reload instrumentation.
func ProvideMetrics(do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}
