// Package di provides dependency injection configuration for binwatch.
package di

import (
	"github.com/samber/do/v2"

	"github.com/binwatch/binwatch/internal/config"
	"github.com/binwatch/binwatch/internal/di/providers"
	"github.com/binwatch/binwatch/internal/logger"
	"github.com/binwatch/binwatch/internal/metrics"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)

	// Reload pipeline
	do.Provide(injector, providers.ProvideController)
	do.Provide(injector, providers.ProvideSession)

	// Ops surface
	do.Provide(injector, providers.ProvideOpsServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*metrics.Metrics](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SessionHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.OpsServerHandle](injector); err != nil {
		return err
	}
	return nil
}
