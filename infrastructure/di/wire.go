//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"todoflow/application/services"
	"todoflow/infrastructure/config"
)

// InfrastructureSet provides storage, sessions, messaging and observability
var InfrastructureSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideStorage,
	ProvideProjectRepository,
	ProvideUserRepository,
	ProvideSessions,
	ProvideSessionStore,
	ProvideReadinessChecks,
	ProvideEventPublisher,
	ProvideIdentityVerifier,
	ProvideMetrics,
	ProvideTracing,
)

// ApplicationSet provides the application services
var ApplicationSet = wire.NewSet(
	ProvideJWTGenerator,
	ProvideAuthService,
	services.NewProjectService,
)

// InterfaceSet provides the HTTP layer
var InterfaceSet = wire.NewSet(
	ProvideJWTValidator,
	ProvideErrorHandler,
	ProvideRateLimiter,
	ProvideAuthHandler,
	ProvideProjectHandler,
	ProvideRouter,
)

// SuperSet combines all provider sets
var SuperSet = wire.NewSet(
	InfrastructureSet,
	ApplicationSet,
	InterfaceSet,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer builds the API container for cfg.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
