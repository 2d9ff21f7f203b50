package di

import (
	"go.uber.org/zap"

	"todoflow/application/services"
	"todoflow/infrastructure/config"
	"todoflow/interfaces/http/rest"
	"todoflow/pkg/observability"
)

// Container holds everything the API binaries need at runtime.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Router   *rest.Router
	Auth     *services.AuthService
	Projects *services.ProjectService
	Metrics  *observability.Collector
	Tracer   *observability.TracerProvider
}
