package di

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"todoflow/application/ports"
	"todoflow/application/services"
	"todoflow/infrastructure/config"
	"todoflow/infrastructure/identity"
	"todoflow/infrastructure/messaging"
	"todoflow/infrastructure/messaging/eventbridge"
	"todoflow/infrastructure/persistence/dynamodb"
	"todoflow/infrastructure/persistence/memory"
	"todoflow/infrastructure/persistence/postgres"
	"todoflow/infrastructure/session"
	"todoflow/interfaces/http/rest"
	"todoflow/interfaces/http/rest/handlers"
	"todoflow/interfaces/http/rest/middleware"
	"todoflow/pkg/auth"
	pkgerrors "todoflow/pkg/errors"
	"todoflow/pkg/observability"
)

// Storage is the selected persistence backend.
type Storage struct {
	Projects ports.ProjectRepository
	Users    ports.UserRepository
	Ready    rest.ReadinessCheck
}

// Sessions is the selected refresh-session backend.
type Sessions struct {
	Store ports.SessionStore
	Ready rest.ReadinessCheck
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideStorage opens the configured storage backend. The cleanup closes
// database connections.
func ProvideStorage(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (Storage, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageDynamoDB:
		client := dynamodb.NewClientFromConfig(awsCfg, cfg.DynamoDBEndpoint)
		logger.Info("Using DynamoDB storage", zap.String("table", cfg.DynamoDBTable))
		return Storage{
			Projects: dynamodb.NewProjectRepository(client, cfg.DynamoDBTable, logger),
			Users:    dynamodb.NewUserRepository(client, cfg.DynamoDBTable, logger),
			Ready: func(ctx context.Context) error {
				_, err := client.DescribeTable(ctx, &awsdynamodb.DescribeTableInput{TableName: aws.String(cfg.DynamoDBTable)})
				return err
			},
		}, func() {}, nil

	case config.StoragePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return Storage{}, nil, err
		}
		if err := postgres.ApplyMigrations(ctx, db); err != nil {
			_ = db.Close()
			return Storage{}, nil, err
		}
		logger.Info("Using Postgres storage")
		return Storage{
			Projects: postgres.NewProjectRepository(db, logger),
			Users:    postgres.NewUserRepository(db),
			Ready:    db.PingContext,
		}, closeDB(db, logger), nil

	default:
		logger.Warn("Using in-memory storage; data is lost on restart")
		return Storage{
			Projects: memory.NewProjectRepository(),
			Users:    memory.NewUserRepository(),
		}, func() {}, nil
	}
}

func closeDB(db *sql.DB, logger *zap.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}

// ProvideProjectRepository selects the project repository from storage
func ProvideProjectRepository(s Storage) ports.ProjectRepository { return s.Projects }

// ProvideUserRepository selects the user repository from storage
func ProvideUserRepository(s Storage) ports.UserRepository { return s.Users }

// ProvideSessions opens the refresh-session store.
func ProvideSessions(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Sessions, func(), error) {
	if cfg.SessionBackend == config.SessionRedis {
		store, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return Sessions{}, nil, err
		}
		return Sessions{Store: store, Ready: store.Ping}, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close redis", zap.Error(err))
			}
		}, nil
	}
	return Sessions{Store: session.NewMemoryStore(ctx, session.DefaultSweepInterval)}, func() {}, nil
}

// ProvideSessionStore selects the store from the session backend
func ProvideSessionStore(s Sessions) ports.SessionStore { return s.Store }

// ProvideReadinessChecks collects the checks behind /ready.
func ProvideReadinessChecks(storage Storage, sessions Sessions) map[string]rest.ReadinessCheck {
	checks := make(map[string]rest.ReadinessCheck)
	if storage.Ready != nil {
		checks["storage"] = storage.Ready
	}
	if sessions.Ready != nil {
		checks["sessions"] = sessions.Ready
	}
	return checks
}

// ProvideEventPublisher sends events to EventBridge when a bus is
// configured and logs them locally in development.
func ProvideEventPublisher(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) ports.EventPublisher {
	var local []ports.EventPublisher
	if cfg.IsDevelopment() || cfg.EventBusName == "" {
		local = append(local, messaging.NewLogPublisher(logger))
	}
	var primary ports.EventPublisher
	if cfg.EventBusName != "" {
		primary = eventbridge.NewPublisher(awseventbridge.NewFromConfig(awsCfg), cfg.EventBusName, logger)
	}
	return messaging.NewEventDispatcher(primary, logger, local...)
}

// ProvideIdentityVerifier creates the verifier for identity tokens at login
func ProvideIdentityVerifier(cfg *config.Config) (ports.IdentityVerifier, error) {
	if cfg.IdentityVerifier == config.VerifierSupabase {
		v, err := identity.NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	v, err := identity.NewJWTVerifier(cfg.IdentitySecret, cfg.IdentityIssuer)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ProvideJWTGenerator creates the signer for access tokens
func ProvideJWTGenerator(cfg *config.Config) (*auth.JWTGenerator, error) {
	return auth.NewJWTGenerator(auth.JWTGeneratorConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
		ExpiryTime:    cfg.AccessTokenTTL,
		TokenUse:      auth.TokenUseAccess,
	})
}

// ProvideJWTValidator creates the validator for access tokens
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
		TokenUse:      auth.TokenUseAccess,
	})
}

// ProvideAuthService creates the auth service
func ProvideAuthService(
	cfg *config.Config,
	users ports.UserRepository,
	sessions ports.SessionStore,
	verifier ports.IdentityVerifier,
	tokens *auth.JWTGenerator,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *services.AuthService {
	return services.NewAuthService(users, sessions, verifier, tokens, publisher, cfg.RefreshTokenTTL, logger)
}

// ProvideMetrics creates the Prometheus collector, or nil when metrics are
// disabled.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector("todoflow")
}

// ProvideTracing installs the OTLP tracer provider when tracing is enabled.
func ProvideTracing(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	if !cfg.EnableTracing {
		return nil, func() {}, nil
	}
	tp, err := observability.InitTracing(ctx, rest.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return nil, nil, err
	}
	return tp, func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}, nil
}

// ProvideErrorHandler creates the error handler; development builds expose
// internal error messages.
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideRateLimiter creates the limiter for the auth routes
func ProvideRateLimiter(ctx context.Context, cfg *config.Config) auth.RateLimiter {
	return auth.NewTokenBucketLimiter(ctx, cfg.AuthRateLimit.Requests, cfg.AuthRateLimit.Window)
}

// ProvideAuthHandler creates the auth handler
func ProvideAuthHandler(
	cfg *config.Config,
	svc *services.AuthService,
	errorHandler *pkgerrors.ErrorHandler,
	metrics *observability.Collector,
	logger *zap.Logger,
) *handlers.AuthHandler {
	return handlers.NewAuthHandler(svc, errorHandler, metrics, logger, cfg.CookieSecure)
}

// ProvideProjectHandler creates the project handler
func ProvideProjectHandler(
	svc *services.ProjectService,
	errorHandler *pkgerrors.ErrorHandler,
	metrics *observability.Collector,
	logger *zap.Logger,
) *handlers.ProjectHandler {
	return handlers.NewProjectHandler(svc, errorHandler, metrics, logger)
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	projectHandler *handlers.ProjectHandler,
	validator *auth.JWTValidator,
	limiter auth.RateLimiter,
	metrics *observability.Collector,
	errorHandler *pkgerrors.ErrorHandler,
	checks map[string]rest.ReadinessCheck,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(authHandler, projectHandler, validator, limiter, metrics, errorHandler, checks, rest.Options{
		EnableCORS:     cfg.EnableCORS,
		CORSOrigins:    cfg.CORSOrigins,
		EnableTracing:  cfg.EnableTracing,
		AuthRateLimit:  cfg.AuthRateLimit.Requests,
		AuthRateWindow: cfg.AuthRateLimit.Window,
		BreakerEnabled: cfg.CircuitBreaker.Enabled,
		CircuitBreaker: middleware.CircuitBreakerConfig{
			Name:        "projects",
			MaxFailures: uint32(max(cfg.CircuitBreaker.MaxFailures, 1)),
			OpenTimeout: cfg.CircuitBreaker.OpenTimeout,
		},
	}, logger)
}
