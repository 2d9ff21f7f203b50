package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends for users and projects.
const (
	StorageMemory   = "memory"
	StorageDynamoDB = "dynamodb"
	StoragePostgres = "postgres"
)

// Session backends for refresh tokens.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Identity verifiers used at login.
const (
	VerifierJWT      = "jwt"
	VerifierSupabase = "supabase"
)

// RateLimitConfig bounds requests to the auth endpoints per client IP.
type RateLimitConfig struct {
	// Requests is the bucket size
	Requests int
	// Window is the time to refill one token
	Window time.Duration
}

// CircuitBreakerConfig configures the breaker in front of project storage.
type CircuitBreakerConfig struct {
	Enabled bool
	// MaxFailures is the number of consecutive failures that opens the breaker
	MaxFailures int
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration
}

// Config holds all server configuration
type Config struct {
	// Server configuration
	ServerAddress   string
	Environment     string
	ShutdownTimeout time.Duration
	IsLambda        bool

	// Storage
	StorageBackend   string
	AWSRegion        string
	DynamoDBTable    string
	DynamoDBEndpoint string
	DatabaseURL      string

	// Refresh sessions
	SessionBackend string
	RedisURL       string

	// Events
	EventBusName string

	// Logging
	LogLevel string

	// Authentication
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CookieSecure    bool

	// Identity verification
	IdentityVerifier string
	IdentitySecret   string
	IdentityIssuer   string
	SupabaseURL      string
	SupabaseKey      string

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
	EnableCORS    bool
	CORSOrigins   []string
	OTLPEndpoint  string

	AuthRateLimit  RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress:   getEnv("SERVER_ADDRESS", ":8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		IsLambda:        getEnvBool("IS_LAMBDA", os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""),

		StorageBackend:   getEnv("STORAGE_BACKEND", StorageMemory),
		AWSRegion:        getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable:    getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "todoflow")),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),

		SessionBackend: getEnv("SESSION_BACKEND", SessionMemory),
		RedisURL:       getEnv("REDIS_URL", ""),

		EventBusName: getEnv("EVENT_BUS_NAME", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "todoflow"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		CookieSecure:    getEnvBool("COOKIE_SECURE", true),

		IdentityVerifier: getEnv("IDENTITY_VERIFIER", VerifierJWT),
		IdentitySecret:   getEnv("IDENTITY_SECRET", ""),
		IdentityIssuer:   getEnv("IDENTITY_ISSUER", "todoflow-dev-idp"),
		SupabaseURL:      getEnv("SUPABASE_URL", ""),
		SupabaseKey:      getEnv("SUPABASE_SERVICE_KEY", ""),

		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
		CORSOrigins:   getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		OTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		AuthRateLimit: RateLimitConfig{
			Requests: getEnvInt("AUTH_RATE_LIMIT", 20),
			Window:   getEnvDuration("AUTH_RATE_WINDOW", 3*time.Second),
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:     getEnvBool("CIRCUIT_BREAKER_ENABLED", true),
			MaxFailures: getEnvInt("CIRCUIT_BREAKER_MAX_FAILURES", 5),
			OpenTimeout: getEnvDuration("CIRCUIT_BREAKER_TIMEOUT", 30*time.Second),
		},
	}

	if cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "todoflow-dev-secret"
		}
		if cfg.IdentitySecret == "" {
			cfg.IdentitySecret = "todoflow-dev-identity-secret"
		}
		cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory:
	case StorageDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb backend")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.SessionBackend {
	case SessionMemory:
	case SessionRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis session backend")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	switch c.IdentityVerifier {
	case VerifierJWT:
		if c.IdentitySecret == "" {
			return fmt.Errorf("IDENTITY_SECRET is required for the jwt verifier")
		}
	case VerifierSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase verifier")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_VERIFIER %q", c.IdentityVerifier)
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.AuthRateLimit.Requests <= 0 || c.AuthRateLimit.Window <= 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT and AUTH_RATE_WINDOW must be positive")
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.StorageBackend == StorageMemory {
			return fmt.Errorf("STORAGE_BACKEND memory is not allowed in production")
		}
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable such as "15m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
