package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"todoflow/infrastructure/config"
	"todoflow/infrastructure/session"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerAddress:    ":0",
		Environment:      "test",
		ShutdownTimeout:  time.Second,
		StorageBackend:   config.StorageMemory,
		AWSRegion:        "us-west-2",
		SessionBackend:   config.SessionMemory,
		LogLevel:         "error",
		JWTSecret:        "test-secret",
		JWTIssuer:        "todoflow",
		AccessTokenTTL:   time.Minute,
		RefreshTokenTTL:  time.Hour,
		IdentityVerifier: config.VerifierJWT,
		IdentitySecret:   "test-identity-secret",
		IdentityIssuer:   "todoflow-dev-idp",
		EnableMetrics:    true,
		AuthRateLimit:    config.RateLimitConfig{Requests: 10, Window: time.Second},
		CircuitBreaker:   config.CircuitBreakerConfig{Enabled: true, MaxFailures: 5, OpenTimeout: time.Second},
	}
}

func TestInitializeContainer(t *testing.T) {
	// Arrange
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	// Act
	container, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	// Assert
	assert.Same(t, cfg, container.Config)
	assert.NotNil(t, container.Auth)
	assert.NotNil(t, container.Projects)
	assert.NotNil(t, container.Metrics)
	assert.Nil(t, container.Tracer)

	srv := httptest.NewServer(container.Router.Setup())
	defer srv.Close()
	for _, path := range []string{"/health", "/ready", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
	resp, err := http.Get(srv.URL + "/projects")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProvideLogger(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		level   string
		wantErr bool
	}{
		{name: "development", env: "development", level: "debug"},
		{name: "production", env: "production", level: "warn"},
		{name: "default level", env: "staging"},
		{name: "bad level", env: "development", level: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := testConfig()
			cfg.Environment = tt.env
			cfg.LogLevel = tt.level

			// Act
			logger, err := ProvideLogger(cfg)

			// Assert
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestProvideSessions(t *testing.T) {
	t.Run("memory has no readiness check", func(t *testing.T) {
		// Arrange
		cfg := testConfig()

		// Act
		sessions, cleanup, err := ProvideSessions(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		defer cleanup()

		// Assert
		assert.IsType(t, &session.MemoryStore{}, sessions.Store)
		assert.Nil(t, sessions.Ready)
	})

	t.Run("redis is pinged for readiness", func(t *testing.T) {
		// Arrange
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.SessionBackend = config.SessionRedis
		cfg.RedisURL = "redis://" + mr.Addr()

		// Act
		sessions, cleanup, err := ProvideSessions(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		defer cleanup()

		// Assert
		assert.IsType(t, &session.RedisStore{}, sessions.Store)
		require.NotNil(t, sessions.Ready)
		assert.NoError(t, sessions.Ready(context.Background()))

		checks := ProvideReadinessChecks(Storage{}, sessions)
		assert.Contains(t, checks, "sessions")
		assert.NotContains(t, checks, "storage")
	})
}

func TestProvideIdentityVerifier(t *testing.T) {
	// Arrange
	cfg := testConfig()
	cfg.IdentityVerifier = config.VerifierSupabase
	cfg.SupabaseURL = "https://example.supabase.co"
	cfg.SupabaseKey = "service-key"

	// Act
	supabase, errSupabase := ProvideIdentityVerifier(cfg)
	cfg.IdentityVerifier = config.VerifierJWT
	local, errLocal := ProvideIdentityVerifier(cfg)

	// Assert
	require.NoError(t, errSupabase)
	require.NoError(t, errLocal)
	assert.NotNil(t, supabase)
	assert.NotNil(t, local)
}

func TestProvideMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableMetrics = false
	assert.Nil(t, ProvideMetrics(cfg))
}
