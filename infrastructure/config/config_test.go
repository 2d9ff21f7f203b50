package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, StorageMemory, cfg.StorageBackend)
	assert.Equal(t, SessionMemory, cfg.SessionBackend)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.False(t, cfg.CookieSecure)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	// Arrange
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("IDENTITY_SECRET", "id-secret")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/todoflow")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("AUTH_RATE_LIMIT", "3")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	// Act
	cfg, err := LoadConfig()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.StorageBackend)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 3, cfg.AuthRateLimit.Requests)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.CookieSecure)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:      "development",
			StorageBackend:   StorageMemory,
			SessionBackend:   SessionMemory,
			IdentityVerifier: VerifierJWT,
			IdentitySecret:   "id",
			JWTSecret:        "secret",
			AccessTokenTTL:   time.Minute,
			RefreshTokenTTL:  time.Hour,
			AuthRateLimit:    RateLimitConfig{Requests: 1, Window: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown storage", mutate: func(c *Config) { c.StorageBackend = "mongo" }, wantErr: "STORAGE_BACKEND"},
		{name: "postgres without url", mutate: func(c *Config) { c.StorageBackend = StoragePostgres }, wantErr: "DATABASE_URL"},
		{name: "redis without url", mutate: func(c *Config) { c.SessionBackend = SessionRedis }, wantErr: "REDIS_URL"},
		{name: "supabase without key", mutate: func(c *Config) { c.IdentityVerifier = VerifierSupabase }, wantErr: "SUPABASE_URL"},
		{name: "jwt verifier without secret", mutate: func(c *Config) { c.IdentitySecret = "" }, wantErr: "IDENTITY_SECRET"},
		{name: "zero ttl", mutate: func(c *Config) { c.AccessTokenTTL = 0 }, wantErr: "TTL"},
		{name: "production needs secret", mutate: func(c *Config) {
			c.Environment = "production"
			c.StorageBackend = StorageDynamoDB
			c.DynamoDBTable = "t"
			c.JWTSecret = ""
		}, wantErr: "JWT_SECRET is required in production"},
		{name: "production rejects memory storage", mutate: func(c *Config) { c.Environment = "production" }, wantErr: "not allowed in production"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadClientConfig(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.yaml"))

		require.NoError(t, err)
		assert.Equal(t, DefaultClientConfig(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		// Arrange
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://api.todoflow.example
  timeout: 10s
credential:
  backend: memory
sync:
  quiet_window: 250ms
  flush_on_close: false
`), 0o600))

		// Act
		cfg, err := LoadClientConfig(path)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "https://api.todoflow.example", cfg.API.BaseURL)
		assert.Equal(t, 10*time.Second, cfg.API.Timeout)
		assert.Equal(t, CredentialMemory, cfg.Credential.Backend)
		assert.Equal(t, 250*time.Millisecond, cfg.Sync.QuietWindow)
		assert.False(t, cfg.Sync.FlushOnClose)
		assert.Equal(t, DefaultClientConfig().Identity, cfg.Identity)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("credential:\n  backend: s3\n"), 0o600))

		_, err := LoadClientConfig(path)

		assert.ErrorContains(t, err, "credential.backend")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("api: [unterminated"), 0o600))

		_, err := LoadClientConfig(path)

		assert.ErrorContains(t, err, "parse client config")
	})
}

func TestClientConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultClientConfig()
	cfg.Log.Level = "debug"

	require.NoError(t, cfg.Save(path))
	loaded, err := LoadClientConfig(path)

	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
