package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential backends for the terminal client.
const (
	CredentialFile   = "file"
	CredentialMemory = "memory"
	CredentialRedis  = "redis"
)

// ClientConfig is the terminal client's configuration, read from
// ~/.config/todoflow/config.yaml.
type ClientConfig struct {
	API        APIConfig        `yaml:"api"`
	Credential CredentialConfig `yaml:"credential"`
	Identity   IdentityConfig   `yaml:"identity"`
	Sync       SyncConfig       `yaml:"sync"`
	Log        LogConfig        `yaml:"log"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type CredentialConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
}

// IdentityConfig describes the user the local identity provider signs in.
type IdentityConfig struct {
	UID         string        `yaml:"uid"`
	Email       string        `yaml:"email"`
	DisplayName string        `yaml:"display_name"`
	Secret      string        `yaml:"secret"`
	Issuer      string        `yaml:"issuer"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type SyncConfig struct {
	QuietWindow  time.Duration `yaml:"quiet_window"`
	FlushOnClose bool          `yaml:"flush_on_close"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultClientConfig returns the configuration used when no file exists.
// It matches the defaults of a development server.
func DefaultClientConfig() ClientConfig {
	dir := defaultClientDir()
	return ClientConfig{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Credential: CredentialConfig{
			Backend:   CredentialFile,
			Path:      filepath.Join(dir, "credential.json"),
			RedisAddr: "localhost:6379",
		},
		Identity: IdentityConfig{
			UID:         "dev-user",
			Email:       "dev@todoflow.local",
			DisplayName: "Dev User",
			Secret:      "todoflow-dev-identity-secret",
			Issuer:      "todoflow-dev-idp",
			TokenTTL:    time.Hour,
		},
		Sync: SyncConfig{
			QuietWindow:  time.Second,
			FlushOnClose: true,
		},
		Log: LogConfig{Level: "warn"},
	}
}

// DefaultClientConfigPath is where LoadClientConfig looks when no path is given.
func DefaultClientConfigPath() string {
	return filepath.Join(defaultClientDir(), "config.yaml")
}

func defaultClientDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "todoflow")
}

// LoadClientConfig reads path over the defaults. A missing file is not an
// error; keys absent from the file keep their default.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if path == "" {
		path = DefaultClientConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("read client config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse client config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the values a client cannot run without.
func (c ClientConfig) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	switch c.Credential.Backend {
	case CredentialMemory:
	case CredentialFile:
		if c.Credential.Path == "" {
			return fmt.Errorf("credential.path is required for the file backend")
		}
	case CredentialRedis:
		if c.Credential.RedisAddr == "" {
			return fmt.Errorf("credential.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown credential.backend %q", c.Credential.Backend)
	}
	if c.Identity.UID == "" || c.Identity.Secret == "" {
		return fmt.Errorf("identity.uid and identity.secret are required")
	}
	if c.Sync.QuietWindow < 0 {
		return fmt.Errorf("sync.quiet_window must not be negative")
	}
	return nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c ClientConfig) Save(path string) error {
	if path == "" {
		path = DefaultClientConfigPath()
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
