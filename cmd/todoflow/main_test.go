package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"todoflow/infrastructure/config"
	"todoflow/infrastructure/di"
)

type cliEnv struct {
	url        string
	configPath string
	credPath   string
}

// newCLIEnv starts an in-memory server whose identity settings match the
// client defaults.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	color.NoColor = true
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	defaults := config.DefaultClientConfig()
	cfg := &config.Config{
		Environment:      "test",
		ShutdownTimeout:  time.Second,
		StorageBackend:   config.StorageMemory,
		AWSRegion:        "us-west-2",
		SessionBackend:   config.SessionMemory,
		LogLevel:         "error",
		JWTSecret:        "cli-test-secret",
		JWTIssuer:        "todoflow",
		AccessTokenTTL:   time.Minute,
		RefreshTokenTTL:  time.Hour,
		IdentityVerifier: config.VerifierJWT,
		IdentitySecret:   defaults.Identity.Secret,
		IdentityIssuer:   defaults.Identity.Issuer,
		AuthRateLimit:    config.RateLimitConfig{Requests: 100, Window: time.Second},
	}
	require.NoError(t, cfg.Validate())

	container, cleanup, err := di.InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	srv := httptest.NewServer(container.Router.Setup())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	return &cliEnv{
		url:        srv.URL,
		configPath: filepath.Join(dir, "missing.yaml"),
		credPath:   filepath.Join(dir, "credential.json"),
	}
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(append([]string{
		"--config", e.configPath,
		"--base-url", e.url,
		"--credential-path", e.credPath,
		"--log-level", "error",
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestCLI_SessionLifecycle(t *testing.T) {
	env := newCLIEnv(t)

	// Not logged in yet
	_, _, err := env.run(t, "", "whoami")
	require.ErrorIs(t, err, errNotLoggedIn)

	// Login with overrides
	out, _, err := env.run(t, "", "login", "--uid", "alice", "--email", "alice@example.com", "--name", "Alice", "--json")
	require.NoError(t, err)
	assert.Equal(t, "alice", gjson.Get(out, "uid").String())

	out, _, err = env.run(t, "", "whoami", "--field", "email")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", strings.TrimSpace(out))

	// Projects
	out, _, err = env.run(t, "", "projects", "create", "Launch", "--field", "id")
	require.NoError(t, err)
	projectID := strings.TrimSpace(out)
	require.NotEmpty(t, projectID)

	_, _, err = env.run(t, "", "projects", "rename", projectID, "Launch v2")
	require.NoError(t, err)

	out, _, err = env.run(t, "", "projects", "list", "--field", "0.name")
	require.NoError(t, err)
	assert.Equal(t, "Launch v2", strings.TrimSpace(out))

	// A forced refresh is transparent
	_, _, err = env.run(t, "", "debug", "expire-token")
	require.NoError(t, err)
	out, _, err = env.run(t, "", "projects", "list", "--field", "#")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))

	// Delete
	_, _, err = env.run(t, "", "projects", "delete", projectID)
	require.NoError(t, err)
	out, _, err = env.run(t, "", "projects", "list", "--field", "#")
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out))

	// Logout
	_, _, err = env.run(t, "", "logout")
	require.NoError(t, err)
	_, _, err = env.run(t, "", "projects", "list")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestCLI_EditSyncsEventStream(t *testing.T) {
	// Arrange
	env := newCLIEnv(t)
	_, _, err := env.run(t, "", "login")
	require.NoError(t, err)
	out, _, err := env.run(t, "", "projects", "create", "Board", "--field", "id")
	require.NoError(t, err)
	projectID := strings.TrimSpace(out)

	const a, b = "11111111-1111-4111-8111-111111111111", "22222222-2222-4222-8222-222222222222"
	events := strings.Join([]string{
		`# two tasks and a dependency`,
		`{"op":"nodes","changes":[{"type":"add","item":{"id":"` + a + `","type":"task","position":{"x":0,"y":0},"data":{"title":"Design","description":"","status":"TODO"}}}]}`,
		`{"op":"nodes","changes":[{"type":"add","item":{"id":"` + b + `","type":"task","position":{"x":200,"y":0},"data":{"title":"Build","description":"","status":"TODO"}}}]}`,
		`{"op":"connect","source":"` + a + `","target":"` + b + `"}`,
		`{"op":"data","id":"` + a + `","status":"DONE"}`,
		`not json`,
		`{"op":"flush"}`,
		``,
	}, "\n")

	// Act
	_, errOut, err := env.run(t, events, "edit", projectID)

	// Assert
	require.NoError(t, err)
	assert.Contains(t, errOut, "line 6: not valid JSON")
	assert.Contains(t, errOut, "sync synced")

	out, _, err = env.run(t, "", "edit", projectID, "--json")
	require.NoError(t, err)
	assert.Equal(t, int64(2), gjson.Get(out, "nodes.#").Int())
	assert.Equal(t, int64(1), gjson.Get(out, "edges.#").Int())
	assert.Equal(t, "DONE", gjson.Get(out, `nodes.#(id=="`+a+`").data.status`).String())
}
