package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"todoflow/application/notify"
	"todoflow/infrastructure/config"
	"todoflow/infrastructure/credential"
	"todoflow/infrastructure/httpclient"
	"todoflow/infrastructure/identity"
)

const redisCredentialKey = "todoflow:credential"

var errNotLoggedIn = errors.New("not logged in; run `todoflow login`")

// globalFlags override values from the config file.
type globalFlags struct {
	configPath        string
	baseURL           string
	credentialBackend string
	credentialPath    string
	logLevel          string
	json              bool
	field             string
}

// app is the state shared by every command, built once per invocation.
type app struct {
	flags  globalFlags
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg      config.ClientConfig
	logger   *zap.Logger
	repo     credential.Repository
	store    *credential.Store
	provider *identity.LocalProvider
	client   *httpclient.Client
	notifier notify.Notifier
	printer  *printer
	closers  []func()
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "todoflow",
		Short: "Terminal client for TodoFlow task boards",
		Long: `todoflow signs in to a TodoFlow server, manages projects and edits a
project's task graph from a stream of JSON-lines canvas events.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "config file (default ~/.config/todoflow/config.yaml)")
	pf.StringVar(&a.flags.baseURL, "base-url", "", "server base URL")
	pf.StringVar(&a.flags.credentialBackend, "credential-backend", "", "where the credential is kept: file, memory or redis")
	pf.StringVar(&a.flags.credentialPath, "credential-path", "", "credential file for the file backend")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&a.flags.json, "json", false, "print results as JSON")
	pf.StringVar(&a.flags.field, "field", "", "print only this gjson path of the JSON result")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newProjectsCmd(a),
		newEditCmd(a),
		newDebugCmd(a),
	)
	return root
}

// open loads configuration and builds the client. identityOverride, when set,
// adjusts the identity the local provider signs in before it is built.
func (a *app) open(ctx context.Context, identityOverride func(*config.IdentityConfig)) error {
	path := a.flags.configPath
	if path == "" {
		path = config.DefaultClientConfigPath()
	}
	cfg, err := config.LoadClientConfig(path)
	if err != nil {
		return err
	}
	if a.flags.baseURL != "" {
		cfg.API.BaseURL = a.flags.baseURL
	}
	if a.flags.credentialBackend != "" {
		cfg.Credential.Backend = a.flags.credentialBackend
	}
	if a.flags.credentialPath != "" {
		cfg.Credential.Path = a.flags.credentialPath
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if identityOverride != nil {
		identityOverride(&cfg.Identity)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if a.logger, err = newLogger(cfg.Log.Level); err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = a.logger.Sync() })

	a.repo = a.credentialRepository()
	a.store = credential.NewStore(a.repo, a.logger)

	a.provider, err = identity.NewLocalProvider(identity.LocalConfig{
		UID:         cfg.Identity.UID,
		Email:       cfg.Identity.Email,
		DisplayName: cfg.Identity.DisplayName,
		Secret:      cfg.Identity.Secret,
		Issuer:      cfg.Identity.Issuer,
		TokenTTL:    cfg.Identity.TokenTTL,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("identity provider: %w", err)
	}
	if cred, ok := a.store.Restore(ctx); ok {
		a.provider.Restore(cred.Identity)
	}

	a.client, err = httpclient.New(httpclient.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, a.store, a.provider, a.logger)
	if err != nil {
		return err
	}

	a.notifier = notifier(a.errOut)
	a.printer = &printer{out: a.out, json: a.flags.json, field: a.flags.field}
	return nil
}

func (a *app) credentialRepository() credential.Repository {
	switch a.cfg.Credential.Backend {
	case config.CredentialMemory:
		return credential.NewMemoryRepository()
	case config.CredentialRedis:
		client := redis.NewClient(&redis.Options{Addr: a.cfg.Credential.RedisAddr})
		a.closers = append(a.closers, func() { _ = client.Close() })
		return credential.NewRedisRepository(client, redisCredentialKey)
	default:
		return credential.NewFileRepository(a.cfg.Credential.Path, a.logger)
	}
}

// requireLogin returns the stored credential or errNotLoggedIn.
func (a *app) requireLogin(ctx context.Context) (*credential.Credential, error) {
	cred, ok := a.store.Current(ctx)
	if !ok {
		return nil, errNotLoggedIn
	}
	return cred, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newLogger writes human-readable logs to stderr.
func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.DisableStacktrace = true
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}
