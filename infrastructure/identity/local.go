package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"todoflow/domain/core/entities"
	"todoflow/pkg/auth"
)

// LocalConfig describes the user a LocalProvider signs in and the key its
// tokens are signed with. The backend must verify with the same key.
type LocalConfig struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    *string
	Secret      string
	Issuer      string
	TokenTTL    time.Duration
}

// LocalProvider is a self-contained identity provider for development and
// tests. It signs HS256 identity tokens instead of delegating to an OAuth
// service.
type LocalProvider struct {
	cfg       LocalConfig
	generator *auth.JWTGenerator
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	user      *entities.User
	token     string
	expiresAt time.Time
	listeners map[int]func(*entities.User)
	nextID    int
}

// NewLocalProvider builds a provider for cfg.
func NewLocalProvider(cfg LocalConfig, logger *zap.Logger) (*LocalProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gen, err := auth.NewJWTGenerator(auth.JWTGeneratorConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.Secret,
		Issuer:        cfg.Issuer,
		ExpiryTime:    cfg.TokenTTL,
		TokenUse:      auth.TokenUseIdentity,
	})
	if err != nil {
		return nil, err
	}
	return &LocalProvider{
		cfg:       cfg,
		generator: gen,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]func(*entities.User)),
	}, nil
}

func (p *LocalProvider) SignIn(ctx context.Context) (SignInResult, error) {
	user, err := entities.NewUser(p.cfg.UID, p.cfg.Email, p.cfg.DisplayName, p.cfg.PhotoURL, p.now())
	if err != nil {
		return SignInResult{}, err
	}

	p.mu.Lock()
	p.user = user
	p.token = ""
	token, err := p.mintLocked()
	p.mu.Unlock()
	if err != nil {
		return SignInResult{}, err
	}

	refresh := make([]byte, 16)
	if _, err := rand.Read(refresh); err != nil {
		return SignInResult{}, err
	}

	p.logger.Info("Signed in", zap.String("uid", user.UID))
	p.broadcast(user)
	return SignInResult{Identity: *user, IDToken: token, RefreshToken: hex.EncodeToString(refresh)}, nil
}

func (p *LocalProvider) MintToken(_ context.Context, forceRefresh bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return "", ErrNotSignedIn
	}
	if !forceRefresh && p.token != "" && p.now().Before(p.expiresAt) {
		return p.token, nil
	}
	return p.mintLocked()
}

func (p *LocalProvider) mintLocked() (string, error) {
	token, expiresAt, err := p.generator.GenerateToken(p.user.UID, p.user.Email, p.user.DisplayName)
	if err != nil {
		return "", err
	}
	p.token, p.expiresAt = token, expiresAt
	return token, nil
}

// Restore marks user as signed in without minting, as after a restart with a
// stored credential.
func (p *LocalProvider) Restore(user entities.User) {
	p.mu.Lock()
	p.user = &user
	p.token = ""
	p.mu.Unlock()
	p.broadcast(&user)
}

func (p *LocalProvider) SignOut(context.Context) error {
	p.mu.Lock()
	wasSignedIn := p.user != nil
	p.user, p.token = nil, ""
	p.mu.Unlock()

	if wasSignedIn {
		p.logger.Info("Signed out")
		p.broadcast(nil)
	}
	return nil
}

func (p *LocalProvider) OnAuthStateChanged(fn func(*entities.User)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *LocalProvider) broadcast(user *entities.User) {
	p.mu.Lock()
	fns := make([]func(*entities.User), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		if user == nil {
			fn(nil)
			continue
		}
		u := *user
		fn(&u)
	}
}
