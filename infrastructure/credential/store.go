// Package credential persists the signed-in identity and its tokens across
// restarts.
package credential

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"todoflow/domain/core/entities"
)

// ErrNotFound is returned by a Repository holding no credential.
var ErrNotFound = errors.New("no stored credential")

// Credential is the current identity with the tokens that authenticate it.
type Credential struct {
	Identity     entities.User `json:"identity"`
	BearerToken  string        `json:"bearerToken"`
	RefreshToken string        `json:"refreshToken"`
}

// Repository is durable storage for at most one credential.
type Repository interface {
	Load(ctx context.Context) (*Credential, error)
	Save(ctx context.Context, c Credential) error
	Clear(ctx context.Context) error
}

// Store fronts a Repository with an in-process cache. Storage failures are
// logged and never returned.
type Store struct {
	repo   Repository
	logger *zap.Logger

	mu     sync.RWMutex
	cached *Credential
	fresh  bool
}

// NewStore wraps repo.
func NewStore(repo Repository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, logger: logger}
}

// Restore reads the credential from durable storage, bypassing the cache.
// It never touches the network.
func (s *Store) Restore(ctx context.Context) (*Credential, bool) {
	c, err := s.repo.Load(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("Failed to restore credential", zap.Error(err))
	}
	if err != nil {
		c = nil
	}

	s.mu.Lock()
	s.cached = c
	s.fresh = true
	s.mu.Unlock()

	if c == nil {
		return nil, false
	}
	out := *c
	return &out, true
}

// Current returns the cached credential, restoring it on first use or after
// Invalidate.
func (s *Store) Current(ctx context.Context) (*Credential, bool) {
	s.mu.RLock()
	c, fresh := s.cached, s.fresh
	s.mu.RUnlock()
	if !fresh {
		return s.Restore(ctx)
	}
	if c == nil {
		return nil, false
	}
	out := *c
	return &out, true
}

// BearerToken is a shortcut for the current credential's token.
func (s *Store) BearerToken(ctx context.Context) string {
	if c, ok := s.Current(ctx); ok {
		return c.BearerToken
	}
	return ""
}

// Save overwrites the stored credential.
func (s *Store) Save(ctx context.Context, c Credential) {
	s.mu.Lock()
	stored := c
	s.cached = &stored
	s.fresh = true
	s.mu.Unlock()

	if err := s.repo.Save(ctx, c); err != nil {
		s.logger.Error("Failed to persist credential", zap.Error(err), zap.String("uid", c.Identity.UID))
	}
}

// Clear removes the credential.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.cached = nil
	s.fresh = true
	s.mu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		s.logger.Error("Failed to clear credential", zap.Error(err))
	}
}

// Invalidate drops the cache so the next Current reads storage again. File
// watchers call it when another process rewrites the credential.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.fresh = false
	s.mu.Unlock()
}
