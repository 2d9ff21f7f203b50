package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"todoflow/application/ports"
	"todoflow/domain/core/entities"
	"todoflow/domain/events"
	"todoflow/pkg/auth"
	pkgerrors "todoflow/pkg/errors"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	refreshTokenBytes = 16
)

// LoginInput is what a client presents after signing in with the identity
// provider.
type LoginInput struct {
	UID           string
	Email         string
	DisplayName   string
	PhotoURL      *string
	IdentityToken string
}

// TokenPair is a freshly issued access token and refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User   *entities.User
	Tokens TokenPair
}

// AuthService exchanges identity tokens for backend sessions and rotates
// refresh tokens.
type AuthService struct {
	users      ports.UserRepository
	sessions   ports.SessionStore
	verifier   ports.IdentityVerifier
	tokens     *auth.JWTGenerator
	publisher  ports.EventPublisher
	refreshTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService creates an auth service. A zero refreshTTL means
// DefaultRefreshTTL.
func NewAuthService(
	users ports.UserRepository,
	sessions ports.SessionStore,
	verifier ports.IdentityVerifier,
	tokens *auth.JWTGenerator,
	publisher ports.EventPublisher,
	refreshTTL time.Duration,
	logger *zap.Logger,
) *AuthService {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &AuthService{
		users:      users,
		sessions:   sessions,
		verifier:   verifier,
		tokens:     tokens,
		publisher:  publisher,
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Login verifies the identity token, records the user and opens a session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if in.IdentityToken == "" {
		return nil, pkgerrors.NewUnauthorizedError("identity token is required").WithCode(pkgerrors.CodeTokenInvalid)
	}
	verified, err := s.verifier.Verify(ctx, in.IdentityToken)
	if err != nil {
		s.logger.Warn("Identity token rejected", zap.String("uid", in.UID), zap.Error(err))
		return nil, pkgerrors.NewUnauthorizedError("identity token rejected").
			WithCode(pkgerrors.CodeTokenInvalid).
			WithCause(err)
	}
	if verified.UID != in.UID {
		s.logger.Warn("Identity token does not match uid",
			zap.String("uid", in.UID),
			zap.String("tokenUID", verified.UID),
		)
		return nil, pkgerrors.NewUnauthorizedError("identity token does not match uid").WithCode(pkgerrors.CodeTokenInvalid)
	}

	email := in.Email
	if email == "" {
		email = verified.Email
	}
	now := s.now()
	incoming, err := entities.NewUser(in.UID, email, in.DisplayName, in.PhotoURL, now)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, in.UID)
	switch {
	case err == nil:
		user.MergeLogin(incoming)
	case pkgerrors.IsNotFound(err):
		user = incoming
	default:
		return nil, err
	}
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}

	pair, err := s.issue(ctx, user.UID, user.Email, user.DisplayName, now)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewUserLoggedIn(user.UID, user.Email, now.UTC()))
	s.logger.Info("User logged in", zap.String("uid", user.UID))
	return &LoginResult{User: user, Tokens: *pair}, nil
}

// Refresh trades a refresh token for a new pair. The presented token is
// spent whether or not issuing succeeds.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, pkgerrors.NewUnauthorizedError("refresh token is required").WithCode(pkgerrors.CodeRefreshRevoked)
	}
	hash := HashToken(refreshToken)
	session, err := s.sessions.Consume(ctx, hash)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewUnauthorizedError("refresh token is invalid or revoked").WithCode(pkgerrors.CodeRefreshRevoked)
		}
		return nil, err
	}
	now := s.now()
	if session.Expired(now) {
		return nil, pkgerrors.NewUnauthorizedError("refresh token has expired").WithCode(pkgerrors.CodeRefreshRevoked)
	}

	pair, err := s.issue(ctx, session.UserID, session.Email, session.Name, now)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Refresh token rotated", zap.String("uid", session.UserID))
	return pair, nil
}

// Logout revokes the refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, HashToken(refreshToken))
}

func (s *AuthService) issue(ctx context.Context, uid, email, name string, now time.Time) (*TokenPair, error) {
	access, accessExp, err := s.tokens.GenerateToken(uid, email, name)
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to sign access token").WithCause(err)
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to generate refresh token").WithCause(err)
	}
	refreshExp := now.Add(s.refreshTTL).UTC()
	err = s.sessions.Save(ctx, HashToken(refresh), ports.RefreshSession{
		UserID:    uid,
		Email:     email,
		Name:      name,
		CreatedAt: now.UTC(),
		ExpiresAt: refreshExp,
	})
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, evts ...events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.Warn("Failed to publish events", zap.Int("count", len(evts)), zap.Error(err))
	}
}

// HashToken is the key a refresh token is stored under.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}
