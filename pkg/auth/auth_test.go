package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T, ttl time.Duration, use string) (*JWTGenerator, *JWTValidator) {
	t.Helper()
	gen, err := NewJWTGenerator(JWTGeneratorConfig{
		SigningMethod: "HS256",
		SecretKey:     "test-secret",
		Issuer:        "todoflow",
		Audience:      []string{"todoflow-api"},
		ExpiryTime:    ttl,
		TokenUse:      use,
	})
	require.NoError(t, err)
	val, err := NewJWTValidator(JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     "test-secret",
		Issuer:        "todoflow",
		Audience:      []string{"todoflow-api"},
		TokenUse:      TokenUseAccess,
	})
	require.NoError(t, err)
	return gen, val
}

func TestJWT_RoundTrip(t *testing.T) {
	// Arrange
	gen, val := newPair(t, time.Minute, TokenUseAccess)

	// Act
	token, exp, err := gen.GenerateToken("user-1", "a@example.com", "Ada")
	require.NoError(t, err)
	claims, err := val.ValidateToken("Bearer " + token)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Ada", claims.DisplayName)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)
}

func TestJWT_Rejections(t *testing.T) {
	t.Run("expired", func(t *testing.T) {
		gen, val := newPair(t, time.Minute, TokenUseAccess)
		gen.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _, err := gen.GenerateToken("user-1", "", "")
		require.NoError(t, err)

		_, err = val.ValidateToken(token)

		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong token use", func(t *testing.T) {
		gen, val := newPair(t, time.Minute, TokenUseIdentity)
		token, _, err := gen.GenerateToken("user-1", "", "")
		require.NoError(t, err)

		_, err = val.ValidateToken(token)

		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("missing", func(t *testing.T) {
		_, val := newPair(t, time.Minute, TokenUseAccess)

		_, err := val.ValidateToken("Bearer ")

		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("bad signature", func(t *testing.T) {
		_, val := newPair(t, time.Minute, TokenUseAccess)
		other, err := NewJWTGenerator(JWTGeneratorConfig{SecretKey: "other", Issuer: "todoflow", Audience: []string{"todoflow-api"}, TokenUse: TokenUseAccess})
		require.NoError(t, err)
		token, _, err := other.GenerateToken("user-1", "", "")
		require.NoError(t, err)

		_, err = val.ValidateToken(token)

		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestTokenBucketLimiter(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	now := time.Unix(1000, 0)
	l := NewTokenBucketLimiter(ctx, 2, time.Second)
	l.now = func() time.Time { return now }

	// Act & Assert
	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "ip:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "ip:1")
	assert.False(t, ok, "bucket should be empty")

	ok, _ = l.Allow(ctx, "ip:2")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "ip:1")
	assert.True(t, ok, "one token refilled")

	require.NoError(t, l.Reset(ctx, "ip:1"))
	ok, _ = l.Allow(ctx, "ip:1")
	assert.True(t, ok)
}

func TestUserContext(t *testing.T) {
	_, err := GetUserFromContext(context.Background())
	assert.Error(t, err)

	ctx := SetUserInContext(context.Background(), &UserContext{UserID: "u1"})
	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
}
