package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/supabase-community/supabase-go"

	"todoflow/application/ports"
	"todoflow/pkg/auth"
)

// ErrInvalidIdentity is returned for tokens the provider does not vouch for.
var ErrInvalidIdentity = errors.New("invalid identity token")

var (
	_ ports.IdentityVerifier = (*JWTVerifier)(nil)
	_ ports.IdentityVerifier = (*SupabaseVerifier)(nil)
)

// JWTVerifier accepts identity tokens signed by a LocalProvider.
type JWTVerifier struct {
	validator *auth.JWTValidator
}

// NewJWTVerifier verifies HS256 identity tokens signed with secret.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	v, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        issuer,
		TokenUse:      auth.TokenUseIdentity,
	})
	if err != nil {
		return nil, err
	}
	return &JWTVerifier{validator: v}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (ports.VerifiedIdentity, error) {
	claims, err := v.validator.ValidateToken(token)
	if err != nil {
		return ports.VerifiedIdentity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return ports.VerifiedIdentity{UID: claims.UserID, Email: claims.Email}, nil
}

// SupabaseVerifier asks a Supabase project who a token belongs to.
type SupabaseVerifier struct {
	client *supabase.Client
}

// NewSupabaseVerifier connects to the project at url with a service key.
func NewSupabaseVerifier(url, serviceKey string) (*SupabaseVerifier, error) {
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseVerifier{client: client}, nil
}

func (v *SupabaseVerifier) Verify(_ context.Context, token string) (ports.VerifiedIdentity, error) {
	// GetUser takes no context.
	user, err := v.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return ports.VerifiedIdentity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return ports.VerifiedIdentity{UID: user.ID.String(), Email: user.Email}, nil
}
