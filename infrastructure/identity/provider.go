// Package identity covers both ends of federated sign-in: the client-side
// provider that signs a user in and mints identity tokens, and the
// server-side verifiers that check those tokens at login.
package identity

import (
	"context"
	"errors"

	"todoflow/domain/core/entities"
)

// ErrNotSignedIn is returned when a token is requested with nobody signed in.
var ErrNotSignedIn = errors.New("no user is signed in")

// SignInResult is what a successful sign-in yields.
type SignInResult struct {
	Identity     entities.User
	IDToken      string
	RefreshToken string
}

// Provider is the identity provider as seen by the client.
type Provider interface {
	SignIn(ctx context.Context) (SignInResult, error)
	// MintToken returns an identity token for the signed-in user. With
	// forceRefresh a fresh token is minted even if the cached one is valid.
	MintToken(ctx context.Context, forceRefresh bool) (string, error)
	SignOut(ctx context.Context) error
	// OnAuthStateChanged calls fn with the new user (nil on sign-out) and
	// returns a function that stops the notifications.
	OnAuthStateChanged(fn func(*entities.User)) (unsubscribe func())
}
