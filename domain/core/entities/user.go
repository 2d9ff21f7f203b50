package entities

import (
	"strings"
	"time"

	pkgerrors "todoflow/pkg/errors"
)

// User is the account record keyed by the identity provider's uid.
type User struct {
	UID         string     `json:"uid"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	PhotoURL    *string    `json:"photoURL,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// NewUser validates and builds a user from sign-in data.
func NewUser(uid, email, displayName string, photoURL *string, now time.Time) (*User, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, pkgerrors.NewValidationError("uid is required")
	}
	if photoURL != nil && strings.TrimSpace(*photoURL) == "" {
		photoURL = nil
	}
	t := now.UTC()
	return &User{
		UID:         uid,
		Email:       strings.TrimSpace(email),
		DisplayName: strings.TrimSpace(displayName),
		PhotoURL:    photoURL,
		CreatedAt:   t,
		LastLoginAt: &t,
	}, nil
}

// MergeLogin refreshes profile fields from a new sign-in, keeping CreatedAt.
func (u *User) MergeLogin(next *User) {
	u.Email = next.Email
	if next.DisplayName != "" {
		u.DisplayName = next.DisplayName
	}
	if next.PhotoURL != nil {
		u.PhotoURL = next.PhotoURL
	}
	u.LastLoginAt = next.LastLoginAt
}
