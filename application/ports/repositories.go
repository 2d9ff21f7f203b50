// Package ports declares the interfaces the application layer needs from
// infrastructure: persistence, refresh sessions, event publishing and
// identity verification.
package ports

import (
	"context"
	"time"

	"todoflow/domain/core/entities"
	"todoflow/domain/events"
)

// ProjectRepository persists projects together with their graphs.
// Every lookup is scoped to the owner; a project owned by someone else is
// reported as not found.
type ProjectRepository interface {
	// Create stores a new project. It fails with a conflict if the id is taken.
	Create(ctx context.Context, project *entities.Project) error

	// Get loads a project with its nodes and edges.
	Get(ctx context.Context, ownerID, projectID string) (*entities.Project, error)

	// ListByOwner returns the owner's projects, newest first. Implementations
	// may omit the graph.
	ListByOwner(ctx context.Context, ownerID string) ([]*entities.Project, error)

	// Save replaces a stored project if its stored version still equals
	// expectedVersion, and fails with a VERSION_CONFLICT error otherwise.
	Save(ctx context.Context, project *entities.Project, expectedVersion int64) error

	// Delete removes a project. Deleting a missing project is a not found error.
	Delete(ctx context.Context, ownerID, projectID string) error
}

// UserRepository persists user accounts.
type UserRepository interface {
	Get(ctx context.Context, uid string) (*entities.User, error)
	Save(ctx context.Context, user *entities.User) error
}

// RefreshSession is what the server remembers about an issued refresh token.
type RefreshSession struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer usable at now.
func (s RefreshSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore keeps refresh sessions keyed by the hash of the token, so a
// leaked store never reveals usable tokens.
type SessionStore interface {
	Save(ctx context.Context, tokenHash string, session RefreshSession) error

	// Consume atomically removes and returns the session, so a refresh token
	// can be spent once. Unknown or revoked sessions are a not found error.
	Consume(ctx context.Context, tokenHash string) (*RefreshSession, error)

	// Revoke forgets a session. Revoking an unknown session is not an error.
	Revoke(ctx context.Context, tokenHash string) error
}

// EventPublisher delivers domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, events ...events.DomainEvent) error
}

// VerifiedIdentity is the identity an identity token proves.
type VerifiedIdentity struct {
	UID   string
	Email string
}

// IdentityVerifier checks identity tokens presented at login.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (VerifiedIdentity, error)
}
