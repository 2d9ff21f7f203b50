// Package mocks provides testify mocks of the application ports for unit
// testing services without real infrastructure.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"todoflow/application/ports"
	"todoflow/domain/core/entities"
	"todoflow/domain/events"
)

var (
	_ ports.ProjectRepository = (*ProjectRepository)(nil)
	_ ports.UserRepository    = (*UserRepository)(nil)
	_ ports.SessionStore      = (*SessionStore)(nil)
	_ ports.EventPublisher    = (*EventPublisher)(nil)
	_ ports.IdentityVerifier  = (*IdentityVerifier)(nil)
)

// ProjectRepository is a mock ports.ProjectRepository. Get also accepts a
// func(ctx, ownerID, projectID) return value to hand out fresh copies.
type ProjectRepository struct {
	mock.Mock
}

func (m *ProjectRepository) Create(ctx context.Context, project *entities.Project) error {
	return m.Called(ctx, project).Error(0)
}

func (m *ProjectRepository) Get(ctx context.Context, ownerID, projectID string) (*entities.Project, error) {
	args := m.Called(ctx, ownerID, projectID)
	if fn, ok := args.Get(0).(func(context.Context, string, string) *entities.Project); ok {
		return fn(ctx, ownerID, projectID), args.Error(1)
	}
	if p, ok := args.Get(0).(*entities.Project); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entities.Project, error) {
	args := m.Called(ctx, ownerID)
	if ps, ok := args.Get(0).([]*entities.Project); ok {
		return ps, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) Save(ctx context.Context, project *entities.Project, expectedVersion int64) error {
	return m.Called(ctx, project, expectedVersion).Error(0)
}

func (m *ProjectRepository) Delete(ctx context.Context, ownerID, projectID string) error {
	return m.Called(ctx, ownerID, projectID).Error(0)
}

// UserRepository is a mock ports.UserRepository.
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) Get(ctx context.Context, uid string) (*entities.User, error) {
	args := m.Called(ctx, uid)
	if u, ok := args.Get(0).(*entities.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UserRepository) Save(ctx context.Context, user *entities.User) error {
	return m.Called(ctx, user).Error(0)
}

// SessionStore is a mock ports.SessionStore.
type SessionStore struct {
	mock.Mock
}

func (m *SessionStore) Save(ctx context.Context, tokenHash string, session ports.RefreshSession) error {
	return m.Called(ctx, tokenHash, session).Error(0)
}

func (m *SessionStore) Consume(ctx context.Context, tokenHash string) (*ports.RefreshSession, error) {
	args := m.Called(ctx, tokenHash)
	if s, ok := args.Get(0).(*ports.RefreshSession); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionStore) Revoke(ctx context.Context, tokenHash string) error {
	return m.Called(ctx, tokenHash).Error(0)
}

// EventPublisher is a mock ports.EventPublisher.
type EventPublisher struct {
	mock.Mock
}

func (m *EventPublisher) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	return m.Called(ctx, evts).Error(0)
}

// IdentityVerifier is a mock ports.IdentityVerifier.
type IdentityVerifier struct {
	mock.Mock
}

func (m *IdentityVerifier) Verify(ctx context.Context, token string) (ports.VerifiedIdentity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(ports.VerifiedIdentity), args.Error(1)
}
