package memory

import (
	"context"
	"sync"

	"todoflow/application/ports"
	"todoflow/domain/core/entities"
	pkgerrors "todoflow/pkg/errors"
)

// UserRepository keeps users in a map.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]entities.User
}

var _ ports.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]entities.User)}
}

func (r *UserRepository) Get(_ context.Context, uid string) (*entities.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[uid]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("user")
	}
	return &u, nil
}

func (r *UserRepository) Save(_ context.Context, user *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[user.UID] = *user
	return nil
}
