package credential

import (
	"context"
	"sync"
)

// MemoryRepository keeps the credential in process memory.
type MemoryRepository struct {
	mu sync.Mutex
	c  *Credential
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Load(context.Context) (*Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		return nil, ErrNotFound
	}
	out := *r.c
	return &out, nil
}

func (r *MemoryRepository) Save(_ context.Context, c Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.c = &c
	return nil
}

func (r *MemoryRepository) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.c = nil
	return nil
}
