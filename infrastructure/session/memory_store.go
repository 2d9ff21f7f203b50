package session

import (
	"context"
	"sync"
	"time"

	"todoflow/application/ports"
	pkgerrors "todoflow/pkg/errors"
)

// DefaultSweepInterval is how often expired sessions are dropped.
const DefaultSweepInterval = 5 * time.Minute

// MemoryStore keeps refresh sessions in process. A background sweep drops
// expired sessions until the context passed to NewMemoryStore is done.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]ports.RefreshSession
	now      func() time.Time
}

var _ ports.SessionStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store that sweeps expired sessions every
// sweepEvery. A non-positive interval disables the sweep.
func NewMemoryStore(ctx context.Context, sweepEvery time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]ports.RefreshSession),
		now:      time.Now,
	}
	if sweepEvery > 0 {
		go s.cleanupRoutine(ctx, sweepEvery)
	}
	return s
}

func (s *MemoryStore) Save(_ context.Context, tokenHash string, session ports.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[tokenHash] = session
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, tokenHash string) (*ports.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("refresh session")
	}
	delete(s.sessions, tokenHash)
	if session.Expired(s.now()) {
		return nil, pkgerrors.NewNotFoundError("refresh session")
	}
	return &session, nil
}

func (s *MemoryStore) Revoke(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, tokenHash)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) cleanupRoutine(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for hash, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, hash)
		}
	}
}
