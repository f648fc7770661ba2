package session

import (
	"context"
	"sync"
	"time"

	"github.com/microauthx/microauthx/internal/models"
	"github.com/microauthx/microauthx/internal/pkg/ulid"
)

// MemoryStore is an in-process Store implementation. It backs tests and
// single-node development runs; sessions do not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	identity  models.Identity
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory session store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, identity models.Identity) (string, error) {
	token := ulid.New()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = memorySession{
		identity:  identity,
		expiresAt: s.now().Add(s.ttl),
	}
	return token, nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	if s.now().After(sess.expiresAt) {
		delete(s.sessions, token)
		return nil, nil
	}
	identity := sess.identity
	return &identity, nil
}

func (s *MemoryStore) Destroy(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
