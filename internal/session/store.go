// Package session implements the auth service's server-side session store:
// an opaque token delivered via cookie, mapped to an identity snapshot
// with TTL-based expiry.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/microauthx/microauthx/internal/database"
	"github.com/microauthx/microauthx/internal/models"
	"github.com/microauthx/microauthx/internal/pkg/ulid"
)

const keyPrefix = "session:"

// Store defines the session store contract. A session exists only after a
// successful login and disappears on Destroy or TTL expiry.
type Store interface {
	// Create issues a new session for the identity and returns its token.
	Create(ctx context.Context, identity models.Identity) (string, error)

	// Get returns the identity for a token, or (nil, nil) when the session
	// does not exist or has expired.
	Get(ctx context.Context, token string) (*models.Identity, error)

	// Destroy removes a session. Destroying an absent session is a no-op.
	Destroy(ctx context.Context, token string) error
}

// RedisStore is the Redis-backed Store implementation.
type RedisStore struct {
	redis *database.Redis
	ttl   time.Duration
}

// NewRedisStore creates a session store with the given TTL.
func NewRedisStore(r *database.Redis, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: r, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, identity models.Identity) (string, error) {
	payload, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("failed to encode session payload: %w", err)
	}

	token := ulid.New()
	if err := s.redis.Set(ctx, keyPrefix+token, payload, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (*models.Identity, error) {
	if !ulid.IsValid(token) {
		return nil, nil
	}

	raw, err := s.redis.Get(ctx, keyPrefix+token)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var identity models.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, fmt.Errorf("failed to decode session payload: %w", err)
	}
	return &identity, nil
}

func (s *RedisStore) Destroy(ctx context.Context, token string) error {
	if err := s.redis.Delete(ctx, keyPrefix+token); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
