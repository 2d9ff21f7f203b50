// Package session provides refresh session storage backends.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"todoflow/application/ports"
	pkgerrors "todoflow/pkg/errors"
)

const defaultPrefix = "todoflow:refresh:"

// RedisStore keeps refresh sessions in Redis with a TTL matching their expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ ports.SessionStore = (*RedisStore)(nil)

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: defaultPrefix}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

func (s *RedisStore) Save(ctx context.Context, tokenHash string, session ports.RefreshSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal refresh session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return pkgerrors.NewValidationError("refresh session already expired")
	}
	if err := s.client.Set(ctx, s.key(tokenHash), data, ttl).Err(); err != nil {
		return pkgerrors.NewDatabaseError("save refresh session", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, tokenHash string) (*ports.RefreshSession, error) {
	data, err := s.client.GetDel(ctx, s.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, pkgerrors.NewNotFoundError("refresh session")
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("consume refresh session", err)
	}
	var session ports.RefreshSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal refresh session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) Revoke(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return pkgerrors.NewDatabaseError("revoke refresh session", err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
