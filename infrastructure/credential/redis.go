package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is where RedisRepository keeps the credential unless told
// otherwise.
const DefaultRedisKey = "todoflow:credential"

// RedisRepository keeps the credential under one redis key so several
// processes on different hosts can share a sign-in.
type RedisRepository struct {
	client *redis.Client
	key    string
}

// NewRedisRepository stores the credential under key on client.
func NewRedisRepository(client *redis.Client, key string) *RedisRepository {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRepository{client: client, key: key}
}

func (r *RedisRepository) Load(ctx context.Context) (*Credential, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &c, nil
}

func (r *RedisRepository) Save(ctx context.Context, c Credential) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (r *RedisRepository) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
