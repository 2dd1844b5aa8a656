package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-holocrypt"
	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps sessions as JSON values in redis. Keys expire after
// TTL so abandoned client scopes do not pile up.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ TokenStorage = (*RedisStorage)(nil)

// NewRedisStorage wraps client. An empty prefix stores keys verbatim, a
// zero ttl never expires them.
func NewRedisStorage(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisStorageFromConfig dials redis as described by cfg
func NewRedisStorageFromConfig(cfg holocrypt.RedisConfig) *RedisStorage {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStorage(client, cfg.Prefix, cfg.TTL)
}

func (r *RedisStorage) key(k string) string {
	return r.prefix + k
}

func (r *RedisStorage) Load(ctx context.Context, key string) (*holocrypt.Session, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis load session: %w", err)
	}

	session := &holocrypt.Session{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, fmt.Errorf("redis decode session: %w", err)
	}
	return session, nil
}

func (r *RedisStorage) Save(ctx context.Context, key string, session *holocrypt.Session) error {
	if session == nil {
		return r.Delete(ctx, key)
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis encode session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// Ping checks the connection
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
