package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements KV on Redis, for widget hosts running more than one
// instance.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to addr. Keys are stored as <prefix><scope>:<key>.
func NewRedis(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	if prefix == "" {
		prefix = "widget:"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) key(scope, key string) string {
	return r.prefix + scope + ":" + key
}

// Get returns the value stored under scope/key.
func (r *RedisStore) Get(ctx context.Context, scope, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get %s", key)
	}
	return v, true, nil
}

// Set stores value under scope/key without expiry.
func (r *RedisStore) Set(ctx context.Context, scope, key, value string) error {
	if err := r.client.Set(ctx, r.key(scope, key), value, 0).Err(); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

// SetIfAbsent stores value with SETNX and returns the stored value.
func (r *RedisStore) SetIfAbsent(ctx context.Context, scope, key, value string) (string, error) {
	k := r.key(scope, key)
	ok, err := r.client.SetNX(ctx, k, value, 0).Result()
	if err != nil {
		return "", errors.Wrapf(err, "setnx %s", key)
	}
	if ok {
		return value, nil
	}
	stored, err := r.client.Get(ctx, k).Result()
	if err != nil {
		return "", errors.Wrapf(err, "get %s", key)
	}
	return stored, nil
}

// Delete removes scope/key.
func (r *RedisStore) Delete(ctx context.Context, scope, key string) error {
	if err := r.client.Del(ctx, r.key(scope, key)).Err(); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

// Ping verifies the server is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
