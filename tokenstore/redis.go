package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces keys written by RedisBackend.
const DefaultRedisPrefix = "continuum:"

// RedisBackend stores values in redis as "<prefix><scope>:<key>".
type RedisBackend struct {
	rdb    redis.UniversalClient
	prefix string
	scope  string
	ttl    time.Duration
}

// NewRedisBackend returns a RedisBackend. A zero ttl keeps values until they
// are removed.
func NewRedisBackend(rdb redis.UniversalClient, scope string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{
		rdb:    rdb,
		prefix: DefaultRedisPrefix,
		scope:  scope,
		ttl:    ttl,
	}
}

// NewRedisBackendFromURL parses a redis:// URL and returns a backend using it.
func NewRedisBackendFromURL(rawURL, scope string, ttl time.Duration) (*RedisBackend, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return NewRedisBackend(redis.NewClient(opts), scope, ttl), nil
}

func (r *RedisBackend) key(key string) string {
	return r.prefix + r.scope + ":" + key
}

func (r *RedisBackend) Load(ctx context.Context, key string) (string, error) {
	value, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

func (r *RedisBackend) Save(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, r.key(key), value, r.ttl).Err()
}

func (r *RedisBackend) Remove(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}

// Close releases the underlying client.
func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}
