package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the snapshot as a plain string value.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to rawURL. A value that does not parse as a redis://
// URL is used as a host:port address.
func NewRedisStore(ctx context.Context, rawURL, key string) (*RedisStore, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("redis store: redis_url is required")
	}
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		opt = &redis.Options{
			Addr: rawURL,
		}
	}
	return newRedisStore(ctx, redis.NewClient(opt), key)
}

func newRedisStore(ctx context.Context, client *redis.Client, key string) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, newStoreError("redis", "connect", err)
	}
	return &RedisStore{client: client, key: key}, nil
}

// Name returns the backend name
func (s *RedisStore) Name() string { return "redis" }

// Load returns the blob stored under the store's key.
func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, newStoreError("redis", "load", err)
	}
	return data, nil
}

// Save overwrites the blob. The key never expires.
func (s *RedisStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return newStoreError("redis", "save", err)
	}
	return nil
}

// Close closes the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
