package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/logger"
	"market-relay/src/models"

	"github.com/redis/go-redis/v9"
)

// -----------------------------------------------------------------------------

// RedisStore is a key-value store whose entries expire after TTL. A zero TTL
// keeps entries until deleted.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewRedisStore connects to Redis. An empty Addr means Redis is not configured.
func NewRedisStore(cfg models.MRedisConfig, prefix string, ttl time.Duration, log *logger.Logger) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, helpers.NewDatabaseError("failed to connect to Redis", err)
	}

	s := NewRedisStoreFromClient(client, prefix, ttl, log)
	s.logger.Info("Connected to Redis at %s", cfg.Addr)
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration, log *logger.Logger) *RedisStore {
	if log == nil {
		log = logger.NewLogger("RedisStore")
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, logger: log}
}

// -----------------------------------------------------------------------------

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, helpers.ErrKeyNotFound
	}
	if err != nil {
		return nil, helpers.NewDatabaseError("redis get failed", err)
	}
	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return helpers.NewDatabaseError("redis set failed", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return helpers.NewDatabaseError("redis delete failed", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
