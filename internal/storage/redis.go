package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"emberquest/server/internal/config"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetClient() *redis.Client {
	return s.client
}

// Helper methods for common operations
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return s.client.Set(ctx, key, value, expiration).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// Lock settings. The TTL only bounds how long a crashed holder can wedge a
// key; live holders release explicitly.
const (
	lockKeyPrefix   = "lock:"
	lockTTL         = 30 * time.Second
	lockRetryDelay  = 50 * time.Millisecond
	lockAcquireWait = 5 * time.Second
)

// AcquireLock takes a distributed mutex on key, blocking up to
// lockAcquireWait. The returned release function is safe to call once.
func (s *RedisStore) AcquireLock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := lockKeyPrefix + key

	deadline := time.Now().Add(lockAcquireWait)
	for {
		ok, err := s.client.SetNX(ctx, redisKey, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for lock %s", key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	release := func() {
		// Only delete if we still hold the token.
		script := redis.NewScript(`
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			end
			return 0
		`)
		_ = script.Run(context.Background(), s.client, []string{redisKey}, token).Err()
	}
	return release, nil
}
