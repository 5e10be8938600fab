package implementation

import (
	"context"
	"errors"
	"fmt"

	"youwin-client/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

type RedisKVRepositoryImpl struct {
	rdb *redis.Client
}

// NewRedisKVRepository accepts either a redis:// URL or a bare host:port address.
func NewRedisKVRepository(ctx context.Context, redisURL string) (contract.KVRepository, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisKVRepositoryImpl{rdb: rdb}, nil
}

func (r *RedisKVRepositoryImpl) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores without expiry; cache entries live until cleared.
func (r *RedisKVRepositoryImpl) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *RedisKVRepositoryImpl) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (r *RedisKVRepositoryImpl) Close() error {
	return r.rdb.Close()
}
