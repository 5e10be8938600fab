package memory

import (
	"context"

	"github.com/patrickmn/go-cache"
)

// KVRepository keeps values in process memory. Nothing survives a restart,
// which makes it the backend of choice for tests and throwaway sessions.
type KVRepository struct {
	cache *cache.Cache
}

func NewKVRepository() *KVRepository {
	// No expiration: cache entries are only removed by an explicit clear.
	c := cache.New(cache.NoExpiration, 0)
	return &KVRepository{
		cache: c,
	}
}

func (r *KVRepository) Get(_ context.Context, key string) ([]byte, bool, error) {
	if x, found := r.cache.Get(key); found {
		value := x.([]byte)
		out := make([]byte, len(value))
		copy(out, value)
		return out, true, nil
	}
	return nil, false, nil
}

func (r *KVRepository) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	r.cache.Set(key, stored, cache.NoExpiration)
	return nil
}

func (r *KVRepository) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		r.cache.Delete(key)
	}
	return nil
}

func (r *KVRepository) Close() error {
	r.cache.Flush()
	return nil
}
