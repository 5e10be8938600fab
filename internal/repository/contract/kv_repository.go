package contract

import "context"

// KVRepository is the durable key-value collaborator behind the cache store.
// Get reports found=false with a nil error for a missing key.
type KVRepository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
