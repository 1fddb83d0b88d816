package cache

import (
	"context"
	"time"
)

// Service is the claim-with-expiry surface shared by the Redis and in-memory caches.
type Service interface {
	// TryLock sets key only if absent. It reports whether this caller took the key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Unlock releases key. Releasing an absent key is not an error.
	Unlock(ctx context.Context, key string) error
}
