package repository

import (
	"context"
	"time"

	domrepo "SignalRelay/internal/domain/repository"
	"SignalRelay/pkg/cache"
)

// CacheDedup marks payload keys with a SETNX-style lock that expires after the window.
type CacheDedup struct {
	cache cache.Service
}

func NewCacheDedup(c cache.Service) *CacheDedup {
	return &CacheDedup{cache: c}
}

func (d *CacheDedup) Seen(ctx context.Context, key string, window time.Duration) (bool, error) {
	took, err := d.cache.TryLock(ctx, cache.GenerateKey("dedup", key), window)
	if err != nil {
		return false, err
	}
	return !took, nil
}

func (d *CacheDedup) Forget(ctx context.Context, key string) error {
	return d.cache.Unlock(ctx, cache.GenerateKey("dedup", key))
}

var _ domrepo.Deduplicator = (*CacheDedup)(nil)
