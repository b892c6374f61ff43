package cache

import (
	"context"
	"time"
)

// LayeredCache puts a process local L1 in front of a shared L2. Writes go through
// to L2 first; locks and existence checks are answered by L2 only.
type LayeredCache struct {
	l1 Service
	l2 Service
}

var _ Service = (*LayeredCache)(nil)

// NewLayeredCache creates a layered cache over l1 and l2.
func NewLayeredCache(l1, l2 Service) *LayeredCache {
	return &LayeredCache{l1: l1, l2: l2}
}

func (lc *LayeredCache) SetBytes(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if err := lc.l2.SetBytes(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.l1.SetBytes(ctx, key, value, expiration)
	return nil
}

func (lc *LayeredCache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if b, err := lc.l1.GetBytes(ctx, key); err == nil {
		return b, nil
	}
	b, err := lc.l2.GetBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = lc.l1.SetBytes(ctx, key, b, 0)
	return b, nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.l2.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

// Close closes both layers.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
