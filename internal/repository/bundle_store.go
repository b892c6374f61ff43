package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	domrepo "AdaptiveEnsemble/internal/domain/repository"
	"AdaptiveEnsemble/pkg/cache"
	applogger "AdaptiveEnsemble/pkg/logger"
)

const (
	bundleLockKey = "bundle:lock"
	bundleLockTTL = 10 * time.Second
)

// CacheBundleStore keeps serialized bundles in a cache.Service, normally Redis
// (optionally layered over an in-process LRU). Bundles never expire; the
// latest pointer is updated under a lock so concurrent savers do not interleave.
type CacheBundleStore struct {
	c cache.Service
	l *applogger.Logger
}

var _ domrepo.BundleStore = (*CacheBundleStore)(nil)

func NewCacheBundleStore(c cache.Service) *CacheBundleStore {
	return &CacheBundleStore{c: c, l: applogger.NewNop()}
}

// SetLogger injects a structured logger.
func (s *CacheBundleStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CacheBundleStore) Save(ctx context.Context, id string, blob []byte) error {
	if id == "" {
		return fmt.Errorf("save bundle: empty id")
	}
	ok, err := s.c.TryLock(ctx, bundleLockKey, bundleLockTTL)
	if err != nil {
		return fmt.Errorf("bundle lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("bundle lock: held by another writer")
	}
	defer func() {
		if err := s.c.Unlock(ctx, bundleLockKey); err != nil {
			s.l.Warn("bundle unlock failed", applogger.Error(err))
		}
	}()

	if err := s.c.SetBytes(ctx, bundleKey(id), blob, 0); err != nil {
		return fmt.Errorf("store bundle %s: %w", id, err)
	}
	if err := s.c.SetBytes(ctx, cache.Key("bundle", "latest"), []byte(id), 0); err != nil {
		return fmt.Errorf("store latest bundle id: %w", err)
	}
	s.l.Debug("bundle stored", applogger.String("bundle_id", id), applogger.Int("bytes", len(blob)))
	return nil
}

func (s *CacheBundleStore) Load(ctx context.Context, id string) ([]byte, error) {
	blob, err := s.c.GetBytes(ctx, bundleKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("bundle %s not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", id, err)
	}
	return blob, nil
}

func (s *CacheBundleStore) LatestID(ctx context.Context) (string, error) {
	id, err := s.c.GetBytes(ctx, cache.Key("bundle", "latest"))
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", fmt.Errorf("no bundle saved yet: %w", err)
	}
	if err != nil {
		return "", fmt.Errorf("read latest bundle id: %w", err)
	}
	return string(id), nil
}

func bundleKey(id string) string { return cache.Key("bundle", id) }
