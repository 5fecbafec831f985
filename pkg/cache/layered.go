package cache

import (
	"context"
	"time"
)

// LayeredCache serves reads from process memory and falls back to a shared
// Service. Writes go to the shared store first; memory copies expire after
// at most the layer TTL so other processes' writes become visible.
type LayeredCache struct {
	l1  *MemoryCache
	l2  Service
	ttl time.Duration
}

// NewLayeredCache puts a memory layer in front of l2.
func NewLayeredCache(l2 Service, opts ...LayeredOption) *LayeredCache {
	cfg := defaultLayeredConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LayeredCache{
		l1:  NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		l2:  l2,
		ttl: cfg.MemoryTTL,
	}
}

// l1TTL is the shorter of the layer TTL and the entry's own expiration.
func (lc *LayeredCache) l1TTL(expiration time.Duration) time.Duration {
	if expiration > 0 && (lc.ttl <= 0 || expiration < lc.ttl) {
		return expiration
	}
	return lc.ttl
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.l1.Set(ctx, key, value, lc.l1TTL(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var raw string
	if lc.l1.Get(ctx, key, &raw) != nil {
		if err := lc.l2.Get(ctx, key, &raw); err != nil {
			return err
		}
		_ = lc.l1.Set(ctx, key, raw, lc.ttl)
	}
	return decode([]byte(raw), dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

// MGet answers from memory where it can and asks l2 only for the rest.
func (lc *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	out, err := lc.l1.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	missing := make([]string, 0, len(keys)-len(out))
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := lc.l2.MGet(ctx, missing...)
	if err != nil {
		return nil, err
	}
	for k, v := range fetched {
		out[k] = v
		_ = lc.l1.Set(ctx, k, v, lc.ttl)
	}
	return out, nil
}

// TryLock and Unlock always go to l2; a lock only means something when shared.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

// Close stops the memory layer. l2 is owned by the caller.
func (lc *LayeredCache) Close() error {
	return lc.l1.Close()
}
