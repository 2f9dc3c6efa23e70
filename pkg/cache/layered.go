package cache

import (
	"context"
	"time"
)

type LayeredOption func(*LayeredCache)

// WithLayeredMemorySize bounds the in-process layer.
func WithLayeredMemorySize(size int) LayeredOption {
	return func(lc *LayeredCache) { lc.l1Size = size }
}

// WithLayeredMemoryTTL caps how long the in-process layer keeps an entry.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(lc *LayeredCache) {
		if ttl > 0 {
			lc.l1TTL = ttl
		}
	}
}

// LayeredCache reads through a short-lived in-process copy in front of Redis. Writes go
// to Redis first. Locks are always taken in Redis so they hold across replicas.
type LayeredCache struct {
	l1     *MemoryCache
	l2     *RedisCache
	l1Size int
	l1TTL  time.Duration
}

func NewLayeredCache(l2 *RedisCache, opts ...LayeredOption) *LayeredCache {
	lc := &LayeredCache{l2: l2, l1Size: 1000, l1TTL: 30 * time.Second}
	for _, opt := range opts {
		opt(lc)
	}
	lc.l1 = NewMemoryCache(WithMemoryMaxSize(lc.l1Size))
	return lc
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	if err := lc.l2.Set(ctx, key, raw, expiration); err != nil {
		return err
	}
	lc.l1.setRaw(key, raw, lc.localTTL(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := lc.l1.getRaw(key)
	if !ok {
		if err := lc.l2.Get(ctx, key, &raw); err != nil {
			return err
		}
		lc.l1.setRaw(key, raw, lc.l1TTL)
	}
	return decode(raw, dest)
}

// localTTL never lets the in-process copy outlive the Redis entry.
func (lc *LayeredCache) localTTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.l1TTL {
		return expiration
	}
	return lc.l1TTL
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.l1.DeleteByPattern(ctx, pattern)
	return lc.l2.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if ok, _ := lc.l1.Exists(ctx, keys...); ok {
		return true, nil
	}
	return lc.l2.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

// Close stops the in-process layer and closes the Redis client.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
