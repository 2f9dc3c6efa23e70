package cache

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

// maxMemoryTTL applies to Set calls without an expiration.
const maxMemoryTTL = 7 * 24 * time.Hour

type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	maxSize         int
	cleanupInterval time.Duration
}

// WithMemoryMaxSize bounds the number of entries; the least recently used one is evicted.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *memoryConfig) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *memoryConfig) {
		if interval > 0 {
			c.cleanupInterval = interval
		}
	}
}

type memoryEntry struct {
	key      string
	value    string
	expireAt time.Time
}

// MemoryCache implements Service in process. Recency is kept in a list so eviction and
// touch are O(1).
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
	maxSize int
	now     func() time.Time

	done chan struct{}
	once sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := memoryConfig{maxSize: 1000, cleanupInterval: 5 * time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}

	mc := &MemoryCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: cfg.maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go mc.sweepLoop(cfg.cleanupInterval)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	mc.setRaw(key, raw, expiration)
	return nil
}

func (mc *MemoryCache) setRaw(key, raw string, expiration time.Duration) {
	if expiration <= 0 || expiration > maxMemoryTTL {
		expiration = maxMemoryTTL
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.store(key, raw, mc.now().Add(expiration))
}

// store must be called with mu held.
func (mc *MemoryCache) store(key, raw string, expireAt time.Time) {
	if el, ok := mc.entries[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expireAt = raw, expireAt
		mc.lru.MoveToFront(el)
		return
	}
	for len(mc.entries) >= mc.maxSize {
		mc.removeElement(mc.lru.Back())
	}
	mc.entries[key] = mc.lru.PushFront(&memoryEntry{key: key, value: raw, expireAt: expireAt})
}

// live returns the entry for key unless it is missing or expired. Must be called with mu held.
func (mc *MemoryCache) live(key string) (*list.Element, bool) {
	el, ok := mc.entries[key]
	if !ok {
		return nil, false
	}
	if !mc.now().Before(el.Value.(*memoryEntry).expireAt) {
		mc.removeElement(el)
		return nil, false
	}
	return el, true
}

func (mc *MemoryCache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	mc.lru.Remove(el)
	delete(mc.entries, el.Value.(*memoryEntry).key)
}

func (mc *MemoryCache) getRaw(key string) (string, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	el, ok := mc.live(key)
	if !ok {
		return "", false
	}
	mc.lru.MoveToFront(el)
	return el.Value.(*memoryEntry).value, true
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := mc.getRaw(key)
	if !ok {
		return ErrCacheMiss
	}
	return decode(raw, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		mc.removeElement(mc.entries[key])
	}
	return nil
}

// DeleteByPattern removes keys matching a glob pattern ("candles:EURUSD:*").
func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key, el := range mc.entries {
		if ok, _ := path.Match(pattern, key); ok {
			mc.removeElement(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if _, ok := mc.live(key); ok {
			return true, nil
		}
	}
	return false, nil
}

// TryLock claims key for ttl unless another live claim exists.
func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, held := mc.live(key); held {
		return false, nil
	}
	mc.store(key, "locked", mc.now().Add(ttl))
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len returns the number of stored entries, expired ones not yet swept included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.entries)
}

func (mc *MemoryCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-mc.done:
			return
		case <-ticker.C:
			mc.sweep()
		}
	}
}

func (mc *MemoryCache) sweep() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	for el := mc.lru.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*memoryEntry).expireAt) {
			mc.removeElement(el)
		}
		el = prev
	}
}

// Close stops the sweeper.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.done) })
	return nil
}
