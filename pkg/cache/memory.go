package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// defaultTTL applies when Set is called without an expiration.
const defaultTTL = 24 * time.Hour

type memoryItem struct {
	value    []byte
	expireAt time.Time
	lastUsed time.Time
}

// MemoryCache is an in-process Service and lock with LRU eviction. Values are
// encoded like RedisCache encodes them, so both decode the same way.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	maxSize int
	now     func() time.Time
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		now:     time.Now,
		ticker:  time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}
	if cfg.Now != nil {
		mc.now = cfg.Now
	}
	go mc.cleanupExpired()
	return mc
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(value)
	}
}

func decode(data []byte, dest interface{}) error {
	if s, ok := dest.(*string); ok {
		*s = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = defaultTTL
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.putLocked(key, data, expiration)
	return nil
}

func (mc *MemoryCache) putLocked(key string, data []byte, ttl time.Duration) {
	if _, ok := mc.items[key]; !ok && len(mc.items) >= mc.maxSize {
		mc.evictLRU()
	}
	now := mc.now()
	mc.items[key] = &memoryItem{value: data, expireAt: now.Add(ttl), lastUsed: now}
}

// liveLocked returns the item for key, dropping it if expired.
func (mc *MemoryCache) liveLocked(key string) (*memoryItem, bool) {
	item, ok := mc.items[key]
	if !ok {
		return nil, false
	}
	if mc.now().After(item.expireAt) {
		delete(mc.items, key)
		return nil, false
	}
	return item, true
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.liveLocked(key)
	var data []byte
	if ok {
		item.lastUsed = mc.now()
		data = item.value
	}
	mc.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.items, key)
	}
	return nil
}

// TryLock acquires key for ttl unless a live holder exists.
func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.liveLocked(key); ok {
		return false, nil
	}
	mc.putLocked(key, []byte("locked"), ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, item := range mc.items {
		if oldestKey == "" || item.lastUsed.Before(oldest) {
			oldestKey, oldest = key, item.lastUsed
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}

func (mc *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.ticker.C:
			mc.mu.Lock()
			now := mc.now()
			for key, item := range mc.items {
				if now.After(item.expireAt) {
					delete(mc.items, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}

// Len returns the number of stored keys, expired or not.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

// Close stops the cleanup loop.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		mc.ticker.Stop()
		close(mc.done)
	})
	return nil
}
