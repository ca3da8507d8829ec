package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultLRUSize = 1024

type lruEntry struct {
	value     []byte
	expiresAt time.Time
}

// LRUCache кеш в памяти процесса с вытеснением по LRU и TTL на запись
type LRUCache struct {
	cache *lru.Cache[string, lruEntry]
	now   func() time.Time

	// mu упорядочивает SetIfGeneration и InvalidatePrefix
	mu          sync.Mutex
	generations map[string]int64
}

// NewLRUCache создает кеш на size записей
func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = defaultLRUSize
	}
	c, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUCache{cache: c, now: time.Now, generations: make(map[string]int64)}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.cache.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.cache.Add(key, c.entry(value, ttl))
	return nil
}

func (c *LRUCache) entry(value []byte, ttl time.Duration) lruEntry {
	entry := lruEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	return entry
}

func (c *LRUCache) Generation(_ context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[prefix], nil
}

func (c *LRUCache) SetIfGeneration(_ context.Context, prefix string, gen int64, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[prefix] != gen {
		return false, nil
	}
	c.cache.Add(key, c.entry(value, ttl))
	return true, nil
}

func (c *LRUCache) InvalidatePrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[prefix]++

	deleted := 0
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) && c.cache.Remove(key) {
			deleted++
		}
	}
	return deleted, nil
}

func (c *LRUCache) Close() error {
	c.cache.Purge()
	return nil
}
