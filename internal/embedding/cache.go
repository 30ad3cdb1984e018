package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default cache bounds.
const (
	DefaultCacheCapacity = 512
	DefaultCacheTTL      = time.Hour
)

// Cache is a bounded, time-expiring cache in front of an embedding
// provider.
//
// Eviction is insertion-order (FIFO): when capacity is exceeded the
// oldest-inserted entry is removed, regardless of access recency. The
// lock is not held across provider calls, so concurrent misses for the
// same text may both hit the provider; the last write to the cache wins,
// which is acceptable because providers are pure.
type Cache struct {
	provider Provider
	capacity int
	ttl      time.Duration
	logger   *zap.Logger
	metrics  *Metrics

	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string

	// clock is swappable in tests.
	clock func() time.Time
}

type cacheEntry struct {
	vector     []float32
	insertedAt time.Time
}

// NewCache creates a cache over the given provider.
// Non-positive capacity or TTL fall back to the defaults.
func NewCache(provider Provider, capacity int, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cache{
		provider: provider,
		capacity: capacity,
		ttl:      ttl,
		logger:   logger,
		metrics:  NewMetrics(logger),
		entries:  make(map[string]cacheEntry),
		clock:    time.Now,
	}, nil
}

// Get returns the embedding for text, consulting the provider on a miss
// or an expired entry.
func (c *Cache) Get(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if entry, ok := c.entries[text]; ok && c.clock().Sub(entry.insertedAt) < c.ttl {
		vec := entry.vector
		c.mu.Unlock()
		c.metrics.RecordHit(ctx)
		return vec, nil
	}
	c.mu.Unlock()

	start := time.Now()
	vec, err := c.provider.Embed(ctx, text)
	c.metrics.RecordGeneration(ctx, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}

	c.mu.Lock()
	c.insertLocked(ctx, text, vec)
	c.mu.Unlock()
	c.metrics.RecordMiss(ctx)

	return vec, nil
}

// Dimensions returns the provider's vector dimension.
func (c *Cache) Dimensions() int {
	return c.provider.Dimensions()
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// insertLocked stores the vector and evicts oldest-inserted entries past
// capacity. Caller holds c.mu.
func (c *Cache) insertLocked(ctx context.Context, text string, vec []float32) {
	if _, ok := c.entries[text]; ok {
		// Re-insert of a stale or racing entry: drop the old queue
		// position so the key appears once in insertion order.
		c.removeFromOrder(text)
	}

	c.entries[text] = cacheEntry{vector: vec, insertedAt: c.clock()}
	c.order = append(c.order, text)

	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		c.metrics.RecordEviction(ctx)
	}
}

func (c *Cache) removeFromOrder(text string) {
	for i, key := range c.order {
		if key == text {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
