package directions

import (
	"context"
	"crypto/md5"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"medwaste-backend/internal/routing"
)

// Cache stores provider answers by request signature
type Cache interface {
	Get(ctx context.Context, key string) (*routing.Directions, bool, error)
	Set(ctx context.Context, key string, d *routing.Directions) error
}

// Signature keys a request by its coordinates rounded to about 11 m, so small
// GPS jitter between recomputations still hits the cache
func Signature(req routing.DirectionsRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.4f,%.4f_%.4f,%.4f_%t", req.Origin.Lat, req.Origin.Lng,
		req.Destination.Lat, req.Destination.Lng, req.Optimize)
	for _, w := range req.Waypoints {
		fmt.Fprintf(&b, "|%.4f,%.4f", w.Lat, w.Lng)
	}
	hash := md5.Sum([]byte(b.String()))
	return fmt.Sprintf("%x", hash[:8])
}

// MemoryCache is an in-process TTL cache with least recently used eviction
type MemoryCache struct {
	cache      map[string]*cacheEntry
	mutex      sync.RWMutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	stats      CacheStats
	done       chan struct{}
	closeOnce  sync.Once
}

type cacheEntry struct {
	directions   *routing.Directions
	createdAt    time.Time
	lastAccessed time.Time
	hitCount     int
}

// CacheStats tracks cache performance
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// NewMemoryCache creates a cache and starts its cleanup goroutine. Call
// Close to stop it.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	c := &MemoryCache{
		cache:      make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go c.cleanupExpired()
	return c
}

// Get returns a cached answer if present and fresh
func (c *MemoryCache) Get(ctx context.Context, key string) (*routing.Directions, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, found := c.cache[key]
	if !found {
		c.stats.Misses++
		return nil, false, nil
	}

	now := c.now()
	if now.Sub(entry.createdAt) > c.ttl {
		delete(c.cache, key)
		c.stats.Misses++
		c.stats.Evictions++
		return nil, false, nil
	}

	entry.lastAccessed = now
	entry.hitCount++
	c.stats.Hits++
	return cloneDirections(entry.directions), true, nil
}

// Set stores an answer, evicting the least recently used entry when full
func (c *MemoryCache) Set(ctx context.Context, key string, d *routing.Directions) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.cache[key]; !exists && len(c.cache) >= c.maxEntries {
		c.evictOldest()
	}

	now := c.now()
	c.cache[key] = &cacheEntry{
		directions:   cloneDirections(d),
		createdAt:    now,
		lastAccessed: now,
	}
	return nil
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.cache {
		if oldestKey == "" || entry.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessed
		}
	}

	if oldestKey != "" {
		delete(c.cache, oldestKey)
		c.stats.Evictions++
		log.Printf("🗑️  Evicted oldest directions cache entry: %s", oldestKey)
	}
}

func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mutex.Lock()
			now := c.now()
			for key, entry := range c.cache {
				if now.Sub(entry.createdAt) > c.ttl {
					delete(c.cache, key)
					c.stats.Evictions++
				}
			}
			c.mutex.Unlock()
		}
	}
}

// Close stops the cleanup goroutine
func (c *MemoryCache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Stats returns a snapshot of cache statistics
func (c *MemoryCache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	s := c.stats
	s.Size = len(c.cache)
	return s
}

func cloneDirections(d *routing.Directions) *routing.Directions {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Legs = append([]routing.Leg(nil), d.Legs...)
	cp.WaypointOrder = append([]int(nil), d.WaypointOrder...)
	return &cp
}
