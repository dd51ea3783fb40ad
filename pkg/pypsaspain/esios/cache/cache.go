// Package cache provides thread-safe TTL caching of indicator
// responses so repeated retrievals inside one run, or across closely
// spaced runs, do not hit the API again.
package cache

import (
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/clock"
	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/esios"
)

// Cache stores indicator responses with a freshness TTL and a longer
// maximum age after which unaccessed entries are swept.
type Cache struct {
	data    map[string]*cacheEntry
	mutex   sync.RWMutex
	ttl     time.Duration
	maxAge  time.Duration
	clk     clock.Clock
	stopCh  chan struct{}
	metrics *counters
}

type cacheEntry struct {
	data      *esios.Indicator
	timestamp time.Time
	hits      int64
}

type counters struct {
	hits   int64
	misses int64
	mutex  sync.RWMutex
}

// New creates a cache and starts its cleanup goroutine.
func New(ttl, maxAge time.Duration) *Cache {
	return NewWithClock(ttl, maxAge, clock.RealClock{})
}

// NewWithClock is New with an injectable clock for tests.
func NewWithClock(ttl, maxAge time.Duration, clk clock.Clock) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}

	c := &Cache{
		data: make(map[string]*cacheEntry),
		// Freshness horizon checked at Get time.
		ttl: ttl,
		// Age at which the sweeper drops unaccessed entries.
		maxAge:  maxAge,
		clk:     clk,
		stopCh:  make(chan struct{}),
		metrics: &counters{},
	}

	go c.cleanup()

	return c
}

// Get retrieves data from cache if still fresh.
func (c *Cache) Get(key string) (*esios.Indicator, bool) {
	c.mutex.RLock()
	entry, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}

	if c.clk.Since(entry.timestamp) > c.ttl {
		c.recordMiss()
		return nil, false
	}

	c.mutex.Lock()
	entry.hits++
	c.recordHit()
	c.mutex.Unlock()

	return entry.data, true
}

// Set stores data in cache.
func (c *Cache) Set(key string, data *esios.Indicator) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = &cacheEntry{
		data:      data,
		timestamp: c.clk.Now(),
		hits:      0,
	}

	klog.V(4).InfoS("Cached indicator data",
		"key", key,
		"indicator", data.ID,
		"points", len(data.Values))
}

// GetMetrics returns cache performance metrics
func (c *Cache) GetMetrics() (hits, misses int64) {
	c.metrics.mutex.RLock()
	defer c.metrics.mutex.RUnlock()
	return c.metrics.hits, c.metrics.misses
}

func (c *Cache) recordHit() {
	c.metrics.mutex.Lock()
	c.metrics.hits++
	c.metrics.mutex.Unlock()
}

func (c *Cache) recordMiss() {
	c.metrics.mutex.Lock()
	c.metrics.misses++
	c.metrics.mutex.Unlock()
}

// cleanup periodically removes expired entries
func (c *Cache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.clk.Now()
	for key, entry := range c.data {
		age := now.Sub(entry.timestamp)
		if age > c.maxAge {
			delete(c.data, key)
			klog.V(4).InfoS("Removed expired cache entry",
				"key", key,
				"age", age.String(),
				"hits", entry.hits)
		}
	}
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	close(c.stopCh)
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]*cacheEntry)
	klog.V(4).Info("Cleared cache")
}

// Size returns the number of entries in the cache.
func (c *Cache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Keys returns the cached keys.
func (c *Cache) Keys() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	keys := make([]string, 0, len(c.data))
	for key := range c.data {
		keys = append(keys, key)
	}
	return keys
}
