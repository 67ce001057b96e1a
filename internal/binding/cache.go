package binding

import (
	"sync"
	"time"

	"github.com/mapruntime/client/internal/providerbind"
	"golang.org/x/sync/singleflight"
)

// boundCacheEntry is one entry of the concurrent bound-context cache
// keyed by profileId|providerName|profileProviderConfig.cacheKey|
// providerConfig.cacheKey (spec.md §5).
type boundCacheEntry struct {
	bp        *providerbind.BoundProfileProvider
	expiresAt time.Time
}

// boundCache is the concurrent, TTL-expiring cache of bound contexts,
// with single-flight deduplication per key so concurrent Bind calls
// for the same key don't each hit the registry (spec.md §5, §9).
type boundCache struct {
	mu      sync.RWMutex
	entries map[string]boundCacheEntry
	group   singleflight.Group
}

func newBoundCache() *boundCache {
	return &boundCache{entries: map[string]boundCacheEntry{}}
}

func (c *boundCache) get(key string) (*providerbind.BoundProfileProvider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.bp, true
}

func (c *boundCache) put(key string, bp *providerbind.BoundProfileProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = boundCacheEntry{bp: bp, expiresAt: bp.ExpiresAt}
}

// getOrBind returns a cached bound provider for key, or calls fn
// exactly once across concurrent callers sharing key to produce one.
func (c *boundCache) getOrBind(key string, fn func() (*providerbind.BoundProfileProvider, error)) (*providerbind.BoundProfileProvider, error) {
	if bp, ok := c.get(key); ok {
		return bp, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if bp, ok := c.get(key); ok {
			return bp, nil
		}
		bp, err := fn()
		if err != nil {
			return nil, err
		}
		c.put(key, bp)
		return bp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*providerbind.BoundProfileProvider), nil
}
