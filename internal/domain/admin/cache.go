package admin

import (
	"context"
	"sync"
	"time"

	"github.com/openmrs/openmrs-api/internal/platform/db"
)

// PropertyCache holds recently read global properties. A miss is reported
// with ok == false and a nil error.
type PropertyCache interface {
	Get(ctx context.Context, name string) (gp *GlobalProperty, ok bool, err error)
	Set(ctx context.Context, gp *GlobalProperty) error
	Delete(ctx context.Context, name string) error
}

// cacheKey scopes a property name to the tenant in ctx.
func cacheKey(ctx context.Context, name string) string {
	tenant := db.TenantFromContext(ctx)
	if tenant == "" {
		tenant = "default"
	}
	return tenant + ":" + NormalizeName(name)
}

type cacheEntry struct {
	gp      GlobalProperty
	expires time.Time
}

// InMemoryPropertyCache is a process-local PropertyCache with a fixed TTL.
type InMemoryPropertyCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewInMemoryPropertyCache(ttl time.Duration) *InMemoryPropertyCache {
	return &InMemoryPropertyCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *InMemoryPropertyCache) Get(ctx context.Context, name string) (*GlobalProperty, bool, error) {
	key := cacheKey(ctx, name)
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	gp := entry.gp
	return &gp, true, nil
}

func (c *InMemoryPropertyCache) Set(ctx context.Context, gp *GlobalProperty) error {
	if gp == nil {
		return nil
	}
	c.mu.Lock()
	c.entries[cacheKey(ctx, gp.Property)] = cacheEntry{gp: *gp, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *InMemoryPropertyCache) Delete(ctx context.Context, name string) error {
	c.mu.Lock()
	delete(c.entries, cacheKey(ctx, name))
	c.mu.Unlock()
	return nil
}

// Len reports the number of entries, expired ones included.
func (c *InMemoryPropertyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
