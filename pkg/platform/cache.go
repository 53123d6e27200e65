package platform

import "sync"

// DescribeCache is a read-through cache of described object metadata,
// keyed by (id, container).
//
// The described flag distinguishes "never described" from "described with
// empty attributes": an entry is described once a batch result for its
// exact (id, container) pair has been stored. A lookup never returns
// metadata for a different container than the one queried.
type DescribeCache interface {
	// Get returns the cached metadata for (id, container).
	Get(id ObjectID, container string) (Metadata, bool)

	// Put stores the described metadata for (id, container).
	Put(id ObjectID, container string, md Metadata)

	// Described reports whether (id, container) has a cached description.
	Described(id ObjectID, container string) bool

	// Close releases any resources held by the cache.
	Close() error
}

// cacheKey identifies one cache entry.
type cacheKey struct {
	id        ObjectID
	container string
}

// MemoryCache is an in-process DescribeCache living for the lifetime of
// its resolver. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]Metadata
}

// NewMemoryCache creates an empty in-memory describe cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[cacheKey]Metadata)}
}

func (c *MemoryCache) Get(id ObjectID, container string) (Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md, ok := c.entries[cacheKey{id: id, container: container}]
	return md, ok
}

func (c *MemoryCache) Put(id ObjectID, container string, md Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{id: id, container: container}] = md
}

func (c *MemoryCache) Described(id ObjectID, container string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[cacheKey{id: id, container: container}]
	return ok
}

func (c *MemoryCache) Close() error {
	return nil
}
