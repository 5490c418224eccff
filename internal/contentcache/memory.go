package contentcache

import (
	"context"
	"sync"
)

// MemoryCache is an in-process content cache. Entries live for the process
// lifetime.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryCache creates an empty in-memory content cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

// Get returns the artifact reference for digest if present.
func (c *MemoryCache) Get(ctx context.Context, digest string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.entries[digest]
	return ref, ok, nil
}

// Put stores the artifact reference for digest.
func (c *MemoryCache) Put(ctx context.Context, digest, artifactRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[digest] = artifactRef
	return nil
}

// Close releases the cache contents.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	return nil
}
