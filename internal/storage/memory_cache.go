package storage

import (
	"sync"

	"github.com/karanbh01/role-aggr/internal/interfaces"
	"github.com/karanbh01/role-aggr/internal/models"
)

// MemoryLocationCache is the map-backed cache used when no cache directory
// is configured. Entries live for the process only.
type MemoryLocationCache struct {
	mu      sync.RWMutex
	entries map[string]models.Location
}

// NewMemoryLocationCache creates an empty in-memory cache.
func NewMemoryLocationCache() *MemoryLocationCache {
	return &MemoryLocationCache{entries: make(map[string]models.Location)}
}

func (c *MemoryLocationCache) Get(key string) (models.Location, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.entries[key]
	return loc, ok
}

func (c *MemoryLocationCache) Set(key string, loc models.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = loc
	return nil
}

func (c *MemoryLocationCache) Close() error { return nil }

var _ interfaces.LocationCache = (*MemoryLocationCache)(nil)
