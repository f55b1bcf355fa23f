// Package badger persists the structured-location cache across runs, so a
// location string enriched once never costs a second model call.
package badger

import (
	"errors"
	"fmt"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/interfaces"
	"github.com/karanbh01/role-aggr/internal/models"
)

// cacheEntry is the stored record for one normalized location key.
type cacheEntry struct {
	Key      string `badgerhold:"key"`
	Location models.Location
	CachedAt time.Time
}

// LocationCache is a badgerhold-backed interfaces.LocationCache.
type LocationCache struct {
	store  *badgerhold.Store
	ttl    time.Duration // 0 keeps entries forever
	logger arbor.ILogger
}

// NewLocationCache opens (or creates) the cache store in config.CacheDir.
func NewLocationCache(logger arbor.ILogger, config *common.BadgerConfig) (*LocationCache, error) {
	if config.CacheDir == "" {
		return nil, fmt.Errorf("badger cache directory not configured")
	}
	if err := os.MkdirAll(config.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Options = badgerdb.DefaultOptions(config.CacheDir).
		WithLogger(nil). // arbor is the only logger
		WithCompactL0OnClose(true)

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open location cache: %w", err)
	}

	logger.Debug().Str("dir", config.CacheDir).Int("ttl_days", config.TTLDays).Msg("Location cache opened")
	return &LocationCache{
		store:  store,
		ttl:    time.Duration(config.TTLDays) * 24 * time.Hour,
		logger: logger,
	}, nil
}

// Get returns the cached location for key, honoring the configured TTL.
func (c *LocationCache) Get(key string) (models.Location, bool) {
	var entry cacheEntry
	err := c.store.Get(key, &entry)
	if err != nil {
		if !errors.Is(err, badgerhold.ErrNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Location cache read failed")
		}
		return models.Location{}, false
	}

	if c.ttl > 0 && time.Since(entry.CachedAt) > c.ttl {
		return models.Location{}, false
	}
	return entry.Location, true
}

// Set stores loc under key, overwriting any previous entry.
func (c *LocationCache) Set(key string, loc models.Location) error {
	entry := cacheEntry{Key: key, Location: loc, CachedAt: time.Now().UTC()}
	if err := c.store.Upsert(key, entry); err != nil {
		return fmt.Errorf("failed to cache location %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying store.
func (c *LocationCache) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

var _ interfaces.LocationCache = (*LocationCache)(nil)
