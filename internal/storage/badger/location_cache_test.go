package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/models"
)

func openTestCache(t *testing.T, ttlDays int) *LocationCache {
	t.Helper()
	cache, err := NewLocationCache(arbor.NewLogger(), &common.BadgerConfig{
		CacheDir: t.TempDir(),
		TTLDays:  ttlDays,
	})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	cache := openTestCache(t, 0)

	loc := models.Location{City: "London", Country: "United Kingdom", Region: "Europe", Confidence: 0.95}
	require.NoError(t, cache.Set("loc::london, uk", loc))

	got, ok := cache.Get("loc::london, uk")
	require.True(t, ok)
	assert.Equal(t, loc, got)

	_, ok = cache.Get("loc::missing")
	assert.False(t, ok)
}

func TestCacheOverwrite(t *testing.T) {
	cache := openTestCache(t, 0)

	first := models.Location{City: "Paris", Country: "France", Region: "Europe", Confidence: 0.6}
	second := models.Location{City: "Paris", Country: "France", Region: "Europe", Confidence: 0.95}
	require.NoError(t, cache.Set("loc::paris", first))
	require.NoError(t, cache.Set("loc::paris", second))

	got, ok := cache.Get("loc::paris")
	require.True(t, ok)
	assert.Equal(t, second, got)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := openTestCache(t, 1)

	loc := models.Location{City: "Tokyo", Country: "Japan", Region: "Asia", Confidence: 0.9}
	require.NoError(t, cache.Set("loc::tokyo", loc))

	// fresh entry is visible
	_, ok := cache.Get("loc::tokyo")
	require.True(t, ok)

	// backdate the entry beyond the TTL
	expired := cacheEntry{
		Key:      "loc::tokyo",
		Location: loc,
		CachedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, cache.store.Upsert("loc::tokyo", expired))

	_, ok = cache.Get("loc::tokyo")
	assert.False(t, ok, "entries older than the TTL read as misses")
}

func TestCachePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	config := &common.BadgerConfig{CacheDir: dir}
	logger := arbor.NewLogger()

	cache, err := NewLocationCache(logger, config)
	require.NoError(t, err)

	loc := models.Location{City: "Sydney", Country: "Australia", Region: "Oceania", Confidence: 0.9}
	require.NoError(t, cache.Set("loc::sydney", loc))
	require.NoError(t, cache.Close())

	reopened, err := NewLocationCache(logger, config)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.Get("loc::sydney")
	require.True(t, ok, "cache survives process restarts")
	assert.Equal(t, loc, got)
}

func TestCacheRequiresDirectory(t *testing.T) {
	_, err := NewLocationCache(arbor.NewLogger(), &common.BadgerConfig{CacheDir: ""})
	assert.Error(t, err)
}
