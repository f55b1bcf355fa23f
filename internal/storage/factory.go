// Package storage wires the persistence backends: SQLite for companies,
// boards and listings; Badger for the cross-run location cache.
package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/interfaces"
	"github.com/karanbh01/role-aggr/internal/storage/badger"
	"github.com/karanbh01/role-aggr/internal/storage/sqlite"
)

// Manager owns the storage backends and their lifecycle.
type Manager struct {
	db       *sqlite.DB
	boards   *sqlite.BoardStorage
	listings *sqlite.ListingStorage
	cache    interfaces.LocationCache
	logger   arbor.ILogger
}

// NewManager opens the relational store and the location cache. An empty
// cache directory degrades to an in-memory cache rather than failing.
func NewManager(logger arbor.ILogger, config *common.StorageConfig) (*Manager, error) {
	db, err := sqlite.NewDB(logger, &config.SQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to open listings store: %w", err)
	}

	boards := sqlite.NewBoardStorage(db, logger)
	listings := sqlite.NewListingStorage(db, boards, logger)

	var cache interfaces.LocationCache
	if config.Badger.CacheDir != "" {
		cache, err = badger.NewLocationCache(logger, &config.Badger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open location cache: %w", err)
		}
	} else {
		logger.Debug().Msg("No cache directory configured, using in-memory location cache")
		cache = NewMemoryLocationCache()
	}

	return &Manager{
		db:       db,
		boards:   boards,
		listings: listings,
		cache:    cache,
		logger:   logger,
	}, nil
}

func (m *Manager) Boards() interfaces.BoardStorage         { return m.boards }
func (m *Manager) Listings() interfaces.ListingStorage     { return m.listings }
func (m *Manager) LocationCache() interfaces.LocationCache { return m.cache }

// Stats returns row counts per logical table for run summaries.
func (m *Manager) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int, 3)
	for _, table := range []string{"companies", "job_boards", "listings"} {
		var count int
		if err := m.db.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}

// Close releases the cache first, then the database.
func (m *Manager) Close() error {
	var firstErr error
	if err := m.cache.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("Location cache close failed")
		firstErr = err
	}
	if err := m.db.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("Database close failed")
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ interfaces.StorageManager = (*Manager)(nil)
