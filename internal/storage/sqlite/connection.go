// Package sqlite implements the relational listings store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"github.com/karanbh01/role-aggr/internal/common"
)

// DB manages the SQLite database connection shared by the board and listing
// stores.
type DB struct {
	db     *sql.DB
	logger arbor.ILogger
	config *common.SQLiteConfig
}

// NewDB opens the database file, applies pragmas and runs migrations.
func NewDB(logger arbor.ILogger, config *common.SQLiteConfig) (*DB, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// modernc.org/sqlite registers as "sqlite" (not "sqlite3")
	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &DB{
		db:     db,
		logger: logger,
		config: config,
	}

	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("SQLite database initialized")
	return s, nil
}

// configure sets up SQLite pragmas and settings.
func (s *DB) configure() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", s.config.CacheSizeMB*1024), // negative for KB
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.config.BusyTimeoutMS),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	if s.config.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// migrate creates the schema. Statements are idempotent so startup can run
// them unconditionally.
func (s *DB) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			sector     TEXT,
			added_at   TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS job_boards (
			id         TEXT PRIMARY KEY,
			company_id TEXT REFERENCES companies(id),
			type       TEXT NOT NULL,
			platform   TEXT NOT NULL,
			link       TEXT NOT NULL UNIQUE,
			added_at   TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS listings (
			id           TEXT PRIMARY KEY,
			company_id   TEXT NOT NULL REFERENCES companies(id),
			job_board_id TEXT NOT NULL REFERENCES job_boards(id),
			title        TEXT NOT NULL,
			location     TEXT,
			city         TEXT,
			country      TEXT,
			region       TEXT,
			description  TEXT,
			link         TEXT NOT NULL UNIQUE,
			date_posted  TIMESTAMP,
			added_at     TIMESTAMP NOT NULL,
			updated_at   TIMESTAMP NOT NULL,
			UNIQUE(title, company_id, link)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_company ON listings(company_id)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_board ON listings(job_board_id)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_date_posted ON listings(date_posted)`,
		`CREATE INDEX IF NOT EXISTS idx_job_boards_platform ON job_boards(platform)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// DB returns the underlying database connection.
func (s *DB) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *DB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
