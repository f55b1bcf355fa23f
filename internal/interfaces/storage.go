package interfaces

import (
	"context"
	"errors"

	"github.com/karanbh01/role-aggr/internal/models"
)

// ErrBoardNotFound is returned when a board lookup by link finds no row.
// Boards are provisioned ahead of a crawl; a miss means misconfiguration.
var ErrBoardNotFound = errors.New("job board not found")

// BoardStorage persists companies and their job boards.
type BoardStorage interface {
	// SeedBoard ensures a company and board row exist for link, creating
	// either as needed. Existing rows are matched by company name and board
	// link respectively.
	SeedBoard(ctx context.Context, companyName, sector string, boardType models.BoardType, platform, link string) (*models.Board, error)

	// Boards returns every stored board with its company name joined in.
	Boards(ctx context.Context) ([]models.Board, error)

	// BoardByLink looks a board up by its unique link.
	// Returns ErrBoardNotFound when absent.
	BoardByLink(ctx context.Context, link string) (*models.Board, error)

	// GetOrCreateCompany returns the company named name, creating it when
	// absent. Safe under concurrent callers racing on the same name.
	GetOrCreateCompany(ctx context.Context, name, sector string) (*models.Company, error)
}

// ListingStorage persists merged job records.
type ListingStorage interface {
	// UpsertListings writes listings scraped from the board identified by
	// boardLink. Each record is validated independently; one bad record
	// never aborts the batch. Returns the success count and one message per
	// failed record. A listing whose link already exists is refreshed, not
	// duplicated.
	UpsertListings(ctx context.Context, boardLink string, listings []models.Listing) (int, []string)

	// CountListings returns the total number of stored listings.
	CountListings(ctx context.Context) (int, error)
}

// LocationCache persists structured location parses across runs.
type LocationCache interface {
	Get(key string) (models.Location, bool)
	Set(key string, loc models.Location) error
	Close() error
}

// StorageManager aggregates the persistence backends and owns their lifecycle.
type StorageManager interface {
	Boards() BoardStorage
	Listings() ListingStorage
	LocationCache() LocationCache

	// Stats returns row counts per logical table for run summaries.
	Stats(ctx context.Context) (map[string]int, error)

	Close() error
}
