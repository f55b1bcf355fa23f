package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/interfaces"
	"github.com/karanbh01/role-aggr/internal/models"
)

// ListingStorage persists merged job records.
type ListingStorage struct {
	db     *DB
	boards *BoardStorage
	logger arbor.ILogger
}

// NewListingStorage creates a listing storage on an open database.
func NewListingStorage(db *DB, boards *BoardStorage, logger arbor.ILogger) *ListingStorage {
	return &ListingStorage{db: db, boards: boards, logger: logger}
}

// UpsertListings writes a batch of scraped listings for the board identified
// by boardLink. Records are validated and written independently: one bad
// record never aborts the batch. A listing whose link already exists is
// refreshed (description, location fields, date, updated_at) rather than
// duplicated. Returns the success count and one message per failed record.
func (s *ListingStorage) UpsertListings(ctx context.Context, boardLink string, listings []models.Listing) (int, []string) {
	board, err := s.boards.BoardByLink(ctx, boardLink)
	if err != nil {
		// Boards are provisioned ahead of a crawl; every record fails
		failures := make([]string, 0, len(listings))
		for _, l := range listings {
			failures = append(failures, fmt.Sprintf("%s: board %s not provisioned", l.Title, boardLink))
		}
		s.logger.Error().Err(err).Str("board", boardLink).Msg("Cannot persist listings for unknown board")
		return 0, failures
	}

	success := 0
	var failures []string
	for _, listing := range listings {
		if err := s.upsertOne(ctx, board, listing); err != nil {
			if errors.Is(err, errBenignDuplicate) {
				s.logger.Debug().Str("link", listing.URL).Msg("Duplicate listing, skipping")
				continue
			}
			failures = append(failures, fmt.Sprintf("%s (%s): %v", listing.Title, listing.URL, err))
			continue
		}
		success++
	}

	s.logger.Info().
		Str("board", boardLink).
		Int("inserted", success).
		Int("failed", len(failures)).
		Msg("Listing batch persisted")
	return success, failures
}

// errBenignDuplicate marks a record dropped on a uniqueness constraint after
// the refresh path has already been tried. Expected, not a failure.
var errBenignDuplicate = errors.New("benign duplicate")

func (s *ListingStorage) upsertOne(ctx context.Context, board *models.Board, listing models.Listing) error {
	if err := validateListing(listing); err != nil {
		return err
	}

	company, err := s.boards.GetOrCreateCompany(ctx, listing.CompanyName, "")
	if err != nil {
		return fmt.Errorf("failed to resolve company: %w", err)
	}

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var datePosted any
	if listing.DatePosted != nil {
		datePosted = listing.DatePosted.UTC()
	}

	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM listings WHERE link = ?`, listing.URL).Scan(&existingID)
	switch {
	case err == nil:
		// Re-scrape of a known link refreshes mutable fields
		_, err = tx.ExecContext(ctx,
			`UPDATE listings SET title = ?, location = ?, city = ?, country = ?, region = ?,
			 description = ?, date_posted = ?, updated_at = ? WHERE id = ?`,
			listing.Title, nullable(listing.Location),
			nullableKnown(listing.City), nullableKnown(listing.Country), nullableKnown(listing.Region),
			nullable(listing.Description), datePosted, now, existingID)
		if err != nil {
			if isUniqueViolation(err) {
				return errBenignDuplicate
			}
			return fmt.Errorf("failed to refresh listing: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO listings (id, company_id, job_board_id, title, location, city, country,
			 region, description, link, date_posted, added_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			common.NewListingID(), company.ID, board.ID, listing.Title,
			nullable(listing.Location),
			nullableKnown(listing.City), nullableKnown(listing.Country), nullableKnown(listing.Region),
			nullable(listing.Description), listing.URL, datePosted, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return errBenignDuplicate
			}
			return fmt.Errorf("failed to insert listing: %w", err)
		}
	default:
		return fmt.Errorf("failed to look up listing: %w", err)
	}

	return tx.Commit()
}

// validateListing checks the fields the schema cannot tolerate missing.
func validateListing(listing models.Listing) error {
	if strings.TrimSpace(listing.Title) == "" || listing.Title == models.FieldUnavailable {
		return fmt.Errorf("missing title")
	}
	if strings.TrimSpace(listing.CompanyName) == "" {
		return fmt.Errorf("missing company name")
	}
	if strings.TrimSpace(listing.URL) == "" || listing.URL == models.FieldUnavailable {
		return fmt.Errorf("missing listing link")
	}
	return nil
}

// CountListings returns the total number of stored listings.
func (s *ListingStorage) CountListings(ctx context.Context) (int, error) {
	var count int
	err := s.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}

// nullableKnown maps both empty and "Unknown" to NULL; the read side filters
// on real geography values.
func nullableKnown(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.EqualFold(trimmed, "Unknown") {
		return nil
	}
	return trimmed
}

var _ interfaces.ListingStorage = (*ListingStorage)(nil)
var _ interfaces.BoardStorage = (*BoardStorage)(nil)
