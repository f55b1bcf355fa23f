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

// BoardStorage persists companies and job boards.
type BoardStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewBoardStorage creates a board storage on an open database.
func NewBoardStorage(db *DB, logger arbor.ILogger) *BoardStorage {
	return &BoardStorage{db: db, logger: logger}
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// modernc.org/sqlite exposes no typed error for it, so match the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetOrCreateCompany returns the company named name, inserting it when
// absent. Concurrent callers racing on the same name are resolved by
// re-querying after a UNIQUE violation.
func (s *BoardStorage) GetOrCreateCompany(ctx context.Context, name, sector string) (*models.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("company name is required")
	}

	if company, err := s.companyByName(ctx, name); err == nil {
		return company, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up company %q: %w", name, err)
	}

	now := time.Now().UTC()
	company := &models.Company{
		ID:        common.NewCompanyID(),
		Name:      name,
		Sector:    sector,
		AddedAt:   now,
		UpdatedAt: now,
	}

	_, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO companies (id, name, sector, added_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		company.ID, company.Name, nullable(company.Sector), company.AddedAt, company.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the insert race; the winner's row is the company
			return s.companyByName(ctx, name)
		}
		return nil, fmt.Errorf("failed to create company %q: %w", name, err)
	}

	s.logger.Debug().Str("company", name).Str("id", company.ID).Msg("Company created")
	return company, nil
}

func (s *BoardStorage) companyByName(ctx context.Context, name string) (*models.Company, error) {
	var company models.Company
	var sector sql.NullString
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT id, name, sector, added_at, updated_at FROM companies WHERE name = ?`, name).
		Scan(&company.ID, &company.Name, &sector, &company.AddedAt, &company.UpdatedAt)
	if err != nil {
		return nil, err
	}
	company.Sector = sector.String
	return &company, nil
}

// SeedBoard ensures a company and a board row exist for link. An existing
// board is matched by its unique link and left as-is apart from updated_at.
func (s *BoardStorage) SeedBoard(ctx context.Context, companyName, sector string, boardType models.BoardType, platform, link string) (*models.Board, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, fmt.Errorf("board link is required")
	}
	if platform == "" {
		return nil, fmt.Errorf("board platform is required")
	}

	company, err := s.GetOrCreateCompany(ctx, companyName, sector)
	if err != nil {
		return nil, err
	}

	if board, err := s.BoardByLink(ctx, link); err == nil {
		_, err = s.db.DB().ExecContext(ctx,
			`UPDATE job_boards SET updated_at = ? WHERE id = ?`, time.Now().UTC(), board.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to touch board %s: %w", link, err)
		}
		return board, nil
	} else if !errors.Is(err, interfaces.ErrBoardNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	board := &models.Board{
		ID:          common.NewBoardID(),
		CompanyID:   company.ID,
		CompanyName: company.Name,
		Type:        boardType,
		Platform:    strings.ToLower(platform),
		Link:        link,
		AddedAt:     now,
		UpdatedAt:   now,
	}

	_, err = s.db.DB().ExecContext(ctx,
		`INSERT INTO job_boards (id, company_id, type, platform, link, added_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		board.ID, board.CompanyID, string(board.Type), board.Platform, board.Link,
		board.AddedAt, board.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return s.BoardByLink(ctx, link)
		}
		return nil, fmt.Errorf("failed to create board %s: %w", link, err)
	}

	s.logger.Info().
		Str("company", company.Name).
		Str("platform", board.Platform).
		Str("link", link).
		Msg("Job board seeded")
	return board, nil
}

// BoardByLink looks a board up by its unique link.
func (s *BoardStorage) BoardByLink(ctx context.Context, link string) (*models.Board, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT b.id, b.company_id, COALESCE(c.name, ''), b.type, b.platform, b.link, b.added_at, b.updated_at
		 FROM job_boards b LEFT JOIN companies c ON c.id = b.company_id
		 WHERE b.link = ?`, strings.TrimSpace(link))

	board, err := scanBoard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up board %s: %w", link, err)
	}
	return board, nil
}

// Boards returns every stored board with its company name joined in.
func (s *BoardStorage) Boards(ctx context.Context) ([]models.Board, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT b.id, b.company_id, COALESCE(c.name, ''), b.type, b.platform, b.link, b.added_at, b.updated_at
		 FROM job_boards b LEFT JOIN companies c ON c.id = b.company_id
		 ORDER BY c.name, b.link`)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	defer rows.Close()

	var boards []models.Board
	for rows.Next() {
		board, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board row: %w", err)
		}
		boards = append(boards, *board)
	}
	return boards, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBoard(row scanner) (*models.Board, error) {
	var board models.Board
	var companyID sql.NullString
	var boardType string
	if err := row.Scan(&board.ID, &companyID, &board.CompanyName, &boardType,
		&board.Platform, &board.Link, &board.AddedAt, &board.UpdatedAt); err != nil {
		return nil, err
	}
	board.CompanyID = companyID.String
	board.Type = models.BoardType(boardType)
	return &board, nil
}

// nullable maps an empty string to NULL.
func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
