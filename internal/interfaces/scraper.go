package interfaces

import (
	"context"
	"time"

	"github.com/karanbh01/role-aggr/internal/models"
)

// Parser normalizes raw field text scraped from one platform's markup.
// All methods are total: malformed input yields a zero value, never a panic.
type Parser interface {
	// ParseDate converts platform date text ("Posted Today", "Posted 3 Days
	// Ago", "2024-01-15") to a date. ok is false when the text is not a date.
	ParseDate(raw string) (t time.Time, ok bool)

	// ParseLocation strips platform prefixes like "Locations: " from raw
	// location text.
	ParseLocation(raw string) string

	// ParseJobID strips labels and requisition prefixes ("Job ID: REQ-123"
	// becomes "123").
	ParseJobID(raw string) string
}

// CollectOptions bound a listing collection pass.
type CollectOptions struct {
	// MaxPages caps pagination; 0 means collect every page.
	MaxPages int
	// Progress, when set, receives per-page counts.
	Progress models.ProgressFunc
}

// PlatformScraper extracts job rows and detail pages for one ATS platform.
// Implementations drive a BrowserTab owned by the caller and hold no
// cross-call state besides configuration.
type PlatformScraper interface {
	// Platform returns the registry key, e.g. "workday".
	Platform() string

	// CollectSummaries renders boardURL's list view in tab and returns every
	// job row it can see, paginating or scrolling as the platform requires.
	CollectSummaries(ctx context.Context, tab BrowserTab, boardURL string, opts CollectOptions) ([]models.Summary, error)

	// FetchDetails visits one job's page in tab and extracts detail fields.
	// Element-level misses leave FieldUnavailable defaults; the error is
	// non-nil only for page-level failures such as a failed navigation.
	FetchDetails(ctx context.Context, tab BrowserTab, detailURL string) (models.Details, error)

	// Parser returns the platform's field normalizer.
	Parser() Parser
}
