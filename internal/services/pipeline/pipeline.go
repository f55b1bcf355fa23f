// Package pipeline drives one job board end-to-end: render the list view,
// enrich locations in one batch, fetch detail pages in parallel, filter and
// persist.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/interfaces"
	"github.com/karanbh01/role-aggr/internal/models"
	"github.com/karanbh01/role-aggr/internal/services/browser"
)

// SessionOpener starts headless browser sessions. Satisfied by
// browser.Service; faked in tests.
type SessionOpener interface {
	OpenSession(ctx context.Context) (interfaces.BrowserSession, error)
}

// ScraperFactory resolves a platform name to its scraper. Satisfied by a
// closure over platforms.New.
type ScraperFactory func(platform string) (interfaces.PlatformScraper, error)

// Options tune a single board run.
type Options struct {
	MaxPages     int  // 0 collects every page
	ToCSV        bool // export to CSV instead of the store
	OutFile      string
	ShowProgress bool
	Progress     models.ProgressFunc // optional, purely observational
}

// Orchestrator runs one board at a time. It owns no browser state; each run
// opens and closes its own session.
type Orchestrator struct {
	browser  SessionOpener
	scrapers ScraperFactory
	enricher interfaces.LocationParser
	store    interfaces.ListingStorage
	config   common.ScraperConfig
	logger   arbor.ILogger
}

// NewOrchestrator wires a pipeline orchestrator.
func NewOrchestrator(browserSvc SessionOpener, scrapers ScraperFactory, enricher interfaces.LocationParser, store interfaces.ListingStorage, config common.ScraperConfig, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		browser:  browserSvc,
		scrapers: scrapers,
		enricher: enricher,
		store:    store,
		config:   config,
		logger:   logger,
	}
}

// Run scrapes board end-to-end and persists the surviving records. The
// returned result is non-nil whenever the board was attempted; err is
// reserved for failures before any scraping could start.
func (o *Orchestrator) Run(ctx context.Context, board models.Board, opts Options) (*models.RunResult, error) {
	start := time.Now()
	result := &models.RunResult{ID: common.NewRunID(), Board: board.Link, Platform: board.Platform}

	scraper, err := o.scrapers(board.Platform)
	if err != nil {
		return nil, fmt.Errorf("no scraper for board %s: %w", board.Link, err)
	}

	sess, err := o.browser.OpenSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser for board %s: %w", board.Link, err)
	}
	defer sess.Close()

	summaries, err := o.collectSummaries(ctx, sess, scraper, board, opts)
	if err != nil {
		// Partial extraction is still worth finishing; total failure ends
		// the run with whatever the result carries
		if len(summaries) == 0 {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("no summaries collected from %s: %w", board.Link, err)
		}
		o.logger.Warn().Err(err).Int("collected", len(summaries)).Msg("List collection ended early, continuing with partial results")
	}
	result.Found = len(summaries)
	if len(summaries) == 0 {
		o.logger.Info().Str("board", board.Link).Msg("Board has no visible jobs")
		result.Duration = time.Since(start)
		return result, nil
	}

	o.enrichLocations(ctx, summaries, opts)

	listings := o.fetchDetails(ctx, sess, scraper, board, summaries, opts)

	kept := dropStale(dedupeByURL(listings, o.logger), o.logger)
	result.Kept = len(kept)
	if opts.Progress != nil {
		opts.Progress(models.StageFiltering, len(kept), len(listings))
	}

	inserted, failures := o.persist(ctx, board, kept, opts)
	result.Inserted = inserted
	result.Failed = len(failures)
	result.Failures = failures
	result.Duration = time.Since(start)

	o.logger.Info().
		Str("board", board.Link).
		Int("found", result.Found).
		Int("kept", result.Kept).
		Int("inserted", result.Inserted).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Board run complete")
	return result, nil
}

func (o *Orchestrator) collectSummaries(ctx context.Context, sess interfaces.BrowserSession, scraper interfaces.PlatformScraper, board models.Board, opts Options) ([]models.Summary, error) {
	tab, err := sess.NewTab(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing tab: %w", err)
	}
	defer tab.Close()

	maxPages := opts.MaxPages
	if maxPages == 0 {
		maxPages = o.config.MaxPages
	}
	return scraper.CollectSummaries(ctx, tab, board.Link, interfaces.CollectOptions{
		MaxPages: maxPages,
		Progress: opts.Progress,
	})
}

// enrichLocations resolves the unique raw location strings in one batch and
// installs the parses on the summaries. Every summary ends up with a
// structured location, Unknowns included.
func (o *Orchestrator) enrichLocations(ctx context.Context, summaries []models.Summary, opts Options) {
	var unique []string
	index := make(map[string]int)
	for _, s := range summaries {
		if s.LocationRaw == "" {
			continue
		}
		if _, ok := index[s.LocationRaw]; !ok {
			index[s.LocationRaw] = len(unique)
			unique = append(unique, s.LocationRaw)
		}
	}
	if len(unique) == 0 {
		return
	}

	if opts.Progress != nil {
		opts.Progress(models.StageEnriching, 0, len(unique))
	}
	parsed := o.enricher.ParseBatch(ctx, unique)
	for i := range summaries {
		if pos, ok := index[summaries[i].LocationRaw]; ok {
			loc := parsed[pos]
			summaries[i].LocationParsed = &loc
		}
	}
	if opts.Progress != nil {
		opts.Progress(models.StageEnriching, len(unique), len(unique))
	}

	o.logger.Debug().
		Int("jobs", len(summaries)).
		Int("unique_locations", len(unique)).
		Msg("Locations enriched")
}

// fetchDetails visits every summary's detail page with bounded concurrency.
// Each job gets its own tab per attempt, so a hung or crashed page cannot
// poison its siblings. Jobs whose page never loads are dropped.
func (o *Orchestrator) fetchDetails(ctx context.Context, sess interfaces.BrowserSession, scraper interfaces.PlatformScraper, board models.Board, summaries []models.Summary, opts Options) []models.Listing {
	concurrency := o.config.DetailConcurrency
	if concurrency < 1 {
		concurrency = 10
	}
	policy := NewRetryPolicy(o.config.RetryAttempts)

	sem := semaphore.NewWeighted(int64(concurrency))
	results := make([]*models.Listing, len(summaries))

	var wg sync.WaitGroup
	var done int64
	var doneMu sync.Mutex

	total := 0
	for _, s := range summaries {
		if s.Valid() {
			total++
		}
	}

	for i, summary := range summaries {
		if !summary.Valid() {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break // fleet cancelled; in-flight tasks drain below
		}

		wg.Add(1)
		slot, summary := i, summary
		// A panicking extractor loses one job, not the whole board
		common.SafeGo(o.logger, "detail "+summary.DetailURL, func() {
			defer wg.Done()
			defer sem.Release(1)

			listing := o.fetchOne(ctx, sess, scraper, board, summary, policy)
			results[slot] = listing

			doneMu.Lock()
			done++
			current := done
			doneMu.Unlock()
			if opts.Progress != nil {
				opts.Progress(models.StageDetails, int(current), total)
			}
			if opts.ShowProgress {
				o.logger.Info().
					Int64("done", current).
					Int("total", total).
					Msg("Detail pages processed")
			}
		})
	}
	wg.Wait()

	// Preserve summary order; parallel completion order is irrelevant
	listings := make([]models.Listing, 0, len(summaries))
	for _, l := range results {
		if l != nil {
			listings = append(listings, *l)
		}
	}
	return listings
}

// fetchOne retries one detail fetch. A closed target means the browser or
// tab is gone and retrying inside this session cannot succeed.
func (o *Orchestrator) fetchOne(ctx context.Context, sess interfaces.BrowserSession, scraper interfaces.PlatformScraper, board models.Board, summary models.Summary, policy RetryPolicy) *models.Listing {
	var details models.Details

	err := policy.ExecuteWithRetry(ctx, o.logger, "fetch "+summary.DetailURL, browser.IsTargetClosed, func() error {
		tab, err := sess.NewTab(ctx)
		if err != nil {
			return fmt.Errorf("failed to open detail tab: %w", err)
		}
		defer tab.Close()

		details, err = scraper.FetchDetails(ctx, tab, summary.DetailURL)
		return err
	})
	if err != nil {
		o.logger.Warn().
			Str("url", summary.DetailURL).
			Err(err).
			Msg("Detail page unreachable, dropping job")
		return nil
	}

	listing := models.MergeListing(board.CompanyName, summary, details)
	return &listing
}

// dedupeByURL keeps the first listing seen for each detail URL.
func dedupeByURL(listings []models.Listing, logger arbor.ILogger) []models.Listing {
	seen := make(map[string]bool, len(listings))
	kept := listings[:0:0]
	for _, l := range listings {
		if seen[l.URL] {
			logger.Debug().Str("url", l.URL).Msg("Duplicate detail URL, keeping first occurrence")
			continue
		}
		seen[l.URL] = true
		kept = append(kept, l)
	}
	return kept
}

// dropStale removes listings whose raw posted text marks them 30+ days old.
func dropStale(listings []models.Listing, logger arbor.ILogger) []models.Listing {
	kept := listings[:0:0]
	for _, l := range listings {
		if l.Stale() {
			logger.Debug().Str("url", l.URL).Msg("Dropping stale listing")
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

func (o *Orchestrator) persist(ctx context.Context, board models.Board, listings []models.Listing, opts Options) (int, []string) {
	if opts.Progress != nil {
		opts.Progress(models.StagePersist, 0, len(listings))
	}
	if len(listings) == 0 {
		return 0, nil
	}

	if opts.ToCSV {
		outFile := opts.OutFile
		if outFile == "" {
			outFile = "listings.csv"
		}
		written, err := AppendCSV(outFile, listings)
		if err != nil {
			return written, []string{fmt.Sprintf("csv export to %s: %v", outFile, err)}
		}
		o.logger.Info().Str("file", outFile).Int("rows", written).Msg("Listings exported to CSV")
		return written, nil
	}

	return o.store.UpsertListings(ctx, board.Link, listings)
}
