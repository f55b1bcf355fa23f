package workday

import (
	"context"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/interfaces"
	"github.com/karanbh01/role-aggr/internal/models"
	"github.com/karanbh01/role-aggr/internal/platforms"
)

func init() {
	platforms.Register("workday", func(deps platforms.Deps) (interfaces.PlatformScraper, error) {
		return New(Config{}, deps.Logger), nil
	})
}

// Scraper extracts job rows and detail pages from Workday boards.
type Scraper struct {
	config Config
	parser Parser
	logger arbor.ILogger
}

// New creates a Workday scraper. Zero-value config fields use the platform
// defaults.
func New(config Config, logger arbor.ILogger) *Scraper {
	return &Scraper{
		config: config.withDefaults(),
		parser: Parser{},
		logger: logger,
	}
}

func (s *Scraper) Platform() string { return "workday" }

func (s *Scraper) Parser() interfaces.Parser { return s.parser }

// CollectSummaries renders boardURL's list view and returns every job row,
// clicking through pagination when the board has it and scrolling the list
// to exhaustion when it doesn't.
func (s *Scraper) CollectSummaries(ctx context.Context, tab interfaces.BrowserTab, boardURL string, opts interfaces.CollectOptions) ([]models.Summary, error) {
	if err := tab.Navigate(ctx, boardURL); err != nil {
		return nil, err
	}
	if err := tab.WaitVisible(ctx, s.config.Selectors.JobList, listWaitTimeout); err != nil {
		return nil, fmt.Errorf("job list never rendered on %s: %w", boardURL, err)
	}

	if tab.Probe(ctx, s.config.Selectors.Pagination, paginationProbeTimeout) {
		s.logger.Debug().Str("board", boardURL).Msg("Board uses pagination")
		return s.collectPaginated(ctx, tab, boardURL, opts)
	}

	s.logger.Debug().Str("board", boardURL).Msg("No pagination controls, assuming infinite scroll")
	return s.collectScrolled(ctx, tab, boardURL, opts)
}

func (s *Scraper) collectPaginated(ctx context.Context, tab interfaces.BrowserTab, boardURL string, opts interfaces.CollectOptions) ([]models.Summary, error) {
	var all []models.Summary
	// Greyed-out next buttons mark the last page
	nextEnabled := s.config.Selectors.NextButton + ":not([disabled])"

	for page := 1; ; page++ {
		batch, err := s.extractCurrentPage(ctx, tab, boardURL)
		if err != nil {
			return all, err
		}
		all = append(all, batch...)

		s.logger.Debug().
			Int("page", page).
			Int("jobs", len(batch)).
			Int("total", len(all)).
			Msg("Extracted listing page")
		if opts.Progress != nil {
			opts.Progress(models.StageListing, len(all), 0)
		}

		if opts.MaxPages > 0 && page >= opts.MaxPages {
			s.logger.Debug().Int("max_pages", opts.MaxPages).Msg("Page limit reached")
			break
		}

		count, err := tab.Count(ctx, nextEnabled)
		if err != nil || count == 0 {
			break
		}
		if err := tab.ClickNext(ctx, s.config.Selectors.NextButton); err != nil {
			s.logger.Warn().Err(err).Int("page", page).Msg("Next page click failed, stopping pagination")
			break
		}

		select {
		case <-ctx.Done():
			return all, ctx.Err()
		case <-time.After(interPageDelay):
		}
	}

	return all, nil
}

func (s *Scraper) collectScrolled(ctx context.Context, tab interfaces.BrowserTab, boardURL string, opts interfaces.CollectOptions) ([]models.Summary, error) {
	count, err := tab.ScrollToExhaust(ctx, s.config.Selectors.JobItem)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("items", count).Str("board", boardURL).Msg("Scrolled list to exhaustion")

	summaries, err := s.extractCurrentPage(ctx, tab, boardURL)
	if err != nil {
		return nil, err
	}
	if opts.Progress != nil {
		opts.Progress(models.StageListing, len(summaries), 0)
	}
	return summaries, nil
}

func (s *Scraper) extractCurrentPage(ctx context.Context, tab interfaces.BrowserTab, boardURL string) ([]models.Summary, error) {
	html, err := tab.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}
	return s.extractSummaries(doc, boardURL), nil
}

// extractSummaries pulls job rows out of a rendered listing document. Rows
// missing a title or link are dropped; they come from placeholder items
// Workday renders while loading.
func (s *Scraper) extractSummaries(doc *goquery.Document, boardURL string) []models.Summary {
	sel := s.config.Selectors
	var summaries []models.Summary

	doc.Find(sel.JobItem).Each(func(_ int, item *goquery.Selection) {
		titleEl := item.Find(sel.JobTitle).First()
		href, _ := titleEl.Attr("href")

		summary := models.Summary{
			Title:         strings.TrimSpace(titleEl.Text()),
			DetailURL:     common.ResolveURL(boardURL, href),
			LocationRaw:   s.extractLocation(item),
			DatePostedRaw: strings.TrimSpace(item.Find(sel.PostedOn).First().Text()),
		}
		summary.Location = s.parser.ParseLocation(summary.LocationRaw)
		if parsed, ok := s.parser.ParseDate(summary.DatePostedRaw); ok {
			summary.DatePosted = &parsed
		}

		if !summary.Valid() {
			s.logger.Debug().Str("title", summary.Title).Msg("Skipping incomplete job row")
			return
		}
		summaries = append(summaries, summary)
	})

	return summaries
}

// extractLocation reads a row's location, preferring the explicit
// multi-location list, then the single location field, then the first
// segment of the subtitle line ("London | Full time | R-123").
func (s *Scraper) extractLocation(item *goquery.Selection) string {
	sel := s.config.Selectors

	var parts []string
	item.Find(sel.MultiLocation).Each(func(_ int, loc *goquery.Selection) {
		if text := strings.TrimSpace(loc.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) > 0 {
		return strings.Join(parts, "; ")
	}

	if single := strings.TrimSpace(item.Find(sel.Location).First().Text()); single != "" {
		return single
	}

	if subtitle := strings.TrimSpace(item.Find(sel.Subtitle).First().Text()); subtitle != "" {
		return strings.TrimSpace(strings.Split(subtitle, " | ")[0])
	}

	return ""
}

// FetchDetails visits one job's page and extracts detail fields. Fields
// that fail to extract keep their FieldUnavailable defaults; the error is
// non-nil only when the page itself could not be loaded or read.
func (s *Scraper) FetchDetails(ctx context.Context, tab interfaces.BrowserTab, detailURL string) (models.Details, error) {
	details := models.NewDetails(detailURL)

	if err := tab.NavigateDetail(ctx, detailURL); err != nil {
		return details, err
	}
	if err := tab.WaitVisible(ctx, s.config.Selectors.Description, descriptionWaitTimeout); err != nil {
		s.logger.Warn().Str("url", detailURL).Msg("Description never became visible, extracting what rendered")
	}

	html, err := tab.HTML(ctx)
	if err != nil {
		return details, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return details, fmt.Errorf("failed to parse detail page: %w", err)
	}

	s.extractDetails(doc, &details, detailURL)
	return details, nil
}

func (s *Scraper) extractDetails(doc *goquery.Document, details *models.Details, detailURL string) {
	sel := s.config.Selectors

	if desc := doc.Find(sel.Description).First(); desc.Length() > 0 {
		details.Description = s.descriptionMarkdown(desc, detailURL)
	}
	if title := strings.TrimSpace(doc.Find(sel.DetailTitle).First().Text()); title != "" {
		details.PageTitle = title
	}
	if id := s.extractJobID(doc); id != "" {
		details.JobID = id
	}
}

// descriptionMarkdown converts the description element to markdown, falling
// back to its plain text when conversion produces nothing usable.
func (s *Scraper) descriptionMarkdown(desc *goquery.Selection, detailURL string) string {
	raw, err := goquery.OuterHtml(desc)
	if err != nil {
		return strings.TrimSpace(desc.Text())
	}

	converter := md.NewConverter(detailURL, true, nil)
	markdown, err := converter.ConvertString(raw)
	if err != nil || strings.TrimSpace(markdown) == "" {
		return strings.TrimSpace(desc.Text())
	}
	return strings.TrimSpace(markdown)
}

// extractJobID reads the requisition ID, falling back to the "Job Id:"
// label-and-value span pair some tenants render instead.
func (s *Scraper) extractJobID(doc *goquery.Document) string {
	if el := doc.Find(s.config.Selectors.JobID).First(); el.Length() > 0 {
		if id := s.parser.ParseJobID(el.Text()); id != "" {
			return id
		}
	}

	var id string
	doc.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		if strings.Contains(span.Text(), "Job Id:") {
			if next := span.Next(); next.Is("span") {
				id = s.parser.ParseJobID(next.Text())
				return false
			}
		}
		return true
	})
	return id
}
