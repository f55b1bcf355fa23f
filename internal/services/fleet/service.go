// Package fleet runs the scraping pipeline across every configured board.
package fleet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/interfaces"
	"github.com/karanbh01/role-aggr/internal/models"
	"github.com/karanbh01/role-aggr/internal/services/pipeline"
)

// BoardRunner runs one board end-to-end. Satisfied by
// pipeline.Orchestrator; faked in tests.
type BoardRunner interface {
	Run(ctx context.Context, board models.Board, opts pipeline.Options) (*models.RunResult, error)
}

// Service iterates the stored boards and dispatches per-platform runs.
type Service struct {
	runner    BoardRunner
	boards    interfaces.BoardStorage
	supported func(platform string) bool
	config    common.FleetConfig
	logger    arbor.ILogger
}

// NewService creates a fleet service. supported reports whether a platform
// has a registered scraper; boards on unsupported platforms are skipped
// with a warning rather than attempted.
func NewService(runner BoardRunner, boards interfaces.BoardStorage, supported func(string) bool, config common.FleetConfig, logger arbor.ILogger) *Service {
	return &Service{
		runner:    runner,
		boards:    boards,
		supported: supported,
		config:    config,
		logger:    logger,
	}
}

// RunAll scrapes every eligible board. A failing board never stops the
// fleet; its error lands in the summary. The returned error is reserved
// for being unable to start at all.
func (s *Service) RunAll(ctx context.Context, opts pipeline.Options) (*models.FleetSummary, error) {
	start := time.Now()

	boards, err := s.boards.Boards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load boards: %w", err)
	}
	if len(boards) == 0 {
		s.logger.Warn().Msg("No boards configured, nothing to scrape")
		return &models.FleetSummary{Duration: time.Since(start)}, nil
	}

	grouped := s.groupByPlatform(boards)
	platforms := make([]string, 0, len(grouped))
	for platform := range grouped {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)

	parallel := s.config.ParallelBoards
	if parallel < 1 {
		parallel = 1
	}

	summary := &models.FleetSummary{}
	var mu sync.Mutex

	g, runCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for _, platform := range platforms {
		for _, board := range grouped[platform] {
			board := board
			summary.Boards++
			g.Go(func() error {
				result, err := s.runner.Run(runCtx, board, opts)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					summary.Errored++
					s.logger.Error().Err(err).Str("board", board.Link).Msg("Board run failed")
					return nil // board errors never stop the fleet
				}
				summary.Succeeded++
				summary.Jobs += result.Found
				summary.Inserted += result.Inserted
				summary.Failed += result.Failed
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.Duration = time.Since(start)
	s.logger.Info().
		Int("boards", summary.Boards).
		Int("succeeded", summary.Succeeded).
		Int("errored", summary.Errored).
		Int("jobs", summary.Jobs).
		Int("inserted", summary.Inserted).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Fleet run complete")
	return summary, nil
}

// groupByPlatform buckets boards by platform, applying the configured
// allow/deny lists and dropping platforms with no registered scraper.
func (s *Service) groupByPlatform(boards []models.Board) map[string][]models.Board {
	allow := toSet(s.config.Platforms)
	deny := toSet(s.config.SkipPlatforms)

	grouped := make(map[string][]models.Board)
	for _, board := range boards {
		platform := strings.ToLower(board.Platform)
		if len(allow) > 0 && !allow[platform] {
			continue
		}
		if deny[platform] {
			s.logger.Debug().Str("platform", platform).Str("board", board.Link).Msg("Platform on skip list")
			continue
		}
		if !s.supported(platform) {
			s.logger.Warn().Str("platform", platform).Str("board", board.Link).Msg("No scraper registered for platform, skipping board")
			continue
		}
		grouped[platform] = append(grouped[platform], board)
	}
	return grouped
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if trimmed := strings.ToLower(strings.TrimSpace(v)); trimmed != "" {
			set[trimmed] = true
		}
	}
	return set
}
