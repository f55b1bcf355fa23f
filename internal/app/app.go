// Package app builds the application's components in dependency order and
// owns their teardown.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/interfaces"
	"github.com/karanbh01/role-aggr/internal/platforms"
	"github.com/karanbh01/role-aggr/internal/services/browser"
	"github.com/karanbh01/role-aggr/internal/services/enrich"
	"github.com/karanbh01/role-aggr/internal/services/fleet"
	"github.com/karanbh01/role-aggr/internal/services/pipeline"
	"github.com/karanbh01/role-aggr/internal/storage"

	// Platform scrapers register themselves on import.
	_ "github.com/karanbh01/role-aggr/internal/platforms/workday"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Storage  interfaces.StorageManager
	Browser  *browser.Service
	Enricher *enrich.Service
	Pipeline *pipeline.Orchestrator
	Fleet    *fleet.Service

	providers *enrich.Factory
}

// New wires the application. Components are constructed leaves-first so a
// failure leaves nothing half-open.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{Config: config, Logger: logger}

	storageManager, err := storage.NewManager(logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = storageManager
	logger.Debug().Msg("Storage initialized")

	a.Browser = browser.NewService(config.Browser, config.Scraper.PolitenessRPS, logger)
	logger.Debug().Bool("headless", config.Browser.Headless).Msg("Browser service initialized")

	a.Enricher = a.buildEnricher(ctx, storageManager)

	a.Pipeline = pipeline.NewOrchestrator(
		a.Browser,
		func(platform string) (interfaces.PlatformScraper, error) {
			return platforms.New(platform, platforms.Deps{Logger: logger})
		},
		a.Enricher,
		storageManager.Listings(),
		config.Scraper,
		logger,
	)

	a.Fleet = fleet.NewService(a.Pipeline, storageManager.Boards(), platforms.Supported, config.Fleet, logger)

	logger.Debug().
		Strs("platforms", platforms.Names()).
		Bool("enrich", a.Enricher.Enabled()).
		Msg("Application initialized")
	return a, nil
}

// buildEnricher resolves the completion provider when enrichment is
// configured. Provider failures disable enrichment rather than abort
// startup; every record still gets fallback locations.
func (a *App) buildEnricher(ctx context.Context, storageManager interfaces.StorageManager) *enrich.Service {
	var provider interfaces.CompletionProvider

	if a.Config.Enrich.Enabled {
		a.providers = enrich.NewFactory(a.Config.Enrich, a.Logger)
		p, err := a.providers.Provider(ctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Location enrichment unavailable, falling back to cleaned strings")
		} else {
			provider = p
			a.Logger.Debug().
				Str("provider", p.Name()).
				Str("model", a.Config.Enrich.Model).
				Msg("Location enrichment enabled")
		}
	}

	return enrich.NewService(a.Config.Enrich, provider, storageManager.LocationCache(), nil, a.Logger)
}

// Close tears components down in reverse construction order.
func (a *App) Close() {
	if a.providers != nil {
		if err := a.providers.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Provider factory close failed")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
	a.Logger.Debug().Msg("Application closed")
}
