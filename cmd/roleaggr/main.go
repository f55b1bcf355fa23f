package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/app"
	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/models"
	"github.com/karanbh01/role-aggr/internal/services/fleet"
	"github.com/karanbh01/role-aggr/internal/services/pipeline"
)

// configPaths allows multiple -config flags; later files override earlier.
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }
func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths

	boardURL     = flag.String("board", "", "Scrape a single board URL instead of the whole fleet")
	companyName  = flag.String("company", "", "Company name for -board / -seed")
	platformName = flag.String("platform", "", "Platform for -board / -seed (e.g. workday)")
	sector       = flag.String("sector", "", "Company sector for -seed")
	seedBoard    = flag.Bool("seed", false, "Store the board given by -board/-company/-platform and exit")
	maxPages     = flag.Int("max-pages", -1, "Page limit per board (0 = every page, overrides config)")
	toCSV        = flag.Bool("csv", false, "Export results to CSV instead of the store")
	outFile      = flag.String("out", "", "CSV output file (implies -csv)")
	schedule     = flag.String("schedule", "", "Cron expression for scheduled fleet runs (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (repeatable, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	common.Version = common.LoadVersionFromFile()

	if *showVersion {
		fmt.Printf("roleaggr version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup order: config -> flag overrides -> logger -> banner -> app
	if len(configFiles) == 0 {
		if _, err := os.Stat("roleaggr.toml"); err == nil {
			configFiles = append(configFiles, "roleaggr.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(config, *maxPages, *toCSV, *outFile)
	if *schedule != "" {
		config.Fleet.Schedule = *schedule
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	opts := pipeline.Options{
		MaxPages:     config.Scraper.MaxPages,
		ToCSV:        config.Fleet.ToCSV,
		OutFile:      config.Fleet.OutFile,
		ShowProgress: config.Fleet.ShowProgress,
	}

	switch {
	case *seedBoard:
		if err := runSeed(ctx, application); err != nil {
			logger.Fatal().Err(err).Msg("Seeding failed")
			os.Exit(1)
		}
	case *boardURL != "":
		if err := runSingleBoard(ctx, application, opts); err != nil {
			logger.Fatal().Err(err).Msg("Board run failed")
			os.Exit(1)
		}
	case config.Fleet.Schedule != "":
		if err := runScheduled(ctx, application, opts, config.Fleet.Schedule); err != nil {
			logger.Fatal().Err(err).Msg("Scheduler failed to start")
			os.Exit(1)
		}
	default:
		runFleet(ctx, application, opts)
	}
}

// runSeed stores a board definition so fleet runs pick it up.
func runSeed(ctx context.Context, application *app.App) error {
	if *boardURL == "" || *companyName == "" || *platformName == "" {
		return fmt.Errorf("-seed requires -board, -company and -platform")
	}

	board, err := application.Storage.Boards().SeedBoard(ctx, *companyName, *sector, models.BoardTypeCompany, *platformName, *boardURL)
	if err != nil {
		return err
	}
	application.Logger.Info().
		Str("company", board.CompanyName).
		Str("platform", board.Platform).
		Str("link", board.Link).
		Msg("Board stored")
	return nil
}

// runSingleBoard scrapes one ad-hoc board without requiring a stored
// definition. Persisting to the store still needs the board seeded; CSV
// export works either way.
func runSingleBoard(ctx context.Context, application *app.App, opts pipeline.Options) error {
	if *platformName == "" {
		return fmt.Errorf("-board requires -platform")
	}
	company := *companyName
	if company == "" {
		company = "Unknown"
	}

	board := models.Board{
		CompanyName: company,
		Type:        models.BoardTypeCompany,
		Platform:    *platformName,
		Link:        *boardURL,
	}
	result, err := application.Pipeline.Run(ctx, board, opts)
	if err != nil {
		return err
	}

	application.Logger.Info().
		Int("found", result.Found).
		Int("kept", result.Kept).
		Int("inserted", result.Inserted).
		Int("failed", result.Failed).
		Msg("Single board run finished")
	return nil
}

// runScheduled keeps the process alive, running the fleet on the cron
// schedule until interrupted.
func runScheduled(ctx context.Context, application *app.App, opts pipeline.Options, cronExpr string) error {
	scheduler := fleet.NewScheduler(application.Fleet, opts, application.Logger)
	if err := scheduler.Start(ctx, cronExpr); err != nil {
		return err
	}

	application.Logger.Info().Msg("Scheduler running - press Ctrl+C to stop")
	<-ctx.Done()
	scheduler.Stop()
	return nil
}

// runFleet scrapes every stored board once. Per-board failures are
// reported in the summary, not the exit status.
func runFleet(ctx context.Context, application *app.App, opts pipeline.Options) {
	if _, err := application.Fleet.RunAll(ctx, opts); err != nil {
		application.Logger.Error().Err(err).Msg("Fleet run aborted")
		return
	}

	if stats, err := application.Storage.Stats(ctx); err == nil {
		application.Logger.Info().
			Int("companies", stats["companies"]).
			Int("boards", stats["job_boards"]).
			Int("listings", stats["listings"]).
			Msg("Store totals")
	}
}
