package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig `toml:"logging"`
	Storage     StorageConfig `toml:"storage"`
	Browser     BrowserConfig `toml:"browser"`
	Scraper     ScraperConfig `toml:"scraper"`
	Enrich      EnrichConfig  `toml:"enrich"`
	Fleet       FleetConfig   `toml:"fleet"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format     string   `toml:"format"`      // "text" or "json"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // time format for log lines
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

// SQLiteConfig configures the relational listings store.
type SQLiteConfig struct {
	Path          string `toml:"path"`            // database file path
	CacheSizeMB   int    `toml:"cache_size_mb"`   // page cache size
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // lock wait before SQLITE_BUSY
	WALMode       bool   `toml:"wal_mode"`
}

// BadgerConfig configures the persistent location cache.
type BadgerConfig struct {
	CacheDir string `toml:"cache_dir"` // empty disables persistence (in-memory cache)
	TTLDays  int    `toml:"ttl_days"`  // 0 keeps entries forever
}

// BrowserConfig controls the headless browser used for rendering boards.
type BrowserConfig struct {
	Headless         bool     `toml:"headless"`
	UserAgent        string   `toml:"user_agent"`
	BlockedResources []string `toml:"blocked_resources"` // resource extensions never fetched
	WindowWidth      int      `toml:"window_width"`
	WindowHeight     int      `toml:"window_height"`
}

// ScraperConfig bounds a single board run.
type ScraperConfig struct {
	DetailConcurrency int     `toml:"detail_concurrency" validate:"omitempty,min=1"` // parallel detail-page fetches
	MaxPages          int     `toml:"max_pages"`                                     // 0 = every page
	RetryAttempts     int     `toml:"retry_attempts" validate:"omitempty,min=1"`
	PolitenessRPS     float64 `toml:"politeness_rps"` // navigation rate limit, requests/second
}

// EnrichConfig controls model-backed location parsing.
type EnrichConfig struct {
	Enabled        bool   `toml:"enabled"`
	Model          string `toml:"model"`    // provider inferred from prefix, e.g. "google/gemini-2.0-flash-001"
	APIKey         string `toml:"api_key"`  // or ROLEAGGR_ENRICH_API_KEY / OPENROUTER_API_KEY
	BaseURL        string `toml:"base_url"` // OpenAI-compatible endpoint
	RequestTimeout string `toml:"request_timeout"`
}

// FleetConfig controls multi-board runs.
type FleetConfig struct {
	Platforms      []string `toml:"platforms"`      // allowlist; empty = all registered
	SkipPlatforms  []string `toml:"skip_platforms"` // boards on these platforms are ignored
	ParallelBoards int      `toml:"parallel_boards" validate:"omitempty,min=1"`
	ToCSV          bool     `toml:"to_csv"`
	OutFile        string   `toml:"out_file"`
	Schedule       string   `toml:"schedule"` // cron expression for scheduled fleet runs
	ShowProgress   bool     `toml:"show_progress"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/roleaggr.db",
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
				WALMode:       true,
			},
			Badger: BadgerConfig{
				CacheDir: "./data/location-cache",
				TTLDays:  0,
			},
		},
		Browser: BrowserConfig{
			Headless: true,
			// Stable desktop UA; boards serve the full list markup to it
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			BlockedResources: []string{"png", "jpg", "jpeg", "gif", "svg", "webp", "css"},
			WindowWidth:      1920,
			WindowHeight:     1080,
		},
		Scraper: ScraperConfig{
			DetailConcurrency: 10,
			MaxPages:          0,
			RetryAttempts:     3,
			PolitenessRPS:     2,
		},
		Enrich: EnrichConfig{
			Enabled:        false, // opt-in: needs an API key
			Model:          "google/gemini-2.0-flash-001",
			BaseURL:        "https://openrouter.ai/api/v1",
			RequestTimeout: "30s",
		},
		Fleet: FleetConfig{
			SkipPlatforms:  []string{"linkedin", "indeed"},
			ParallelBoards: 1,
			Schedule:       "", // empty disables the scheduler
			ShowProgress:   true,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies ROLEAGGR_* environment variable overrides.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ROLEAGGR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Logging
	if level := os.Getenv("ROLEAGGR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ROLEAGGR_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitString(output, ",")
	}

	// Storage
	if path := os.Getenv("ROLEAGGR_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}
	if dir := os.Getenv("ROLEAGGR_CACHE_DIR"); dir != "" {
		config.Storage.Badger.CacheDir = dir
	}

	// Browser
	if headless := os.Getenv("ROLEAGGR_BROWSER_HEADLESS"); headless != "" {
		config.Browser.Headless = headless == "true" || headless == "1"
	}
	if ua := os.Getenv("ROLEAGGR_BROWSER_USER_AGENT"); ua != "" {
		config.Browser.UserAgent = ua
	}

	// Scraper
	if conc := os.Getenv("ROLEAGGR_DETAIL_CONCURRENCY"); conc != "" {
		if c, err := strconv.Atoi(conc); err == nil && c > 0 {
			config.Scraper.DetailConcurrency = c
		}
	}
	if pages := os.Getenv("ROLEAGGR_MAX_PAGES"); pages != "" {
		if p, err := strconv.Atoi(pages); err == nil && p >= 0 {
			config.Scraper.MaxPages = p
		}
	}

	// Enrichment. OPENROUTER_API_KEY is honored as a conventional fallback
	// so existing environments keep working.
	if enabled := os.Getenv("ROLEAGGR_ENRICH_ENABLED"); enabled != "" {
		config.Enrich.Enabled = enabled == "true" || enabled == "1"
	}
	if model := os.Getenv("ROLEAGGR_ENRICH_MODEL"); model != "" {
		config.Enrich.Model = model
	}
	if key := os.Getenv("ROLEAGGR_ENRICH_API_KEY"); key != "" {
		config.Enrich.APIKey = key
	} else if key := os.Getenv("OPENROUTER_API_KEY"); key != "" && config.Enrich.APIKey == "" {
		config.Enrich.APIKey = key
	}
	if url := os.Getenv("ROLEAGGR_ENRICH_BASE_URL"); url != "" {
		config.Enrich.BaseURL = url
	}

	// Fleet
	if schedule := os.Getenv("ROLEAGGR_FLEET_SCHEDULE"); schedule != "" {
		config.Fleet.Schedule = schedule
	}
	if parallel := os.Getenv("ROLEAGGR_FLEET_PARALLEL"); parallel != "" {
		if p, err := strconv.Atoi(parallel); err == nil && p > 0 {
			config.Fleet.ParallelBoards = p
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority).
// Zero values mean "flag not given": maxPages < 0, empty outFile.
func ApplyFlagOverrides(config *Config, maxPages int, toCSV bool, outFile string) {
	if maxPages >= 0 {
		config.Scraper.MaxPages = maxPages
	}
	if toCSV {
		config.Fleet.ToCSV = true
	}
	if outFile != "" {
		config.Fleet.OutFile = outFile
		config.Fleet.ToCSV = true
	}
}

// Validate checks field constraints declared on the config structs.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// splitString splits s on sep and trims whitespace from each part.
func splitString(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
