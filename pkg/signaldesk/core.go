package signaldesk

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Options controls Core initialization.
type Options struct {
	DBPath   string
	Logger   *slog.Logger
	Provider ProviderConfig
	// ProviderFactory builds the LLM provider per analysis; nil means NewProvider.
	ProviderFactory func(ProviderConfig, *slog.Logger) (Provider, error)

	// MarketData and CacheStore default to Yahoo Finance and the Core's SQLite database.
	MarketData MarketDataProvider
	CacheStore CacheStore
	HTTPClient HTTPDoer

	CacheTTL        time.Duration
	HistorySize     int
	HTTPTimeout     time.Duration
	AnalysisTimeout time.Duration

	MarketFailThreshold int
	MarketFailWindow    time.Duration
	MarketCooldown      time.Duration
}

// Core provides access to the signal analysis pipeline and its storage.
type Core struct {
	db       *sql.DB
	logger   *slog.Logger
	dbPath   string
	provider ProviderConfig
	factory  func(ProviderConfig, *slog.Logger) (Provider, error)

	market          MarketDataProvider
	cache           *MarketCache
	historySize     int
	analysisTimeout time.Duration
}

// Open initializes a Core using the provided database path.
func Open(dbPath string) (*Core, error) {
	return OpenWithOptions(Options{DBPath: dbPath})
}

// OpenWithOptions initializes a Core using the provided options.
func OpenWithOptions(opts Options) (*Core, error) {
	if opts.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	cleanPath := filepath.Clean(opts.DBPath)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite performs best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Warn("pragma busy_timeout failed", "err", err)
	}

	if err := initDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}

	httpTimeout := defaultDuration(opts.HTTPTimeout, 15*time.Second)
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}

	market := opts.MarketData
	if market == nil {
		market = NewYahooProvider(YahooOptions{
			Logger:        logger,
			HTTPClient:    client,
			FailThreshold: defaultInt(opts.MarketFailThreshold, 3),
			FailWindow:    defaultDuration(opts.MarketFailWindow, 60*time.Second),
			Cooldown:      defaultDuration(opts.MarketCooldown, 120*time.Second),
		})
	}

	store := opts.CacheStore
	if store == nil {
		store = newSQLiteCacheStore(db)
	}

	provider := opts.Provider
	if provider.HTTPTimeout <= 0 {
		provider.HTTPTimeout = defaultDuration(opts.HTTPTimeout, defaultAIRequestTimeout)
	}

	return &Core{
		db:              db,
		logger:          logger,
		dbPath:          cleanPath,
		provider:        provider,
		factory:         opts.ProviderFactory,
		market:          market,
		cache:           NewMarketCache(store, defaultDuration(opts.CacheTTL, DefaultCacheTTL)),
		historySize:     defaultInt(opts.HistorySize, defaultHistorySize),
		analysisTimeout: defaultDuration(opts.AnalysisTimeout, defaultAnalysisTimeout),
	}, nil
}

// Close releases database resources.
func (c *Core) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DBPath returns the underlying database path.
func (c *Core) DBPath() string {
	return c.dbPath
}

// Logger returns the logger the Core writes to.
func (c *Core) Logger() *slog.Logger {
	return c.logger
}

// ProviderName reports the configured LLM provider kind.
func (c *Core) ProviderName() string {
	return c.provider.Kind
}

func defaultDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func defaultInt(v int, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
