package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"signaldesk/internal/api"
	"signaldesk/internal/config"
	"signaldesk/internal/logging"
	"signaldesk/internal/scheduler"
	"signaldesk/pkg/signaldesk"
)

var getppid = os.Getppid
var sleep = time.Sleep
var exit = os.Exit

func main() {
	var configPath string
	var dataDir string
	var port int
	var host string

	flag.StringVar(&configPath, "config", "", "Path to a YAML, TOML or JSON config file")
	flag.StringVar(&dataDir, "data-dir", "", "Directory for storing database and logs")
	flag.IntVar(&port, "port", 8000, "Port to run the server on")
	flag.StringVar(&host, "host", "127.0.0.1", "Host to bind the server to")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	// Flags given on the command line win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data-dir":
			cfg.DataDir = dataDir
		case "port":
			cfg.Server.Port = port
		case "host":
			cfg.Server.Host = host
		}
	})

	resolvedDataDir, err := cfg.GetDataDir()
	if err != nil {
		slog.Error("failed to resolve data directory", "err", err)
		os.Exit(1)
	}
	logger, writer, err := logging.NewLogger(logging.Options{
		Dir:   filepath.Join(resolvedDataDir, "logs"),
		Level: cfg.LogLevel,
	})
	if err != nil {
		slog.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()
	if cfg.Path != "" {
		logger.Info("config loaded", "path", cfg.Path)
	}

	dbPath, err := cfg.GetDBPath()
	if err != nil {
		logger.Error("failed to resolve db path", "err", err)
		os.Exit(1)
	}

	core, err := signaldesk.OpenWithOptions(signaldesk.Options{
		DBPath:      dbPath,
		Logger:      logger,
		Provider:    cfg.ProviderConfig(),
		CacheTTL:    cfg.CacheTTL(),
		HistorySize: cfg.Market.HistorySize,
	})
	if err != nil {
		logger.Error("failed to initialize core", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error("failed to close core", "err", err)
		}
	}()

	if os.Getenv("SIGNALDESK_PARENT_WATCH") == "1" {
		go watchParent(logger)
	}

	ctx, cancelWarmup := context.WithCancel(context.Background())
	defer cancelWarmup()
	warmer := startWarmer(ctx, cfg, core, logger)
	if warmer != nil {
		defer warmer.Stop()
	}

	addr := cfg.Addr()
	handler := middleware.Compress(5)(api.NewRouter(core))

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", addr, "provider", core.ProviderName())
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	signal.Stop(stop)

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
}

// startWarmer schedules market data prefetch for the configured symbols.
// It returns nil when warmup is disabled or cannot be scheduled.
func startWarmer(ctx context.Context, cfg config.Config, w scheduler.Warmer, logger *slog.Logger) *scheduler.CacheWarmer {
	if len(cfg.Warmup.Symbols) == 0 || cfg.Warmup.Cron == "" {
		return nil
	}
	warmer := scheduler.NewCacheWarmer(ctx, w, cfg.Warmup.Symbols, logger)
	if err := warmer.Register(cfg.Warmup.Cron); err != nil {
		logger.Error("failed to schedule cache warmup", "cron", cfg.Warmup.Cron, "err", err)
		return nil
	}
	warmer.Start()
	logger.Info("cache warmup scheduled", "cron", cfg.Warmup.Cron, "symbols", cfg.Warmup.Symbols)
	return warmer
}

func watchParent(logger *slog.Logger) {
	for {
		sleep(1 * time.Second)
		if getppid() == 1 {
			logger.Info("parent process exited; shutting down")
			exit(0)
		}
	}
}
