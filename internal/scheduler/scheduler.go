package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultWarmTimeout = 2 * time.Minute

// Warmer refreshes cached market data for one symbol.
type Warmer interface {
	WarmMarketData(ctx context.Context, symbol string) error
}

// CacheWarmer periodically refreshes the market data cache for a watch list,
// so interactive analyses find fresh data.
type CacheWarmer struct {
	cron    *cron.Cron
	warmer  Warmer
	symbols []string
	logger  *slog.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewCacheWarmer creates a warmer for the given symbols. Blank and duplicate
// symbols are dropped.
func NewCacheWarmer(ctx context.Context, warmer Warmer, symbols []string, logger *slog.Logger) *CacheWarmer {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &CacheWarmer{
		cron:    cron.New(cron.WithSeconds()),
		warmer:  warmer,
		symbols: dedupeSymbols(symbols),
		logger:  logger,
		timeout: defaultWarmTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register schedules the warm-up run on expr, a six-field cron expression
// with a leading seconds field.
func (w *CacheWarmer) Register(expr string) error {
	if len(w.symbols) == 0 {
		return errors.New("no warm-up symbols configured")
	}
	if _, err := w.cron.AddFunc(expr, w.RunNow); err != nil {
		return fmt.Errorf("register cache warm-up: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (w *CacheWarmer) Start() {
	w.cron.Start()
	w.logger.Info("cache warmer started", "symbols", len(w.symbols))
}

// Stop cancels in-flight refreshes and waits for the running job to return.
func (w *CacheWarmer) Stop() {
	w.cancel()
	<-w.cron.Stop().Done()
	w.logger.Info("cache warmer stopped")
}

// RunNow refreshes every symbol sequentially. Overlapping runs are skipped.
func (w *CacheWarmer) RunNow() {
	if !w.mu.TryLock() {
		w.logger.Warn("cache warm-up still running; skipping")
		return
	}
	defer w.mu.Unlock()

	started := time.Now()
	failed := 0
	for _, symbol := range w.symbols {
		if w.ctx.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
		err := w.warmer.WarmMarketData(ctx, symbol)
		cancel()
		if err != nil {
			failed++
			w.logger.Warn("cache warm-up failed", "symbol", symbol, "err", err)
		}
	}
	w.logger.Info("cache warm-up completed",
		"symbols", len(w.symbols),
		"failed", failed,
		"duration", time.Since(started),
	)
}

func dedupeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
