package signaldesk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultHistorySize = 250
	defaultYahooURL    = "https://query1.finance.yahoo.com"
)

// maxResponseSize limits external API responses to 1MB to prevent memory exhaustion.
const maxResponseSize = 1 << 20

// HTTPDoer is an interface for making HTTP requests. It enables dependency
// injection for testing without network calls.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// MarketDataProvider fetches quotes and daily history from an upstream source.
// Unknown symbols yield ErrSymbolNotFound; anything else is an upstream failure.
type MarketDataProvider interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetHistory(ctx context.Context, symbol string, size int) ([]PriceBar, error)
}

// YahooOptions configures a YahooProvider.
type YahooOptions struct {
	Logger        *slog.Logger
	HTTPClient    HTTPDoer
	BaseURL       string
	FailThreshold int
	FailWindow    time.Duration
	Cooldown      time.Duration
}

// YahooProvider reads the Yahoo Finance chart endpoint. Repeated failures
// put the source into a cooldown during which requests fail fast.
type YahooProvider struct {
	logger        *slog.Logger
	client        HTTPDoer
	baseURL       string
	failThreshold int
	failWindow    time.Duration
	cooldown      time.Duration

	mu            sync.Mutex
	failCount     int
	firstFailAt   time.Time
	cooldownUntil time.Time
}

// NewYahooProvider creates a YahooProvider.
func NewYahooProvider(opts YahooOptions) *YahooProvider {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultYahooURL
	}
	return &YahooProvider{
		logger:        logger,
		client:        client,
		baseURL:       baseURL,
		failThreshold: defaultInt(opts.FailThreshold, 3),
		failWindow:    defaultDuration(opts.FailWindow, 60*time.Second),
		cooldown:      defaultDuration(opts.Cooldown, 120*time.Second),
	}
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string  `json:"symbol"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				RegularMarketVolume  float64 `json:"regularMarketVolume"`
				RegularMarketTime    int64   `json:"regularMarketTime"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				PreviousClose        float64 `json:"previousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetQuote builds the latest quote from the chart metadata.
func (p *YahooProvider) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	chart, err := p.fetchChart(ctx, symbol, "5d")
	if err != nil {
		return Quote{}, err
	}
	result := chart.Chart.Result[0]
	meta := result.Meta
	if meta.RegularMarketPrice <= 0 {
		return Quote{}, fmt.Errorf("yahoo quote %s: %w", symbol, ErrNoData)
	}
	bars := chartBars(chart)
	var open float64
	if len(bars) > 0 {
		open = bars[len(bars)-1].Open
	}
	prev := meta.PreviousClose
	if prev <= 0 && len(bars) > 1 {
		prev = bars[len(bars)-2].Close
	}
	if prev <= 0 {
		prev = meta.ChartPreviousClose
	}
	day := ""
	if meta.RegularMarketTime > 0 {
		day = marketDay(time.Unix(meta.RegularMarketTime, 0))
	}
	return NewQuote(symbol, open, meta.RegularMarketDayHigh, meta.RegularMarketDayLow,
		meta.RegularMarketPrice, meta.RegularMarketVolume, prev, day), nil
}

// GetHistory returns up to size daily bars, oldest first.
func (p *YahooProvider) GetHistory(ctx context.Context, symbol string, size int) ([]PriceBar, error) {
	chart, err := p.fetchChart(ctx, symbol, historyRange(size))
	if err != nil {
		return nil, err
	}
	bars := NormalizeHistory(chartBars(chart))
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo history %s: %w", symbol, ErrNoData)
	}
	if size > 0 && len(bars) > size {
		bars = bars[len(bars)-size:]
	}
	return bars, nil
}

func historyRange(size int) string {
	switch {
	case size <= 0:
		return "1y"
	case size <= 100:
		return "6mo"
	case size <= 250:
		return "1y"
	case size <= 500:
		return "2y"
	default:
		return "5y"
	}
}

func chartBars(chart *yahooChart) []PriceBar {
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil
	}
	result := chart.Chart.Result[0]
	q := result.Indicators.Quote[0]
	bars := make([]PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := valueAt(q.Close, i)
		if c <= 0 {
			// null bars (holidays, halted sessions)
			continue
		}
		bars = append(bars, PriceBar{
			Date:   time.Unix(ts, 0).In(marketLocation),
			Open:   valueAt(q.Open, i),
			High:   valueAt(q.High, i),
			Low:    valueAt(q.Low, i),
			Close:  c,
			Volume: valueAt(q.Volume, i),
		})
	}
	return bars
}

func valueAt(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

func (p *YahooProvider) fetchChart(ctx context.Context, symbol, rng string) (*yahooChart, error) {
	if !p.available() {
		return nil, NewError(ErrCodeUpstreamUnavailable, "yahoo market data cooling down after repeated failures")
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s", p.baseURL, url.PathEscape(symbol), rng)
	body, status, err := p.httpGet(ctx, u)
	if err != nil {
		p.recordFailure()
		return nil, WrapError(ErrCodeUpstreamUnavailable, "yahoo request failed", err)
	}

	var chart yahooChart
	decodeErr := json.Unmarshal(body, &chart)
	if chart.Chart.Error != nil && strings.EqualFold(chart.Chart.Error.Code, "Not Found") {
		p.recordSuccess()
		return nil, fmt.Errorf("yahoo %s: %s: %w", symbol, chart.Chart.Error.Description, ErrSymbolNotFound)
	}
	if status < 200 || status >= 300 {
		if status == http.StatusNotFound {
			p.recordSuccess()
			return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrSymbolNotFound)
		}
		p.recordFailure()
		return nil, WrapError(ErrCodeUpstreamUnavailable, "yahoo request failed", &StatusError{StatusCode: status, Body: string(body)})
	}
	if decodeErr != nil {
		p.recordFailure()
		return nil, WrapError(ErrCodeUpstreamUnavailable, "decode yahoo chart", decodeErr)
	}
	if chart.Chart.Error != nil {
		p.recordFailure()
		return nil, NewError(ErrCodeUpstreamUnavailable, "yahoo api error: "+chart.Chart.Error.Description)
	}
	p.recordSuccess()
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrSymbolNotFound)
	}
	return &chart, nil
}

func (p *YahooProvider) httpGet(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (p *YahooProvider) available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().After(p.cooldownUntil)
}

func (p *YahooProvider) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if p.failCount == 0 || now.Sub(p.firstFailAt) > p.failWindow {
		p.failCount = 0
		p.firstFailAt = now
	}
	p.failCount++
	if p.failCount >= p.failThreshold {
		p.cooldownUntil = now.Add(p.cooldown)
		p.logger.Warn("yahoo market data entering cooldown", "failures", p.failCount, "until", p.cooldownUntil)
	}
}

func (p *YahooProvider) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failCount = 0
	p.cooldownUntil = time.Time{}
}

// MarketSnapshot is the quote and history one analysis works from.
type MarketSnapshot struct {
	Quote     Quote      `json:"quote"`
	History   []PriceBar `json:"history"`
	FromCache bool       `json:"from_cache"`
}

// LoadMarketData returns the quote and daily history for symbol. Cached data
// is used only when both kinds are fresh; otherwise both are fetched
// concurrently and written back.
func (c *Core) LoadMarketData(ctx context.Context, symbol string) (*MarketSnapshot, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, NewError(ErrCodeInvalidInput, "symbol is required")
	}

	if snap, ok := c.cachedSnapshot(ctx, symbol); ok {
		c.logger.Debug("market data served from cache", "symbol", symbol)
		return snap, nil
	}

	snap, err := c.fetchSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.storeSnapshot(ctx, symbol, snap)
	return snap, nil
}

// WarmMarketData refreshes the cache for symbol unless both kinds are still fresh.
func (c *Core) WarmMarketData(ctx context.Context, symbol string) error {
	_, err := c.LoadMarketData(ctx, symbol)
	return err
}

func (c *Core) cachedSnapshot(ctx context.Context, symbol string) (*MarketSnapshot, bool) {
	quoteRaw, quoteOK, err := c.cache.Get(ctx, symbol, DataKindQuote)
	if err != nil {
		c.logger.Warn("market cache read failed", "symbol", symbol, "kind", DataKindQuote, "err", err)
		return nil, false
	}
	dailyRaw, dailyOK, err := c.cache.Get(ctx, symbol, DataKindDaily)
	if err != nil {
		c.logger.Warn("market cache read failed", "symbol", symbol, "kind", DataKindDaily, "err", err)
		return nil, false
	}
	if !quoteOK || !dailyOK {
		return nil, false
	}

	snap := &MarketSnapshot{FromCache: true}
	if err := json.Unmarshal(quoteRaw, &snap.Quote); err != nil {
		c.logger.Warn("discarding unreadable cached quote", "symbol", symbol, "err", err)
		return nil, false
	}
	if err := json.Unmarshal(dailyRaw, &snap.History); err != nil {
		c.logger.Warn("discarding unreadable cached history", "symbol", symbol, "err", err)
		return nil, false
	}
	snap.History = NormalizeHistory(snap.History)
	return snap, true
}

func (c *Core) fetchSnapshot(ctx context.Context, symbol string) (*MarketSnapshot, error) {
	snap := &MarketSnapshot{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := c.market.GetQuote(gctx, symbol)
		if err != nil {
			return err
		}
		snap.Quote = q
		return nil
	})
	g.Go(func() error {
		bars, err := c.market.GetHistory(gctx, symbol, c.historySize)
		if err != nil {
			return err
		}
		snap.History = NormalizeHistory(bars)
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrSymbolNotFound) {
			return nil, WrapError(ErrCodeNotFound, "unknown symbol "+symbol, err)
		}
		if errors.Is(err, ErrNoData) {
			return nil, WrapError(ErrCodeUpstreamUnavailable, "no market data for "+symbol, err)
		}
		var coded *Error
		if errors.As(err, &coded) {
			return nil, err
		}
		return nil, WrapError(ErrCodeUpstreamUnavailable, "fetch market data", err)
	}
	return snap, nil
}

// storeSnapshot writes both kinds back concurrently. Failures are logged only.
func (c *Core) storeSnapshot(ctx context.Context, symbol string, snap *MarketSnapshot) {
	fetchedAt := c.cache.now()
	var g errgroup.Group
	g.Go(func() error {
		payload, err := json.Marshal(snap.Quote)
		if err != nil {
			return err
		}
		return c.cache.Put(ctx, symbol, DataKindQuote, payload, fetchedAt)
	})
	g.Go(func() error {
		payload, err := json.Marshal(snap.History)
		if err != nil {
			return err
		}
		return c.cache.Put(ctx, symbol, DataKindDaily, payload, fetchedAt)
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("market cache write failed", "symbol", symbol, "err", err)
	}
}
