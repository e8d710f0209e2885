package signaldesk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	// analysesKeptPerSymbol bounds signal_analyses growth; older rows are pruned on insert.
	analysesKeptPerSymbol = 200
)

var newProvider = NewProvider

// Analyze runs the pipeline for a prepared request: indicators, prompt,
// provider call, repair parse and sanitization. The sanitized result is stored
// before it is returned; a failed save is logged and does not fail the call.
func (c *Core) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	req = NewAnalysisRequest(req.Symbol, req.History, req.Quote, req.Profile, req.Positions)
	if req.Symbol == "" {
		return nil, NewError(ErrCodeInvalidInput, "symbol is required")
	}

	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID, "symbol", req.Symbol)

	factory := c.factory
	if factory == nil {
		factory = newProvider
	}
	provider, err := factory(c.provider, logger)
	if err != nil {
		logger.Error("ai provider unavailable", "err", err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.analysisTimeout)
	defer cancel()

	started := time.Now()
	indicators := ComputeIndicators(req.History)
	userPrompt := BuildAnalysisPrompt(req, indicators)

	generation, err := provider.Generate(ctx, AnalysisSystemPrompt, userPrompt)
	if err != nil {
		logger.Error("ai generation failed", "provider", provider.Name(), "err", err)
		return nil, err
	}

	parsed, err := ParseModelJSON(generation.Text)
	if err != nil {
		logger.Error("ai response unparseable", "provider", generation.Provider, "model", generation.Model, "err", err)
		return nil, err
	}

	result := SanitizeAnalysis(parsed, req.Symbol, req.Quote.Price, indicators)
	result.Provider = generation.Provider
	result.Model = generation.Model
	result.GeneratedAt = NowRFC3339InMarket()

	if id, err := c.saveAnalysis(ctx, runID, &result); err != nil {
		logger.Warn("failed to save signal analysis", "err", err)
	} else {
		result.ID = id
	}

	logger.Info("signal analysis completed",
		"provider", result.Provider,
		"model", result.Model,
		"signal_level", result.SignalLevel,
		"action", result.Action,
		"duration", time.Since(started),
	)
	return &result, nil
}

// AnalyzeSymbol loads market data through the cache and analyzes it.
func (c *Core) AnalyzeSymbol(ctx context.Context, symbol string, profile UserProfile, positions []OpenPosition) (*AnalysisResult, error) {
	snap, err := c.LoadMarketData(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return c.Analyze(ctx, NewAnalysisRequest(symbol, snap.History, snap.Quote, profile, positions))
}

// Indicators computes the indicator set for symbol from cache-gated market data.
func (c *Core) Indicators(ctx context.Context, symbol string) (IndicatorSet, *MarketSnapshot, error) {
	snap, err := c.LoadMarketData(ctx, symbol)
	if err != nil {
		return IndicatorSet{}, nil, err
	}
	return ComputeIndicators(snap.History), snap, nil
}

// ListModels returns the ranked Gemini models for the configured key.
func (c *Core) ListModels(ctx context.Context) ([]string, error) {
	if !strings.EqualFold(c.provider.Kind, ProviderGemini) {
		return nil, NewError(ErrCodeConfiguration, "model discovery requires the gemini provider")
	}
	descriptors, err := listGeminiModels(ctx, c.provider, c.logger)
	if err != nil {
		return nil, err
	}
	ranked := RankModels(descriptors)
	if len(ranked) == 0 {
		return nil, NewError(ErrCodeNoUsableModel, "no text generation model available; listed models: "+usableModelSummary(descriptors))
	}
	return ranked, nil
}

func (c *Core) saveAnalysis(ctx context.Context, runID string, result *AnalysisResult) (int64, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("marshal analysis: %w", err)
	}

	var id int64
	err = c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO signal_analyses
				(symbol, provider, model, run_id, signal_level, action, confidence, result_json, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.Symbol,
			result.Provider,
			result.Model,
			runID,
			result.SignalLevel,
			result.Action,
			result.Confidence,
			string(payload),
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return WrapError(ErrCodeDatabase, "insert signal_analysis", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return WrapError(ErrCodeDatabase, "read signal_analysis id", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM signal_analyses
			 WHERE symbol = ? AND id NOT IN (
				SELECT id FROM signal_analyses WHERE symbol = ? ORDER BY id DESC LIMIT ?
			 )`,
			result.Symbol, result.Symbol, analysesKeptPerSymbol,
		); err != nil {
			return WrapError(ErrCodeDatabase, "prune signal_analyses", err)
		}
		return nil
	})
	return id, err
}

// GetLatestAnalysis returns the most recent stored analysis for symbol, or nil.
func (c *Core) GetLatestAnalysis(ctx context.Context, symbol string) (*AnalysisResult, error) {
	results, err := c.GetAnalysisHistory(ctx, symbol, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// GetAnalysisHistory returns up to limit stored analyses for symbol, newest first.
func (c *Core) GetAnalysisHistory(ctx context.Context, symbol string, limit int) ([]AnalysisResult, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, NewError(ErrCodeInvalidInput, "symbol is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, result_json FROM signal_analyses WHERE symbol = ? ORDER BY id DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query signal_analyses", err)
	}
	defer rows.Close()

	results := []AnalysisResult{}
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan signal_analysis row", err)
		}
		var result AnalysisResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			c.logger.Warn("skipping unreadable stored analysis", "id", id, "err", err)
			continue
		}
		result.ID = id
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(ErrCodeDatabase, "iterate signal_analyses", err)
	}
	return results, nil
}
