package mobile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"signaldesk/pkg/signaldesk"
)

// Core wraps the signaldesk core for gomobile bindings. Every method
// exchanges JSON strings so the bound API stays within gomobile's types.
type Core struct {
	core *signaldesk.Core
}

// Open initializes the core with a database path and no LLM provider.
// Indicators and stored analyses work; new analyses fail with a
// configuration error.
func Open(dbPath string) (*Core, error) {
	core, err := signaldesk.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Core{core: core}, nil
}

// OpenJSON initializes the core from an options JSON document.
func OpenJSON(optionsJSON string) (*Core, error) {
	var payload optionsPayload
	if err := json.Unmarshal([]byte(optionsJSON), &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.DBPath) == "" {
		return nil, errors.New("db_path is required")
	}
	core, err := signaldesk.OpenWithOptions(signaldesk.Options{
		DBPath: payload.DBPath,
		Provider: signaldesk.ProviderConfig{
			Kind:    payload.Provider,
			APIKey:  payload.APIKey,
			BaseURL: payload.BaseURL,
			Model:   payload.Model,
		},
		CacheTTL:    time.Duration(payload.CacheTTLSeconds) * time.Second,
		HistorySize: payload.HistorySize,
	})
	if err != nil {
		return nil, err
	}
	return &Core{core: core}, nil
}

// Close releases resources.
func (c *Core) Close() error {
	if c == nil || c.core == nil {
		return nil
	}
	return c.core.Close()
}

// AnalyzeSymbolJSON runs an analysis from a {symbol, profile, positions}
// payload and returns the stored result as JSON.
func (c *Core) AnalyzeSymbolJSON(payloadJSON string) (string, error) {
	var payload analysisPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return "", err
	}
	result, err := c.core.AnalyzeSymbol(context.Background(), payload.Symbol, payload.Profile, payload.Positions)
	if err != nil {
		return "", err
	}
	return marshalJSON(result)
}

// GetLatestAnalysisJSON returns the newest analysis for symbol, or "null".
func (c *Core) GetLatestAnalysisJSON(symbol string) (string, error) {
	result, err := c.core.GetLatestAnalysis(context.Background(), symbol)
	if err != nil {
		return "", err
	}
	return marshalJSON(result)
}

// GetAnalysisHistoryJSON returns up to limit analyses for symbol, newest first.
func (c *Core) GetAnalysisHistoryJSON(symbol string, limit int) (string, error) {
	results, err := c.core.GetAnalysisHistory(context.Background(), symbol, limit)
	if err != nil {
		return "", err
	}
	return marshalJSON(results)
}

// GetIndicatorsJSON returns the quote and indicator set for symbol.
func (c *Core) GetIndicatorsJSON(symbol string) (string, error) {
	indicators, snap, err := c.core.Indicators(context.Background(), symbol)
	if err != nil {
		return "", err
	}
	return marshalJSON(indicatorsPayload{
		Symbol:     strings.ToUpper(strings.TrimSpace(symbol)),
		Quote:      snap.Quote,
		Indicators: indicators,
		Bars:       len(snap.History),
		FromCache:  snap.FromCache,
	})
}

// ListModelsJSON returns the ranked Gemini model ids.
func (c *Core) ListModelsJSON() (string, error) {
	models, err := c.core.ListModels(context.Background())
	if err != nil {
		return "", err
	}
	return marshalJSON(models)
}

// ErrorCode returns the signaldesk error code carried by err, or "".
func ErrorCode(err error) string {
	var e *signaldesk.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return ""
}

func marshalJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type optionsPayload struct {
	DBPath          string `json:"db_path"`
	Provider        string `json:"provider"`
	APIKey          string `json:"api_key"`
	BaseURL         string `json:"base_url"`
	Model           string `json:"model"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
	HistorySize     int    `json:"history_size"`
}

type analysisPayload struct {
	Symbol    string                    `json:"symbol"`
	Profile   signaldesk.UserProfile    `json:"profile"`
	Positions []signaldesk.OpenPosition `json:"positions"`
}

type indicatorsPayload struct {
	Symbol     string                  `json:"symbol"`
	Quote      signaldesk.Quote        `json:"quote"`
	Indicators signaldesk.IndicatorSet `json:"indicators"`
	Bars       int                     `json:"bars"`
	FromCache  bool                    `json:"from_cache"`
}
