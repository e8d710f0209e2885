package signaldesk

import (
	"sort"
	"strings"
	"time"
)

// PriceBar is one daily OHLCV bar.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Quote is the latest trading snapshot for a symbol.
type Quote struct {
	Symbol           string  `json:"symbol"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Price            float64 `json:"price"`
	Volume           float64 `json:"volume"`
	PreviousClose    float64 `json:"previous_close"`
	Change           float64 `json:"change"`
	ChangePercent    float64 `json:"change_percent"`
	LatestTradingDay string  `json:"latest_trading_day"`
}

// BollingerBands is the volatility envelope around the middle SMA.
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// MACDValue holds the simplified MACD triple.
type MACDValue struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// IndicatorSet is the authoritative set of computed indicators.
// A nil field means the history was shorter than that indicator's window.
type IndicatorSet struct {
	SMA20     *float64        `json:"sma20"`
	SMA50     *float64        `json:"sma50"`
	SMA200    *float64        `json:"sma200"`
	RSI14     *float64        `json:"rsi14"`
	Bollinger *BollingerBands `json:"bollinger"`
	MACD      *MACDValue      `json:"macd"`
}

// Risk levels.
const (
	RiskConservative = "conservative"
	RiskModerate     = "moderate"
	RiskAggressive   = "aggressive"
)

// Investment styles.
const (
	StyleDayTrading = "day_trading"
	StyleSwing      = "swing"
	StyleLongTerm   = "long_term"
)

// UserProfile is the caller-supplied risk and style snapshot.
type UserProfile struct {
	RiskLevel       string `json:"risk_level"`
	InvestmentStyle string `json:"investment_style"`
}

// Normalize lowercases the profile and replaces unknown values with moderate/swing.
func (p UserProfile) Normalize() UserProfile {
	risk := strings.ToLower(strings.TrimSpace(p.RiskLevel))
	switch risk {
	case RiskConservative, RiskModerate, RiskAggressive:
	default:
		risk = RiskModerate
	}
	style := strings.ToLower(strings.TrimSpace(p.InvestmentStyle))
	switch style {
	case StyleDayTrading, StyleSwing, StyleLongTerm:
	default:
		style = StyleSwing
	}
	return UserProfile{RiskLevel: risk, InvestmentStyle: style}
}

// Position kinds.
const (
	PositionStock      = "stock"
	PositionCallOption = "call_option"
	PositionPutOption  = "put_option"
)

// OpenPosition is one open trade the user holds in the analyzed symbol.
// For options Quantity is the number of contracts and Price the premium per share.
type OpenPosition struct {
	Kind       string  `json:"kind"`
	Direction  string  `json:"direction"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Strike     float64 `json:"strike,omitempty"`
	Expiration string  `json:"expiration,omitempty"`
	Status     string  `json:"status"`
}

// AnalysisRequest is everything one analysis needs. Build it with NewAnalysisRequest.
type AnalysisRequest struct {
	Symbol    string
	History   []PriceBar
	Quote     Quote
	Profile   UserProfile
	Positions []OpenPosition
}

// NewAnalysisRequest normalizes its inputs and copies the slices so later
// mutation by the caller does not leak into the request.
func NewAnalysisRequest(symbol string, history []PriceBar, quote Quote, profile UserProfile, positions []OpenPosition) AnalysisRequest {
	return AnalysisRequest{
		Symbol:    normalizeSymbol(symbol),
		History:   NormalizeHistory(history),
		Quote:     quote,
		Profile:   profile.Normalize(),
		Positions: append([]OpenPosition(nil), positions...),
	}
}

// Signal levels.
const (
	SignalWeak       = "weak"
	SignalMedium     = "medium"
	SignalStrong     = "strong"
	SignalVeryStrong = "very_strong"
)

// Actions.
const (
	ActionBuy   = "buy"
	ActionSell  = "sell"
	ActionHold  = "hold"
	ActionWatch = "watch"
)

// Risk estimations.
const (
	RiskEstimateLow      = "low"
	RiskEstimateModerate = "moderate"
	RiskEstimateHigh     = "high"
	RiskEstimateVeryHigh = "very_high"
)

// Trends.
const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
	TrendNeutral = "neutral"
)

// TechnicalSummary is the model's technical read plus the computed indicator values.
type TechnicalSummary struct {
	Trend            string    `json:"trend"`
	SupportLevels    []float64 `json:"support_levels"`
	ResistanceLevels []float64 `json:"resistance_levels"`
	KeyIndicators    []string  `json:"key_indicators"`
	BBUpper          *float64  `json:"bb_upper"`
	BBMiddle         *float64  `json:"bb_middle"`
	BBLower          *float64  `json:"bb_lower"`
	SMA20            *float64  `json:"sma_20"`
	SMA50            *float64  `json:"sma_50"`
	SMA200           *float64  `json:"sma_200"`
	RSI              *float64  `json:"rsi"`
	MACD             *float64  `json:"macd"`
	MACDSignal       *float64  `json:"macd_signal"`
	MACDHistogram    *float64  `json:"macd_histogram"`
}

// AnalysisResult is the sanitized recommendation. Every field is present and
// inside its enumerated domain.
type AnalysisResult struct {
	ID                 int64            `json:"id,omitempty"`
	Symbol             string           `json:"symbol"`
	SignalLevel        string           `json:"signal_level"`
	Action             string           `json:"action"`
	SuggestedBuyPrice  *float64         `json:"suggested_buy_price"`
	SuggestedSellPrice *float64         `json:"suggested_sell_price"`
	StopLossPrice      *float64         `json:"stop_loss_price"`
	RiskEstimation     string           `json:"risk_estimation"`
	Reasoning          string           `json:"reasoning"`
	TechnicalSummary   TechnicalSummary `json:"technical_summary"`
	Confidence         float64          `json:"confidence"`
	TimeHorizon        string           `json:"time_horizon"`
	Provider           string           `json:"provider,omitempty"`
	Model              string           `json:"model,omitempty"`
	GeneratedAt        string           `json:"generated_at,omitempty"`
}

// Market data kinds stored in the cache.
const (
	DataKindQuote = "quote"
	DataKindDaily = "daily"
)

// CacheEntry is one stored market data payload.
type CacheEntry struct {
	Symbol    string
	Kind      string
	Payload   []byte
	FetchedAt time.Time
}

// ModelDescriptor is one model advertised by a provider's discovery endpoint.
type ModelDescriptor struct {
	ID               string
	DisplayName      string
	SupportedMethods []string
}

// NormalizeHistory returns an ascending, date-unique copy of history without
// bars whose close is not positive. For duplicate dates the later bar wins.
func NormalizeHistory(history []PriceBar) []PriceBar {
	byDay := make(map[string]int, len(history))
	out := make([]PriceBar, 0, len(history))
	for _, bar := range history {
		if bar.Close <= 0 || bar.Volume < 0 {
			continue
		}
		day := bar.Date.Format("2006-01-02")
		if idx, ok := byDay[day]; ok {
			out[idx] = bar
			continue
		}
		byDay[day] = len(out)
		out = append(out, bar)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
