package signaldesk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	defaultConfidence  = 0.5
	defaultTimeHorizon = "N/A"
)

var (
	allowedSignalLevels = map[string]struct{}{SignalWeak: {}, SignalMedium: {}, SignalStrong: {}, SignalVeryStrong: {}}
	allowedActions      = map[string]struct{}{ActionBuy: {}, ActionSell: {}, ActionHold: {}, ActionWatch: {}}
	allowedRiskEstimate = map[string]struct{}{RiskEstimateLow: {}, RiskEstimateModerate: {}, RiskEstimateHigh: {}, RiskEstimateVeryHigh: {}}
	allowedTrends       = map[string]struct{}{TrendBullish: {}, TrendBearish: {}, TrendNeutral: {}}
)

// analysisDraft is what the model actually said. Every field is optional and
// nothing is validated yet.
type analysisDraft struct {
	Symbol             *string
	SignalLevel        *string
	Action             *string
	SuggestedBuyPrice  *float64
	SuggestedSellPrice *float64
	StopLossPrice      *float64
	RiskEstimation     *string
	Reasoning          *string
	Trend              *string
	SupportLevels      []float64
	ResistanceLevels   []float64
	KeyIndicators      []string
	Confidence         *float64
	TimeHorizon        *string
}

func draftFromMap(m map[string]any) analysisDraft {
	d := analysisDraft{
		Symbol:             stringField(m, "symbol"),
		SignalLevel:        stringField(m, "signal_level", "signalLevel"),
		Action:             stringField(m, "action"),
		SuggestedBuyPrice:  numberField(m, "suggested_buy_price", "suggestedBuyPrice"),
		SuggestedSellPrice: numberField(m, "suggested_sell_price", "suggestedSellPrice"),
		StopLossPrice:      numberField(m, "stop_loss_price", "stopLossPrice"),
		RiskEstimation:     stringField(m, "risk_estimation", "riskEstimation"),
		Reasoning:          stringField(m, "reasoning"),
		Confidence:         numberField(m, "confidence"),
		TimeHorizon:        stringField(m, "time_horizon", "timeHorizon"),
	}
	summary, _ := lookup(m, "technical_summary", "technicalSummary").(map[string]any)
	if summary != nil {
		d.Trend = stringField(summary, "trend")
		d.SupportLevels = numberList(lookup(summary, "support_levels", "supportLevels"))
		d.ResistanceLevels = numberList(lookup(summary, "resistance_levels", "resistanceLevels"))
		d.KeyIndicators = stringList(lookup(summary, "key_indicators", "keyIndicators"))
	}
	return d
}

// SanitizeAnalysis coerces a parsed model reply into a complete AnalysisResult.
// Out-of-domain enums fall back to weak, watch, moderate and neutral; blank
// reasoning is synthesized; confidence is clamped to [0,1]; the indicator
// values always come from ind, never from the model.
func SanitizeAnalysis(parsed map[string]any, symbol string, price float64, ind IndicatorSet) AnalysisResult {
	d := draftFromMap(parsed)

	result := AnalysisResult{
		Symbol:             normalizeSymbol(symbol),
		SignalLevel:        normalizeEnum(d.SignalLevel, SignalWeak, allowedSignalLevels),
		Action:             normalizeEnum(d.Action, ActionWatch, allowedActions),
		SuggestedBuyPrice:  positivePrice(d.SuggestedBuyPrice),
		SuggestedSellPrice: positivePrice(d.SuggestedSellPrice),
		StopLossPrice:      positivePrice(d.StopLossPrice),
		RiskEstimation:     normalizeRiskEstimate(d.RiskEstimation),
		Confidence:         clampConfidence(d.Confidence),
		TimeHorizon:        defaultTimeHorizon,
	}
	if result.Symbol == "" && d.Symbol != nil {
		result.Symbol = normalizeSymbol(*d.Symbol)
	}
	if d.TimeHorizon != nil && strings.TrimSpace(*d.TimeHorizon) != "" {
		result.TimeHorizon = strings.TrimSpace(*d.TimeHorizon)
	}

	result.TechnicalSummary = TechnicalSummary{
		Trend:            normalizeEnum(d.Trend, TrendNeutral, allowedTrends),
		SupportLevels:    nonNilFloats(d.SupportLevels),
		ResistanceLevels: nonNilFloats(d.ResistanceLevels),
		KeyIndicators:    nonNilStrings(d.KeyIndicators),
	}
	applyIndicators(&result.TechnicalSummary, ind)

	if d.Reasoning != nil && strings.TrimSpace(*d.Reasoning) != "" {
		result.Reasoning = strings.TrimSpace(*d.Reasoning)
	} else {
		result.Reasoning = synthesizeReasoning(result, price, ind)
	}
	return result
}

func applyIndicators(ts *TechnicalSummary, ind IndicatorSet) {
	ts.SMA20 = copyFloat(ind.SMA20)
	ts.SMA50 = copyFloat(ind.SMA50)
	ts.SMA200 = copyFloat(ind.SMA200)
	ts.RSI = copyFloat(ind.RSI14)
	ts.BBUpper, ts.BBMiddle, ts.BBLower = nil, nil, nil
	if ind.Bollinger != nil {
		ts.BBUpper = floatPtr(ind.Bollinger.Upper)
		ts.BBMiddle = floatPtr(ind.Bollinger.Middle)
		ts.BBLower = floatPtr(ind.Bollinger.Lower)
	}
	ts.MACD, ts.MACDSignal, ts.MACDHistogram = nil, nil, nil
	if ind.MACD != nil {
		ts.MACD = floatPtr(ind.MACD.MACD)
		ts.MACDSignal = floatPtr(ind.MACD.Signal)
		ts.MACDHistogram = floatPtr(ind.MACD.Histogram)
	}
}

func synthesizeReasoning(r AnalysisResult, price float64, ind IndicatorSet) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%s at %s: %s signal, %s trend, suggested action %s.",
		r.Symbol, formatMoney(price), r.SignalLevel, r.TechnicalSummary.Trend, r.Action))
	if ind.RSI14 != nil {
		parts = append(parts, fmt.Sprintf("RSI(14) %s.", formatMoney(*ind.RSI14)))
	}
	if ind.SMA20 != nil {
		parts = append(parts, fmt.Sprintf("SMA20 %s.", formatMoney(*ind.SMA20)))
	}
	parts = append(parts, "The model gave no reasoning; this summary was generated from the indicators.")
	return strings.Join(parts, " ")
}

func normalizeEnum(raw *string, fallback string, allowed map[string]struct{}) string {
	if raw == nil {
		return fallback
	}
	v := strings.ToLower(strings.TrimSpace(*raw))
	v = strings.NewReplacer(" ", "_", "-", "_").Replace(v)
	if _, ok := allowed[v]; ok {
		return v
	}
	return fallback
}

func normalizeRiskEstimate(raw *string) string {
	if raw != nil && strings.EqualFold(strings.TrimSpace(*raw), "medium") {
		return RiskEstimateModerate
	}
	return normalizeEnum(raw, RiskEstimateModerate, allowedRiskEstimate)
}

func clampConfidence(v *float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return defaultConfidence
	}
	return math.Max(0, math.Min(1, *v))
}

func positivePrice(v *float64) *float64 {
	if v == nil || *v <= 0 || math.IsInf(*v, 0) {
		return nil
	}
	return floatPtr(*v)
}

func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(m map[string]any, keys ...string) *string {
	switch v := lookup(m, keys...).(type) {
	case string:
		return &v
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(v)
		return &s
	default:
		return nil
	}
}

func numberField(m map[string]any, keys ...string) *float64 {
	f, ok := toNumber(lookup(m, keys...))
	if !ok {
		return nil
	}
	return &f
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case string:
		cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(n))
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func numberList(v any) []float64 {
	items, _ := v.([]any)
	out := make([]float64, 0, len(items))
	for _, item := range items {
		if f, ok := toNumber(item); ok {
			out = append(out, f)
		}
	}
	return out
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func nonNilFloats(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func floatPtr(v float64) *float64 {
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return floatPtr(*v)
}
