package signaldesk

import (
	"fmt"
	"strings"
)

// promptHistoryBars is how many of the most recent bars are listed in the prompt.
const promptHistoryBars = 30

// AnalysisSystemPrompt frames the model as a technical analyst that answers in JSON only.
const AnalysisSystemPrompt = `You are a disciplined equity technical analyst. You read price action and technical indicators, weigh them against the trader's risk tolerance and investment style, and give one concrete recommendation. You always answer with a single JSON object that follows the requested schema exactly. You never add markdown fences, commentary, or text outside the JSON object.`

var riskRules = map[string]string{
	RiskConservative: `Risk rules (conservative):
- Capital preservation comes first; prefer "hold" or "watch" unless the setup is clear.
- Only suggest "buy" with a strong or very_strong signal and confirmation from several indicators.
- Stop loss no more than 3-5% below entry.
- Treat RSI above 65 as stretched and avoid chasing.`,
	RiskModerate: `Risk rules (moderate):
- Balance upside against drawdown; a medium signal with supporting indicators is enough to act.
- Stop loss roughly 5-8% below entry.
- Size conviction to confluence between trend, momentum and volatility.`,
	RiskAggressive: `Risk rules (aggressive):
- Growth over safety; early entries on emerging momentum are acceptable.
- Stop loss may sit 8-12% below entry to give volatile names room.
- Breakouts through resistance and oversold bounces are both valid triggers.`,
}

var styleRules = map[string]string{
	StyleDayTrading: `Style rules (day trading):
- Focus on intraday levels: today's range, previous close and nearest support/resistance.
- Time horizon is intraday to 1 day; targets and stops are tight.
- Weight momentum (RSI, MACD histogram) over long moving averages.`,
	StyleSwing: `Style rules (swing):
- Holding period of several days to a few weeks.
- Use SMA20/SMA50 for trend and Bollinger Bands for entry and exit zones.
- Targets at the next resistance, stops below the nearest support.`,
	StyleLongTerm: `Style rules (long term):
- Holding period of months or longer; ignore daily noise.
- SMA50/SMA200 relationship and the primary trend dominate the decision.
- Accumulate on pullbacks toward long-term support rather than chasing strength.`,
}

// BuildAnalysisPrompt renders the user prompt for one analysis request.
func BuildAnalysisPrompt(req AnalysisRequest, ind IndicatorSet) string {
	profile := req.Profile.Normalize()
	q := req.Quote

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze %s and produce a trading signal.\n\n", req.Symbol)

	b.WriteString("## Trader profile\n")
	fmt.Fprintf(&b, "Risk level: %s\n", profile.RiskLevel)
	fmt.Fprintf(&b, "Investment style: %s\n\n", profile.InvestmentStyle)
	b.WriteString(riskRules[profile.RiskLevel])
	b.WriteString("\n\n")
	b.WriteString(styleRules[profile.InvestmentStyle])
	b.WriteString("\n\n")

	b.WriteString("## Current quote\n")
	fmt.Fprintf(&b, "Price: %s\n", formatMoney(q.Price))
	fmt.Fprintf(&b, "Open: %s\n", formatMoney(q.Open))
	fmt.Fprintf(&b, "High: %s\n", formatMoney(q.High))
	fmt.Fprintf(&b, "Low: %s\n", formatMoney(q.Low))
	fmt.Fprintf(&b, "Previous close: %s\n", formatMoney(q.PreviousClose))
	fmt.Fprintf(&b, "Change: %s (%s%%)\n", formatMoney(q.Change), formatMoney(q.ChangePercent))
	fmt.Fprintf(&b, "Volume: %s\n", formatQuantity(q.Volume))
	if q.LatestTradingDay != "" {
		fmt.Fprintf(&b, "Latest trading day: %s\n", q.LatestTradingDay)
	}
	b.WriteString("\n")

	b.WriteString("## Technical indicators\n")
	fmt.Fprintf(&b, "SMA20: %s\n", formatOptionalMoney(ind.SMA20))
	fmt.Fprintf(&b, "SMA50: %s\n", formatOptionalMoney(ind.SMA50))
	fmt.Fprintf(&b, "SMA200: %s\n", formatOptionalMoney(ind.SMA200))
	fmt.Fprintf(&b, "RSI(14): %s\n", formatOptionalMoney(ind.RSI14))
	if ind.Bollinger != nil {
		fmt.Fprintf(&b, "Bollinger Bands(20,2): upper %s, middle %s, lower %s\n",
			formatMoney(ind.Bollinger.Upper), formatMoney(ind.Bollinger.Middle), formatMoney(ind.Bollinger.Lower))
	} else {
		b.WriteString("Bollinger Bands(20,2): N/A\n")
	}
	if ind.MACD != nil {
		fmt.Fprintf(&b, "MACD: %s, signal %s, histogram %s\n",
			formatMoney(ind.MACD.MACD), formatMoney(ind.MACD.Signal), formatMoney(ind.MACD.Histogram))
	} else {
		b.WriteString("MACD: N/A\n")
	}
	b.WriteString("\n")

	recent := req.History
	if len(recent) > promptHistoryBars {
		recent = recent[len(recent)-promptHistoryBars:]
	}
	fmt.Fprintf(&b, "## Recent daily closes (last %d)\n", len(recent))
	if len(recent) == 0 {
		b.WriteString("No history available.\n")
	}
	for _, bar := range recent {
		fmt.Fprintf(&b, "%s close %s volume %s\n", bar.Date.Format("2006-01-02"), formatMoney(bar.Close), formatQuantity(bar.Volume))
	}
	b.WriteString("\n")

	b.WriteString("## Open positions\n")
	if len(req.Positions) == 0 {
		b.WriteString("None.\n")
	}
	for _, pos := range req.Positions {
		b.WriteString("- ")
		b.WriteString(describePosition(pos))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(outputSchemaInstructions)
	return b.String()
}

func describePosition(p OpenPosition) string {
	action := strings.ToUpper(strings.TrimSpace(p.Direction))
	if action == "" {
		action = "BUY"
	}
	status := strings.TrimSpace(p.Status)
	if status == "" {
		status = "open"
	}
	switch p.Kind {
	case PositionCallOption, PositionPutOption:
		side := "CALL"
		if p.Kind == PositionPutOption {
			side = "PUT"
		}
		noun := "contracts"
		if p.Quantity == 1 {
			noun = "contract"
		}
		expires := p.Expiration
		if expires == "" {
			expires = "N/A"
		}
		return fmt.Sprintf("%s %s %s %s · Strike $%s · Expires %s · Premium $%s/sh (%s)",
			action, formatQuantity(p.Quantity), side, noun, formatMoney(p.Strike), expires, formatMoney(p.Price), status)
	default:
		return fmt.Sprintf("%s %s shares @ %s (%s)", action, formatQuantity(p.Quantity), formatMoney(p.Price), status)
	}
}

const outputSchemaInstructions = `## Output format
Respond with ONLY one JSON object. No markdown fences, no prose before or after it.
Use exactly these keys:
{
  "symbol": "<ticker>",
  "signal_level": "weak" | "medium" | "strong" | "very_strong",
  "action": "buy" | "sell" | "hold" | "watch",
  "suggested_buy_price": <number or null>,
  "suggested_sell_price": <number or null>,
  "stop_loss_price": <number or null>,
  "risk_estimation": "low" | "moderate" | "high" | "very_high",
  "reasoning": "<2-4 sentences>",
  "technical_summary": {
    "trend": "bullish" | "bearish" | "neutral",
    "support_levels": [<numbers>],
    "resistance_levels": [<numbers>],
    "key_indicators": ["<short observations>"]
  },
  "confidence": <number between 0 and 1>,
  "time_horizon": "<e.g. 1-2 weeks>"
}
`
