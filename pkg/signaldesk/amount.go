package signaldesk

import (
	"github.com/shopspring/decimal"
)

// percentScale is the number of decimal places kept for ChangePercent.
const percentScale = 4

var hundred = decimal.NewFromInt(100)

// NewQuote builds a Quote and derives Change and ChangePercent from price and
// previous close with decimal arithmetic. Change is the exact difference;
// ChangePercent is rounded and is 0 when the previous close is not positive.
func NewQuote(symbol string, open, high, low, price, volume, previousClose float64, latestTradingDay string) Quote {
	q := Quote{
		Symbol:           normalizeSymbol(symbol),
		Open:             open,
		High:             high,
		Low:              low,
		Price:            price,
		Volume:           volume,
		PreviousClose:    previousClose,
		LatestTradingDay: latestTradingDay,
	}
	p := decimal.NewFromFloat(price)
	prev := decimal.NewFromFloat(previousClose)
	change := p.Sub(prev)
	q.Change, _ = change.Float64()
	if prev.IsPositive() {
		q.ChangePercent, _ = change.Div(prev).Mul(hundred).Round(percentScale).Float64()
	}
	return q
}

// formatMoney renders v with two decimals, half away from zero.
func formatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// formatOptionalMoney renders a nullable value, or N/A.
func formatOptionalMoney(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return formatMoney(*v)
}

// formatQuantity drops trailing zeros, so 10 prints as 10 and 2.5 as 2.5.
func formatQuantity(v float64) string {
	return decimal.NewFromFloat(v).String()
}
