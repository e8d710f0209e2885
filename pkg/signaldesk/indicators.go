package signaldesk

import "math"

// Indicator windows used by ComputeIndicators.
const (
	rsiPeriod       = 14
	bollingerPeriod = 20
	bollingerK      = 2.0
	macdFastPeriod  = 12
	macdSlowPeriod  = 26
	// macdSignalRatio approximates the signal line as a fixed fraction of MACD
	// instead of a 9-period EMA of the MACD series.
	macdSignalRatio = 0.85
)

// SMA returns the arithmetic mean of the last period closes, or nil when the
// history is shorter than period.
func SMA(history []PriceBar, period int) *float64 {
	if period <= 0 || len(history) < period {
		return nil
	}
	var sum float64
	for _, bar := range history[len(history)-period:] {
		sum += bar.Close
	}
	v := sum / float64(period)
	return &v
}

// RSI returns the relative strength index from a simple average of gains and
// losses over the final period close-to-close changes. It needs period+1 bars.
// A window without losses yields 100.
func RSI(history []PriceBar, period int) *float64 {
	if period <= 0 || len(history) < period+1 {
		return nil
	}
	var gains, losses float64
	window := history[len(history)-period-1:]
	for i := 1; i < len(window); i++ {
		change := window[i].Close - window[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	v := 100.0
	if avgLoss != 0 {
		rs := avgGain / avgLoss
		v = 100 - 100/(1+rs)
	}
	return &v
}

// Bollinger returns bands of k population standard deviations around the
// period SMA, or nil when the history is too short.
func Bollinger(history []PriceBar, period int, k float64) *BollingerBands {
	middle := SMA(history, period)
	if middle == nil {
		return nil
	}
	var sq float64
	for _, bar := range history[len(history)-period:] {
		d := bar.Close - *middle
		sq += d * d
	}
	sd := math.Sqrt(sq / float64(period))
	return &BollingerBands{
		Upper:  *middle + k*sd,
		Middle: *middle,
		Lower:  *middle - k*sd,
	}
}

// MACD returns EMA12 minus EMA26 of the closes. The signal line is a fixed
// 0.85 of the MACD value. Nil below 26 bars.
func MACD(history []PriceBar) *MACDValue {
	if len(history) < macdSlowPeriod {
		return nil
	}
	fast := ema(history, macdFastPeriod)
	slow := ema(history, macdSlowPeriod)
	macd := fast - slow
	signal := macd * macdSignalRatio
	return &MACDValue{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}
}

// ema seeds with the SMA of the first period closes and then applies the
// recursive update with multiplier 2/(period+1) through the last close.
// Callers guarantee len(history) >= period.
func ema(history []PriceBar, period int) float64 {
	var seed float64
	for _, bar := range history[:period] {
		seed += bar.Close
	}
	value := seed / float64(period)
	multiplier := 2.0 / float64(period+1)
	for _, bar := range history[period:] {
		value = (bar.Close-value)*multiplier + value
	}
	return value
}

// ComputeIndicators derives the full indicator set from a normalized history.
func ComputeIndicators(history []PriceBar) IndicatorSet {
	return IndicatorSet{
		SMA20:     SMA(history, 20),
		SMA50:     SMA(history, 50),
		SMA200:    SMA(history, 200),
		RSI14:     RSI(history, rsiPeriod),
		Bollinger: Bollinger(history, bollingerPeriod, bollingerK),
		MACD:      MACD(history),
	}
}
