package signaldesk

import (
	"math"
	"testing"
	"time"
)

func barsFromCloses(closes ...float64) []PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func rampBars(n int, start, step float64) []PriceBar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return barsFromCloses(closes...)
}

func TestSMAWindowBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bars   int
		period int
		isNil  bool
	}{
		{"sma20 with 19 bars", 19, 20, true},
		{"sma20 with 20 bars", 20, 20, false},
		{"sma50 with 49 bars", 49, 50, true},
		{"sma50 with 50 bars", 50, 50, false},
		{"sma200 with 199 bars", 199, 200, true},
		{"sma200 with 200 bars", 200, 200, false},
		{"zero period", 10, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SMA(rampBars(tt.bars, 10, 1), tt.period)
			if (got == nil) != tt.isNil {
				t.Fatalf("SMA nil = %v, want %v", got == nil, tt.isNil)
			}
		})
	}
}

func TestSMAUsesLastCloses(t *testing.T) {
	t.Parallel()

	got := SMA(barsFromCloses(1, 2, 3, 4, 5), 2)
	if got == nil {
		t.Fatal("expected value")
	}
	assertFloatEquals(t, *got, 4.5, "sma of last two")
}

func TestRSIBoundaries(t *testing.T) {
	t.Parallel()

	if got := RSI(rampBars(14, 10, 1), 14); got != nil {
		t.Fatalf("expected nil RSI with 14 bars, got %v", *got)
	}
	if got := RSI(rampBars(15, 10, 1), 14); got == nil {
		t.Fatal("expected RSI with 15 bars")
	}
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	t.Parallel()

	got := RSI(rampBars(30, 10, 0.5), 14)
	if got == nil || *got != 100 {
		t.Fatalf("expected RSI 100 for strictly rising closes, got %v", got)
	}
}

func TestRSIFlatIsHundred(t *testing.T) {
	t.Parallel()

	got := RSI(rampBars(20, 50, 0), 14)
	if got == nil || *got != 100 {
		t.Fatalf("expected RSI 100 when there are no losses, got %v", got)
	}
}

func TestRSIAllLossesIsZero(t *testing.T) {
	t.Parallel()

	got := RSI(rampBars(20, 100, -1), 14)
	if got == nil {
		t.Fatal("expected value")
	}
	assertFloatEquals(t, *got, 0, "all losses")
}

func TestRSIMixedStaysInRange(t *testing.T) {
	t.Parallel()

	closes := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1, 45.9, 46.3, 45.6, 46.0, 46.3, 46.4, 46.2, 45.6}
	got := RSI(barsFromCloses(closes...), 14)
	if got == nil {
		t.Fatal("expected value")
	}
	if *got < 0 || *got > 100 {
		t.Fatalf("RSI out of range: %v", *got)
	}
}

func TestRSISimpleAverage(t *testing.T) {
	t.Parallel()

	// Two gains of 2 and one loss of 1 over a 3-period window: RS = (4/3)/(1/3) = 4.
	got := RSI(barsFromCloses(100, 10, 12, 14, 13), 3)
	if got == nil {
		t.Fatal("expected value")
	}
	assertFloatEquals(t, *got, 80, "rsi")
}

func TestBollingerOrderingAndCollapse(t *testing.T) {
	t.Parallel()

	bands := Bollinger(barsFromCloses(1, 3, 2, 5, 4, 6, 2, 8, 7, 3, 4, 5, 6, 7, 8, 9, 2, 3, 4, 5), 20, 2)
	if bands == nil {
		t.Fatal("expected bands")
	}
	if !(bands.Upper >= bands.Middle && bands.Middle >= bands.Lower) {
		t.Fatalf("bands out of order: %+v", bands)
	}

	flat := Bollinger(rampBars(25, 42, 0), 20, 2)
	if flat == nil {
		t.Fatal("expected bands for flat history")
	}
	if flat.Upper != 42 || flat.Middle != 42 || flat.Lower != 42 {
		t.Fatalf("expected collapsed bands at 42, got %+v", flat)
	}

	if got := Bollinger(rampBars(19, 1, 1), 20, 2); got != nil {
		t.Fatalf("expected nil bands with 19 bars, got %+v", got)
	}
}

func TestBollingerPopulationDeviation(t *testing.T) {
	t.Parallel()

	bands := Bollinger(barsFromCloses(2, 4, 4, 4, 5, 5, 7, 9), 8, 2)
	if bands == nil {
		t.Fatal("expected bands")
	}
	// Mean 5, population sigma 2.
	assertFloatEquals(t, bands.Middle, 5, "middle")
	assertFloatEquals(t, bands.Upper, 9, "upper")
	assertFloatEquals(t, bands.Lower, 1, "lower")
}

func TestMACD(t *testing.T) {
	t.Parallel()

	if got := MACD(rampBars(25, 10, 1)); got != nil {
		t.Fatalf("expected nil MACD with 25 bars, got %+v", got)
	}

	flat := MACD(rampBars(40, 20, 0))
	if flat == nil {
		t.Fatal("expected MACD")
	}
	if flat.MACD != 0 || flat.Signal != 0 || flat.Histogram != 0 {
		t.Fatalf("expected zero MACD for flat history, got %+v", flat)
	}

	rising := MACD(rampBars(60, 10, 1))
	if rising == nil || rising.MACD <= 0 {
		t.Fatalf("expected positive MACD for rising history, got %+v", rising)
	}
	assertFloatEquals(t, rising.Signal, rising.MACD*0.85, "signal ratio")
	assertFloatEquals(t, rising.Histogram, rising.MACD-rising.Signal, "histogram")
}

func TestEMASeededWithSMA(t *testing.T) {
	t.Parallel()

	bars := barsFromCloses(1, 2, 3, 10)
	// Seed (1+2+3)/3 = 2, multiplier 0.5, next = (10-2)*0.5+2 = 6.
	if got := ema(bars, 3); math.Abs(got-6) > 1e-9 {
		t.Fatalf("ema = %v, want 6", got)
	}
}

func TestComputeIndicatorsPartialHistory(t *testing.T) {
	t.Parallel()

	set := ComputeIndicators(rampBars(30, 100, 1))
	if set.SMA20 == nil || set.RSI14 == nil || set.Bollinger == nil || set.MACD == nil {
		t.Fatalf("expected short-window indicators, got %+v", set)
	}
	if set.SMA50 != nil || set.SMA200 != nil {
		t.Fatalf("expected nil long-window SMAs, got %+v", set)
	}

	empty := ComputeIndicators(nil)
	if empty.SMA20 != nil || empty.RSI14 != nil || empty.Bollinger != nil || empty.MACD != nil {
		t.Fatalf("expected all nil for empty history, got %+v", empty)
	}
}
