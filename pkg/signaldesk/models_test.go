package signaldesk

import (
	"testing"
	"time"
)

func TestNormalizeHistory(t *testing.T) {
	t.Parallel()

	d := func(day int) time.Time { return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC) }
	in := []PriceBar{
		{Date: d(3), Close: 12, Volume: 10},
		{Date: d(1), Close: 10, Volume: 10},
		{Date: d(2), Close: 0, Volume: 10},
		{Date: d(3), Close: 13, Volume: 20},
		{Date: d(4), Close: -1, Volume: 10},
		{Date: d(2), Close: 11, Volume: 10},
	}
	got := NormalizeHistory(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 bars, got %d: %+v", len(got), got)
	}
	wantCloses := []float64{10, 11, 13}
	for i, bar := range got {
		if bar.Close != wantCloses[i] {
			t.Fatalf("bar %d close = %v, want %v", i, bar.Close, wantCloses[i])
		}
		if i > 0 && !got[i-1].Date.Before(bar.Date) {
			t.Fatalf("history not strictly ascending at %d", i)
		}
	}
	if in[0].Close != 12 {
		t.Fatal("input slice was mutated")
	}
}

func TestUserProfileNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   UserProfile
		want UserProfile
	}{
		{UserProfile{"Aggressive", "DAY_TRADING"}, UserProfile{RiskAggressive, StyleDayTrading}},
		{UserProfile{"", ""}, UserProfile{RiskModerate, StyleSwing}},
		{UserProfile{"yolo", "scalping"}, UserProfile{RiskModerate, StyleSwing}},
		{UserProfile{" conservative ", "long_term"}, UserProfile{RiskConservative, StyleLongTerm}},
	}
	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestNewAnalysisRequestCopiesInputs(t *testing.T) {
	t.Parallel()

	history := rampBars(3, 10, 1)
	positions := []OpenPosition{{Kind: PositionStock, Direction: "buy", Quantity: 5, Price: 10, Status: "open"}}
	req := NewAnalysisRequest(" aapl ", history, Quote{Price: 12}, UserProfile{}, positions)

	history[0].Close = 999
	positions[0].Quantity = 999

	if req.Symbol != "AAPL" {
		t.Fatalf("symbol = %q", req.Symbol)
	}
	if req.History[0].Close != 10 {
		t.Fatalf("history aliased caller slice: %+v", req.History[0])
	}
	if req.Positions[0].Quantity != 5 {
		t.Fatalf("positions aliased caller slice: %+v", req.Positions[0])
	}
	if req.Profile != (UserProfile{RiskModerate, StyleSwing}) {
		t.Fatalf("profile not normalized: %+v", req.Profile)
	}
}

func TestNewQuoteDerivesChange(t *testing.T) {
	t.Parallel()

	q := NewQuote("msft", 100, 110, 95, 105.5, 1e6, 100, "2024-03-01")
	assertFloatEquals(t, q.Change, 5.5, "change")
	assertFloatEquals(t, q.ChangePercent, 5.5, "change percent")
	if q.Symbol != "MSFT" {
		t.Fatalf("symbol = %q", q.Symbol)
	}

	zero := NewQuote("X", 0, 0, 0, 10, 0, 0, "")
	if zero.ChangePercent != 0 {
		t.Fatalf("expected 0 change percent without previous close, got %v", zero.ChangePercent)
	}

	third := NewQuote("X", 0, 0, 0, 4, 0, 3, "")
	if third.ChangePercent != 33.3333 {
		t.Fatalf("expected rounding to 4 places, got %v", third.ChangePercent)
	}

	fine := NewQuote("X", 0, 0, 0, 1.000012, 0, 1, "")
	if fine.Change != 0.000012 {
		t.Fatalf("change must be the exact difference, got %v", fine.Change)
	}
}

func TestFormatHelpers(t *testing.T) {
	t.Parallel()

	if got := formatMoney(12.345); got != "12.35" {
		t.Fatalf("formatMoney = %q", got)
	}
	if got := formatOptionalMoney(nil); got != "N/A" {
		t.Fatalf("formatOptionalMoney(nil) = %q", got)
	}
	if got := formatQuantity(10); got != "10" {
		t.Fatalf("formatQuantity = %q", got)
	}
	if got := formatQuantity(2.5); got != "2.5" {
		t.Fatalf("formatQuantity = %q", got)
	}
}
