package analysis

import (
	"testing"

	"signal-enginev1/internal/model"
)

func TestPivotPoints(t *testing.T) {
	p := PivotPoints(110, 90, 100)
	if p.Pivot != 100 {
		t.Fatalf("pivot: got %g, want 100", p.Pivot)
	}
	if p.R1 != 110 || p.R2 != 120 {
		t.Fatalf("resistances: got R1=%g R2=%g, want 110/120", p.R1, p.R2)
	}
	if p.S1 != 90 || p.S2 != 80 {
		t.Fatalf("supports: got S1=%g S2=%g, want 90/80", p.S1, p.S2)
	}
}

// levelCandle builds a candle whose close sits at 100 with explicit
// high/low touch prices.
func levelCandle(i int, high, low float64) model.Candle {
	return model.Candle{
		Time: int64(1700000000 + i*60),
		Open: 100, High: high, Low: low, Close: 100,
		Volume: 1,
	}
}

func TestSupportResistance_ThreeTouchResistance(t *testing.T) {
	candles := make([]model.Candle, 20)
	for i := range candles {
		// Unique highs and lows that never repeat after 2dp rounding.
		candles[i] = levelCandle(i, 103+float64(i)*0.01, 97-float64(i)*0.01)
	}
	// Three candles touch exactly 105.00.
	for _, i := range []int{3, 9, 15} {
		candles[i].High = 105.00
	}

	levels := SupportResistance(candles, 20, 3, 5)
	if len(levels) != 1 {
		t.Fatalf("expected exactly one level, got %d: %+v", len(levels), levels)
	}
	l := levels[0]
	if l.Price != 105.00 {
		t.Fatalf("level price: got %g, want 105.00", l.Price)
	}
	if l.Strength != 3 {
		t.Fatalf("level strength: got %d, want 3", l.Strength)
	}
	if l.Type != model.LevelResistance {
		t.Fatalf("level above latest close must be resistance, got %v", l.Type)
	}
}

func TestSupportResistance_SupportBelowClose(t *testing.T) {
	candles := make([]model.Candle, 20)
	for i := range candles {
		candles[i] = levelCandle(i, 103+float64(i)*0.01, 97-float64(i)*0.01)
	}
	for _, i := range []int{2, 8, 14, 19} {
		candles[i].Low = 95.00
	}

	levels := SupportResistance(candles, 20, 3, 5)
	if len(levels) != 1 {
		t.Fatalf("expected exactly one level, got %d", len(levels))
	}
	if levels[0].Type != model.LevelSupport || levels[0].Price != 95.00 {
		t.Fatalf("expected 95.00 support, got %+v", levels[0])
	}
	if levels[0].Strength != 4 {
		t.Fatalf("expected 4 touches, got %d", levels[0].Strength)
	}
}

func TestSupportResistance_RoundingAccumulatesTouches(t *testing.T) {
	candles := make([]model.Candle, 20)
	for i := range candles {
		candles[i] = levelCandle(i, 103+float64(i)*0.01, 97-float64(i)*0.01)
	}
	// 104.999, 105.001 and 105.004 all round to 105.00.
	candles[1].High = 104.999
	candles[6].High = 105.001
	candles[11].High = 105.004

	levels := SupportResistance(candles, 20, 3, 5)
	if len(levels) != 1 || levels[0].Price != 105.00 || levels[0].Strength != 3 {
		t.Fatalf("expected rounded 105.00 level with 3 touches, got %+v", levels)
	}
}

func TestSupportResistance_StrongestFirstAndCapped(t *testing.T) {
	candles := make([]model.Candle, 20)
	for i := range candles {
		candles[i] = levelCandle(i, 103+float64(i)*0.01, 97-float64(i)*0.01)
	}
	// 104.00 touched 5 times, 106.00 touched 3 times.
	for _, i := range []int{0, 2, 4, 6, 8} {
		candles[i].High = 104.00
	}
	for _, i := range []int{1, 3, 5} {
		candles[i].High = 106.00
	}

	levels := SupportResistance(candles, 20, 3, 1)
	if len(levels) != 1 {
		t.Fatalf("expected cap to 1 level, got %d", len(levels))
	}
	if levels[0].Price != 104.00 || levels[0].Strength != 5 {
		t.Fatalf("expected strongest level 104.00 x5, got %+v", levels[0])
	}
}

func TestSupportResistance_ShortWindowReturnsNil(t *testing.T) {
	candles := make([]model.Candle, 10)
	for i := range candles {
		candles[i] = levelCandle(i, 103, 97)
	}
	if levels := SupportResistance(candles, 20, 3, 5); levels != nil {
		t.Fatalf("expected nil for window shorter than lookback, got %+v", levels)
	}
}
