// Package analysis is the pure indicator engine: candle series in,
// technical indicators plus a heuristic confidence/direction score out.
package analysis

import (
	"fmt"
	"math"

	"signal-enginev1/internal/model"
)

// MinCandles is the minimum series length Analyze accepts.
const MinCandles = 30

// Fixed indicator parameters. These match the scoring rules below and are
// not operator-tunable; changing them changes observable output.
const (
	rsiPeriod  = 14
	emaFast    = 20
	emaSlow    = 50
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// Engine computes analyses over candle windows. The confidence heuristic is
// an ordered sequence of mutually overriding rules; later rules may flip the
// direction set by earlier ones. The order is a deliberate tie-break policy
// and must not be reordered or converted into a weighted sum.
type Engine struct {
	// Support/resistance knobs, operator-configurable.
	Lookback   int // candles scanned for levels; default 20
	MinTouches int // occurrences required for a level; default 3
	MaxLevels  int // levels returned; default 5
}

// NewEngine creates an Engine with default level-detection settings.
func NewEngine() *Engine {
	return &Engine{Lookback: 20, MinTouches: 3, MaxLevels: 5}
}

// Analyze validates the series and produces an AnalysisResult.
// Fails with *AnalysisError on short series or non-positive prices.
func (e *Engine) Analyze(candles []model.Candle) (*model.AnalysisResult, error) {
	if len(candles) < MinCandles {
		return nil, analysisErr(KindInsufficientData,
			"need at least %d candles, got %d", MinCandles, len(candles))
	}

	prices := make([]float64, len(candles))
	for i, c := range candles {
		if !positive(c.Close) || !positive(c.High) || !positive(c.Low) {
			return nil, analysisErr(KindInvalidPrice, "invalid price in candle %d", i+1)
		}
		prices[i] = c.Close
	}

	last := candles[len(candles)-1]
	pivots := PivotPoints(last.High, last.Low, last.Close)
	levels := SupportResistance(candles, e.Lookback, e.MinTouches, e.MaxLevels)

	rsi := RSI(prices, rsiPeriod)
	ema20 := EMA(prices, emaFast)
	ema50 := EMA(prices, emaSlow)
	macd := MACD(prices, macdFast, macdSlow, macdSignal)

	lastPrice := prices[len(prices)-1]
	lastRSI := rsi[len(rsi)-1]
	lastEMA20 := ema20[len(ema20)-1]
	lastEMA50 := ema50[len(ema50)-1]
	lastMACD := macd[len(macd)-1]

	result := &model.AnalysisResult{
		Direction: model.DirectionNeutral,
		Indicators: model.Indicators{
			RSI:   rsi,
			EMA20: ema20,
			EMA50: ema50,
			MACD:  macd,
		},
		Levels: model.Levels{
			PivotPoints:       pivots,
			SupportResistance: levels,
		},
	}

	confidence := 50

	// Rule 1: price within 0.5% of the nearest support below it.
	if sup, ok := nearestSupport(levels, lastPrice); ok {
		if (lastPrice-sup.Price)/lastPrice*100 < 0.5 {
			result.Signals = append(result.Signals, fmt.Sprintf("near support (%.2f)", sup.Price))
			confidence += 15
			result.Direction = model.DirectionUp
		}
	}

	// Rule 2: price within 0.5% of the nearest resistance above it.
	if res, ok := nearestResistance(levels, lastPrice); ok {
		if (res.Price-lastPrice)/lastPrice*100 < 0.5 {
			result.Signals = append(result.Signals, fmt.Sprintf("near resistance (%.2f)", res.Price))
			confidence += 15
			result.Direction = model.DirectionDown
		}
	}

	// Rule 3: RSI extremes.
	if lastRSI < 30 {
		result.Signals = append(result.Signals, "RSI oversold")
		confidence += 20
		result.Direction = model.DirectionUp
	} else if lastRSI > 70 {
		result.Signals = append(result.Signals, "RSI overbought")
		confidence += 20
		result.Direction = model.DirectionDown
	}

	// Rule 4: MACD momentum. Agreement with the current direction earns the
	// full bonus, disagreement half.
	if lastMACD.MACD > lastMACD.Signal && lastMACD.Histogram > 0 {
		result.Signals = append(result.Signals, "MACD bullish momentum")
		confidence += agreementBonus(result.Direction, model.DirectionUp)
		result.Direction = model.DirectionUp
	} else if lastMACD.MACD < lastMACD.Signal && lastMACD.Histogram < 0 {
		result.Signals = append(result.Signals, "MACD bearish momentum")
		confidence += agreementBonus(result.Direction, model.DirectionDown)
		result.Direction = model.DirectionDown
	}

	// Rule 5: EMA alignment.
	if lastPrice > lastEMA20 && lastEMA20 > lastEMA50 {
		result.Signals = append(result.Signals, "uptrend (EMA20 > EMA50)")
		confidence += agreementBonus(result.Direction, model.DirectionUp)
		result.Direction = model.DirectionUp
	} else if lastPrice < lastEMA20 && lastEMA20 < lastEMA50 {
		result.Signals = append(result.Signals, "downtrend (EMA20 < EMA50)")
		confidence += agreementBonus(result.Direction, model.DirectionDown)
		result.Direction = model.DirectionDown
	}

	if confidence > 99 {
		confidence = 99
	}
	result.Confidence = confidence

	return result, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func agreementBonus(current, rule model.Direction) int {
	if current == rule {
		return 20
	}
	return 10
}

// nearestSupport returns the highest support level strictly below price.
func nearestSupport(levels []model.Level, price float64) (model.Level, bool) {
	var best model.Level
	found := false
	for _, l := range levels {
		if l.Type != model.LevelSupport || l.Price >= price {
			continue
		}
		if !found || l.Price > best.Price {
			best = l
			found = true
		}
	}
	return best, found
}

// nearestResistance returns the lowest resistance level strictly above price.
func nearestResistance(levels []model.Level, price float64) (model.Level, bool) {
	var best model.Level
	found := false
	for _, l := range levels {
		if l.Type != model.LevelResistance || l.Price <= price {
			continue
		}
		if !found || l.Price < best.Price {
			best = l
			found = true
		}
	}
	return best, found
}
