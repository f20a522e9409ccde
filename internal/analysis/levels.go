package analysis

import (
	"math"
	"sort"

	"signal-enginev1/internal/model"
)

// PivotPoints computes classic floor-trader pivots from the most recent
// candle's high/low/close.
func PivotPoints(high, low, close float64) model.PivotPoints {
	pivot := (high + low + close) / 3
	return model.PivotPoints{
		Pivot: pivot,
		R1:    2*pivot - low,
		R2:    pivot + (high - low),
		S1:    2*pivot - high,
		S2:    pivot - (high - low),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SupportResistance scans the last lookback candles, rounds each high and
// low to 2 decimals and counts occurrences per price. A price seen at least
// minTouches times is a level: resistance if above the latest close, else
// support. Returns at most maxLevels levels, strongest first.
func SupportResistance(candles []model.Candle, lookback, minTouches, maxLevels int) []model.Level {
	if len(candles) < lookback || lookback <= 0 {
		return nil
	}

	touches := make(map[float64]int)
	for i := len(candles) - lookback; i < len(candles); i++ {
		touches[round2(candles[i].High)]++
		touches[round2(candles[i].Low)]++
	}

	latestClose := candles[len(candles)-1].Close
	levels := make([]model.Level, 0, len(touches))
	for price, count := range touches {
		if count < minTouches {
			continue
		}
		typ := model.LevelSupport
		if price > latestClose {
			typ = model.LevelResistance
		}
		levels = append(levels, model.Level{Price: price, Strength: count, Type: typ})
	}

	// Strongest first; ties broken by price for deterministic output.
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Strength != levels[j].Strength {
			return levels[i].Strength > levels[j].Strength
		}
		return levels[i].Price < levels[j].Price
	})

	if len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	return levels
}
