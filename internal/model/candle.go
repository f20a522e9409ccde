package model

import (
	"encoding/json"
	"math"
)

// Candle represents one OHLCV bar for an instrument at a given timeframe.
// Series are ordered ascending by time, most-recent last.
type Candle struct {
	Time   int64   `json:"time"` // bucket start, unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Valid reports whether the candle satisfies the basic OHLC invariants:
// finite numbers, high >= low, open and close strictly positive.
// Volume is allowed to be zero but not negative.
func (c *Candle) Valid() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return c.High >= c.Low && c.Open > 0 && c.Close > 0 && c.Volume >= 0
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
