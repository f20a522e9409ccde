package model

// Direction is the directional bias of a market analysis.
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// MACDValue holds one sample of the MACD line, its signal line and the
// histogram (line minus signal).
type MACDValue struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// PivotPoints holds classic floor-trader pivot levels computed from the
// most recent candle's high/low/close.
type PivotPoints struct {
	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
}

// LevelType classifies a recurring price level relative to the latest close.
type LevelType string

const (
	LevelSupport    LevelType = "support"
	LevelResistance LevelType = "resistance"
)

// Level is a price that recurred as a candle extreme within the lookback
// window. Strength is the touch count (always >= the configured minimum).
type Level struct {
	Price    float64   `json:"price"`
	Strength int       `json:"strength"`
	Type     LevelType `json:"type"`
}

// Indicators groups the per-candle indicator series backing an analysis.
// All slices are aligned with the input candle series.
type Indicators struct {
	RSI   []float64   `json:"rsi"`
	EMA20 []float64   `json:"ema20"`
	EMA50 []float64   `json:"ema50"`
	MACD  []MACDValue `json:"macd"`
}

// Levels groups pivot points and detected support/resistance levels.
type Levels struct {
	PivotPoints       PivotPoints `json:"pivot_points"`
	SupportResistance []Level     `json:"support_resistance"` // sorted by strength desc, max 5
}

// AnalysisResult is the outcome of analyzing a candle series: a heuristic
// confidence score, a direction, the reasons behind them, and the raw
// indicator data for display.
type AnalysisResult struct {
	Confidence int        `json:"confidence"` // 0..99
	Direction  Direction  `json:"direction"`
	Signals    []string   `json:"signals"` // human-readable reasons, in rule order
	Indicators Indicators `json:"indicators"`
	Levels     Levels     `json:"levels"`
}
