package model

import (
	"encoding/json"
	"time"
)

// SignalType is the direction of a trading signal.
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

// SignalResult is the resolved outcome of a signal.
// The empty string means the signal is still pending.
type SignalResult string

const (
	ResultWin  SignalResult = "win"
	ResultLoss SignalResult = "loss"
)

// MaxMartingaleStep is the last allowed martingale retry. A losing signal
// at this step terminates the chain regardless of settings.
const MaxMartingaleStep = 2

// Signal is a directional trading recommendation with a pending/resolved
// outcome. Once Result is set the record is immutable history.
type Signal struct {
	ID                   string       `json:"id"`
	Type                 SignalType   `json:"type"`
	Price                float64      `json:"price"` // entry price at emission
	Time                 string       `json:"time"`  // display clock string, "15:04:05"
	CreatedAt            int64        `json:"created_at"` // unix seconds, drives resolution deadlines
	Pair                 string       `json:"pair"`
	Confidence           int          `json:"confidence"`
	Timeframe            int          `json:"timeframe"` // minutes until resolution
	MartingaleStep       int          `json:"martingale_step"`
	MartingaleMultiplier float64      `json:"martingale_multiplier"`
	Result               SignalResult `json:"result,omitempty"`
	ProfitLoss           float64      `json:"profit_loss,omitempty"` // percent, signed
}

// Resolved reports whether the signal already carries an outcome.
func (s *Signal) Resolved() bool {
	return s.Result != ""
}

// Deadline returns the instant at which the signal's outcome is evaluated.
func (s *Signal) Deadline() time.Time {
	return time.Unix(s.CreatedAt, 0).Add(time.Duration(s.Timeframe) * time.Minute)
}

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Profile identifies a preset risk profile for trading settings.
type Profile string

const (
	ProfileConservative Profile = "conservative"
	ProfileModerate     Profile = "moderate"
	ProfileAggressive   Profile = "aggressive"
	ProfileCustom       Profile = "custom"
)

// TradingSettings is the read-only operator configuration consumed by the
// scheduler. Automation may not start until settings are present.
type TradingSettings struct {
	Balance           float64 `json:"balance"`
	EntryPercentage   float64 `json:"entry_percentage"`
	StopLoss          float64 `json:"stop_loss"`
	Profile           Profile `json:"profile"`
	MartingaleEnabled bool    `json:"martingale_enabled"`
}
