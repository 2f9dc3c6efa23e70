package models

import "time"

// SignalType is the direction an algorithm or the ensemble votes for.
type SignalType string

const (
	SignalBuy     SignalType = "BUY"
	SignalSell    SignalType = "SELL"
	SignalNeutral SignalType = "NEUTRAL"
)

// Actionable is true for BUY and SELL.
func (t SignalType) Actionable() bool {
	return t == SignalBuy || t == SignalSell
}

// AlgorithmVote is one strategy's output for a single evaluation cycle.
type AlgorithmVote struct {
	Algorithm string     `json:"algorithm"`
	Signal    SignalType `json:"signal"`
	Err       string     `json:"error,omitempty"`
}

// TradingSignal is the ensemble consensus before it is priced and persisted.
// Note: no transport (json/http) concerns beyond tags here.
type TradingSignal struct {
	Symbol              string          `json:"symbol"`
	Timeframe           Timeframe       `json:"timeframe"`
	SignalType          SignalType      `json:"signal_type"`
	Confidence          float64         `json:"confidence"`
	AlgorithmsTriggered []string        `json:"algorithms_triggered"`
	Votes               []AlgorithmVote `json:"votes,omitempty"`
	GeneratedAt         time.Time       `json:"generated_at"`
}
