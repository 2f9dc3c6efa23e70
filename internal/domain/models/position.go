package models

import "time"

// Position is an open trade held by the risk manager.
type Position struct {
	Symbol       string    `json:"symbol"`
	EntryPrice   float64   `json:"entry_price"`
	StopLoss     float64   `json:"stop_loss"`
	PositionSize float64   `json:"position_size"`
	OpenedAt     time.Time `json:"opened_at"`
}
