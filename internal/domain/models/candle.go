package models

import "time"

// Candle represents one OHLCV bar. Bucket is the bar open time.
type Candle struct {
	Bucket time.Time `json:"t"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// PriceSide selects which quote a current price refers to.
type PriceSide string

const (
	PriceAsk  PriceSide = "ask"
	PriceBid  PriceSide = "bid"
	PriceLast PriceSide = "last"
)

func (s PriceSide) Valid() bool {
	switch s {
	case PriceAsk, PriceBid, PriceLast:
		return true
	default:
		return false
	}
}

// Closes extracts close prices in order.
func Closes(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Highs extracts high prices in order.
func Highs(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

// Lows extracts low prices in order.
func Lows(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}
