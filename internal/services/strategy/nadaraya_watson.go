package strategy

import (
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/services/indicators"
)

const (
	trendNone = 0
	trendDown = 1
	trendUp   = 2
)

// NadarayaWatson trades reversions to the band in the direction of an established EMA trend.
// Two bands are checked: Bollinger and a Gaussian kernel-regression envelope.
type NadarayaWatson struct {
	fast, slow  int
	backcandles int
	bbPeriod    int
	bbStd       float64
	bandwidth   float64
	envStd      float64
}

func NewNadarayaWatson() *NadarayaWatson {
	return &NadarayaWatson{
		fast:        40,
		slow:        50,
		backcandles: 10,
		bbPeriod:    10,
		bbStd:       2,
		bandwidth:   7,
		envStd:      2,
	}
}

func (n *NadarayaWatson) Name() string { return "Nadayara_Watson_Strategy" }

func (n *NadarayaWatson) minCandles() int { return n.slow + n.backcandles }

func (n *NadarayaWatson) Evaluate(candles []models.Candle) (models.SignalType, error) {
	if err := checkCandles(candles); err != nil {
		return models.SignalNeutral, err
	}
	cs := dropFlat(candles)
	if len(cs) < n.minCandles() {
		return models.SignalNeutral, nil
	}

	closes := models.Closes(cs)
	last := len(closes) - 1
	price := closes[last]

	bb := indicators.Bollinger(closes, n.bbPeriod, n.bbStd)
	env, hasEnv := indicators.KernelEnvelope(closes, last, n.backcandles, n.bandwidth, n.envStd)

	switch n.trend(closes) {
	case trendUp:
		if price <= bb.Lower[last] || (hasEnv && price <= env.Lower) {
			return models.SignalBuy, nil
		}
	case trendDown:
		if price >= bb.Upper[last] || (hasEnv && price >= env.Upper) {
			return models.SignalSell, nil
		}
	}
	return models.SignalNeutral, nil
}

// trend is up when the fast EMA stayed above the slow one on every one of the last
// backcandles bars, down when it stayed below, none otherwise.
func (n *NadarayaWatson) trend(closes []float64) int {
	fast := indicators.EMA(closes, n.fast)
	slow := indicators.EMA(closes, n.slow)

	above, below := true, true
	for i := len(closes) - n.backcandles; i < len(closes); i++ {
		if !(fast[i] > slow[i]) {
			above = false
		}
		if !(fast[i] < slow[i]) {
			below = false
		}
	}
	switch {
	case above:
		return trendUp
	case below:
		return trendDown
	default:
		return trendNone
	}
}
