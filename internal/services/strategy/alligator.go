package strategy

import (
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/services/indicators"
)

// Alligator confirms a trend when the shifted SMA "jaws" stay stacked for most of the recent
// bars and price sits on the same side of the long EMA baseline.
type Alligator struct {
	backcandles int
	minConfirm  int
	baseline    int
}

func NewAlligator() *Alligator {
	return &Alligator{backcandles: 10, minConfirm: 5, baseline: 200}
}

func (a *Alligator) Name() string { return "Aligator_Strategy" }

func (a *Alligator) Evaluate(candles []models.Candle) (models.SignalType, error) {
	if err := checkCandles(candles); err != nil {
		return models.SignalNeutral, err
	}
	cs := dropFlat(candles)
	if len(cs) < a.backcandles {
		return models.SignalNeutral, nil
	}

	closes := models.Closes(cs)
	lips := indicators.Shift(indicators.SMA(closes, 5), 3)
	teeth := indicators.Shift(indicators.SMA(closes, 8), 5)
	jaw := indicators.Shift(indicators.SMA(closes, 13), 8)
	ema := indicators.EMA(closes, a.baseline)

	buys, sells := 0, 0
	for i := len(cs) - a.backcandles; i < len(cs); i++ {
		// NaN comparisons are false, so undefined averages never confirm
		if lips[i] > teeth[i] && teeth[i] > jaw[i] && cs[i].Low > jaw[i] {
			buys++
		}
		if lips[i] < teeth[i] && teeth[i] < jaw[i] && cs[i].High < jaw[i] {
			sells++
		}
	}

	last := len(cs) - 1
	switch {
	case buys >= a.minConfirm && closes[last] > ema[last]:
		return models.SignalBuy, nil
	case sells >= a.minConfirm && closes[last] < ema[last]:
		return models.SignalSell, nil
	default:
		return models.SignalNeutral, nil
	}
}
