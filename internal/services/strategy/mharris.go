package strategy

import "SignalDesk/internal/domain/models"

// MHarris is a five-bar price pattern: a pullback inside a prior extreme followed by a close
// through the previous bar.
type MHarris struct{}

func NewMHarris() *MHarris { return &MHarris{} }

func (m *MHarris) Name() string { return "MHarris_Strategy" }

func (m *MHarris) Evaluate(candles []models.Candle) (models.SignalType, error) {
	if err := checkCandles(candles); err != nil {
		return models.SignalNeutral, err
	}
	cs := dropFlat(candles)
	if len(cs) < 5 {
		return models.SignalNeutral, nil
	}

	i := len(cs) - 1
	c0, c1, c2, c3, c4 := cs[i], cs[i-1], cs[i-2], cs[i-3], cs[i-4]

	if c4.Low > c0.High &&
		c0.High > c3.Low &&
		c3.Low > c2.Low &&
		c2.Low > c1.Low &&
		c0.Close > c1.High {
		return models.SignalBuy, nil
	}

	if c4.High < c0.Low &&
		c0.Low < c3.High &&
		c3.High < c2.High &&
		c2.High < c1.High &&
		c0.Close < c1.Low {
		return models.SignalSell, nil
	}

	return models.SignalNeutral, nil
}
