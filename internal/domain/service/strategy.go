package service

import "SignalDesk/internal/domain/models"

// Strategy is one voter of the ensemble. Implementations hold no state between calls and
// answer NEUTRAL without error when the window is too short.
type Strategy interface {
	Name() string
	Evaluate(candles []models.Candle) (models.SignalType, error)
}
