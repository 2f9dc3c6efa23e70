package strategy

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
)

var ErrInvalidCandles = errors.New("invalid candle data")

// Default returns the production ensemble in a fixed order.
func Default() []service.Strategy {
	return []service.Strategy{
		NewAlligator(),
		NewMHarris(),
		NewNadarayaWatson(),
	}
}

// ByNames restricts the default ensemble to the named strategies. An empty list means all.
func ByNames(names []string) ([]service.Strategy, error) {
	all := Default()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]service.Strategy, len(all))
	for _, s := range all {
		byName[s.Name()] = s
	}

	out := make([]service.Strategy, 0, len(names))
	var unknown []string
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, s)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown strategies: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// dropFlat removes bars where high == low; they carry no range information.
func dropFlat(candles []models.Candle) []models.Candle {
	out := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if c.High != c.Low {
			out = append(out, c)
		}
	}
	return out
}

func checkCandles(candles []models.Candle) error {
	for i, c := range candles {
		if math.IsNaN(c.Close) || math.IsInf(c.Close, 0) || c.Close <= 0 || c.High < c.Low {
			return fmt.Errorf("%w: bar %d at %s", ErrInvalidCandles, i, c.Bucket)
		}
	}
	return nil
}
