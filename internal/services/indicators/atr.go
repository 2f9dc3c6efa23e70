package indicators

import "math"

// TrueRange per candle. The first value is high-low since there is no previous close.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := len(closes)
	trs := make([]float64, n)
	if n == 0 {
		return trs
	}
	trs[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		trs[i] = math.Max(hl, math.Max(hc, lc))
	}
	return trs
}

// ATR computes the Average True Range with Wilder smoothing. The first defined value sits at
// period-1 and is the plain mean of the first period true ranges.
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	atr := nanSlice(n)
	if period <= 0 || n < period || len(highs) != n || len(lows) != n {
		return atr
	}

	trs := TrueRange(highs, lows, closes)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trs[i]
	}
	atr[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		atr[i] = (atr[i-1]*float64(period-1) + trs[i]) / float64(period)
	}
	return atr
}
