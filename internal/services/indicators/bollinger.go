package indicators

type BollingerBands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes SMA(period) ± multiplier·σ with the population standard deviation.
func Bollinger(closes []float64, period int, multiplier float64) BollingerBands {
	middle := SMA(closes, period)
	std := RollingStd(closes, period)

	upper := nanSlice(len(closes))
	lower := nanSlice(len(closes))
	for i := range closes {
		upper[i] = middle[i] + multiplier*std[i]
		lower[i] = middle[i] - multiplier*std[i]
	}
	return BollingerBands{Upper: upper, Middle: middle, Lower: lower}
}
