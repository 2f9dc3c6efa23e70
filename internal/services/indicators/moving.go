package indicators

import "math"

// SMA computes the simple moving average. Values before period-1 are NaN.
func SMA(series []float64, period int) []float64 {
	out := nanSlice(len(series))
	if period <= 0 || len(series) < period {
		return out
	}
	sum := 0.0
	for i, v := range series {
		sum += v
		if i >= period {
			sum -= series[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average seeded with the SMA of the first period values.
// Values before period-1 are NaN.
func EMA(series []float64, period int) []float64 {
	out := nanSlice(len(series))
	if period <= 0 || len(series) < period {
		return out
	}

	k := 2.0 / (float64(period) + 1.0)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += series[i]
	}
	out[period-1] = sum / float64(period)

	for i := period; i < len(series); i++ {
		out[i] = (series[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// Shift moves values n positions forward in time; the first n become NaN.
func Shift(series []float64, n int) []float64 {
	out := nanSlice(len(series))
	if n < 0 {
		n = 0
	}
	for i := n; i < len(series); i++ {
		out[i] = series[i-n]
	}
	return out
}

// RollingStd is the population standard deviation over a trailing window.
func RollingStd(series []float64, window int) []float64 {
	out := nanSlice(len(series))
	if window <= 0 || len(series) < window {
		return out
	}
	for i := window - 1; i < len(series); i++ {
		out[i] = PopulationStd(series[i-window+1 : i+1])
	}
	return out
}

// PopulationStd divides by n, matching numpy's default.
func PopulationStd(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// Last returns the final value of a series, NaN when empty.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
