package indicators

import "math"

// Envelope is a center line with symmetric bands.
type Envelope struct {
	Middle float64
	Upper  float64
	Lower  float64
}

// KernelRegression fits a local-constant (Nadaraya-Watson) estimator with a Gaussian kernel over
// the sample positions 0..n-1 and returns the fitted value at every position.
func KernelRegression(ys []float64, bandwidth float64) []float64 {
	n := len(ys)
	fitted := make([]float64, n)
	if n == 0 || bandwidth <= 0 {
		return fitted
	}
	for i := 0; i < n; i++ {
		num, den := 0.0, 0.0
		for j := 0; j < n; j++ {
			u := float64(i-j) / bandwidth
			w := math.Exp(-0.5 * u * u)
			num += w * ys[j]
			den += w
		}
		fitted[i] = num / den
	}
	return fitted
}

// KernelEnvelope fits the trailing window+1 closes ending at index end (inclusive) and returns
// the fitted value at end, widened by k population standard deviations of the residuals.
func KernelEnvelope(closes []float64, end, window int, bandwidth, k float64) (Envelope, bool) {
	if end < 0 || end >= len(closes) || window <= 0 {
		return Envelope{}, false
	}
	start := end - window
	if start < 0 {
		start = 0
	}
	sample := closes[start : end+1]
	if len(sample) < 2 {
		return Envelope{}, false
	}

	fitted := KernelRegression(sample, bandwidth)
	residuals := make([]float64, len(sample))
	for i := range sample {
		residuals[i] = sample[i] - fitted[i]
	}
	width := k * PopulationStd(residuals)
	mid := fitted[len(fitted)-1]

	return Envelope{Middle: mid, Upper: mid + width, Lower: mid - width}, true
}
