package indicators

import (
	"math"
	"testing"
)

const eps = 1e-9

func almost(a, b float64) bool { return math.Abs(a-b) < eps }

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Fatalf("leading values should be NaN: %v", got)
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almost(got[i+2], w) {
			t.Errorf("sma[%d] = %v, want %v", i+2, got[i+2], w)
		}
	}
}

func TestEMASeededBySMA(t *testing.T) {
	got := EMA([]float64{2, 4, 6, 8}, 3)
	if !almost(got[2], 4) {
		t.Fatalf("seed = %v", got[2])
	}
	// k = 0.5: (8-4)*0.5+4
	if !almost(got[3], 6) {
		t.Fatalf("ema[3] = %v", got[3])
	}
	short := EMA([]float64{1, 2}, 3)
	if !math.IsNaN(short[1]) {
		t.Fatal("short series must be undefined")
	}
}

func TestShift(t *testing.T) {
	got := Shift([]float64{1, 2, 3, 4}, 2)
	if !math.IsNaN(got[1]) || got[2] != 1 || got[3] != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestATRWilder(t *testing.T) {
	highs := []float64{10, 11, 12, 13}
	lows := []float64{8, 9, 10, 11}
	closes := []float64{9, 10, 11, 12}
	got := ATR(highs, lows, closes, 2)
	// TR: 2, 2, 2, 2
	if !math.IsNaN(got[0]) || !almost(got[1], 2) || !almost(got[3], 2) {
		t.Fatalf("got %v", got)
	}

	// gap up: TR uses the previous close
	got = ATR([]float64{10, 20}, []float64{9, 19}, []float64{9.5, 19.5}, 1)
	if !almost(got[1], 10.5) {
		t.Fatalf("gap tr = %v", got[1])
	}
}

func TestBollingerPopulationStd(t *testing.T) {
	bb := Bollinger([]float64{1, 2, 3, 4}, 4, 2)
	// mean 2.5, population std sqrt(1.25)
	std := math.Sqrt(1.25)
	if !almost(bb.Middle[3], 2.5) || !almost(bb.Upper[3], 2.5+2*std) || !almost(bb.Lower[3], 2.5-2*std) {
		t.Fatalf("got %+v", bb)
	}
}

func TestKernelRegressionConstantSeries(t *testing.T) {
	fitted := KernelRegression([]float64{5, 5, 5, 5}, 7)
	for _, v := range fitted {
		if !almost(v, 5) {
			t.Fatalf("got %v", fitted)
		}
	}
	env, ok := KernelEnvelope([]float64{5, 5, 5, 5}, 3, 10, 7, 2)
	if !ok || !almost(env.Upper, 5) || !almost(env.Lower, 5) {
		t.Fatalf("env = %+v ok=%v", env, ok)
	}
}

func TestKernelEnvelopeBracketsTrend(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	env, ok := KernelEnvelope(closes, len(closes)-1, 10, 7, 2)
	if !ok {
		t.Fatal("expected envelope")
	}
	if !(env.Lower < env.Middle && env.Middle < env.Upper) {
		t.Fatalf("bands out of order: %+v", env)
	}
	// local-constant smoothing lags a rising series at the edge
	if env.Middle >= closes[len(closes)-1] {
		t.Fatalf("middle %v should lag last close", env.Middle)
	}
}
