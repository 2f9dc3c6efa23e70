package usecase

import (
	"context"
	"errors"
	"testing"

	"SignalDesk/internal/domain/models"
	domsvc "SignalDesk/internal/domain/service"
)

func votes(sigs ...models.SignalType) []models.AlgorithmVote {
	out := make([]models.AlgorithmVote, len(sigs))
	for i, s := range sigs {
		out[i] = models.AlgorithmVote{Algorithm: string(rune('a' + i)), Signal: s}
	}
	return out
}

func TestFuse(t *testing.T) {
	B, S, N := models.SignalBuy, models.SignalSell, models.SignalNeutral

	tests := []struct {
		name      string
		votes     []models.AlgorithmVote
		total     int
		threshold float64
		want      models.SignalType
		conf      float64
		triggered int
	}{
		{"three of four", votes(B, B, B, S), 4, 0.7, B, 0.75, 3},
		{"two of four", votes(B, B, N, N), 4, 0.7, "", 0, 0},
		{"tie", votes(B, B, S, S), 4, 0.1, "", 0, 0},
		{"all neutral", votes(N, N, N), 3, 0.1, "", 0, 0},
		{"unanimous sell", votes(S, S, S), 3, 0.7, S, 1, 3},
		{"two of three below default", votes(B, B, N), 3, 0.7, "", 0, 0},
		{"low threshold", votes(S, S, B), 3, 0.5, S, 2.0 / 3.0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fuse(tt.votes, tt.total, tt.threshold)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected no signal, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %s, got nil", tt.want)
			}
			if got.SignalType != tt.want || got.Confidence != tt.conf || len(got.AlgorithmsTriggered) != tt.triggered {
				t.Fatalf("got %+v", got)
			}
			if got.Confidence < 0 || got.Confidence > 1 {
				t.Fatalf("confidence out of range: %v", got.Confidence)
			}
		})
	}
}

func TestFuseCountsFailedAlgorithmsInTotal(t *testing.T) {
	vs := []models.AlgorithmVote{
		{Algorithm: "a", Signal: models.SignalBuy},
		{Algorithm: "b", Signal: models.SignalBuy},
		{Algorithm: "c", Signal: models.SignalBuy},
		{Algorithm: "d", Signal: models.SignalBuy, Err: "boom"},
	}
	got := Fuse(vs, 4, 0.7)
	if got == nil || got.Confidence != 0.75 {
		t.Fatalf("expected confidence 0.75, got %+v", got)
	}
}

func TestAggregatorAssessIsolatesFailures(t *testing.T) {
	market := newFakeMarket()
	market.candles = make([]models.Candle, 10)

	strategies := []domsvc.Strategy{
		fakeStrategy{name: "up1", sig: models.SignalBuy},
		fakeStrategy{name: "up2", sig: models.SignalBuy},
		fakeStrategy{name: "up3", sig: models.SignalBuy},
		fakeStrategy{name: "broken", panic: true},
	}
	agg := NewSignalAggregator(market, strategies, WithThreshold(0.7))

	as, err := agg.Assess(context.Background(), "EURUSD", models.TF1h)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if len(as.Votes) != 4 || as.Votes[3].Err == "" {
		t.Fatalf("panicking strategy should be recorded as an errored vote: %+v", as.Votes)
	}
	if as.Signal == nil || as.Signal.SignalType != models.SignalBuy || as.Signal.Confidence != 0.75 {
		t.Fatalf("unexpected signal %+v", as.Signal)
	}
	if as.Signal.Symbol != "EURUSD" || as.Signal.Timeframe != models.TF1h {
		t.Fatalf("signal not stamped: %+v", as.Signal)
	}
}

func TestAggregatorStrategyErrorBelowThreshold(t *testing.T) {
	market := newFakeMarket()
	strategies := []domsvc.Strategy{
		fakeStrategy{name: "up1", sig: models.SignalBuy},
		fakeStrategy{name: "up2", sig: models.SignalBuy},
		fakeStrategy{name: "short", err: errors.New("insufficient candles")},
	}
	agg := NewSignalAggregator(market, strategies)

	sig, err := agg.Evaluate(context.Background(), "EURUSD", models.TF1h)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig != nil {
		t.Fatalf("2 of 3 is below 0.7, got %+v", sig)
	}
}

func TestAggregatorFetchError(t *testing.T) {
	market := newFakeMarket()
	market.candleErr["EURUSD"] = errUnavailable
	agg := NewSignalAggregator(market, []domsvc.Strategy{fakeStrategy{name: "a", sig: models.SignalBuy}})

	if _, err := agg.Evaluate(context.Background(), "EURUSD", models.TF1h); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}
