package usecase

import (
	"context"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
)

func TestSignalFeedSnapshot(t *testing.T) {
	eval := &scriptedEvaluator{
		out:  map[string]*models.TradingSignal{"EURUSD": {SignalType: models.SignalBuy, Confidence: 1, AlgorithmsTriggered: []string{"a"}}},
		errs: map[string]error{"GBPUSD": errUnavailable},
	}
	market := newFakeMarket()
	market.prices["EURUSD"] = 100
	feed := NewSignalFeed(eval, NewPricer(market, PricerConfig{}), WithFeedTTL(time.Minute))

	tfs := []models.Timeframe{models.TF15m, models.TF1h, models.TF4h}
	snap, err := feed.Snapshot(context.Background(), []string{"EURUSD", "GBPUSD", "USDJPY"}, tfs)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("only symbols with signals belong in the snapshot: %v", snap)
	}
	views := snap["EURUSD"]
	if len(views) != 3 || views[0].Timeframe != models.TF15m || views[2].Timeframe != models.TF4h {
		t.Fatalf("unexpected views %+v", views)
	}
	if views[0].StopLoss != 98 || views[0].TakeProfit != 104 {
		t.Fatalf("unexpected levels %+v", views[0])
	}

	calls := eval.calls
	if _, err := feed.Snapshot(context.Background(), []string{"EURUSD", "USDJPY"}, tfs); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if eval.calls != calls {
		t.Fatalf("memoized evaluations should not be recomputed: %d -> %d", calls, eval.calls)
	}
}

func TestSignalFeedCancelled(t *testing.T) {
	feed := NewSignalFeed(&scriptedEvaluator{}, NewPricer(newFakeMarket(), PricerConfig{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := feed.Snapshot(ctx, []string{"EURUSD"}, []models.Timeframe{models.TF1h}); err == nil {
		t.Fatalf("expected context error")
	}
}
