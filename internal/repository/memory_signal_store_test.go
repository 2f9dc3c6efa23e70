package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

func newSignal(symbol string, tf models.Timeframe, at time.Time) *models.Signal {
	return &models.Signal{
		Symbol:              symbol,
		Timeframe:           tf,
		SignalType:          models.SignalBuy,
		Confidence:          1,
		AlgorithmsTriggered: []string{"MHarris_Strategy"},
		EntryPrice:          100,
		StopLoss:            98,
		TakeProfit:          104,
		RiskRewardRatio:     2,
		Status:              models.StatusPending,
		GeneratedAt:         at,
		ValidUntil:          at.Add(tf.Validity()),
	}
}

func TestMemoryStoreSaveGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySignalStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	sig := newSignal("EURUSD", models.TF1h, now)
	if err := s.Save(ctx, sig); err != nil {
		t.Fatalf("save: %v", err)
	}
	if sig.ID != 1 {
		t.Fatalf("expected id 1, got %d", sig.ID)
	}

	got, err := s.Get(ctx, sig.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.AlgorithmsTriggered[0] = "mutated"
	again, _ := s.Get(ctx, sig.ID)
	if again.AlgorithmsTriggered[0] != "MHarris_Strategy" {
		t.Fatalf("stored row shares memory with caller")
	}

	if _, err := s.Get(ctx, 42); !errors.Is(err, domrepo.ErrSignalNotFound) {
		t.Fatalf("expected ErrSignalNotFound, got %v", err)
	}
}

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySignalStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_ = s.Save(ctx, newSignal("EURUSD", models.TF1h, base.Add(time.Duration(i)*time.Minute)))
	}
	_ = s.Save(ctx, newSignal("XAUUSD", models.TF4h, base))
	_, _ = s.UpdateStatus(ctx, 1, models.StatusPending, models.StatusExpired)

	tests := []struct {
		name      string
		filter    domrepo.SignalFilter
		wantLen   int
		wantTotal int
		firstID   int64
	}{
		{"all", domrepo.SignalFilter{Limit: 10}, 6, 6, 5},
		{"by symbol", domrepo.SignalFilter{Symbol: "XAUUSD", Limit: 10}, 1, 1, 6},
		{"by timeframe", domrepo.SignalFilter{Timeframe: models.TF1h, Limit: 2}, 2, 5, 5},
		{"page two", domrepo.SignalFilter{Timeframe: models.TF1h, Limit: 2, Offset: 2}, 2, 5, 3},
		{"past end", domrepo.SignalFilter{Limit: 10, Offset: 10}, 0, 6, 0},
		{"by status", domrepo.SignalFilter{Statuses: []models.SignalStatus{models.StatusExpired}}, 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != tt.wantLen || total != tt.wantTotal {
				t.Fatalf("len=%d total=%d, want %d/%d", len(got), total, tt.wantLen, tt.wantTotal)
			}
			if tt.wantLen > 0 && got[0].ID != tt.firstID {
				t.Fatalf("first id %d, want %d", got[0].ID, tt.firstID)
			}
		})
	}
}

func TestMemoryStoreConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySignalStore()
	sig := newSignal("EURUSD", models.TF1h, time.Now())
	_ = s.Save(ctx, sig)

	ok, err := s.UpdateStatus(ctx, sig.ID, models.StatusPending, models.StatusActive)
	if err != nil || !ok {
		t.Fatalf("first update: ok=%v err=%v", ok, err)
	}
	ok, err = s.UpdateStatus(ctx, sig.ID, models.StatusPending, models.StatusInvalidated)
	if err != nil || ok {
		t.Fatalf("stale update should not apply: ok=%v err=%v", ok, err)
	}
	got, _ := s.Get(ctx, sig.ID)
	if got.Status != models.StatusActive {
		t.Fatalf("status %s", got.Status)
	}
}

func TestMemoryStoreBulkExpire(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySignalStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	old := newSignal("EURUSD", models.TF1m, now.Add(-time.Hour))
	fresh := newSignal("GBPUSD", models.TF1h, now)
	done := newSignal("USDJPY", models.TF1m, now.Add(-time.Hour))
	done.Status = models.StatusTriggered
	for _, sig := range []*models.Signal{old, fresh, done} {
		_ = s.Save(ctx, sig)
	}

	n, err := s.BulkUpdateExpired(ctx, now)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}
	open, _ := s.ListOpen(ctx)
	if len(open) != 1 || open[0].Symbol != "GBPUSD" {
		t.Fatalf("unexpected open set: %+v", open)
	}
	got, _ := s.Get(ctx, done.ID)
	if got.Status != models.StatusTriggered {
		t.Fatalf("terminal row changed to %s", got.Status)
	}
}
