package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/repository"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newLifecycle(market *fakeMarket, pub *recordingPublisher) (*SignalLifecycle, *repository.MemorySignalStore) {
	store := repository.NewMemorySignalStore()
	l := NewSignalLifecycle(store, market, WithPublisher(pub))
	l.now = fixedClock(t0)
	return l, store
}

func buyParams(tf models.Timeframe, at time.Time) CreateSignalParams {
	return CreateSignalParams{
		Symbol:         "EURUSD",
		Timeframe:      tf,
		SignalType:     models.SignalBuy,
		Confidence:     0.75,
		Algorithms:     []string{"a", "b", "c"},
		CurrentPrice:   100,
		RiskPercentage: 0.02,
		GeneratedAt:    at,
	}
}

func TestCreateSignalRoundTrip(t *testing.T) {
	pub := &recordingPublisher{}
	l, store := newLifecycle(newFakeMarket(), pub)

	sig, err := l.CreateSignal(context.Background(), buyParams(models.TF1h, t0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sig.StopLoss != 98 || sig.TakeProfit != 104 || sig.RiskRewardRatio != 2 {
		t.Fatalf("unexpected levels %+v", sig)
	}
	if sig.Status != models.StatusPending || !sig.ValidUntil.Equal(t0.Add(2*time.Hour)) {
		t.Fatalf("unexpected status/validity %s %s", sig.Status, sig.ValidUntil)
	}

	stored, err := store.Get(context.Background(), sig.ID)
	if err != nil || stored.EntryPrice != 100 {
		t.Fatalf("stored %+v err=%v", stored, err)
	}
	if names := pub.names(); len(names) != 1 || names[0] != models.EventSignalCreated {
		t.Fatalf("events %v", names)
	}
}

func TestCreateSignalPublishFailureDoesNotFail(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	l, _ := newLifecycle(newFakeMarket(), pub)

	if _, err := l.CreateSignal(context.Background(), buyParams(models.TF1h, t0)); err != nil {
		t.Fatalf("publish error must not fail create: %v", err)
	}
}

func TestCreateSignalValidation(t *testing.T) {
	l, _ := newLifecycle(newFakeMarket(), &recordingPublisher{})

	neutral := buyParams(models.TF1h, t0)
	neutral.SignalType = models.SignalNeutral
	zero := buyParams(models.TF1h, t0)
	zero.CurrentPrice = 0
	badTF := buyParams("2h", t0)
	noRisk := buyParams(models.TF1h, t0)
	noRisk.RiskPercentage = 0

	cases := map[string]CreateSignalParams{"neutral": neutral, "zero price": zero, "timeframe": badTF, "zero risk": noRisk}
	for name, p := range cases {
		_, err := l.CreateSignal(context.Background(), p)
		var ve *models.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
	}
}

func TestNextStatus(t *testing.T) {
	buy := models.Signal{SignalType: models.SignalBuy, EntryPrice: 100, StopLoss: 98, TakeProfit: 104, Status: models.StatusPending, ValidUntil: t0.Add(time.Hour)}
	sell := models.Signal{SignalType: models.SignalSell, EntryPrice: 100, StopLoss: 102, TakeProfit: 96, Status: models.StatusActive, ValidUntil: t0.Add(time.Hour)}

	tests := []struct {
		name  string
		sig   models.Signal
		price float64
		now   time.Time
		want  models.SignalStatus
	}{
		{"buy target", buy, 104, t0, models.StatusTriggered},
		{"buy stop", buy, 97.5, t0, models.StatusInvalidated},
		{"buy pending in range", buy, 101, t0, models.StatusActive},
		{"sell target", sell, 95, t0, models.StatusTriggered},
		{"sell stop", sell, 102, t0, models.StatusInvalidated},
		{"sell active in range", sell, 99, t0, models.StatusActive},
		{"expiry wins over target", buy, 110, t0.Add(2 * time.Hour), models.StatusExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := tt.sig
			if got := NextStatus(&sig, tt.price, tt.now); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}

	for _, st := range []models.SignalStatus{models.StatusTriggered, models.StatusExpired, models.StatusInvalidated} {
		sig := buy
		sig.Status = st
		if got := NextStatus(&sig, 50, t0.Add(48*time.Hour)); got != st {
			t.Fatalf("terminal %s moved to %s", st, got)
		}
	}
}

func TestUpdateStatusPersistsOnlyChanges(t *testing.T) {
	pub := &recordingPublisher{}
	l, store := newLifecycle(newFakeMarket(), pub)
	ctx := context.Background()

	sig, _ := l.CreateSignal(ctx, buyParams(models.TF1h, t0))

	changed, err := l.UpdateStatus(ctx, sig, 101, t0)
	if err != nil || !changed || sig.Status != models.StatusActive {
		t.Fatalf("activate: changed=%v err=%v status=%s", changed, err, sig.Status)
	}
	changed, err = l.UpdateStatus(ctx, sig, 101.5, t0)
	if err != nil || changed {
		t.Fatalf("no-op update reported change: %v %v", changed, err)
	}

	stale, _ := store.Get(ctx, sig.ID)
	stale.Status = models.StatusPending
	changed, err = l.UpdateStatus(ctx, stale, 110, t0)
	if err != nil || changed {
		t.Fatalf("stale update must not apply: %v %v", changed, err)
	}
	got, _ := store.Get(ctx, sig.ID)
	if got.Status != models.StatusActive {
		t.Fatalf("status overwritten to %s", got.Status)
	}

	want := []string{models.EventSignalCreated, models.EventSignalStatusChanged}
	if names := pub.names(); len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("events %v", names)
	}
}

func TestUpdateStatusConcurrent(t *testing.T) {
	l, store := newLifecycle(newFakeMarket(), &recordingPublisher{})
	ctx := context.Background()
	sig, _ := l.CreateSignal(ctx, buyParams(models.TF1h, t0))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp, _ := store.Get(ctx, sig.ID)
			ok, err := l.UpdateStatus(ctx, cp, 105, t0)
			if err != nil {
				t.Errorf("update: %v", err)
			}
			if ok {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if changes != 1 {
		t.Fatalf("expected exactly one transition, got %d", changes)
	}
	if l.locks.size() != 0 {
		t.Fatalf("keyed locks leaked: %d", l.locks.size())
	}
}

func TestCleanupExpiredIdempotent(t *testing.T) {
	l, store := newLifecycle(newFakeMarket(), &recordingPublisher{})
	ctx := context.Background()

	old, _ := l.CreateSignal(ctx, buyParams(models.TF1m, t0.Add(-10*time.Minute)))
	_, _ = l.CreateSignal(ctx, buyParams(models.TF1h, t0))

	n, err := l.CleanupExpired(ctx, t0)
	if err != nil || n != 1 {
		t.Fatalf("first cleanup n=%d err=%v", n, err)
	}
	n, err = l.CleanupExpired(ctx, t0)
	if err != nil || n != 0 {
		t.Fatalf("second cleanup n=%d err=%v", n, err)
	}
	got, _ := store.Get(ctx, old.ID)
	if got.Status != models.StatusExpired {
		t.Fatalf("1m signal 5 minutes past validity should be EXPIRED, got %s", got.Status)
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	market := newFakeMarket()
	market.prices["EURUSD"] = 105
	market.priceErr["GBPUSD"] = errUnavailable
	l, store := newLifecycle(market, &recordingPublisher{})
	ctx := context.Background()

	eur, _ := l.CreateSignal(ctx, buyParams(models.TF1h, t0))
	gbp := buyParams(models.TF1h, t0)
	gbp.Symbol = "GBPUSD"
	_, _ = l.CreateSignal(ctx, gbp)
	_, _ = l.CreateSignal(ctx, gbp)

	res, err := l.Sweep(ctx, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Checked != 3 || res.Updated != 1 || res.Failed != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	got, _ := store.Get(ctx, eur.ID)
	if got.Status != models.StatusTriggered {
		t.Fatalf("EURUSD should have triggered, got %s", got.Status)
	}
}

func TestListPagination(t *testing.T) {
	l, _ := newLifecycle(newFakeMarket(), &recordingPublisher{})
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, _ = l.CreateSignal(ctx, buyParams(models.TF1h, t0.Add(time.Duration(i)*time.Minute)))
	}

	page, err := l.List(ctx, models.ListSignalsRequest{Page: 2, PageSize: 5, Timeframe: "h1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 12 || len(page.Signals) != 5 || page.Signals[0].ID != 7 {
		t.Fatalf("unexpected page total=%d len=%d first=%d", page.Total, len(page.Signals), page.Signals[0].ID)
	}

	if _, err := l.List(ctx, models.ListSignalsRequest{Timeframe: "2h"}); !errors.Is(err, models.ErrInvalidTimeframe) {
		t.Fatalf("expected ErrInvalidTimeframe, got %v", err)
	}
	if _, err := l.Get(ctx, 999); !errors.Is(err, domrepo.ErrSignalNotFound) {
		t.Fatalf("expected ErrSignalNotFound, got %v", err)
	}
}
