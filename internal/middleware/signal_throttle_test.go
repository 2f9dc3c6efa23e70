package middleware

import (
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
)

func TestSignalThrottle(t *testing.T) {
	th := NewSignalThrottle(WithMinInterval(5 * time.Minute))
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	steps := []struct {
		symbol string
		tf     models.Timeframe
		at     time.Duration
		want   bool
	}{
		{"EURUSD", models.TF1m, 0, true},
		{"EURUSD", models.TF1m, time.Minute, false},
		{"EURUSD", models.TF5m, time.Minute, true},
		{"GBPUSD", models.TF1m, time.Minute, true},
		{"EURUSD", models.TF1m, 5 * time.Minute, true},
		{"EURUSD", models.TF1m, 6 * time.Minute, false},
	}
	for i, s := range steps {
		got := th.Allow(s.symbol, s.tf, t0.Add(s.at))
		if got != s.want {
			t.Fatalf("step %d (%s %s +%s): got %v, want %v", i, s.symbol, s.tf, s.at, got, s.want)
		}
		if got {
			th.Record(s.symbol, s.tf, t0.Add(s.at))
		}
	}

	if n := th.Prune(t0.Add(time.Hour)); n != 3 {
		t.Fatalf("expected 3 pruned keys, got %d", n)
	}
}

func TestSignalThrottleDisabled(t *testing.T) {
	th := NewSignalThrottle(WithMinInterval(0))
	now := time.Now()
	for i := 0; i < 3; i++ {
		if !th.Allow("EURUSD", models.TF1m, now) {
			t.Fatalf("zero interval must never throttle")
		}
	}
}

func TestSignalThrottleAllowDoesNotClaim(t *testing.T) {
	th := NewSignalThrottle(WithMinInterval(5 * time.Minute))
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if !th.Allow("EURUSD", models.TF1m, t0) || !th.Allow("EURUSD", models.TF1m, t0.Add(time.Minute)) {
		t.Fatalf("unrecorded key must stay open")
	}
	th.Record("EURUSD", models.TF1m, t0.Add(time.Minute))
	if th.Allow("EURUSD", models.TF1m, t0.Add(2*time.Minute)) {
		t.Fatalf("recorded key must be throttled")
	}
}
