package middleware

import (
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/metrics"
)

// SignalThrottle sits between the aggregator and the store. It lets at most one signal per
// symbol and timeframe through within minInterval, so back-to-back cycles that agree on the
// same setup do not persist duplicates.
type SignalThrottle struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastSeen    map[string]time.Time
	metrics     domrepo.Metrics
}

type ThrottleOption func(*SignalThrottle)

// WithMinInterval sets the quiet period after an accepted signal.
func WithMinInterval(d time.Duration) ThrottleOption {
	return func(t *SignalThrottle) {
		if d >= 0 {
			t.minInterval = d
		}
	}
}

func WithThrottleMetrics(m domrepo.Metrics) ThrottleOption {
	return func(t *SignalThrottle) { t.metrics = m }
}

func NewSignalThrottle(opts ...ThrottleOption) *SignalThrottle {
	t := &SignalThrottle{
		minInterval: 5 * time.Minute,
		lastSeen:    make(map[string]time.Time),
		metrics:     metrics.Nop{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow reports whether a signal for symbol and tf may pass at now. It does not claim the
// slot; call Record once the signal was dispatched.
func (t *SignalThrottle) Allow(symbol string, tf models.Timeframe, now time.Time) bool {
	if t.minInterval == 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastSeen[throttleKey(symbol, tf)]
	if ok && now.Sub(last) < t.minInterval {
		t.metrics.RecordError("signal_throttled")
		return false
	}
	return true
}

// Record starts the quiet period for symbol and tf at now.
func (t *SignalThrottle) Record(symbol string, tf models.Timeframe, now time.Time) {
	if t.minInterval == 0 {
		return
	}
	t.mu.Lock()
	t.lastSeen[throttleKey(symbol, tf)] = now
	t.mu.Unlock()
}

func throttleKey(symbol string, tf models.Timeframe) string {
	return symbol + ":" + string(tf)
}

// Prune forgets keys older than the interval.
func (t *SignalThrottle) Prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for k, last := range t.lastSeen {
		if now.Sub(last) >= t.minInterval {
			delete(t.lastSeen, k)
			n++
		}
	}
	return n
}
