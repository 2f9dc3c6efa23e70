package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/middleware"
)

type scriptedEvaluator struct {
	mu    sync.Mutex
	out   map[string]*models.TradingSignal
	errs  map[string]error
	calls int
}

func (e *scriptedEvaluator) Evaluate(_ context.Context, symbol string, tf models.Timeframe) (*models.TradingSignal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if err := e.errs[symbol]; err != nil {
		return nil, err
	}
	sig, ok := e.out[symbol]
	if !ok {
		return nil, nil
	}
	cp := *sig
	cp.Symbol = symbol
	cp.Timeframe = tf
	return &cp, nil
}

type recordingSink struct {
	mu     sync.Mutex
	params []CreateSignalParams
	err    error
}

func (s *recordingSink) Submit(_ context.Context, p CreateSignalParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.params = append(s.params, p)
	return nil
}

func TestGenerateForTimeframe(t *testing.T) {
	eval := &scriptedEvaluator{
		out: map[string]*models.TradingSignal{
			"EURUSD": {SignalType: models.SignalBuy, Confidence: 1, AlgorithmsTriggered: []string{"a"}},
			"XAUUSD": {SignalType: models.SignalSell, Confidence: 0.75, AlgorithmsTriggered: []string{"a", "b"}},
		},
		errs: map[string]error{"GBPUSD": errUnavailable},
	}
	market := newFakeMarket()
	market.prices["EURUSD:ask"] = 1.1
	market.prices["XAUUSD:bid"] = 2000
	sink := &recordingSink{}

	gen := NewSignalGenerator(eval, NewPricer(market, PricerConfig{}), sink,
		[]string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD"},
		WithConcurrency(2),
		WithThrottle(middleware.NewSignalThrottle(middleware.WithMinInterval(5*time.Minute))),
	)

	res, err := gen.GenerateForTimeframe(context.Background(), models.TF5m)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Evaluated != 4 || res.Signals != 2 || res.Skipped != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, p := range sink.params {
		if p.Symbol == "XAUUSD" && p.CurrentPrice != 2000 {
			t.Fatalf("SELL should enter at bid, got %v", p.CurrentPrice)
		}
		if p.Symbol == "EURUSD" && p.CurrentPrice != 1.1 {
			t.Fatalf("BUY should enter at ask, got %v", p.CurrentPrice)
		}
	}

	res, _ = gen.GenerateForTimeframe(context.Background(), models.TF5m)
	if res.Signals != 0 || res.Throttled != 2 {
		t.Fatalf("second cycle should be throttled: %+v", res)
	}
}

func TestGeneratePricingFailureKeepsSymbolOpen(t *testing.T) {
	eval := &scriptedEvaluator{out: map[string]*models.TradingSignal{"EURUSD": {SignalType: models.SignalBuy, Confidence: 1}}}
	market := newFakeMarket()
	market.prices["EURUSD"] = 1.1
	market.priceErr["EURUSD"] = errUnavailable
	sink := &recordingSink{}
	gen := NewSignalGenerator(eval, NewPricer(market, PricerConfig{}), sink, []string{"EURUSD"},
		WithThrottle(middleware.NewSignalThrottle(middleware.WithMinInterval(5*time.Minute))),
	)

	res, _ := gen.GenerateForTimeframe(context.Background(), models.TF1m)
	if res.Failed != 1 || res.Signals != 0 {
		t.Fatalf("first cycle: %+v", res)
	}

	delete(market.priceErr, "EURUSD")
	res, _ = gen.GenerateForTimeframe(context.Background(), models.TF1m)
	if res.Signals != 1 || res.Throttled != 0 {
		t.Fatalf("second cycle should generate after a pricing failure: %+v", res)
	}
	if len(sink.params) != 1 {
		t.Fatalf("expected 1 submitted signal, got %d", len(sink.params))
	}
}

func TestGenerateSinkFailureCounted(t *testing.T) {
	eval := &scriptedEvaluator{out: map[string]*models.TradingSignal{"EURUSD": {SignalType: models.SignalBuy, Confidence: 1}}}
	market := newFakeMarket()
	market.prices["EURUSD"] = 1.1
	gen := NewSignalGenerator(eval, NewPricer(market, PricerConfig{}), &recordingSink{err: errors.New("queue down")}, []string{"EURUSD"})

	res, err := gen.GenerateForTimeframe(context.Background(), models.TF1m)
	if err != nil || res.Failed != 1 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestGenerateRejectsUnknownTimeframe(t *testing.T) {
	gen := NewSignalGenerator(&scriptedEvaluator{}, nil, &recordingSink{}, nil)
	if _, err := gen.GenerateForTimeframe(context.Background(), "3m"); !errors.Is(err, models.ErrInvalidTimeframe) {
		t.Fatalf("expected ErrInvalidTimeframe, got %v", err)
	}
}

func TestLifecycleAsSink(t *testing.T) {
	l, store := newLifecycle(newFakeMarket(), &recordingPublisher{})
	if err := l.Submit(context.Background(), buyParams(models.TF1h, t0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := store.Get(context.Background(), 1); err != nil {
		t.Fatalf("signal not persisted: %v", err)
	}
}
