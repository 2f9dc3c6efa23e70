package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
)

type fakeMarket struct {
	mu        sync.Mutex
	candles   []models.Candle
	prices    map[string]float64
	candleErr map[string]error
	priceErr  map[string]error
	calls     int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{prices: map[string]float64{}, candleErr: map[string]error{}, priceErr: map[string]error{}}
}

func (m *fakeMarket) GetCandles(_ context.Context, symbol string, _ models.Timeframe, _ int) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.candleErr[symbol]; err != nil {
		return nil, err
	}
	return m.candles, nil
}

func (m *fakeMarket) GetCurrentPrice(_ context.Context, symbol string, side models.PriceSide) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.priceErr[symbol]; err != nil {
		return 0, err
	}
	if p, ok := m.prices[symbol+":"+string(side)]; ok {
		return p, nil
	}
	p, ok := m.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

type fakeStrategy struct {
	name  string
	sig   models.SignalType
	err   error
	panic bool
}

func (s fakeStrategy) Name() string { return s.name }

func (s fakeStrategy) Evaluate([]models.Candle) (models.SignalType, error) {
	if s.panic {
		panic("index out of range")
	}
	return s.sig, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SignalEvent
	err    error
}

func (p *recordingPublisher) PublishSignalEvent(_ context.Context, ev models.SignalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Event
	}
	return out
}

var errUnavailable = errors.New("provider unavailable")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
