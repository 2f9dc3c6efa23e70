package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	domsvc "SignalDesk/internal/domain/service"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
)

// Evaluator produces a fused signal for one symbol and timeframe, or nil when there is none.
type Evaluator interface {
	Evaluate(ctx context.Context, symbol string, tf models.Timeframe) (*models.TradingSignal, error)
}

type AggregatorOption func(*SignalAggregator)

// WithThreshold sets the minimum confidence a fused signal needs.
func WithThreshold(t float64) AggregatorOption {
	return func(a *SignalAggregator) {
		if t > 0 && t <= 1 {
			a.threshold = t
		}
	}
}

func WithLookback(n int) AggregatorOption {
	return func(a *SignalAggregator) {
		if n > 0 {
			a.lookback = n
		}
	}
}

func WithAggregatorMetrics(m domrepo.Metrics) AggregatorOption {
	return func(a *SignalAggregator) { a.metrics = m }
}

func WithAggregatorLogger(l *logger.Logger) AggregatorOption {
	return func(a *SignalAggregator) { a.log = l }
}

// SignalAggregator runs every registered strategy over one candle window and fuses the votes.
type SignalAggregator struct {
	market     domrepo.MarketData
	strategies []domsvc.Strategy
	threshold  float64
	lookback   int
	metrics    domrepo.Metrics
	log        *logger.Logger
	now        func() time.Time
}

func NewSignalAggregator(market domrepo.MarketData, strategies []domsvc.Strategy, opts ...AggregatorOption) *SignalAggregator {
	a := &SignalAggregator{
		market:     market,
		strategies: strategies,
		threshold:  0.7,
		lookback:   300,
		metrics:    metrics.Nop{},
		log:        logger.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assessment is the full outcome of one aggregation: every vote plus the fused signal, if any.
type Assessment struct {
	Symbol    string                 `json:"symbol"`
	Timeframe models.Timeframe       `json:"timeframe"`
	Signal    *models.TradingSignal  `json:"signal"`
	Votes     []models.AlgorithmVote `json:"votes"`
	Candles   int                    `json:"candles"`
}

func (a *SignalAggregator) Evaluate(ctx context.Context, symbol string, tf models.Timeframe) (*models.TradingSignal, error) {
	as, err := a.Assess(ctx, symbol, tf)
	if err != nil {
		return nil, err
	}
	return as.Signal, nil
}

// Assess fetches the candle window and scores it. A fetch error is returned untouched so
// callers can skip the symbol.
func (a *SignalAggregator) Assess(ctx context.Context, symbol string, tf models.Timeframe) (*Assessment, error) {
	candles, err := a.market.GetCandles(ctx, symbol, tf, a.lookback)
	if err != nil {
		return nil, fmt.Errorf("candles %s %s: %w", symbol, tf, err)
	}
	votes := a.vote(symbol, candles)
	sig := Fuse(votes, len(a.strategies), a.threshold)
	if sig != nil {
		sig.Symbol = symbol
		sig.Timeframe = tf
		sig.GeneratedAt = a.now().UTC()
		sig.Votes = votes
	}
	return &Assessment{Symbol: symbol, Timeframe: tf, Signal: sig, Votes: votes, Candles: len(candles)}, nil
}

// vote runs each strategy in its own goroutine. Results keep registration order.
func (a *SignalAggregator) vote(symbol string, candles []models.Candle) []models.AlgorithmVote {
	votes := make([]models.AlgorithmVote, len(a.strategies))
	var wg sync.WaitGroup
	for i, s := range a.strategies {
		wg.Add(1)
		go func(i int, s domsvc.Strategy) {
			defer wg.Done()
			votes[i] = a.runStrategy(symbol, s, candles)
		}(i, s)
	}

	wg.Wait()

	for _, v := range votes {
		if v.Err != "" {
			a.metrics.RecordAlgorithmError(v.Algorithm)
		}
	}
	return votes
}

func (a *SignalAggregator) runStrategy(symbol string, s domsvc.Strategy, candles []models.Candle) (vote models.AlgorithmVote) {
	vote.Algorithm = s.Name()
	defer func() {
		if r := recover(); r != nil {
			aerr := &AlgorithmError{Algorithm: s.Name(), Symbol: symbol, Err: fmt.Errorf("panic: %v", r)}
			a.log.Error("algorithm panicked", logger.String("algorithm", s.Name()), logger.String("symbol", symbol), logger.Error(aerr))
			vote.Signal = models.SignalNeutral
			vote.Err = aerr.Error()
		}
	}()

	sig, err := s.Evaluate(candles)
	if err != nil {
		aerr := &AlgorithmError{Algorithm: s.Name(), Symbol: symbol, Err: err}
		a.log.Warn("algorithm failed", logger.String("algorithm", s.Name()), logger.String("symbol", symbol), logger.Error(aerr))
		vote.Signal = models.SignalNeutral
		vote.Err = aerr.Error()
		return vote
	}
	vote.Signal = sig
	return vote
}

// Fuse turns votes into a signal. Confidence is the winning count over total registered
// strategies, so failed strategies lower it. A tie or a confidence below threshold yields nil.
func Fuse(votes []models.AlgorithmVote, total int, threshold float64) *models.TradingSignal {
	if total <= 0 {
		return nil
	}
	var buys, sells []string
	for _, v := range votes {
		if v.Err != "" {
			continue
		}
		switch v.Signal {
		case models.SignalBuy:
			buys = append(buys, v.Algorithm)
		case models.SignalSell:
			sells = append(sells, v.Algorithm)
		}
	}
	if len(buys) == len(sells) {
		return nil
	}

	side, winners := models.SignalBuy, buys
	if len(sells) > len(buys) {
		side, winners = models.SignalSell, sells
	}
	confidence := float64(len(winners)) / float64(total)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < threshold {
		return nil
	}
	return &models.TradingSignal{
		SignalType:          side,
		Confidence:          confidence,
		AlgorithmsTriggered: winners,
	}
}
