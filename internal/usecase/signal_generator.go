package usecase

import (
	"context"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"

	"golang.org/x/sync/errgroup"
)

// SignalSink receives priced signals for persistence. The lifecycle persists inline; the
// queue-backed sink defers to the store_signal job.
type SignalSink interface {
	Submit(ctx context.Context, p CreateSignalParams) error
}

// Throttle suppresses repeat signals for a symbol and timeframe. Allow only checks; Record
// claims the slot after a signal was dispatched. Prune drops expired slots.
type Throttle interface {
	Allow(symbol string, tf models.Timeframe, now time.Time) bool
	Record(symbol string, tf models.Timeframe, now time.Time)
	Prune(now time.Time) int
}

type GeneratorOption func(*SignalGenerator)

func WithConcurrency(n int) GeneratorOption {
	return func(g *SignalGenerator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

func WithThrottle(t Throttle) GeneratorOption {
	return func(g *SignalGenerator) { g.throttle = t }
}

func WithGeneratorMetrics(m domrepo.Metrics) GeneratorOption {
	return func(g *SignalGenerator) { g.metrics = m }
}

func WithGeneratorLogger(l *logger.Logger) GeneratorOption {
	return func(g *SignalGenerator) { g.log = l }
}

// SignalGenerator runs one generation cycle: evaluate every symbol on a timeframe, price the
// signals that pass and hand them to the sink.
type SignalGenerator struct {
	eval        Evaluator
	pricer      *Pricer
	sink        SignalSink
	symbols     []string
	concurrency int
	throttle    Throttle
	metrics     domrepo.Metrics
	log         *logger.Logger
	now         func() time.Time
}

func NewSignalGenerator(eval Evaluator, pricer *Pricer, sink SignalSink, symbols []string, opts ...GeneratorOption) *SignalGenerator {
	g := &SignalGenerator{
		eval:        eval,
		pricer:      pricer,
		sink:        sink,
		symbols:     symbols,
		concurrency: 8,
		metrics:     metrics.Nop{},
		log:         logger.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SignalGenerator) Symbols() []string {
	return append([]string(nil), g.symbols...)
}

type GenerationResult struct {
	Timeframe models.Timeframe `json:"timeframe"`
	Evaluated int              `json:"evaluated"`
	Signals   int              `json:"signals"`
	Throttled int              `json:"throttled"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
}

// GenerateForTimeframe evaluates all symbols on tf with at most concurrency symbols in flight.
// A failing symbol is skipped for this cycle and never aborts the batch.
func (g *SignalGenerator) GenerateForTimeframe(ctx context.Context, tf models.Timeframe) (GenerationResult, error) {
	res := GenerationResult{Timeframe: tf}
	if !models.IsValidTimeframe(tf) {
		return res, models.ErrInvalidTimeframe
	}

	start := time.Now()
	var mu sync.Mutex
	count := func(fn func(*GenerationResult)) {
		mu.Lock()
		fn(&res)
		mu.Unlock()
	}

	var group errgroup.Group
	group.SetLimit(g.concurrency)
	for _, symbol := range g.symbols {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			g.generateSymbol(ctx, symbol, tf, count)
			return nil
		})
	}
	_ = group.Wait()
	if g.throttle != nil {
		g.throttle.Prune(g.now())
	}

	g.metrics.RecordLatency("generate_"+string(tf), time.Since(start).Seconds())
	g.log.Info("generation cycle finished",
		logger.String("timeframe", string(tf)),
		logger.Int("evaluated", res.Evaluated),
		logger.Int("signals", res.Signals),
		logger.Int("throttled", res.Throttled),
		logger.Int("skipped", res.Skipped),
		logger.Int("failed", res.Failed),
		logger.Duration("took_ms", time.Since(start)),
	)
	return res, ctx.Err()
}

func (g *SignalGenerator) generateSymbol(ctx context.Context, symbol string, tf models.Timeframe, count func(func(*GenerationResult))) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("generation panicked", logger.String("symbol", symbol), logger.Any("panic", r))
			count(func(r *GenerationResult) { r.Failed++ })
		}
	}()

	sig, err := g.eval.Evaluate(ctx, symbol, tf)
	count(func(r *GenerationResult) { r.Evaluated++ })
	if err != nil {
		g.log.Warn("symbol skipped", logger.String("symbol", symbol), logger.String("timeframe", string(tf)), logger.Error(err))
		count(func(r *GenerationResult) { r.Skipped++ })
		return
	}
	if sig == nil {
		return
	}
	now := g.now()
	if g.throttle != nil && !g.throttle.Allow(symbol, tf, now) {
		count(func(r *GenerationResult) { r.Throttled++ })
		return
	}

	q, err := g.pricer.Quote(ctx, sig)
	if err != nil {
		g.log.Warn("signal pricing failed", logger.String("symbol", symbol), logger.Error(err))
		count(func(r *GenerationResult) { r.Failed++ })
		return
	}

	err = g.sink.Submit(ctx, CreateSignalParams{
		Symbol:         sig.Symbol,
		Timeframe:      sig.Timeframe,
		SignalType:     sig.SignalType,
		Confidence:     sig.Confidence,
		Algorithms:     sig.AlgorithmsTriggered,
		CurrentPrice:   q.Levels.Entry,
		RiskPercentage: g.pricer.RiskPercentage(),
		VolatilityUnit: q.VolatilityUnit,
		GeneratedAt:    sig.GeneratedAt,
	})
	if err != nil {
		g.log.Error("signal dispatch failed", logger.String("symbol", symbol), logger.Error(err))
		count(func(r *GenerationResult) { r.Failed++ })
		return
	}
	if g.throttle != nil {
		g.throttle.Record(symbol, tf, now)
	}
	g.metrics.RecordSignalGenerated(symbol, string(tf), string(sig.SignalType))
	count(func(r *GenerationResult) { r.Signals++ })
}

// Submit persists p inline.
func (l *SignalLifecycle) Submit(ctx context.Context, p CreateSignalParams) error {
	_, err := l.CreateSignal(ctx, p)
	return err
}
